package tier

import (
	"sync"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
)

// Pool is the single monitor guarding the shared pool of reusable
// OptimizationPlan values (spec §3.1, §5 "Optimization-plan monitor").
// It is a narrow free-list, not a sync.Pool: plans need explicit pool
// linkage so Release can return exactly the slab they came from, and the
// pool is sized and inspected (Len) the way the spec's fixed-capacity
// plan pool is — a sync.Pool offers neither (see DESIGN.md pkg/tier entry).
type Pool struct {
	mu       sync.Mutex
	free     []*OptimizationPlan
	capacity int
	allocated int
}

// NewPool creates a plan pool with the given maximum outstanding plan
// capacity. A non-positive capacity means unbounded.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// Get returns a plan for tier t, reused from the free list when possible.
// Returns ReasonPlanPoolExhausted if the pool is at capacity with nothing
// free — a transient condition the caller treats as "no plan this time".
func (p *Pool) Get(t Tier) ctlerrors.Result[*OptimizationPlan] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		plan := p.free[n-1]
		p.free = p.free[:n-1]
		plan.reset()
		plan.Tier = t
		return ctlerrors.Ok(plan)
	}

	if p.capacity > 0 && p.allocated >= p.capacity {
		return ctlerrors.Err[*OptimizationPlan](ctlerrors.ReasonPlanPoolExhausted)
	}

	plan := &OptimizationPlan{Tier: t, pooled: p}
	p.allocated++
	return ctlerrors.Ok(plan)
}

// Release returns a plan to its owning pool. Plans obtained via Clone (or
// built directly, bypassing the pool) are silently ignored: they carry no
// pool linkage to release into.
func (p *Pool) Release(plan *OptimizationPlan) {
	if plan == nil || plan.pooled != p {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, plan)
}

// Len reports the number of plans currently sitting free in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Allocated reports the total number of plans ever allocated from this
// pool that have not been permanently discarded (all live + free plans).
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}
