package strategy

import (
	"sync"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/event"
	"github.com/tieredvm/recompiler/pkg/method"
	"github.com/tieredvm/recompiler/pkg/tier"
)

// ThresholdStrategy is the simpler, deterministic variant described in
// spec §4.1: every jitted sample increments a per-method counter; once the
// counter reaches samplesNeededToMoveTo[nextTier], emit a plan at that
// tier, with instrumentation if the table says so.
type ThresholdStrategy struct {
	mu      sync.Mutex
	plans   *tier.Pool
	needed  map[tier.Tier]int32
	instrument map[tier.Tier]bool
	counts  map[method.MethodHandle]int32
}

// NewThresholdStrategy creates a ThresholdStrategy. needed maps a target
// tier to the sample count required to reach it; instrument marks which
// target tiers should carry instrumentation.
func NewThresholdStrategy(plans *tier.Pool, needed map[tier.Tier]int32, instrument map[tier.Tier]bool) *ThresholdStrategy {
	if instrument == nil {
		instrument = map[tier.Tier]bool{}
	}
	return &ThresholdStrategy{
		plans:      plans,
		needed:     needed,
		instrument: instrument,
		counts:     make(map[method.MethodHandle]int32),
	}
}

func (s *ThresholdStrategy) ProcessEvent(ev event.MethodEvent, methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	sample, ok := ev.(event.JittedMethodSample)
	if !ok {
		return nil, false, ctlerrors.ReasonNoPlan
	}

	nextTier := methodInfo.CurrentTier + 1
	needed, hasThreshold := s.needed[nextTier]
	if !hasThreshold {
		return nil, false, ctlerrors.ReasonNoPlan
	}

	s.mu.Lock()
	s.counts[sample.Method()]++
	count := s.counts[sample.Method()]
	s.mu.Unlock()

	if count < needed {
		return nil, false, ctlerrors.ReasonNoPlan
	}

	res := s.plans.Get(nextTier)
	if !res.IsOK() {
		return nil, false, res.Reason
	}
	plan := res.Value
	plan.InsertInstrumentation = s.instrument[nextTier]
	methodInfo.SetReason(method.DueToThreshold, nextTier)

	s.mu.Lock()
	s.counts[sample.Method()] = 0
	s.mu.Unlock()

	return plan, true, ctlerrors.ReasonOK
}

func (s *ThresholdStrategy) AdjustOptimizationPlan(plan *tier.OptimizationPlan, optLevelDelta int) bool {
	if plan == nil || optLevelDelta == 0 {
		return false
	}
	next := int(plan.Tier) + optLevelDelta
	if next < int(tier.NoOpt) || next > int(tier.Scorching) {
		return false
	}
	plan.Tier = tier.Tier(next)
	return true
}

func (s *ThresholdStrategy) BeforeCodeGen(plan *tier.OptimizationPlan, bodyInfo *method.PersistentJittedBodyInfo) {
	if plan == nil || bodyInfo == nil {
		return
	}
	bodyInfo.Hotness = plan.Tier
}

func (s *ThresholdStrategy) PostCompilation(methodInfo *method.PersistentMethodInfo) {
	plan := methodInfo.DetachPlan()
	if plan != nil {
		s.plans.Release(plan)
	}
}
