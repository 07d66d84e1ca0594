package method

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/tier"
)

func TestPersistentMethodInfoAttachDetachPlan(t *testing.T) {
	info := NewPersistentMethodInfo(tier.Cold)
	plan := &tier.OptimizationPlan{Tier: tier.Warm}

	info.AttachPlan(plan)
	got := info.DetachPlan()
	assert.Same(t, plan, got)
	assert.Nil(t, info.DetachPlan())
}

func TestPersistentMethodInfoInvalidateAndAdvance(t *testing.T) {
	info := NewPersistentMethodInfo(tier.Cold)
	info.SetReason(DueToThreshold, tier.Warm)
	assert.Equal(t, DueToThreshold, info.ReasonForRecompilation)

	info.Invalidate()
	info.Invalidate()
	assert.Equal(t, 2, info.NumberOfInvalidations)

	info.AdvanceTier()
	assert.Equal(t, tier.Warm, info.CurrentTier)
}

func TestSamplingRecompDecidedSetOnce(t *testing.T) {
	body := NewPersistentJittedBodyInfo(tier.Warm, 30)

	assert.True(t, body.MarkSamplingRecompDecided())
	assert.False(t, body.MarkSamplingRecompDecided(), "must be set exactly once per decision window")

	body.ResetSamplingRecompDecided()
	assert.True(t, body.MarkSamplingRecompDecided())
}

func TestMarkCompilingTransitions(t *testing.T) {
	body := NewPersistentJittedBodyInfo(tier.Warm, 30)

	assert.True(t, body.MarkCompiling(true))
	assert.False(t, body.MarkCompiling(true), "already compiling")
	assert.True(t, body.IsCompiling())

	assert.True(t, body.MarkCompiling(false))
	assert.False(t, body.IsCompiling())
}

func TestDecrementCounterConcurrentNeverLosesUpdates(t *testing.T) {
	body := NewPersistentJittedBodyInfo(tier.Warm, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body.DecrementCounter(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(900), body.Counter)
}

func TestInvocationCounterTryDecrement(t *testing.T) {
	c := NewInvocationCounter(10)

	res := c.TryDecrement(3, 5)
	assert.True(t, res.IsOK())
	assert.Equal(t, int32(7), res.Value)
	assert.Equal(t, int32(7), c.Load())
}

func TestSetInvocationCountWrapsNegativeToPositive(t *testing.T) {
	c := NewInvocationCounter(0)
	c.word = -1 // simulate a prior decrement sequence landing exactly on the queued sentinel's neighbor

	res := c.SetInvocationCount(-1, 0)
	assert.Equal(t, ctlerrors.ReasonCounterWrapped, res.Reason)
	assert.Equal(t, int32(0), res.Value)

	// A wrap landing away from the queued-adjacent values is not flagged.
	c2 := NewInvocationCounter(0)
	c2.word = -50
	res2 := c2.SetInvocationCount(-50, 20)
	assert.True(t, res2.IsOK())
}

func TestMarkQueuedCAS(t *testing.T) {
	// Even count: the constructor clears the low (flag) bit.
	c := NewInvocationCounter(6)

	res := c.MarkQueued(6)
	assert.True(t, res.IsOK())
	assert.True(t, c.IsQueued())

	// Stale expected value: contention.
	res2 := c.MarkQueued(6)
	assert.False(t, res2.IsOK())
}
