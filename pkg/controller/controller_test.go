package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/event"
	"github.com/tieredvm/recompiler/pkg/method"
	"github.com/tieredvm/recompiler/pkg/strategy"
	"github.com/tieredvm/recompiler/pkg/tier"
)

func newTestController(t *testing.T, compile CompileFunc) *Controller {
	t.Helper()
	plans := tier.NewPool(64)
	strat := strategy.NewDefaultStrategy(strategy.DefaultConfig(), plans)
	return New(Config{NumWorkers: 2, RingSize: 16}, strat, plans, compile)
}

func TestResolveStrategyNameFallsBackToDefault(t *testing.T) {
	assert.Equal(t, StrategyDefault, ResolveStrategyName("bogus"))
	assert.Equal(t, StrategyThreshold, ResolveStrategyName("threshold"))
	assert.Equal(t, StrategyDefault, ResolveStrategyName(""))
}

func TestControllerCompilesQueuedEntries(t *testing.T) {
	var mu sync.Mutex
	var compiled []string
	c := newTestController(t, func(e *QueueEntry) {
		mu.Lock()
		compiled = append(compiled, e.Key)
		mu.Unlock()
	})
	defer c.Shutdown()

	c.AddMethodToBeCompiled("m1", MainAsyncQueue, WeightCold, nil, true)
	c.AddMethodToBeCompiled("m2", JProfilingQueue, WeightHot, nil, true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(compiled) == 2
	}, time.Second, time.Millisecond)
}

func TestControllerProcessEventEnqueuesOnSuccess(t *testing.T) {
	done := make(chan string, 1)
	c := newTestController(t, func(e *QueueEntry) { done <- e.Key })
	defer c.Shutdown()

	mi := &method.PersistentMethodInfo{}
	reason := c.ProcessEvent("m1", MainAsyncQueue, WeightCold, event.NewInterpreterCounterTripped(1), mi, nil)
	assert.Equal(t, ctlerrors.ReasonOK, reason)

	select {
	case key := <-done:
		assert.Equal(t, "m1", key)
	case <-time.After(time.Second):
		t.Fatal("entry was never compiled")
	}
}

func TestControllerShutdownDrainsAndReportsRemaining(t *testing.T) {
	block := make(chan struct{})
	c := newTestController(t, func(e *QueueEntry) { <-block })
	c.AddMethodToBeCompiled("slow", MainAsyncQueue, WeightCold, nil, true)
	c.AddMethodToBeCompiled("queued", MainAsyncQueue, WeightCold, nil, true)

	close(block)
	remaining := c.Shutdown()
	require.NotNil(t, remaining)
	assert.Equal(t, 0, remaining[MainAsyncQueue])
}
