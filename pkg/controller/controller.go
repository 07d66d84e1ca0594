package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/event"
	"github.com/tieredvm/recompiler/pkg/logging"
	"github.com/tieredvm/recompiler/pkg/method"
	"github.com/tieredvm/recompiler/pkg/strategy"
	"github.com/tieredvm/recompiler/pkg/telemetry"
	"github.com/tieredvm/recompiler/pkg/tier"
	"github.com/tieredvm/recompiler/pkg/tracing"
)

// StrategyName resolves an option string to one of the two strategies
// CompilationController.cpp's init() recognizes, falling back to
// "default" for anything else (spec §13: "none" was dropped, since a
// nil Strategy panics on first use in Go, which is worse than the C++'s
// silent _useController=false degrade).
type StrategyName string

const (
	StrategyDefault   StrategyName = "default"
	StrategyThreshold StrategyName = "threshold"
)

// ResolveStrategyName normalizes name to a known StrategyName,
// defaulting anything unrecognized to StrategyDefault.
func ResolveStrategyName(name string) StrategyName {
	switch StrategyName(name) {
	case StrategyThreshold:
		return StrategyThreshold
	default:
		return StrategyDefault
	}
}

// CompileFunc performs the actual compilation for a dequeued entry; the
// controller calls it on a worker goroutine and only concerns itself
// with queue bookkeeping and tracing around the call.
type CompileFunc func(e *QueueEntry)

// Config controls worker-pool sizing and ring capacity.
type Config struct {
	NumWorkers int
	RingSize   int
}

// Controller is the compile-worker pool plus the queues, strategy, and
// plan pool it drives — the five operations named in spec §6's
// "Controller surface" (processEvent, addMethodToBeCompiled,
// compileOnSeparateThread, beforeCodeGen, postCompilation). The worker
// pool itself follows the teacher's websocket Hub shape (pkg/websocket/
// server.go: register/unregister/broadcast channels plus a shutdown
// channel and a sync.WaitGroup), generalized from connection fan-out to
// compile-request fan-out.
type Controller struct {
	strategy strategy.Strategy
	plans    *tier.Pool
	queues   *CompilationInfo
	ring     *TraceRing
	compile  CompileFunc

	wake     chan struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	draining bool

	metrics *telemetry.Metrics
	logger  *logging.Logger
}

// SetMetrics attaches a Prometheus collector set; nil is valid and
// disables metrics recording (the zero value used by tests that don't
// care about telemetry).
func (c *Controller) SetMetrics(m *telemetry.Metrics) {
	c.metrics = m
}

// SetLogger attaches a structured logger; nil is valid and disables
// decision logging (the zero value used by tests that don't care).
func (c *Controller) SetLogger(l *logging.Logger) {
	c.logger = l
}

// New resolves strat (already constructed by the caller for the chosen
// StrategyName) against plans and starts cfg.NumWorkers compile-worker
// goroutines pulling from a fresh CompilationInfo and trace ring.
func New(cfg Config, strat strategy.Strategy, plans *tier.Pool, compile CompileFunc) *Controller {
	ring := NewTraceRing(cfg.RingSize)
	c := &Controller{
		strategy: strat,
		plans:    plans,
		queues:   NewCompilationInfo(ring),
		ring:     ring,
		compile:  compile,
		wake:     make(chan struct{}, cfg.NumWorkers),
		shutdown: make(chan struct{}),
	}
	for i := 0; i < cfg.NumWorkers; i++ {
		c.wg.Add(1)
		go c.runWorker(i)
	}
	return c
}

func (c *Controller) runWorker(id int) {
	defer c.wg.Done()
	threadID := uint16(id)
	for {
		select {
		case <-c.shutdown:
			return
		case <-c.wake:
		}
		for {
			e := c.nextEntry()
			if e == nil {
				break
			}
			c.ring.Add(threadID, OpCompileOnSeparateThreadEnter, 0)
			start := time.Now()
			c.compile(e)
			elapsed := time.Since(start)
			c.ring.Add(threadID, OpCompileOnSeparateThreadExit, 0)
			tierName := "unknown"
			if e.Plan != nil {
				tierName = e.Plan.Tier.String()
			}
			if c.metrics != nil {
				c.metrics.RecordCompilation(tierName, elapsed)
			}
			if c.logger != nil {
				c.logger.WithFields(map[string]interface{}{
					"method": e.Key,
					"tier":   tierName,
					"worker": id,
				}).Info(fmt.Sprintf("compiled in %s", elapsed))
			}
		}
	}
}

// nextEntry dequeues in priority order JProfiling > main async > LPQ,
// matching the controller's bias toward profiling-driven recompiles
// over routine counter-tripped ones.
func (c *Controller) nextEntry() *QueueEntry {
	for _, kind := range []QueueKind{JProfilingQueue, MainAsyncQueue, LowPriorityQueue} {
		if e := c.queues.Dequeue(kind); e != nil {
			return e
		}
	}
	return nil
}

// ProcessEvent is the controller-surface entry point the VM calls on
// every interpreter/jitted-sample/recompilation-trigger event. It
// delegates to the strategy and, on success, enqueues the resulting
// plan.
func (c *Controller) ProcessEvent(key string, kind QueueKind, weight Weight, ev event.MethodEvent, methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) ctlerrors.ReasonCode {
	correlationID := ev.CorrelationID().String()
	ctx, span := tracing.StartSpan(context.Background(), "controller.ProcessEvent",
		tracing.SpanKind.Internal)
	span.SetAttributes(tracing.MethodEventAttributes(key, kind.String(), correlationID)...)
	defer span.End()

	plan, _, reason := c.strategy.ProcessEvent(ev, methodInfo, bodyInfo)
	if reason != ctlerrors.ReasonOK {
		tracing.SetError(ctx, fmt.Errorf("strategy.ProcessEvent: %s", reason))
		return reason
	}
	if c.metrics != nil && methodInfo != nil {
		c.metrics.RecordRecompilation(methodInfo.ReasonForRecompilation.String())
	}
	if c.logger != nil {
		c.logger.WithCorrelationID(ev.CorrelationID().String()).WithFields(map[string]interface{}{
			"method": key,
			"queue":  kind.String(),
			"weight": int(weight),
		}).Info("queuing recompilation")
	}
	c.AddMethodToBeCompiled(key, kind, weight, plan, true)
	return ctlerrors.ReasonOK
}

// AddMethodToBeCompiled enqueues plan under key and wakes a worker.
func (c *Controller) AddMethodToBeCompiled(key string, kind QueueKind, weight Weight, plan *tier.OptimizationPlan, async bool) *QueueEntry {
	e := c.queues.AddMethodToBeCompiled(kind, key, weight, plan, async)
	if c.metrics != nil {
		c.metrics.SetQueueState(kind.String(), c.queues.QueueWeight(kind), c.queues.Len(kind))
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return e
}

// CompileOnSeparateThread synchronously runs the compile function for
// e outside the worker pool, for a caller that needs a blocking
// synchronous compile (spec §6).
func (c *Controller) CompileOnSeparateThread(e *QueueEntry) {
	c.ring.Add(0, OpCompileOnSeparateThreadEnter, 0)
	c.compile(e)
	c.ring.Add(0, OpCompileOnSeparateThreadExit, 0)
}

// BeforeCodeGen delegates to the strategy's BeforeCodeGen.
func (c *Controller) BeforeCodeGen(plan *tier.OptimizationPlan, bodyInfo *method.PersistentJittedBodyInfo) {
	c.strategy.BeforeCodeGen(plan, bodyInfo)
}

// PostCompilation delegates to the strategy's PostCompilation.
func (c *Controller) PostCompilation(methodInfo *method.PersistentMethodInfo) {
	c.strategy.PostCompilation(methodInfo)
}

// Queues exposes the controller's CompilationInfo for callers that need
// direct queue operations (promote, requeue, purge).
func (c *Controller) Queues() *CompilationInfo { return c.queues }

// Ring exposes the trace ring for diagnostics export.
func (c *Controller) Ring() *TraceRing { return c.ring }

// Shutdown drains the worker pool: it marks the controller draining (a
// second call returns nil), closes the shutdown channel, waits for every
// worker to exit, and
// returns the number of entries left unconsumed in each queue — mirrors
// CompilationController.cpp's shutdown() logging the remaining pool
// size (spec §13).
func (c *Controller) Shutdown() map[QueueKind]int {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()

	c.ring.Add(0, OpWillStopCompilationThreads, 0)
	close(c.shutdown)
	c.wg.Wait()

	remaining := make(map[QueueKind]int, 3)
	for _, kind := range []QueueKind{MainAsyncQueue, LowPriorityQueue, JProfilingQueue} {
		remaining[kind] = c.queues.Len(kind)
	}
	if c.logger != nil {
		fields := make(map[string]interface{}, len(remaining))
		for kind, n := range remaining {
			fields[kind.String()] = n
		}
		c.logger.WithFields(fields).Info("compile worker pool drained")
	}
	return remaining
}
