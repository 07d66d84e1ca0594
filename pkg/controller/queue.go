package controller

import (
	"sync"

	"github.com/tieredvm/recompiler/pkg/tier"
)

// QueueKind names one of the controller's three request queues (spec
// §4.5).
type QueueKind int

const (
	MainAsyncQueue QueueKind = iota
	LowPriorityQueue
	JProfilingQueue
)

func (k QueueKind) String() string {
	switch k {
	case MainAsyncQueue:
		return "main_async"
	case LowPriorityQueue:
		return "lpq"
	case JProfilingQueue:
		return "jprofiling"
	default:
		return "unknown"
	}
}

// QueueEntry is one queued compilation request, grounded on
// MethodToBeCompiled.cpp's `_weight`, per-entry slot monitor
// (`JIT-QueueSlotMonitor-N`), `_compilationAttemptsLeft`,
// `_async`/`_reqFromJProfilingQueue` membership flags, and `_GCRrequest`
// (SPEC_FULL.md §13).
type QueueEntry struct {
	slotMu sync.Mutex

	Key                    string
	Weight                 Weight
	Plan                   *tier.OptimizationPlan
	CompilationAttemptsLeft int
	Async                  bool
	ReqFromJProfilingQueue bool
	GCRRequest             bool
}

// AdjustWeight mutates the entry's weight under its own slot monitor,
// isolated from the queue-level lock so one entry's adjustment never
// blocks another's.
func (e *QueueEntry) AdjustWeight(w Weight) {
	e.slotMu.Lock()
	defer e.slotMu.Unlock()
	e.Weight = w
}

// ActivationDecision is shouldActivateNewCompThread's tri-state result
// (spec §4.5: "returns yes/no/maybe").
type ActivationDecision int

const (
	ActivateNo ActivationDecision = iota
	ActivateYes
	ActivateMaybe
)

// CompilationInfo owns the three request queues, the compilation
// monitor guarding them, and the trace ring (spec §4.5, §5 actor 1). All
// mutating queue operations hold mu; per-entry weight edits use the
// entry's own slot monitor once it's found.
type CompilationInfo struct {
	mu      sync.Mutex
	queues  map[QueueKind][]*QueueEntry
	ring    *TraceRing

	// threadThresholds maps a compile-thread id to its activation
	// threshold (spec §4.5: "Per-thread thresholds are looked up in a
	// table by thread-id").
	threadThresholds map[int]int
}

// NewCompilationInfo constructs an empty queue set backed by ring.
func NewCompilationInfo(ring *TraceRing) *CompilationInfo {
	return &CompilationInfo{
		queues:           map[QueueKind][]*QueueEntry{MainAsyncQueue: nil, LowPriorityQueue: nil, JProfilingQueue: nil},
		ring:             ring,
		threadThresholds: make(map[int]int),
	}
}

// SetThreadThreshold records the activation threshold for a compile
// thread id.
func (c *CompilationInfo) SetThreadThreshold(threadID, threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threadThresholds[threadID] = threshold
}

// AddMethodToBeCompiled appends a new entry to kind's queue and traces
// the enqueue.
func (c *CompilationInfo) AddMethodToBeCompiled(kind QueueKind, key string, w Weight, plan *tier.OptimizationPlan, async bool) *QueueEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &QueueEntry{Key: key, Weight: w, Plan: plan, Async: async, ReqFromJProfilingQueue: kind == JProfilingQueue, CompilationAttemptsLeft: 1}
	c.queues[kind] = append(c.queues[kind], e)
	c.ring.Add(0, OpQueuedForCompilation, uint8(kind))
	return e
}

// QueueWeight sums the weights of every entry in kind's queue
// (getOverallQueueWeight, spec §4.5).
func (c *CompilationInfo) QueueWeight(kind QueueKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, e := range c.queues[kind] {
		e.slotMu.Lock()
		total += int(e.Weight)
		e.slotMu.Unlock()
	}
	return total
}

// ShouldActivateNewCompThread compares threadID's queue weight against
// its registered threshold: no entry for the thread means "maybe"
// (spec: unknown threshold defers to the caller's own heuristic).
func (c *CompilationInfo) ShouldActivateNewCompThread(threadID int, kind QueueKind) ActivationDecision {
	c.mu.Lock()
	threshold, known := c.threadThresholds[threadID]
	c.mu.Unlock()
	if !known {
		return ActivateMaybe
	}
	weight := c.QueueWeight(kind)
	if weight >= threshold {
		return ActivateYes
	}
	if weight > threshold/2 {
		return ActivateMaybe
	}
	return ActivateNo
}

// AdjustCompilationEntryAndRequeue changes an already-queued entry's
// weight, moving it to toKind if different from its current queue
// (fromKind).
func (c *CompilationInfo) AdjustCompilationEntryAndRequeue(fromKind, toKind QueueKind, key string, newWeight Weight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.queues[fromKind]
	for i, e := range entries {
		if e.Key != key {
			continue
		}
		e.AdjustWeight(newWeight)
		if toKind != fromKind {
			c.queues[fromKind] = append(entries[:i], entries[i+1:]...)
			c.queues[toKind] = append(c.queues[toKind], e)
		}
		c.ring.Add(0, OpRequeued, uint8(toKind))
		return true
	}
	return false
}

// PromoteMethodInAsyncQueue moves key to the front of the main async
// queue, for a method that just became hotter while still waiting.
func (c *CompilationInfo) PromoteMethodInAsyncQueue(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.queues[MainAsyncQueue]
	for i, e := range entries {
		if e.Key != key {
			continue
		}
		c.queues[MainAsyncQueue] = append(append([]*QueueEntry{e}, entries[:i]...), entries[i+1:]...)
		c.ring.Add(0, OpPromoted, 0)
		return true
	}
	return false
}

// ChangeCompReqFromAsyncToSync flips an entry's Async flag off, for a
// caller that now needs to block on this compilation completing.
func (c *CompilationInfo) ChangeCompReqFromAsyncToSync(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range []QueueKind{MainAsyncQueue, LowPriorityQueue, JProfilingQueue} {
		for _, e := range c.queues[kind] {
			if e.Key == key {
				e.slotMu.Lock()
				e.Async = false
				e.slotMu.Unlock()
				c.ring.Add(0, OpSyncCompileRequested, uint8(kind))
				return true
			}
		}
	}
	return false
}

// PurgeMethodQueue removes key from kind's queue without compiling it
// (class unload, shutdown).
func (c *CompilationInfo) PurgeMethodQueue(kind QueueKind, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.queues[kind]
	for i, e := range entries {
		if e.Key == key {
			c.queues[kind] = append(entries[:i], entries[i+1:]...)
			c.ring.Add(0, OpPurged, uint8(kind))
			return true
		}
	}
	return false
}

// Dequeue pops the oldest entry from kind's queue (FIFO), or nil if
// empty, for a compile worker picking up its next unit of work.
func (c *CompilationInfo) Dequeue(kind QueueKind) *QueueEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.queues[kind]
	if len(entries) == 0 {
		return nil
	}
	e := entries[0]
	c.queues[kind] = entries[1:]
	c.ring.Add(0, OpDequeuedForCompilation, uint8(kind))
	return e
}

// Len reports the number of entries currently queued in kind.
func (c *CompilationInfo) Len(kind QueueKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[kind])
}
