package iprofiler

import (
	"fmt"
	"sync"
)

// WorkerState is the IP worker thread's lifecycle state (spec §4.2:
// "NOT_CREATED -> INITIALIZED <-> WAITING_FOR_WORK -> (SUSPENDING ->
// SUSPENDED -> RESUMING) -> STOPPING -> DESTROYED | FAILED_TO_ATTACH").
type WorkerState int

const (
	NotCreated WorkerState = iota
	Initialized
	WaitingForWork
	Suspending
	Suspended
	Resuming
	Stopping
	Destroyed
	FailedToAttach
)

func (s WorkerState) String() string {
	switch s {
	case NotCreated:
		return "not_created"
	case Initialized:
		return "initialized"
	case WaitingForWork:
		return "waiting_for_work"
	case Suspending:
		return "suspending"
	case Suspended:
		return "suspended"
	case Resuming:
		return "resuming"
	case Stopping:
		return "stopping"
	case Destroyed:
		return "destroyed"
	case FailedToAttach:
		return "failed_to_attach"
	default:
		return fmt.Sprintf("worker_state(%d)", int(s))
	}
}

// validTransitions enumerates the lifecycle edges spec §4.2 names.
// Transitions outside this table are rejected.
var validTransitions = map[WorkerState][]WorkerState{
	NotCreated:     {Initialized, FailedToAttach},
	Initialized:    {WaitingForWork, Stopping},
	WaitingForWork: {Initialized, Suspending, Stopping},
	Suspending:     {Suspended, Stopping},
	Suspended:      {Resuming, Stopping},
	Resuming:       {WaitingForWork, Stopping},
	Stopping:       {Destroyed},
}

// Worker tracks the IP worker thread's lifecycle, guarded by a mutex
// standing in for the IP monitor (spec §5). Checkpoint suspension takes
// no lock beyond this mutex; no whole-VM checkpoint monitor is modeled.
type Worker struct {
	mu    sync.Mutex
	state WorkerState
	cond  *sync.Cond

	buffers *BufferManager
}

// NewWorker creates a worker bound to the given buffer manager, starting
// in NotCreated.
func NewWorker(buffers *BufferManager) *Worker {
	w := &Worker{state: NotCreated, buffers: buffers}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Transition attempts to move the worker to next, returning false if the
// edge is not in validTransitions.
func (w *Worker) Transition(next WorkerState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, allowed := range validTransitions[w.state] {
		if allowed == next {
			w.state = next
			w.cond.Broadcast()
			return true
		}
	}
	return false
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Ready reports whether the worker is in a state that can accept posted
// buffers (spec §4.2's PostToWorker gate).
func (w *Worker) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == WaitingForWork
}

// WaitForWork blocks until a buffer is queued or the worker is told to
// stop, polling its own lifetime state after every wait return the way
// spec §5 describes ("Workers poll their lifetime state after every unit
// of work and at every monitor-wait return").
func (w *Worker) WaitForWork() *Buffer {
	if !w.Transition(WaitingForWork) {
		// Already there, or mid-transition elsewhere; fall through to the
		// poll loop regardless.
	}
	for {
		if b := w.buffers.TakeWork(); b != nil {
			return b
		}
		if w.State() == Stopping {
			return nil
		}
		w.mu.Lock()
		w.cond.Wait()
		w.mu.Unlock()
	}
}

// RequestStop moves the worker to Stopping and wakes WaitForWork. Queued
// buffers are not purged: WaitForWork keeps returning them until the work
// queue is empty and only then returns nil.
func (w *Worker) RequestStop() {
	w.mu.Lock()
	w.state = Stopping
	w.cond.Broadcast()
	w.mu.Unlock()
}
