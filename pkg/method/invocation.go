package method

import (
	"sync/atomic"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
)

// QueuedSentinel is the reserved invocation-count value meaning "this
// method is already queued for compilation" (spec §3.2).
const QueuedSentinel int32 = -1

// queuedFlagBit is the low bit of the counter word, reserved as a flag per
// spec: "low bit is a flag". Only NewInvocationCounter touches it (it
// clears it); TryDecrement and SetInvocationCount work on the whole word
// and do not preserve it.
const queuedFlagBit int32 = 1

// InvocationCounter is the interpreter-side invocation count stored in a
// single word of method metadata, updated via compare-and-swap per spec
// §3.2 and §5 ("Invocation-count edits are CAS loops; failures are retried
// or abandoned depending on call site").
type InvocationCounter struct {
	word int32
}

// NewInvocationCounter creates a counter with the given initial count. The
// low bit is cleared; no InvocationCounter method sets it.
func NewInvocationCounter(initial int32) *InvocationCounter {
	return &InvocationCounter{word: initial &^ queuedFlagBit}
}

// Load returns the current raw word.
func (c *InvocationCounter) Load() int32 {
	return atomic.LoadInt32(&c.word)
}

// IsQueued reports whether the counter holds the queued sentinel.
func (c *InvocationCounter) IsQueued() bool {
	return c.Load() == QueuedSentinel
}

// TryDecrement attempts to subtract delta from the counter via CAS,
// retrying on contention up to maxRetries times. Returns the resulting
// value and ReasonOK on success, or ReasonCASContention if every retry
// lost the race (caller abandons this attempt, per spec §5/§7).
func (c *InvocationCounter) TryDecrement(delta int32, maxRetries int) ctlerrors.Result[int32] {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		old := atomic.LoadInt32(&c.word)
		next := old - delta
		if atomic.CompareAndSwapInt32(&c.word, old, next) {
			return ctlerrors.Ok(next)
		}
	}
	return ctlerrors.Err[int32](ctlerrors.ReasonCASContention)
}

// SetInvocationCount sets the counter to newValue via CAS against the
// last-observed oldValue, reporting ReasonCounterWrapped when the
// transition crosses zero from negative to a small positive value that
// could alias QueuedSentinel's neighborhood — DESIGN.md's Open Question decision 2:
// the source asserts nothing here; this implementation makes the wrap
// observable instead of silently trusting the sentinel.
func (c *InvocationCounter) SetInvocationCount(oldValue, newValue int32) ctlerrors.Result[int32] {
	if !atomic.CompareAndSwapInt32(&c.word, oldValue, newValue) {
		return ctlerrors.Err[int32](ctlerrors.ReasonCASContention)
	}

	if oldValue < 0 && newValue >= 0 && newValue != QueuedSentinel {
		// Wrapped from negative to non-negative. If the new value lands
		// close enough to look like it could be mistaken for "about to be
		// queued" by a caller doing `count <= someSmallThreshold`, flag it
		// rather than let it silently alias queued-adjacent behavior.
		if newValue == 0 || newValue == 1 {
			return ctlerrors.Result[int32]{Value: newValue, Reason: ctlerrors.ReasonCounterWrapped}
		}
	}

	return ctlerrors.Ok(newValue)
}

// MarkQueued atomically transitions the counter to QueuedSentinel,
// returning ReasonCASContention if the word changed under us.
func (c *InvocationCounter) MarkQueued(expectedOld int32) ctlerrors.Result[int32] {
	if !atomic.CompareAndSwapInt32(&c.word, expectedOld, QueuedSentinel) {
		return ctlerrors.Err[int32](ctlerrors.ReasonCASContention)
	}
	return ctlerrors.Ok(QueuedSentinel)
}
