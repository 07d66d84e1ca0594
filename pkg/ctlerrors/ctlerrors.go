// Package ctlerrors defines the controller's typed result/reason-code model.
// The controller never raises exceptions; every fallible operation returns
// an explicit zero value plus a ReasonCode, or an (T, error) pair at the
// boundary where callers need Go-idiomatic error handling (e.g. config load).
package ctlerrors

import "fmt"

// ReasonCode tags why an operation did not produce its normal result.
// The zero value, ReasonOK, means the operation succeeded.
type ReasonCode int

const (
	ReasonOK ReasonCode = iota

	// ReasonNoPlan means the strategy evaluated the event and decided not
	// to recompile. Not an error: the caller proceeds without a plan.
	ReasonNoPlan

	// ReasonPlanPoolExhausted means no OptimizationPlan could be allocated
	// from the shared pool. Transient; treated as ReasonNoPlan by callers
	// that don't care about the distinction.
	ReasonPlanPoolExhausted

	// ReasonIPBufferPoolExhausted means no free IP profile buffer was
	// available; the application thread should self-parse instead.
	ReasonIPBufferPoolExhausted

	// ReasonSCCFull is sticky per shared-cache instance: once observed,
	// further persistence attempts short-circuit without retrying.
	ReasonSCCFull

	// ReasonClassUnloaded means an entry referenced a class that is no
	// longer valid under the current unload epoch.
	ReasonClassUnloaded

	// ReasonCASContention means a compare-and-swap attempt lost the race;
	// the caller abandons this attempt and will retry on the next sample
	// or access, per spec's "Invocation-count edits are CAS loops".
	ReasonCASContention

	// ReasonPortLayerFailure means the CPU/port-layer stand-in returned a
	// failure sentinel; the monitor that observed it self-disables.
	ReasonPortLayerFailure

	// ReasonCounterWrapped flags that an invocation-count update wrapped
	// sign in a way that could alias the "queued" sentinel; see
	// method.SetInvocationCount and DESIGN.md's Open Question decision 2.
	ReasonCounterWrapped

	// ReasonNotFunctional means the owning subsystem failed to allocate
	// its backbone structures at startup and has disabled itself.
	ReasonNotFunctional

	// ReasonAlreadyCompiling means a compilation for the same body is
	// already in flight; the event is folded into the in-flight request
	// instead of producing a new plan.
	ReasonAlreadyCompiling

	// ReasonPostponed means the decision window is incomplete; this is
	// not failure, it means "ask again once the window closes".
	ReasonPostponed

	// ReasonDataCacheExhausted means neither the pool nor any segment's
	// bump-allocation tail could satisfy a data-cache allocation and the
	// manager declined to grow (segment cap reached).
	ReasonDataCacheExhausted
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonOK:
		return "ok"
	case ReasonNoPlan:
		return "no_plan"
	case ReasonPlanPoolExhausted:
		return "plan_pool_exhausted"
	case ReasonIPBufferPoolExhausted:
		return "ip_buffer_pool_exhausted"
	case ReasonSCCFull:
		return "scc_full"
	case ReasonClassUnloaded:
		return "class_unloaded"
	case ReasonCASContention:
		return "cas_contention"
	case ReasonPortLayerFailure:
		return "port_layer_failure"
	case ReasonCounterWrapped:
		return "counter_wrapped"
	case ReasonNotFunctional:
		return "not_functional"
	case ReasonAlreadyCompiling:
		return "already_compiling"
	case ReasonPostponed:
		return "postponed"
	case ReasonDataCacheExhausted:
		return "data_cache_exhausted"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Fatal reports the single fatal class the spec recognizes: OOM at startup
// allocation of a subsystem's backbone structures. Everything else is
// recoverable or sticky-degraded.
func (r ReasonCode) Fatal() bool {
	return r == ReasonNotFunctional
}

// Transient reports whether the caller should expect a retry on the next
// sample/access to plausibly succeed, as opposed to a sticky condition.
func (r ReasonCode) Transient() bool {
	switch r {
	case ReasonPlanPoolExhausted, ReasonIPBufferPoolExhausted, ReasonCASContention, ReasonAlreadyCompiling, ReasonPostponed:
		return true
	default:
		return false
	}
}

// Result pairs a value with the reason it has (or lacks) that value,
// the controller's substitute for exceptions on hot paths. A nil-like zero
// value of T combined with ReasonOK never occurs in practice: Ok wraps a
// real value, Err wraps the zero value.
type Result[T any] struct {
	Value  T
	Reason ReasonCode
}

// Ok constructs a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Reason: ReasonOK}
}

// Err constructs a failed Result carrying the zero value of T.
func Err[T any](reason ReasonCode) Result[T] {
	var zero T
	return Result[T]{Value: zero, Reason: reason}
}

// IsOK reports whether the result represents success.
func (r Result[T]) IsOK() bool {
	return r.Reason == ReasonOK
}

// Get returns the value and a bool mirroring IsOK, for the common
// `v, ok := result.Get()` call shape.
func (r Result[T]) Get() (T, bool) {
	return r.Value, r.Reason == ReasonOK
}
