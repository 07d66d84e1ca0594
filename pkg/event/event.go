// Package event defines the tagged union of MethodEvent variants the
// compilation strategy consumes (spec §3.1). Each variant is a distinct Go
// type implementing the unexported isMethodEvent marker, the same closed
// sum-type idiom the teacher uses for its AST node union (interface +
// unexported marker method).
package event

import "github.com/google/uuid"

// MethodHandle identifies a method across tiers and recompilations. It is
// an opaque correlation key from the controller's point of view; the VM
// (out of scope) is the source of truth for what it names.
type MethodHandle uint64

// MethodEvent is the closed union of event kinds the strategy dispatches
// on. Only the types defined in this file implement it.
type MethodEvent interface {
	isMethodEvent()
	// Method returns the method handle this event concerns.
	Method() MethodHandle
	// CorrelationID returns the event's correlation id, assigned at
	// construction for tracing and log correlation (teacher pattern:
	// pkg/logging's RequestID stamped via uuid.New()).
	CorrelationID() uuid.UUID
}

// base carries the fields common to every event variant: the method
// handle and a correlation id. Embedded, never referenced directly.
type base struct {
	method MethodHandle
	corrID uuid.UUID
}

func newBase(m MethodHandle) base {
	return base{method: m, corrID: uuid.New()}
}

func (b base) Method() MethodHandle      { return b.method }
func (b base) CorrelationID() uuid.UUID  { return b.corrID }

// InterpretedMethodSample fires when the sampling thread observes a method
// still running interpreted.
type InterpretedMethodSample struct {
	base
	// OldStartPC is the interpreted-body start, present for symmetry with
	// other variants; zero when not meaningful.
	OldStartPC uint64
}

func NewInterpretedMethodSample(m MethodHandle) InterpretedMethodSample {
	return InterpretedMethodSample{base: newBase(m)}
}
func (InterpretedMethodSample) isMethodEvent() {}

// JittedMethodSample fires when the sampling thread observes a method
// running in a jitted body.
type JittedMethodSample struct {
	base
	SamplePC uint64
}

func NewJittedMethodSample(m MethodHandle, samplePC uint64) JittedMethodSample {
	return JittedMethodSample{base: newBase(m), SamplePC: samplePC}
}
func (JittedMethodSample) isMethodEvent() {}

// InterpreterCounterTripped fires when the interpreter-side invocation
// counter for a method reaches its trip value.
type InterpreterCounterTripped struct {
	base
}

func NewInterpreterCounterTripped(m MethodHandle) InterpreterCounterTripped {
	return InterpreterCounterTripped{base: newBase(m)}
}
func (InterpreterCounterTripped) isMethodEvent() {}

// JitCompilationInducedByDLT fires when on-stack replacement mid-loop
// requires a jitted body to exist.
type JitCompilationInducedByDLT struct {
	base
	OldStartPC uint64
}

func NewJitCompilationInducedByDLT(m MethodHandle, oldStartPC uint64) JitCompilationInducedByDLT {
	return JitCompilationInducedByDLT{base: newBase(m), OldStartPC: oldStartPC}
}
func (JitCompilationInducedByDLT) isMethodEvent() {}

// OtherRecompilationTrigger is a catch-all for recompilation requests
// whose precise cause is recorded on the method's persistent info rather
// than on the event itself (e.g. inlined-method redefinition, JProfiling).
type OtherRecompilationTrigger struct {
	base
	OldStartPC uint64
	// NextTierHint is optional; zero value NoOpt means "no hint".
	NextTierHint int
	HasNextTierHint bool
}

func NewOtherRecompilationTrigger(m MethodHandle, oldStartPC uint64) OtherRecompilationTrigger {
	return OtherRecompilationTrigger{base: newBase(m), OldStartPC: oldStartPC}
}
func (OtherRecompilationTrigger) isMethodEvent() {}

// NewInstanceImpl fires the first time an implementation class is
// instantiated where a method-handle-like dispatch must be specialized.
type NewInstanceImpl struct {
	base
}

func NewNewInstanceImpl(m MethodHandle) NewInstanceImpl {
	return NewInstanceImpl{base: newBase(m)}
}
func (NewInstanceImpl) isMethodEvent() {}

// ShareableMethodHandleThunk fires for a method-handle thunk eligible for
// sharing across call sites.
type ShareableMethodHandleThunk struct {
	base
}

func NewShareableMethodHandleThunk(m MethodHandle) ShareableMethodHandleThunk {
	return ShareableMethodHandleThunk{base: newBase(m)}
}
func (ShareableMethodHandleThunk) isMethodEvent() {}

// CustomMethodHandleThunk fires for a method-handle thunk that cannot be
// shared and must be forced to at least warm tier with sampling disabled.
type CustomMethodHandleThunk struct {
	base
}

func NewCustomMethodHandleThunk(m MethodHandle) CustomMethodHandleThunk {
	return CustomMethodHandleThunk{base: newBase(m)}
}
func (CustomMethodHandleThunk) isMethodEvent() {}

// MethodBodyInvalidated fires when a compiled body is invalidated (e.g. by
// a guard failure) and the method's invalidation counter should advance.
type MethodBodyInvalidated struct {
	base
}

func NewMethodBodyInvalidated(m MethodHandle) MethodBodyInvalidated {
	return MethodBodyInvalidated{base: newBase(m)}
}
func (MethodBodyInvalidated) isMethodEvent() {}

// HWPRecompilationTrigger fires from hardware-RI (recompilation-indicator)
// feedback external to sampling.
type HWPRecompilationTrigger struct {
	base
	HintedTier      int
	AOTedBody       bool
	AlreadyCompiling bool
}

func NewHWPRecompilationTrigger(m MethodHandle, hintedTier int) HWPRecompilationTrigger {
	return HWPRecompilationTrigger{base: newBase(m), HintedTier: hintedTier}
}
func (HWPRecompilationTrigger) isMethodEvent() {}
