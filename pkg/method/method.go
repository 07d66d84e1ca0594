// Package method holds per-method and per-compiled-body mutable state: the
// persistent method/body info structures and the CAS-guarded invocation
// counter (spec §3.2).
package method

import (
	"sync"

	"github.com/tieredvm/recompiler/pkg/tier"
)

// RecompilationReason tags why PersistentMethodInfo.ReasonForRecompilation
// was last set.
type RecompilationReason int

const (
	ReasonNone RecompilationReason = iota
	DueToThreshold
	DueToCounterZero
	DueToMegamorphicCallProfile
	DueToOptLevelUpgrade
	DueToInlinedMethodRedefinition
	DueToJProfiling
	DueToRI
	DueToRecompilationPushing
)

func (r RecompilationReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case DueToThreshold:
		return "DueToThreshold"
	case DueToCounterZero:
		return "DueToCounterZero"
	case DueToMegamorphicCallProfile:
		return "DueToMegamorphicCallProfile"
	case DueToOptLevelUpgrade:
		return "DueToOptLevelUpgrade"
	case DueToInlinedMethodRedefinition:
		return "DueToInlinedMethodRedefinition"
	case DueToJProfiling:
		return "DueToJProfiling"
	case DueToRI:
		return "DueToRI"
	case DueToRecompilationPushing:
		return "DueToRecompilationPushing"
	default:
		return "unknown"
	}
}

// PersistentMethodInfo is the per-method mutable state the strategy reads
// and updates across the method's whole lifetime, independent of any one
// compiled body.
type PersistentMethodInfo struct {
	mu sync.Mutex

	CurrentTier                              tier.Tier
	NextTier                                 tier.Tier
	ReasonForRecompilation                    RecompilationReason
	NumberOfInvalidations                     int
	OptLevelDowngraded                        bool
	DisableMiscSamplingCounterDecrementation bool
	ProfilingDisabled                         bool

	// AttachedOptimizationPlan is the mechanism by which a synchronous
	// recompile request hands its plan to the strategy (spec §9 design
	// note). Strategy.PostCompilation detaches it under the plan monitor.
	AttachedOptimizationPlan *tier.OptimizationPlan
}

// NewPersistentMethodInfo creates method state starting at the given tier.
func NewPersistentMethodInfo(initial tier.Tier) *PersistentMethodInfo {
	return &PersistentMethodInfo{CurrentTier: initial, NextTier: initial}
}

// SetReason records a recompilation reason and its originating tier
// transition, under the method's own lock.
func (m *PersistentMethodInfo) SetReason(reason RecompilationReason, nextTier tier.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReasonForRecompilation = reason
	m.NextTier = nextTier
}

// AdvanceTier commits CurrentTier = NextTier, used once a compilation for
// NextTier has actually completed.
func (m *PersistentMethodInfo) AdvanceTier() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTier = m.NextTier
}

// Invalidate increments the invalidation counter, called from
// MethodBodyInvalidated handling.
func (m *PersistentMethodInfo) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumberOfInvalidations++
}

// AttachPlan stores a plan for a subsequent synchronous processEvent call
// to pick up, guarded by the method's own lock (a stand-in for the global
// optimization-plan monitor scoped to this method's slot).
func (m *PersistentMethodInfo) AttachPlan(p *tier.OptimizationPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AttachedOptimizationPlan = p
}

// DetachPlan clears and returns any attached plan. Called from
// Strategy.PostCompilation.
func (m *PersistentMethodInfo) DetachPlan() *tier.OptimizationPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.AttachedOptimizationPlan
	m.AttachedOptimizationPlan = nil
	return p
}

// PersistentJittedBodyInfo is the per-compiled-body mutable state that
// drives the jitted-sample policy (spec §4.1.1).
type PersistentJittedBodyInfo struct {
	mu sync.Mutex

	Hotness tier.Tier

	// Counter is decremented on every jitted sample and on select in-code
	// events (EDO, PIC-miss, megamorphic profile); reaching <= 0 is a
	// recompilation signal distinct from the sample-ratio signal.
	Counter int32

	SampleIntervalCount int32
	StartCount          int64
	OldStartCountDelta   int64
	HotStartCountDelta   int64

	AggressiveRecompChances int
	SamplingRecompDecided   bool
	DisableSampling         bool
	IsProfilingBody         bool
	UsesJProfiling          bool
	UsesGCR                 bool
	LongRunningInterpreted  bool
	IsAotedBody             bool

	// HotWindowSamples/ScorchingWindowSamples track progress through the
	// two nested decision windows of spec §4.1.1. The WindowStartGlobal
	// pair record the strategy-wide global sample count observed when
	// each window began, so the density (global samples elapsed during
	// the window) can be recovered as currentGlobal - windowStartGlobal.
	HotWindowSamples         int32
	ScorchingWindowSamples   int32
	HotWindowStartGlobal     int32
	ScorchingWindowStartGlobal int32
	PostponeDecision         bool
	PreviouslyDowngraded     bool

	// compiling is set while a compilation for this body is in flight, so
	// concurrent sample processing does not double-trigger.
	compiling bool
}

// NewPersistentJittedBodyInfo creates body state at the given hotness with
// an initial counter value.
func NewPersistentJittedBodyInfo(hotness tier.Tier, initialCounter int32) *PersistentJittedBodyInfo {
	return &PersistentJittedBodyInfo{Hotness: hotness, Counter: initialCounter}
}

// DecrementCounter subtracts delta from Counter and returns the new value.
func (b *PersistentJittedBodyInfo) DecrementCounter(delta int32) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Counter -= delta
	return b.Counter
}

// RefillCounter resets Counter to the hot-sample-interval value, used when
// a counter-zero decision defers because the next tier is above hot (spec
// §4.1.1 step 2: "never go scorching purely on counter exhaustion").
func (b *PersistentJittedBodyInfo) RefillCounter(hotSampleInterval int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Counter = hotSampleInterval
}

// MarkCompiling sets or clears the in-flight compilation flag, reporting
// whether a transition actually happened (false if it was already in that
// state, e.g. a second MarkCompiling(true) call for the same body).
func (b *PersistentJittedBodyInfo) MarkCompiling(compiling bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.compiling == compiling {
		return false
	}
	b.compiling = compiling
	return true
}

// IsCompiling reports whether a compilation for this body is in flight.
func (b *PersistentJittedBodyInfo) IsCompiling() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compiling
}

// MarkSamplingRecompDecided sets SamplingRecompDecided, reporting false if
// it was already set — callers must treat a false return as "someone else
// already decided this", matching invariant (ii) in spec §4.1: "set
// exactly once per body per recompilation decision".
func (b *PersistentJittedBodyInfo) MarkSamplingRecompDecided() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SamplingRecompDecided {
		return false
	}
	b.SamplingRecompDecided = true
	return true
}

// ResetSamplingRecompDecided clears the flag for the next decision window.
func (b *PersistentJittedBodyInfo) ResetSamplingRecompDecided() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SamplingRecompDecided = false
}
