// Package strategy implements the CompilationStrategy interface that turns
// MethodEvents into OptimizationPlans (spec §4.1): DefaultStrategy, with
// its dense jitted-sample policy, and the simpler deterministic
// ThresholdStrategy.
package strategy

import (
	"sync"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/event"
	"github.com/tieredvm/recompiler/pkg/method"
	"github.com/tieredvm/recompiler/pkg/tier"
)

// Strategy is the one-operation interface every concrete strategy
// implements, plus the side-callbacks the compile worker invokes around
// actual compilation (spec §4.1).
type Strategy interface {
	// ProcessEvent converts an event into a plan, or ReasonNoPlan if no
	// recompilation is warranted. newPlanCreated is true only when a fresh
	// plan was allocated (as opposed to a cloned pre-attached plan).
	ProcessEvent(ev event.MethodEvent, methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) (plan *tier.OptimizationPlan, newPlanCreated bool, reason ctlerrors.ReasonCode)

	// AdjustOptimizationPlan mutates an already-queued plan's opt level by
	// delta, reporting whether the adjustment was applied.
	AdjustOptimizationPlan(plan *tier.OptimizationPlan, optLevelDelta int) bool

	// BeforeCodeGen computes the next hotness level and counter for a body
	// about to be compiled.
	BeforeCodeGen(plan *tier.OptimizationPlan, bodyInfo *method.PersistentJittedBodyInfo)

	// PostCompilation detaches any plan attached to methodInfo under the
	// plan monitor, called after a compilation finishes.
	PostCompilation(methodInfo *method.PersistentMethodInfo)
}

// Config holds the knobs spec §6 enumerates for the default strategy.
// Field names mirror the spec's knob names so the grounding is legible.
type Config struct {
	SampleThreshold                  int32
	ScorchingSampleThreshold         int32
	SampleInterval                   int32
	ResetCountThreshold              int32
	SampleDontSwitchToProfilingThreshold int32
	ColdUpgradeSampleThreshold        int32

	// Divisors/subtractors for interpreter-sample count reduction,
	// separated by phase (startup vs. steady-state) and loopy-ness.
	StartupDivisor    int32
	SteadyDivisor     int32
	LoopySubtraction  int32
	LoopyDivisor      int32

	ActiveThreadsThreshold int32 // -1 = dynamic
	BigAppThreshold        int   // loaded-class count
	BigAppSampleThresholdAdjust int32

	HotSampleInterval       int32
	IntervalIncreaseFactor  int32 // scorchingWindow = hotSampleInterval * this

	// Boolean gates (spec §6).
	DisableProfiling                bool
	DisableInterpreterSampling      bool
	DisableUpgrades                 bool
	DisableAggressiveRecompilations bool
	ConservativeCompilation         bool
	EnableAppThreadYield             bool
	DoNotUsePersistentIProfiler     bool

	// AsyncCompileEnabled gates whether a plain counter-zero event may
	// enqueue at all (InterpreterCounterTripped / InterpretedMethodSample).
	AsyncCompileEnabled bool
	WarmupDelayElapsed  bool

	// Environment inputs the strategy consults but does not own.
	StartupPhase       bool
	ClassLoadingPhase  bool
	NumProcessors      int
	SharedCacheBigAppStartup bool
	QueueIsSmall        func() bool
	CodeCacheNearFull   func() bool
	ProfilingPermitted  func() bool
}

// DefaultConfig returns reasonable defaults matching the constants the
// spec names without fixing exact values (Non-goals: tier count/threshold
// constants are knobs).
func DefaultConfig() Config {
	return Config{
		SampleThreshold:                  300,
		ScorchingSampleThreshold:         3000,
		SampleInterval:                   30,
		ResetCountThreshold:              10,
		SampleDontSwitchToProfilingThreshold: 1000,
		ColdUpgradeSampleThreshold:        50,
		StartupDivisor:                    4,
		SteadyDivisor:                     2,
		LoopySubtraction:                  1,
		LoopyDivisor:                      2,
		ActiveThreadsThreshold:            -1,
		BigAppThreshold:                   5000,
		BigAppSampleThresholdAdjust:       2,
		HotSampleInterval:                 30,
		IntervalIncreaseFactor:            10,
		AsyncCompileEnabled:               true,
		WarmupDelayElapsed:                true,
		NumProcessors:                     4,
		QueueIsSmall:                      func() bool { return true },
		CodeCacheNearFull:                 func() bool { return false },
		ProfilingPermitted:                func() bool { return true },
	}
}

// DefaultStrategy implements the full dispatch table in spec §4.1.
type DefaultStrategy struct {
	mu     sync.Mutex
	cfg    Config
	plans  *tier.Pool

	// globalSamplesInWindow tracks the dense global sampling counter the
	// jitted-sample policy compares body-local counts against.
	globalSamplesInWindow int32
}

// NewDefaultStrategy creates a DefaultStrategy backed by the given plan
// pool (spec §5's "optimization-plan monitor" scoped pool).
func NewDefaultStrategy(cfg Config, plans *tier.Pool) *DefaultStrategy {
	return &DefaultStrategy{cfg: cfg, plans: plans}
}

func (s *DefaultStrategy) newPlan(t tier.Tier) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	res := s.plans.Get(t)
	if !res.IsOK() {
		return nil, false, res.Reason
	}
	return res.Value, true, ctlerrors.ReasonOK
}

// ProcessEvent dispatches on the dynamic type of ev per the table in
// spec §4.1.
func (s *DefaultStrategy) ProcessEvent(ev event.MethodEvent, methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	switch e := ev.(type) {
	case event.InterpreterCounterTripped:
		return s.onInterpreterCounterTripped(methodInfo)
	case event.InterpretedMethodSample:
		return s.onInterpretedMethodSample(methodInfo)
	case event.JittedMethodSample:
		return s.onJittedMethodSample(e, methodInfo, bodyInfo)
	case event.OtherRecompilationTrigger:
		return s.onOtherRecompilationTrigger(e, methodInfo)
	case event.MethodBodyInvalidated:
		methodInfo.Invalidate()
		return nil, false, ctlerrors.ReasonNoPlan
	case event.HWPRecompilationTrigger:
		return s.onHWPRecompilationTrigger(e, methodInfo, bodyInfo)
	case event.NewInstanceImpl:
		return s.newPlan(s.determineInitialTier(false))
	case event.ShareableMethodHandleThunk:
		return s.newPlan(s.determineInitialTier(false))
	case event.CustomMethodHandleThunk:
		plan, created, reason := s.newPlan(s.determineInitialTier(false))
		if reason == ctlerrors.ReasonOK && plan.Tier < tier.Warm {
			plan.Tier = tier.Warm
		}
		if bodyInfo != nil {
			bodyInfo.DisableSampling = true
		}
		return plan, created, reason
	case event.JitCompilationInducedByDLT:
		plan, created, reason := s.newPlan(s.determineInitialTier(false))
		if reason == ctlerrors.ReasonOK {
			plan.InducedByDLT = true
		}
		return plan, created, reason
	default:
		return nil, false, ctlerrors.ReasonNoPlan
	}
}

// determineInitialTier computes the initial tier from "method has loops?"
// per spec §4.1's InterpreterCounterTripped row.
func (s *DefaultStrategy) determineInitialTier(hasLoops bool) tier.Tier {
	if hasLoops {
		return tier.Warm
	}
	return tier.Cold
}

func (s *DefaultStrategy) onInterpreterCounterTripped(methodInfo *method.PersistentMethodInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	initialTier := s.determineInitialTier(false)

	if initialTier == tier.VeryHot && s.cfg.ProfilingPermitted() && !s.cfg.CodeCacheNearFull() {
		plan, created, reason := s.newPlan(tier.VeryHot)
		if reason == ctlerrors.ReasonOK {
			plan.InsertInstrumentation = true
		}
		return plan, created, reason
	}
	return s.newPlan(initialTier)
}

func (s *DefaultStrategy) onOtherRecompilationTrigger(e event.OtherRecompilationTrigger, methodInfo *method.PersistentMethodInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	if methodInfo.ReasonForRecompilation == method.DueToInlinedMethodRedefinition ||
		methodInfo.ReasonForRecompilation == method.DueToJProfiling {
		// Preserve current tier.
		if attached := methodInfo.AttachedOptimizationPlan; attached != nil {
			return attached.Clone(), false, ctlerrors.ReasonOK
		}
		return s.newPlan(methodInfo.CurrentTier)
	}

	next := s.getNextCompileLevel(methodInfo.CurrentTier)

	if attached := methodInfo.AttachedOptimizationPlan; attached != nil {
		clone := attached.Clone()
		clone.Tier = next
		return clone, false, ctlerrors.ReasonOK
	}
	return s.newPlan(next)
}

func (s *DefaultStrategy) onHWPRecompilationTrigger(e event.HWPRecompilationTrigger, methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	if bodyInfo != nil && bodyInfo.IsCompiling() {
		return nil, false, ctlerrors.ReasonAlreadyCompiling
	}

	hinted := tier.Tier(e.HintedTier)
	hotnessWouldRise := hinted > methodInfo.CurrentTier
	riUpgradePermitted := e.AOTedBody

	if !hotnessWouldRise && !riUpgradePermitted {
		return nil, false, ctlerrors.ReasonNoPlan
	}

	target := hinted
	insertInstrumentation := false
	if target == tier.Scorching && s.cfg.ProfilingPermitted() {
		target = tier.VeryHot
		insertInstrumentation = true
	}

	plan, created, reason := s.newPlan(target)
	if reason == ctlerrors.ReasonOK {
		plan.InsertInstrumentation = insertInstrumentation
	}
	methodInfo.SetReason(method.DueToRI, target)
	return plan, created, reason
}

// getNextCompileLevel is the single "what's the next tier above current"
// step used by OtherRecompilationTrigger handling.
func (s *DefaultStrategy) getNextCompileLevel(current tier.Tier) tier.Tier {
	if current >= tier.Scorching {
		return tier.Scorching
	}
	return current + 1
}

// AdjustOptimizationPlan mutates plan.Tier by optLevelDelta, clamped to
// the valid tier range.
func (s *DefaultStrategy) AdjustOptimizationPlan(plan *tier.OptimizationPlan, optLevelDelta int) bool {
	if plan == nil {
		return false
	}
	next := int(plan.Tier) + optLevelDelta
	if next < int(tier.NoOpt) {
		next = int(tier.NoOpt)
	}
	if next > int(tier.Scorching) {
		next = int(tier.Scorching)
	}
	if tier.Tier(next) == plan.Tier {
		return false
	}
	plan.Tier = tier.Tier(next)
	plan.OptLevelDowngraded = optLevelDelta < 0
	return true
}

// BeforeCodeGen computes nextLevel/nextCounter for the body about to be
// compiled (spec §4.1 "beforeCodeGen").
func (s *DefaultStrategy) BeforeCodeGen(plan *tier.OptimizationPlan, bodyInfo *method.PersistentJittedBodyInfo) {
	if plan == nil || bodyInfo == nil {
		return
	}

	if plan.InducedByDLT && bodyInfo.UsesGCR {
		bodyInfo.Hotness = tier.Warm
		bodyInfo.Counter = s.cfg.ResetCountThreshold * 2
		return
	}

	bodyInfo.Hotness = plan.Tier
	switch {
	case plan.Tier >= tier.Scorching:
		bodyInfo.DisableSampling = true
	case plan.Tier >= tier.Hot:
		bodyInfo.Counter = s.cfg.HotSampleInterval
	default:
		bodyInfo.Counter = s.cfg.SampleInterval
	}
}

// PostCompilation detaches any attached plan, releasing it back to the
// pool it came from (no-op if it wasn't pool-owned, e.g. a clone).
func (s *DefaultStrategy) PostCompilation(methodInfo *method.PersistentMethodInfo) {
	plan := methodInfo.DetachPlan()
	if plan != nil {
		s.plans.Release(plan)
	}
}
