package strategy

import (
	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/event"
	"github.com/tieredvm/recompiler/pkg/method"
	"github.com/tieredvm/recompiler/pkg/tier"
)

// defaultCodeSizeRatio stands in for the size-based scaling factor spec
// §4.1.1 step 3 applies to thresholds (method code size vs. a
// platform-dependent average). Real sizes come from the (out-of-scope)
// compiler; a ratio of 1 is neutral.
const defaultCodeSizeRatio = 1.0

// onJittedMethodSample implements the dense decision in spec §4.1.1. It is
// the single densest piece of policy in the controller: two nested
// counting windows (hot, scorching) plus an aggressive-recompilation
// alternate path and a downgraded-body upgrade path.
//
// "Looks hot"/"looks scorching" are density tests: a body that reaches its
// window's sample count while relatively few OTHER global samples land
// elsewhere is consuming a large share of total execution, i.e. is hot.
// The density for a window is globalSamplesElapsedDuringWindow, recovered
// as currentGlobalSamples - globalSamplesAtWindowStart; a window "looks"
// hot/scorching when that count is at or under the window's threshold.
func (s *DefaultStrategy) onJittedMethodSample(e event.JittedMethodSample, methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode) {
	if bodyInfo == nil {
		return nil, false, ctlerrors.ReasonNoPlan
	}

	if bodyInfo.HotWindowSamples == 0 {
		bodyInfo.HotWindowStartGlobal = s.globalSamples()
	}
	if bodyInfo.ScorchingWindowSamples == 0 {
		bodyInfo.ScorchingWindowStartGlobal = s.globalSamples()
	}

	// Step 1: decrement body counter, advance windows.
	bodyInfo.DecrementCounter(1)
	bodyInfo.SampleIntervalCount++
	bodyInfo.HotWindowSamples++
	bodyInfo.ScorchingWindowSamples++
	s.incrementGlobalSamples()

	// Step 2: counter-exhaustion path.
	if bodyInfo.Counter <= 0 && !bodyInfo.IsCompiling() {
		if bodyInfo.Counter < 0 && !bodyInfo.DisableSampling {
			// Decremented by a non-sampling cause (EDO/PIC-miss/megamorphic).
			methodInfo.SetReason(method.DueToMegamorphicCallProfile, methodInfo.CurrentTier)
			bodyInfo.DisableSampling = true
		}

		next := s.getNextCompileLevel(methodInfo.CurrentTier)
		if next > tier.Hot {
			// Invariant (iii): scorching-class compilations never arise
			// directly from counter-reaching-zero.
			bodyInfo.RefillCounter(s.cfg.HotSampleInterval)
		} else {
			plan, created, reason := s.newPlan(next)
			if reason == ctlerrors.ReasonOK {
				methodInfo.SetReason(method.DueToThreshold, next)
				s.attachPerceivedCPU(plan, bodyInfo)
			}
			return plan, created, reason
		}
	}

	hotWindowComplete := bodyInfo.HotWindowSamples >= s.cfg.HotSampleInterval
	scorchingWindowSize := s.cfg.HotSampleInterval * s.cfg.IntervalIncreaseFactor
	scorchingWindowComplete := bodyInfo.ScorchingWindowSamples >= scorchingWindowSize

	if hotWindowComplete {
		hotThreshold, scorchingThreshold := s.scaledThresholds()

		hotDelta := s.globalSamples() - bodyInfo.HotWindowStartGlobal
		looksHot := hotDelta <= hotThreshold

		scorchDelta := s.globalSamples() - bodyInfo.ScorchingWindowStartGlobal
		looksScorching := s.looksScorching(scorchDelta, bodyInfo.ScorchingWindowSamples, scorchingWindowSize, scorchingThreshold)

		switch {
		case looksScorching && scorchingWindowComplete:
			target := tier.Scorching
			instrument := false
			if s.cfg.ProfilingPermitted() && !s.cfg.CodeCacheNearFull() {
				target = tier.VeryHot
				instrument = true
			}
			if bodyInfo.MarkSamplingRecompDecided() {
				plan, created, reason := s.newPlan(target)
				if reason == ctlerrors.ReasonOK {
					plan.InsertInstrumentation = instrument
					methodInfo.SetReason(method.DueToThreshold, target)
					s.attachPerceivedCPU(plan, bodyInfo)
				}
				bodyInfo.ScorchingWindowSamples = 0
				bodyInfo.HotWindowSamples = 0
				return plan, created, reason
			}

		case looksScorching && !scorchingWindowComplete:
			bodyInfo.PostponeDecision = true
			bodyInfo.HotWindowSamples = 0

		case bodyInfo.Hotness.AtMost(tier.Warm) && looksHot:
			if bodyInfo.MarkSamplingRecompDecided() {
				plan, created, reason := s.newPlan(tier.Hot)
				if reason == ctlerrors.ReasonOK {
					methodInfo.SetReason(method.DueToThreshold, tier.Hot)
					if s.globalSamples() > s.cfg.SampleDontSwitchToProfilingThreshold {
						plan.DoNotSwitchToProfiling = true
					}
					s.attachPerceivedCPU(plan, bodyInfo)
				}
				bodyInfo.HotWindowSamples = 0
				return plan, created, reason
			}

		default:
			bodyInfo.HotWindowSamples = 0
		}
	}

	// Step 4: aggressive recompilation alternate criterion.
	if !s.cfg.DisableAggressiveRecompilations {
		if plan, created, reason, ok := s.tryAggressiveRecompilation(methodInfo, bodyInfo); ok {
			return plan, created, reason
		}
	}

	// Step 5: downgraded/AOT body upgrade path.
	if plan, created, reason, ok := s.tryDowngradedBodyUpgrade(methodInfo, bodyInfo); ok {
		return plan, created, reason
	}

	return nil, false, ctlerrors.ReasonNoPlan
}

// looksScorching reports whether the scorching window's density test
// passes. While the window is still accumulating, the observed delta is
// projected forward to the window's full size before comparing against
// the threshold — a body pacing well within budget partway through the
// window is accepted as "looks scorching" even before the window closes,
// matching spec §4.1.1's "method looks scorching... window incomplete"
// postponement case.
func (s *DefaultStrategy) looksScorching(delta, samplesSoFar, windowSize, threshold int32) bool {
	if samplesSoFar <= 0 {
		return false
	}
	if samplesSoFar >= windowSize {
		return delta <= threshold
	}
	projected := delta * windowSize / samplesSoFar
	return projected <= threshold
}

// scaledThresholds applies spec §4.1.1 step 3's size/conservative/startup/
// bigApp scaling to the base hot and scorching thresholds.
func (s *DefaultStrategy) scaledThresholds() (hot, scorching int32) {
	hot = s.cfg.SampleThreshold
	scorching = s.cfg.ScorchingSampleThreshold

	sizeFactor := defaultCodeSizeRatio
	hot = int32(float64(hot) * sizeFactor)
	scorching = int32(float64(scorching) * sizeFactor)

	if s.cfg.ConservativeCompilation {
		hot /= 2
		scorching /= 2
	}

	if s.cfg.StartupPhase && s.cfg.NumProcessors <= 2 {
		hot /= 2
		scorching /= 2
	}

	if s.cfg.SharedCacheBigAppStartup {
		hot += s.cfg.BigAppSampleThresholdAdjust
		scorching += s.cfg.BigAppSampleThresholdAdjust
	}

	return hot, scorching
}

// tryAggressiveRecompilation implements step 4's softer, second-criteria
// threshold path: permits promotion at lower observed density but
// requires a longer observation window, available when the body still
// has aggressive-recompilation chances or the app is not yet "big".
func (s *DefaultStrategy) tryAggressiveRecompilation(methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode, bool) {
	eligible := bodyInfo.AggressiveRecompChances > 0 || s.cfg.BigAppThreshold == 0
	if !eligible {
		return nil, false, ctlerrors.ReasonNoPlan, false
	}

	secondCriteriaHot := s.cfg.SampleThreshold * 2
	secondCriteriaScorching := s.cfg.ScorchingSampleThreshold * 2
	longerWindow := s.cfg.HotSampleInterval * 2

	if bodyInfo.HotWindowSamples < longerWindow {
		return nil, false, ctlerrors.ReasonNoPlan, false
	}

	delta := s.globalSamples() - bodyInfo.HotWindowStartGlobal

	if bodyInfo.Hotness.AtMost(tier.Warm) && delta <= secondCriteriaHot {
		if !bodyInfo.MarkSamplingRecompDecided() {
			return nil, false, ctlerrors.ReasonNoPlan, false
		}
		plan, created, reason := s.newPlan(tier.Hot)
		if reason == ctlerrors.ReasonOK {
			methodInfo.SetReason(method.DueToThreshold, tier.Hot)
			if bodyInfo.AggressiveRecompChances > 0 {
				bodyInfo.AggressiveRecompChances--
			}
			s.attachPerceivedCPU(plan, bodyInfo)
		}
		return plan, created, reason, true
	}

	if bodyInfo.Hotness.AtMost(tier.Hot) && delta <= secondCriteriaScorching {
		if !bodyInfo.MarkSamplingRecompDecided() {
			return nil, false, ctlerrors.ReasonNoPlan, false
		}
		plan, created, reason := s.newPlan(tier.Scorching)
		if reason == ctlerrors.ReasonOK {
			methodInfo.SetReason(method.DueToThreshold, tier.Scorching)
			if bodyInfo.AggressiveRecompChances > 0 {
				bodyInfo.AggressiveRecompChances--
			}
			s.attachPerceivedCPU(plan, bodyInfo)
		}
		return plan, created, reason, true
	}

	return nil, false, ctlerrors.ReasonNoPlan, false
}

// tryDowngradedBodyUpgrade implements step 5: a previously-downgraded or
// AOT-loaded body sitting below warm gets upgraded once the queue is
// small, the VM is not class-loading, and enough samples have
// accumulated.
func (s *DefaultStrategy) tryDowngradedBodyUpgrade(methodInfo *method.PersistentMethodInfo, bodyInfo *method.PersistentJittedBodyInfo) (*tier.OptimizationPlan, bool, ctlerrors.ReasonCode, bool) {
	if s.cfg.DisableUpgrades {
		return nil, false, ctlerrors.ReasonNoPlan, false
	}
	if !bodyInfo.Hotness.AtMost(tier.Warm) {
		return nil, false, ctlerrors.ReasonNoPlan, false
	}
	if !bodyInfo.PreviouslyDowngraded && !bodyInfo.IsAotedBody {
		return nil, false, ctlerrors.ReasonNoPlan, false
	}
	if !s.cfg.QueueIsSmall() || s.cfg.ClassLoadingPhase {
		return nil, false, ctlerrors.ReasonNoPlan, false
	}

	threshold := s.cfg.ColdUpgradeSampleThreshold
	if s.cfg.BigAppThreshold > 0 {
		threshold += s.cfg.BigAppSampleThresholdAdjust
	}
	if bodyInfo.SampleIntervalCount < threshold {
		return nil, false, ctlerrors.ReasonNoPlan, false
	}

	// AOT upgrade tier is warm unless quickstart (then cold, but bootstrap
	// class methods not marked "large-memory" still go to warm) — the
	// quickstart/bootstrap distinction lives in the out-of-scope class
	// loader, so this stand-in always targets warm.
	target := tier.Warm

	plan, created, reason := s.newPlan(target)
	if reason == ctlerrors.ReasonOK {
		plan.AddToUpgradeQueue = true
		methodInfo.SetReason(method.DueToOptLevelUpgrade, target)
	}
	return plan, created, reason, true
}

func (s *DefaultStrategy) incrementGlobalSamples() {
	s.mu.Lock()
	s.globalSamplesInWindow++
	s.mu.Unlock()
}

func (s *DefaultStrategy) globalSamples() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalSamplesInWindow
}

// attachPerceivedCPU sets plan.PerceivedCPUUtilPermille per spec §4.1.1
// step 7: windowSize*1000/globalSamplesInWindow.
func (s *DefaultStrategy) attachPerceivedCPU(plan *tier.OptimizationPlan, bodyInfo *method.PersistentJittedBodyInfo) {
	window := s.cfg.HotSampleInterval
	global := s.globalSamples()
	if global <= 0 {
		return
	}
	plan.PerceivedCPUUtilPermille = int(int64(window) * 1000 / int64(global))
}
