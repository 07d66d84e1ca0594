package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/datacache"
	"github.com/tieredvm/recompiler/pkg/event"
	"github.com/tieredvm/recompiler/pkg/iprofiler"
	"github.com/tieredvm/recompiler/pkg/method"
	"github.com/tieredvm/recompiler/pkg/persistence"
	"github.com/tieredvm/recompiler/pkg/strategy"
	"github.com/tieredvm/recompiler/pkg/tier"
)

// scenario is one spec §8 "Concrete Scenarios" entry, replayed against
// the real packages rather than mocks so `simulate` doubles as a living
// description of the controller's decision behavior.
type scenario struct {
	name string
	run  func() error
}

var scenarios = []scenario{
	{"counter-driven-warm-promotion", scenarioCounterDrivenWarmPromotion},
	{"sample-driven-hot-promotion", scenarioSampleDrivenHotPromotion},
	{"aggressive-upgrade-from-cold", scenarioAggressiveUpgradeFromCold},
	{"scorching-threshold-falls-back-to-hot", scenarioScorchingFallsBackToHot},
	{"ip-persist-load-round-trip", scenarioIPPersistLoadRoundTrip},
	{"data-cache-split-on-reuse", scenarioDataCacheSplitOnReuse},
}

func runSimulate(cmd *cobra.Command, args []string) error {
	selected := scenarios
	if len(args) == 1 {
		selected = nil
		for _, s := range scenarios {
			if s.name == args[0] {
				selected = append(selected, s)
			}
		}
		if len(selected) == 0 {
			return fmt.Errorf("unknown scenario %q", args[0])
		}
	}

	failures := 0
	for _, s := range selected {
		start := time.Now()
		err := s.run()
		elapsed := time.Since(start)
		if err != nil {
			failures++
			printError(fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		fmt.Printf("%s ", s.name)
		printDuration(elapsed)
		printSuccess(s.name)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failures, len(selected))
	}
	return nil
}

func mustExpect(cond bool, format string, args ...any) error {
	if !cond {
		return fmt.Errorf(format, args...)
	}
	return nil
}

// Scenario 1: a method promotes out of the interpreter on counter
// trip-to-zero, landing at Cold, matching strategy_test.go's
// TestCounterDrivenWarmPromotion.
func scenarioCounterDrivenWarmPromotion() error {
	cfg := strategy.DefaultConfig()
	cfg.SampleThreshold = 50
	s := strategy.NewDefaultStrategy(cfg, tier.NewPool(0))
	methodInfo := method.NewPersistentMethodInfo(tier.NoOpt)

	var lastPlan *tier.OptimizationPlan
	for i := 0; i < 10; i++ {
		plan, created, reason := s.ProcessEvent(event.NewInterpreterCounterTripped(1), methodInfo, nil)
		if reason == ctlerrors.ReasonOK {
			if err := mustExpect(created, "expected a freshly created plan"); err != nil {
				return err
			}
			lastPlan = plan
		}
	}
	return mustExpect(lastPlan != nil && lastPlan.Tier == tier.Cold, "expected final tier Cold, got %v", lastPlan)
}

// Scenario 2: dense jitted-method sampling relative to the rest of the
// system closes the hot window "looking hot".
func scenarioSampleDrivenHotPromotion() error {
	cfg := strategy.DefaultConfig()
	cfg.HotSampleInterval = 30
	cfg.SampleThreshold = 50
	cfg.ScorchingSampleThreshold = 300
	cfg.IntervalIncreaseFactor = 10
	s := strategy.NewDefaultStrategy(cfg, tier.NewPool(0))

	methodInfo := method.NewPersistentMethodInfo(tier.Warm)
	bodyInfo := method.NewPersistentJittedBodyInfo(tier.Warm, 1000000)
	otherMethod := method.NewPersistentMethodInfo(tier.Warm)
	otherBody := method.NewPersistentJittedBodyInfo(tier.Warm, 1000000)

	var plan *tier.OptimizationPlan
	bodySamples := 0
	for bodySamples < 30 && plan == nil {
		if bodySamples > 0 && bodySamples%3 == 0 {
			s.ProcessEvent(event.NewJittedMethodSample(2, 0), otherMethod, otherBody)
		}
		p, _, r := s.ProcessEvent(event.NewJittedMethodSample(1, 0), methodInfo, bodyInfo)
		bodySamples++
		if r == ctlerrors.ReasonOK {
			plan = p
		}
	}
	if err := mustExpect(plan != nil, "expected a recompile plan within 30 samples"); err != nil {
		return err
	}
	return mustExpect(plan.Tier == tier.Hot, "expected Hot, got %v", plan.Tier)
}

// Scenario 3: a downgraded-to-Cold body sampling steadily enough earns an
// aggressive upgrade straight to Warm with AddToUpgradeQueue set, rather
// than waiting for a full recompile cycle.
func scenarioAggressiveUpgradeFromCold() error {
	cfg := strategy.DefaultConfig()
	cfg.ColdUpgradeSampleThreshold = 20
	cfg.BigAppThreshold = 0
	s := strategy.NewDefaultStrategy(cfg, tier.NewPool(0))

	methodInfo := method.NewPersistentMethodInfo(tier.Cold)
	bodyInfo := method.NewPersistentJittedBodyInfo(tier.Cold, 1000000)
	bodyInfo.PreviouslyDowngraded = true

	var plan *tier.OptimizationPlan
	for i := 0; i < 25 && plan == nil; i++ {
		p, _, r := s.ProcessEvent(event.NewJittedMethodSample(1, 0), methodInfo, bodyInfo)
		if r == ctlerrors.ReasonOK && p.AddToUpgradeQueue {
			plan = p
		}
	}
	if err := mustExpect(plan != nil, "expected an upgrade-queue plan"); err != nil {
		return err
	}
	return mustExpect(plan.Tier == tier.Warm && plan.AddToUpgradeQueue, "expected Warm+AddToUpgradeQueue, got %v", plan)
}

// Scenario 4: when the scorching window's arithmetic can never complete
// (interval-increase factor scaled out of reach), the decision must fall
// back to "looks hot", never misfire into Scorching.
func scenarioScorchingFallsBackToHot() error {
	cfg := strategy.DefaultConfig()
	cfg.IntervalIncreaseFactor = 1000000
	cfg.ScorchingSampleThreshold = 300
	cfg.SampleThreshold = 300
	s := strategy.NewDefaultStrategy(cfg, tier.NewPool(0))

	methodInfo := method.NewPersistentMethodInfo(tier.Warm)
	bodyInfo := method.NewPersistentJittedBodyInfo(tier.Warm, 1000000)

	var plan *tier.OptimizationPlan
	for i := 0; i < 400 && plan == nil; i++ {
		p, _, r := s.ProcessEvent(event.NewJittedMethodSample(1, 0), methodInfo, bodyInfo)
		if r == ctlerrors.ReasonOK {
			plan = p
		}
	}
	if err := mustExpect(plan != nil, "expected a recompile plan within 400 samples"); err != nil {
		return err
	}
	return mustExpect(plan.Tier == tier.Hot, "expected fallback to Hot, got %v (must never reach Scorching here)", plan.Tier)
}

// Scenario 5: a CallGraph entry's dominant slot survives a persist/load
// round trip through the shared cache, folding its non-dominant slot's
// weight into residue.
func scenarioIPPersistLoadRoundTrip() error {
	ht := iprofiler.NewHashtable(16)
	cg := iprofiler.NewCallGraph(1000)
	cg.SetData(1, 100)
	cg.SetData(2, 40)
	entry := ht.GetOrInsert(1000, func() iprofiler.Entry { return cg })
	if entry != iprofiler.Entry(cg) {
		return fmt.Errorf("GetOrInsert raced with itself")
	}

	store := persistence.NewMemoryStore(0)
	resolveClass := func(c iprofiler.ClassID) (uint32, uint32, bool) {
		return uint32(c), uint32(c) + 1000, true
	}
	if reason := iprofiler.PersistMethod(ht, "method:1", 900, 200, store, resolveClass); reason != ctlerrors.ReasonOK {
		return fmt.Errorf("PersistMethod: %v", reason)
	}

	fresh := iprofiler.NewHashtable(16)
	resolveChain := func(chainOff, _ uint32) (iprofiler.ClassID, bool) { return iprofiler.ClassID(chainOff), true }
	if reason := iprofiler.LoadMethod(fresh, "method:1", 900, store, resolveChain); reason != ctlerrors.ReasonOK {
		return fmt.Errorf("LoadMethod: %v", reason)
	}

	loaded, ok := fresh.Get(1000)
	if !ok {
		return fmt.Errorf("entry missing after load")
	}
	loadedCG, ok := loaded.(*iprofiler.CallGraph)
	if !ok {
		return fmt.Errorf("loaded entry is not a CallGraph")
	}
	dom, ok := loadedCG.DominantClass()
	if !ok || dom != 1 {
		return fmt.Errorf("expected dominant class 1, got %v (ok=%v)", dom, ok)
	}
	return mustExpect(loadedCG.ResidueWeight() == 40, "expected residue 40 (non-dominant slot folded in), got %d", loadedCG.ResidueWeight())
}

// Scenario 6: freeing an oversized chunk and then allocating something
// smaller splits the remainder back into the pool instead of wasting it.
func scenarioDataCacheSplitOnReuse() error {
	m := datacache.New(datacache.Config{SegmentSize: 4096, MaxTotalSize: 1 << 20, QuantumMinimum: 32})

	big := m.Allocate(256, datacache.KindMisc)
	if !big.IsOK() {
		return fmt.Errorf("initial 256-byte allocation failed: %v", big.Reason)
	}
	m.Free(big.Value)

	small := m.Allocate(32, datacache.KindMisc)
	if !small.IsOK() {
		return fmt.Errorf("32-byte allocation failed: %v", small.Reason)
	}
	if err := mustExpect(small.Value.ChunkSize < big.Value.ChunkSize, "expected the 32-byte chunk to be smaller than the freed 256-byte chunk"); err != nil {
		return err
	}
	return mustExpect(m.PoolLen() == 1, "expected the split remainder to re-enter the pool, pool len=%d", m.PoolLen())
}
