package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tieredvm/recompiler/pkg/config"
	"github.com/tieredvm/recompiler/pkg/controller"
	"github.com/tieredvm/recompiler/pkg/datacache"
	"github.com/tieredvm/recompiler/pkg/iprofiler"
	"github.com/tieredvm/recompiler/pkg/persistence"
	"github.com/tieredvm/recompiler/pkg/strategy"
	"github.com/tieredvm/recompiler/pkg/telemetry"
	"github.com/tieredvm/recompiler/pkg/tier"
)

// runServe wires every subsystem the spec's §12 module layout names into
// one running process: a persistence backend, the interpreter profiler,
// the data-cache allocator, and the compilation controller, all reporting
// through one telemetry.Metrics, and serves /metrics until signaled.
// Grounded on the teacher's runRun/waitForShutdown shape (cmd/glyph/main.go):
// build the long-lived thing, then block on os/signal.
func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	listen, _ := cmd.Flags().GetString("listen")
	watch, _ := cmd.Flags().GetBool("watch")

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = *loaded
	}

	store, err := openStore(cfg.Persistence)
	if err != nil {
		return fmt.Errorf("open persistence backend: %w", err)
	}
	defer store.Close()

	metrics := telemetry.NewMetrics(telemetry.DefaultConfig())

	profiler := iprofiler.New(iprofiler.Config{
		BCHashTableSize:              cfg.IProfiler.BCHashTableSize,
		MethodHashTableSize:          cfg.IProfiler.MethodHashTableSize,
		NumOutstandingBuffers:        cfg.IProfiler.NumOutstandingBuffers,
		BufferMaxPercentageToDiscard: cfg.IProfiler.BufferMaxPercentageToDiscard,
		BufferCapacity:               cfg.IProfiler.BufferCapacity,
		FailHistorySize:              cfg.IProfiler.FailHistorySize,
		DisableClassUnloadThreshold:  cfg.IProfiler.DisableClassUnloadThreshold,
		DisableProfiling:             cfg.IProfiler.DisableProfiling,
		DisableInterpreterSampling:   cfg.IProfiler.DisableInterpreterSampling,
		PreferHashtableData:          cfg.IProfiler.PreferHashtableData,
	}, store)
	profiler.SetMetrics(metrics)

	dcache := datacache.New(datacache.Config{
		SegmentSize:    cfg.DataCache.SegmentSize,
		MaxTotalSize:   cfg.DataCache.MaxTotalSize,
		QuantumMinimum: cfg.DataCache.QuantumMinimum,
	})
	dcache.SetMetrics(metrics)

	plans := tier.NewPool(0)
	strat := buildStrategy(cfg, plans)

	ctl := controller.New(controller.Config{
		NumWorkers: cfg.Controller.NumWorkers,
		RingSize:   cfg.Controller.RingSize,
	}, strat, plans, func(e *controller.QueueEntry) {
		// A real JIT backend would generate code for e.Plan here; this
		// controller's job ends at deciding what to compile and when.
	})
	ctl.SetMetrics(metrics)

	if watch && path != "" {
		w, err := config.NewWatcher(path, 500*time.Millisecond, func(reloaded *config.Config, err error) {
			if err != nil {
				printError(fmt.Errorf("config reload: %w", err))
				return
			}
			printInfo(fmt.Sprintf("configuration reloaded from %s", path))
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		w.Start()
		defer w.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		printInfo(fmt.Sprintf("serving metrics on %s/metrics", listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			printError(fmt.Errorf("metrics server: %w", err))
		}
	}()

	return waitForShutdown(srv, ctl)
}

func waitForShutdown(srv *http.Server, ctl *controller.Controller) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	printWarning("shutting down...")
	remaining := ctl.Shutdown()
	for kind, n := range remaining {
		if n > 0 {
			printWarning(fmt.Sprintf("%d entries still queued on %s at shutdown", n, kind))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func openStore(cfg config.PersistenceConfig) (persistence.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return persistence.OpenSQLiteStore(cfg.SQLitePath)
	case "redis":
		return persistence.NewRedisStore(persistence.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}), nil
	default:
		return persistence.NewMemoryStore(cfg.MemoryCapacityBytes), nil
	}
}

func buildStrategy(cfg config.Config, plans *tier.Pool) strategy.Strategy {
	switch controller.ResolveStrategyName(cfg.Controller.StrategyName) {
	case controller.StrategyThreshold:
		needed := map[tier.Tier]int32{
			tier.Cold: cfg.Strategy.ColdUpgradeSampleThreshold,
			tier.Warm: cfg.Strategy.SampleThreshold,
			tier.Hot:  cfg.Strategy.ScorchingSampleThreshold,
		}
		instrument := map[tier.Tier]bool{tier.Cold: true, tier.Warm: true}
		return strategy.NewThresholdStrategy(plans, needed, instrument)
	default:
		return strategy.NewDefaultStrategy(strategy.Config{
			SampleThreshold:                      cfg.Strategy.SampleThreshold,
			ScorchingSampleThreshold:             cfg.Strategy.ScorchingSampleThreshold,
			SampleInterval:                       cfg.Strategy.SampleInterval,
			ResetCountThreshold:                  cfg.Strategy.ResetCountThreshold,
			SampleDontSwitchToProfilingThreshold: cfg.Strategy.SampleDontSwitchToProfilingThreshold,
			ColdUpgradeSampleThreshold:           cfg.Strategy.ColdUpgradeSampleThreshold,
			StartupDivisor:                       cfg.Strategy.StartupDivisor,
			SteadyDivisor:                        cfg.Strategy.SteadyDivisor,
			LoopySubtraction:                     cfg.Strategy.LoopySubtraction,
			LoopyDivisor:                         cfg.Strategy.LoopyDivisor,
			ActiveThreadsThreshold:               cfg.Strategy.ActiveThreadsThreshold,
			BigAppThreshold:                      cfg.Strategy.BigAppThreshold,
			BigAppSampleThresholdAdjust:          cfg.Strategy.BigAppSampleThresholdAdjust,
			HotSampleInterval:                    cfg.Strategy.HotSampleInterval,
			IntervalIncreaseFactor:               cfg.Strategy.IntervalIncreaseFactor,
			DisableProfiling:                     cfg.Strategy.DisableProfiling,
			DisableInterpreterSampling:           cfg.Strategy.DisableInterpreterSampling,
			DisableUpgrades:                      cfg.Strategy.DisableUpgrades,
			DisableAggressiveRecompilations:      cfg.Strategy.DisableAggressiveRecompilations,
			ConservativeCompilation:              cfg.Strategy.ConservativeCompilation,
			EnableAppThreadYield:                 cfg.Strategy.EnableAppThreadYield,
			DoNotUsePersistentIProfiler:          cfg.Strategy.DoNotUsePersistentIProfiler,
			AsyncCompileEnabled:                  cfg.Strategy.AsyncCompileEnabled,
			WarmupDelayElapsed:                   cfg.Strategy.WarmupDelayElapsed,
		}, plans)
	}
}
