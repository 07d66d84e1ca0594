package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tieredvm/recompiler/pkg/config"
)

func runStats(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = *loaded
		printInfo(fmt.Sprintf("Loaded %s", path))
	} else {
		printInfo("No --config given; showing built-in defaults")
	}

	printSuccess("Strategy")
	fmt.Printf("  strategy             = %s\n", cfg.Controller.StrategyName)
	fmt.Printf("  sample_threshold     = %d\n", cfg.Strategy.SampleThreshold)
	fmt.Printf("  scorching_threshold  = %d\n", cfg.Strategy.ScorchingSampleThreshold)
	fmt.Printf("  cold_upgrade_thresh  = %d\n", cfg.Strategy.ColdUpgradeSampleThreshold)
	fmt.Printf("  async_compile        = %t\n", cfg.Strategy.AsyncCompileEnabled)

	printSuccess("IP Profiler")
	fmt.Printf("  bc_hashtable_size    = %d\n", cfg.IProfiler.BCHashTableSize)
	fmt.Printf("  num_outstanding_bufs = %d\n", cfg.IProfiler.NumOutstandingBuffers)
	fmt.Printf("  buffer_capacity      = %d\n", cfg.IProfiler.BufferCapacity)

	printSuccess("Data Cache")
	fmt.Printf("  segment_size         = %d\n", cfg.DataCache.SegmentSize)
	fmt.Printf("  max_total_size       = %d\n", cfg.DataCache.MaxTotalSize)
	fmt.Printf("  quantum_minimum      = %d\n", cfg.DataCache.QuantumMinimum)

	printSuccess("Controller")
	fmt.Printf("  num_workers          = %d\n", cfg.Controller.NumWorkers)
	fmt.Printf("  ring_size            = %d\n", cfg.Controller.RingSize)

	printSuccess("Persistence")
	fmt.Printf("  backend              = %s\n", cfg.Persistence.Backend)

	return nil
}
