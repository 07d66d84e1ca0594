// Command jitctl operates the adaptive recompilation controller: it loads
// a YAML configuration, wires the persistence/profiler/data-cache/queue
// subsystems together, and serves Prometheus metrics, or runs the
// controller's decision logic against canned scenarios for inspection.
//
// Command registration follows the teacher CLI's rootCmd/subcommand
// pattern (cmd/glyph/main.go): one *cobra.Command per verb, flags bound
// with cmd.Flags(), RunE doing the work.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "jitctl",
		Short:   "Adaptive recompilation controller",
		Long:    "jitctl drives the tiered-JIT recompilation controller: queueing, interpreter profiling, data-cache allocation, and persistence, configured from a single YAML file.",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the controller and serve Prometheus metrics",
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("config", "c", "", "Path to controller.yaml (defaults built in if omitted)")
	serveCmd.Flags().StringP("listen", "l", ":9090", "Address to serve /metrics on")
	serveCmd.Flags().Bool("watch", false, "Reload configuration on change")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the resolved configuration",
		RunE:  runStats,
	}
	statsCmd.Flags().StringP("config", "c", "", "Path to controller.yaml (defaults built in if omitted)")

	simulateCmd := &cobra.Command{
		Use:   "simulate [scenario]",
		Short: "Replay a controller decision scenario and print the outcome",
		Long:  "Without a scenario name, replays every scenario and reports pass/fail for each.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulate,
	}

	rootCmd.AddCommand(serveCmd, statsCmd, simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
