// Package config loads the controller's YAML configuration file and
// watches it for changes. Field names mirror the spec §6 knob names so
// the mapping from YAML key to behavior stays legible; grounded on the
// teacher's own config loading shape (gopkg.in/yaml.v3, already a
// teacher dependency via pkg/openapi's spec marshaling) and its
// cmd/glyph CLI's flag-to-struct wiring.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyConfig mirrors pkg/strategy.Config's knobs (spec §6
// thresholds/divisors/boolean gates).
type StrategyConfig struct {
	SampleThreshold                      int32 `yaml:"sample_threshold"`
	ScorchingSampleThreshold              int32 `yaml:"scorching_sample_threshold"`
	SampleInterval                        int32 `yaml:"sample_interval"`
	ResetCountThreshold                   int32 `yaml:"reset_count_threshold"`
	SampleDontSwitchToProfilingThreshold   int32 `yaml:"sample_dont_switch_to_profiling_threshold"`
	ColdUpgradeSampleThreshold            int32 `yaml:"cold_upgrade_sample_threshold"`
	StartupDivisor                        int32 `yaml:"startup_divisor"`
	SteadyDivisor                         int32 `yaml:"steady_divisor"`
	LoopySubtraction                      int32 `yaml:"loopy_subtraction"`
	LoopyDivisor                          int32 `yaml:"loopy_divisor"`
	ActiveThreadsThreshold                int32 `yaml:"active_threads_threshold"`
	BigAppThreshold                       int   `yaml:"big_app_threshold"`
	BigAppSampleThresholdAdjust           int32 `yaml:"big_app_sample_threshold_adjust"`
	HotSampleInterval                     int32 `yaml:"hot_sample_interval"`
	IntervalIncreaseFactor                int32 `yaml:"interval_increase_factor"`

	DisableProfiling                bool `yaml:"disable_profiling"`
	DisableInterpreterSampling      bool `yaml:"disable_interpreter_sampling"`
	DisableUpgrades                 bool `yaml:"disable_upgrades"`
	DisableAggressiveRecompilations bool `yaml:"disable_aggressive_recompilations"`
	ConservativeCompilation         bool `yaml:"conservative_compilation"`
	EnableAppThreadYield            bool `yaml:"enable_app_thread_yield"`
	DoNotUsePersistentIProfiler     bool `yaml:"do_not_use_persistent_iprofiler"`
	AsyncCompileEnabled             bool `yaml:"async_compile_enabled"`
	WarmupDelayElapsed              bool `yaml:"warmup_delay_elapsed"`
}

// IProfilerConfig mirrors pkg/iprofiler.Config's knobs.
type IProfilerConfig struct {
	BCHashTableSize              int   `yaml:"bc_hashtable_size"`
	MethodHashTableSize          int   `yaml:"method_hashtable_size"`
	NumOutstandingBuffers        int   `yaml:"num_outstanding_buffers"`
	BufferMaxPercentageToDiscard int   `yaml:"buffer_max_percentage_to_discard"`
	BufferCapacity               int   `yaml:"buffer_capacity"`
	FailHistorySize              int   `yaml:"fail_history_size"`
	DisableClassUnloadThreshold  int32 `yaml:"disable_class_unload_threshold"`
	DisableProfiling             bool  `yaml:"disable_profiling"`
	DisableInterpreterSampling   bool  `yaml:"disable_interpreter_sampling"`
	PreferHashtableData          bool  `yaml:"prefer_hashtable_data"`
}

// DataCacheConfig mirrors pkg/datacache.Config's knobs.
type DataCacheConfig struct {
	SegmentSize    int `yaml:"segment_size"`
	MaxTotalSize   int `yaml:"max_total_size"`
	QuantumMinimum int `yaml:"quantum_minimum"`
}

// ControllerConfig mirrors pkg/controller.Config's knobs plus the
// strategy-selection knob from spec §4.5/§13.
type ControllerConfig struct {
	StrategyName string `yaml:"strategy"` // "default" | "threshold"
	NumWorkers   int    `yaml:"num_workers"`
	RingSize     int    `yaml:"ring_size"`
}

// PersistenceConfig selects and parameterizes a pkg/persistence
// backend.
type PersistenceConfig struct {
	Backend string `yaml:"backend"` // "memory" | "sqlite" | "redis"

	MemoryCapacityBytes int64 `yaml:"memory_capacity_bytes"`

	SQLitePath string `yaml:"sqlite_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// Config is the controller's full configuration, loaded from YAML.
type Config struct {
	Strategy    StrategyConfig    `yaml:"strategy"`
	IProfiler   IProfilerConfig   `yaml:"iprofiler"`
	DataCache   DataCacheConfig   `yaml:"datacache"`
	Controller  ControllerConfig  `yaml:"controller"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// Default returns a Config populated with the same constants
// strategy.DefaultConfig/the controller packages use internally, as the
// starting point a YAML file overrides piecewise.
func Default() Config {
	return Config{
		Strategy: StrategyConfig{
			SampleThreshold:                      300,
			ScorchingSampleThreshold:             3000,
			SampleInterval:                       30,
			ResetCountThreshold:                  10,
			SampleDontSwitchToProfilingThreshold: 1000,
			ColdUpgradeSampleThreshold:           50,
			StartupDivisor:                       4,
			SteadyDivisor:                        2,
			LoopySubtraction:                     1,
			LoopyDivisor:                         2,
			ActiveThreadsThreshold:               -1,
			BigAppThreshold:                      5000,
			BigAppSampleThresholdAdjust:          2,
			HotSampleInterval:                    30,
			IntervalIncreaseFactor:               10,
			AsyncCompileEnabled:                  true,
			WarmupDelayElapsed:                   true,
		},
		IProfiler: IProfilerConfig{
			BCHashTableSize:              4096,
			MethodHashTableSize:          1024,
			NumOutstandingBuffers:        8,
			BufferMaxPercentageToDiscard: 5,
			BufferCapacity:               256,
			FailHistorySize:              16,
		},
		DataCache: DataCacheConfig{
			SegmentSize:    1 << 20,
			MaxTotalSize:   32 << 20,
			QuantumMinimum: 256,
		},
		Controller: ControllerConfig{
			StrategyName: "default",
			NumWorkers:   4,
			RingSize:     1024,
		},
		Persistence: PersistenceConfig{
			Backend:             "memory",
			MemoryCapacityBytes: 64 << 20,
		},
	}
}

// Load reads and parses a YAML config file, starting from Default() so
// a partial file only overrides the keys it specifies.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
