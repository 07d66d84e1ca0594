// Package telemetry exposes the controller's internal state as Prometheus
// collectors: queue weights, tier transition counts, IP hashtable occupancy,
// data-cache pool usage and CPU utilization readouts.
package telemetry

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics collectors for the recompilation controller.
type Metrics struct {
	// Compilation activity
	compilationsTotal   *prometheus.CounterVec // by tier
	recompilationsTotal *prometheus.CounterVec // by reason
	compileDuration     *prometheus.HistogramVec
	deoptimizationsTotal *prometheus.CounterVec // by reason

	// Queue state
	queueWeight    *prometheus.GaugeVec // by queue name
	queueDepth     *prometheus.GaugeVec

	// Interpreter profiler state
	ipHashtableOccupancy prometheus.Gauge
	ipBuffersDiscarded   prometheus.Counter
	ipBuffersSelfParsed  prometheus.Counter

	// Data cache state
	dataCacheBytesAllocated prometheus.Gauge
	dataCacheBytesInPool    prometheus.Gauge
	dataCacheSegments       prometheus.Gauge

	// CPU utilization
	cpuWholeMachinePercent prometheus.Gauge
	cpuVMPercent           prometheus.Gauge

	// Resource usage metrics (ambient runtime health)
	goroutines   prometheus.Gauge
	memoryAlloc  prometheus.Gauge
	memoryTotal  prometheus.Gauge
	memorySystem prometheus.Gauge
	gcPauseNs    prometheus.Gauge
	numGC        prometheus.Gauge

	// Custom metrics, kept for embedders that want ad-hoc collectors
	customCounters   map[string]*prometheus.CounterVec
	customGauges     map[string]*prometheus.GaugeVec
	customHistograms map[string]*prometheus.HistogramVec

	registry *prometheus.Registry
}

// Config holds configuration for the telemetry namespace.
type Config struct {
	Namespace string
	Subsystem string
	// CompileDurationBuckets are histogram buckets for compile latency, in seconds.
	CompileDurationBuckets []float64
}

// DefaultConfig returns the default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:              "jitctl",
		Subsystem:              "controller",
		CompileDurationBuckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}
}

// NewMetrics creates and registers all Prometheus metrics on a private registry.
func NewMetrics(config Config) *Metrics {
	if config.Namespace == "" {
		config = DefaultConfig()
	}
	if len(config.CompileDurationBuckets) == 0 {
		config.CompileDurationBuckets = DefaultConfig().CompileDurationBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry:         registry,
		customCounters:   make(map[string]*prometheus.CounterVec),
		customGauges:     make(map[string]*prometheus.GaugeVec),
		customHistograms: make(map[string]*prometheus.HistogramVec),
	}

	m.compilationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "compilations_total",
			Help:      "Total number of method/body compilations, by tier.",
		},
		[]string{"tier"},
	)

	m.recompilationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "recompilations_total",
			Help:      "Total number of recompilations, by reason.",
		},
		[]string{"reason"},
	)

	m.compileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "compile_duration_seconds",
			Help:      "Time a compile worker spent in the compile function for one dequeued entry, by tier.",
			Buckets:   config.CompileDurationBuckets,
		},
		[]string{"tier"},
	)

	m.deoptimizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "deoptimizations_total",
			Help:      "Total number of deoptimization events, by reason.",
		},
		[]string{"reason"},
	)

	m.queueWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "queue",
			Name:      "weight",
			Help:      "Overall queue weight (sum of HotnessWeights) per compile queue.",
		},
		[]string{"queue"},
	)

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of pending entries per compile queue.",
		},
		[]string{"queue"},
	)

	m.ipHashtableOccupancy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "iprofiler",
			Name:      "hashtable_entries",
			Help:      "Number of live entries in the interpreter profiler hashtable.",
		},
	)

	m.ipBuffersDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "iprofiler",
			Name:      "buffers_discarded_total",
			Help:      "Number of profile buffers discarded under the skip budget.",
		},
	)

	m.ipBuffersSelfParsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "iprofiler",
			Name:      "buffers_self_parsed_total",
			Help:      "Number of profile buffers parsed synchronously by the application thread that filled them.",
		},
	)

	m.dataCacheBytesAllocated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "datacache",
			Name:      "bytes_allocated",
			Help:      "Total bytes allocated across all data cache segments.",
		},
	)

	m.dataCacheBytesInPool = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "datacache",
			Name:      "bytes_in_pool",
			Help:      "Total bytes currently held in the size-bucket free pool.",
		},
	)

	m.dataCacheSegments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "datacache",
			Name:      "segments",
			Help:      "Number of OS-backed segments currently allocated.",
		},
	)

	m.cpuWholeMachinePercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "cpu",
			Name:      "whole_machine_percent",
			Help:      "Whole-machine CPU utilization percent over the last sampling interval.",
		},
	)

	m.cpuVMPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "cpu",
			Name:      "vm_percent",
			Help:      "This process's CPU utilization percent over the last sampling interval.",
		},
	)

	m.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "goroutines",
			Help:      "Number of goroutines currently running.",
		},
	)

	m.memoryAlloc = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "memory_alloc_bytes",
			Help:      "Number of bytes allocated and still in use.",
		},
	)

	m.memoryTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "memory_total_alloc_bytes",
			Help:      "Total number of bytes allocated (cumulative).",
		},
	)

	m.memorySystem = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "memory_sys_bytes",
			Help:      "Number of bytes obtained from the system.",
		},
	)

	m.gcPauseNs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "gc_pause_ns",
			Help:      "Most recent GC pause time in nanoseconds.",
		},
	)

	m.numGC = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "gc_runs_total",
			Help:      "Total number of GC runs.",
		},
	)

	registry.MustRegister(
		m.compilationsTotal,
		m.recompilationsTotal,
		m.compileDuration,
		m.deoptimizationsTotal,
		m.queueWeight,
		m.queueDepth,
		m.ipHashtableOccupancy,
		m.ipBuffersDiscarded,
		m.ipBuffersSelfParsed,
		m.dataCacheBytesAllocated,
		m.dataCacheBytesInPool,
		m.dataCacheSegments,
		m.cpuWholeMachinePercent,
		m.cpuVMPercent,
		m.goroutines,
		m.memoryAlloc,
		m.memoryTotal,
		m.memorySystem,
		m.gcPauseNs,
		m.numGC,
	)

	go m.collectRuntimeMetrics()

	return m
}

// collectRuntimeMetrics periodically refreshes the ambient runtime gauges.
func (m *Metrics) collectRuntimeMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.UpdateRuntimeMetrics()
	}
}

// UpdateRuntimeMetrics updates runtime metrics (goroutines, memory, GC).
func (m *Metrics) UpdateRuntimeMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAlloc.Set(float64(memStats.Alloc))
	m.memoryTotal.Set(float64(memStats.TotalAlloc))
	m.memorySystem.Set(float64(memStats.Sys))
	m.numGC.Set(float64(memStats.NumGC))

	if memStats.NumGC > 0 {
		m.gcPauseNs.Set(float64(memStats.PauseNs[(memStats.NumGC+255)%256]))
	}
}

// RecordCompilation records a compilation event at a given tier.
func (m *Metrics) RecordCompilation(tier string, duration time.Duration) {
	m.compilationsTotal.WithLabelValues(tier).Inc()
	m.compileDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordRecompilation records a recompilation with its triggering reason.
func (m *Metrics) RecordRecompilation(reason string) {
	m.recompilationsTotal.WithLabelValues(reason).Inc()
}

// RecordDeoptimization records a deoptimization with its reason.
func (m *Metrics) RecordDeoptimization(reason string) {
	m.deoptimizationsTotal.WithLabelValues(reason).Inc()
}

// SetQueueState updates the weight and depth gauges for a named compile queue.
func (m *Metrics) SetQueueState(queue string, weight, depth int) {
	m.queueWeight.WithLabelValues(queue).Set(float64(weight))
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// SetIPHashtableOccupancy sets the current live-entry count of the IP hashtable.
func (m *Metrics) SetIPHashtableOccupancy(n int) {
	m.ipHashtableOccupancy.Set(float64(n))
}

// RecordIPBufferDiscarded increments the discarded-buffer counter.
func (m *Metrics) RecordIPBufferDiscarded() {
	m.ipBuffersDiscarded.Inc()
}

// RecordIPBufferSelfParsed increments the self-parsed-buffer counter.
func (m *Metrics) RecordIPBufferSelfParsed() {
	m.ipBuffersSelfParsed.Inc()
}

// SetDataCacheState updates the data-cache gauges.
func (m *Metrics) SetDataCacheState(bytesAllocated, bytesInPool int64, segments int) {
	m.dataCacheBytesAllocated.Set(float64(bytesAllocated))
	m.dataCacheBytesInPool.Set(float64(bytesInPool))
	m.dataCacheSegments.Set(float64(segments))
}

// SetCPUUtilization updates the CPU utilization gauges (percent, 0-100).
func (m *Metrics) SetCPUUtilization(wholeMachinePercent, vmPercent float64) {
	m.cpuWholeMachinePercent.Set(wholeMachinePercent)
	m.cpuVMPercent.Set(vmPercent)
}

// RegisterCustomCounter registers a custom counter metric.
func (m *Metrics) RegisterCustomCounter(name, help string, labels []string) error {
	if _, exists := m.customCounters[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: name, Help: help},
		labels,
	)

	if err := m.registry.Register(counter); err != nil {
		return err
	}

	m.customCounters[name] = counter
	return nil
}

// RegisterCustomGauge registers a custom gauge metric.
func (m *Metrics) RegisterCustomGauge(name, help string, labels []string) error {
	if _, exists := m.customGauges[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: name, Help: help},
		labels,
	)

	if err := m.registry.Register(gauge); err != nil {
		return err
	}

	m.customGauges[name] = gauge
	return nil
}

// RegisterCustomHistogram registers a custom histogram metric.
func (m *Metrics) RegisterCustomHistogram(name, help string, labels []string, buckets []float64) error {
	if _, exists := m.customHistograms[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets},
		labels,
	)

	if err := m.registry.Register(histogram); err != nil {
		return err
	}

	m.customHistograms[name] = histogram
	return nil
}

// IncrementCustomCounter increments a custom counter.
func (m *Metrics) IncrementCustomCounter(name string, labels map[string]string) {
	if counter, exists := m.customCounters[name]; exists {
		counter.With(prometheus.Labels(labels)).Inc()
	}
}

// SetCustomGauge sets a custom gauge value.
func (m *Metrics) SetCustomGauge(name string, value float64, labels map[string]string) {
	if gauge, exists := m.customGauges[name]; exists {
		gauge.With(prometheus.Labels(labels)).Set(value)
	}
}

// ObserveCustomHistogram observes a value in a custom histogram.
func (m *Metrics) ObserveCustomHistogram(name string, value float64, labels map[string]string) {
	if histogram, exists := m.customHistograms[name]; exists {
		histogram.With(prometheus.Labels(labels)).Observe(value)
	}
}

// Handler returns an HTTP handler for the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// GetRegistry returns the Prometheus registry backing these metrics.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}
