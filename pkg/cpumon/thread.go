package cpumon

import (
	"sync"
	"time"
)

// ThreadPortLayer is the narrow per-thread surface (spec §6:
// thread_get_self_cpu_time).
type ThreadPortLayer interface {
	SelfCPUTime() (time.Duration, bool)
}

// SelfThreadUtilization tracks one thread's CPU consumption across its two
// most recent measurement intervals (spec §3.5/§4.4). update() is refused
// unless minMeasurementInterval has elapsed since the last accepted
// reading; readings where elapsed CPU exceeds elapsed time by more than
// 10% mark the thread unfunctional (clock skew / port-layer confusion),
// with 0-110% otherwise clamped to 100%.
type SelfThreadUtilization struct {
	mu sync.Mutex

	port                ThreadPortLayer
	minMeasurementInterval time.Duration

	lastCheckpoint  time.Time
	cpuTimeAtLast   time.Duration
	hasLast         bool

	cpuDuringLast    time.Duration
	lengthOfLast     time.Duration
	cpuDuringSecondLast time.Duration
	lengthOfSecondLast  time.Duration

	functional bool
}

// NewSelfThreadUtilization creates a per-thread monitor.
func NewSelfThreadUtilization(port ThreadPortLayer, minMeasurementInterval time.Duration) *SelfThreadUtilization {
	return &SelfThreadUtilization{
		port:                   port,
		minMeasurementInterval: minMeasurementInterval,
		functional:             true,
	}
}

// Update takes one port-layer reading at `now`. Returns false without
// changing state if less than minMeasurementInterval has elapsed since the
// last accepted reading.
func (s *SelfThreadUtilization) Update(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.functional {
		return false
	}

	cpuTime, ok := s.port.SelfCPUTime()
	if !ok {
		s.functional = false
		return false
	}

	if !s.hasLast {
		s.lastCheckpoint = now
		s.cpuTimeAtLast = cpuTime
		s.hasLast = true
		return true
	}

	elapsedTime := now.Sub(s.lastCheckpoint)
	if elapsedTime < s.minMeasurementInterval {
		return false
	}

	elapsedCPU := cpuTime - s.cpuTimeAtLast

	s.cpuDuringSecondLast = s.cpuDuringLast
	s.lengthOfSecondLast = s.lengthOfLast
	s.cpuDuringLast = elapsedCPU
	s.lengthOfLast = elapsedTime

	s.lastCheckpoint = now
	s.cpuTimeAtLast = cpuTime

	if elapsedTime > 0 {
		percent := 100 * float64(elapsedCPU) / float64(elapsedTime)
		if percent > 110 {
			s.functional = false
			return true
		}
	}
	return true
}

// IsFunctional reports whether the thread's readings are still trusted.
func (s *SelfThreadUtilization) IsFunctional() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.functional
}

// ComputeUtilOverLastNs returns the CPU utilization percent (0-100) over
// the most recent intervals that together fit within validInterval. The
// gap since the last readout counts as idle time once it exceeds
// minMeasurementInterval.
func (s *SelfThreadUtilization) ComputeUtilOverLastNs(now time.Time, validInterval time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.functional || !s.hasLast {
		return -1
	}

	gap := now.Sub(s.lastCheckpoint)

	var cpu time.Duration
	var length time.Duration

	remaining := validInterval
	if s.lengthOfLast > 0 && remaining > 0 {
		take := s.lengthOfLast
		if take > remaining {
			take = remaining
		}
		fraction := float64(take) / float64(s.lengthOfLast)
		cpu += time.Duration(float64(s.cpuDuringLast) * fraction)
		length += take
		remaining -= take
	}
	if s.lengthOfSecondLast > 0 && remaining > 0 {
		take := s.lengthOfSecondLast
		if take > remaining {
			take = remaining
		}
		fraction := float64(take) / float64(s.lengthOfSecondLast)
		cpu += time.Duration(float64(s.cpuDuringSecondLast) * fraction)
		length += take
		remaining -= take
	}

	if gap > s.minMeasurementInterval && remaining > 0 {
		idle := gap
		if idle > remaining {
			idle = remaining
		}
		length += idle
		remaining -= idle
	}

	if length == 0 {
		return -1
	}

	percent := 100 * float64(cpu) / float64(length)
	if percent < 0 {
		percent = 0
	}
	if percent > 110 {
		percent = 100
	} else if percent > 100 {
		percent = 100
	}
	return percent
}
