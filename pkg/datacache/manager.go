package datacache

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/telemetry"
	"github.com/tieredvm/recompiler/pkg/tracing"
)

// Config controls the manager's segment sizing and growth cap (spec §6
// knobs: data-cache segment size and total-size ceiling).
type Config struct {
	SegmentSize    int
	MaxTotalSize   int
	QuantumMinimum int // smallest payload size worth bump-allocating directly
}

// Manager owns the chain of DataCache segments plus the pool layered
// over all of them, grounded on TR_DataCacheManager: allocation first
// tries the pool (getFromPool), then the active segment's bump
// allocator, then grows by adding a new segment, and finally fails with
// ReasonDataCacheExhausted once MaxTotalSize is reached (spec §4.3,
// §13).
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	head       *DataCache // most recently created cache; active by default
	totalBytes int
	pool       *Pool

	metrics *telemetry.Metrics
}

// SetMetrics attaches a Prometheus collector set; nil disables
// telemetry recording.
func (m *Manager) SetMetrics(t *telemetry.Metrics) {
	m.metrics = t
}

func (m *Manager) reportMetricsLocked() {
	if m.metrics == nil {
		return
	}
	used := 0
	for c := m.head; c != nil; c = c.next {
		used += c.segment.used
	}
	m.metrics.SetDataCacheState(int64(used), int64(m.pool.Len()), m.SegmentCountLocked())
}

func (m *Manager) SegmentCountLocked() int {
	n := 0
	for c := m.head; c != nil; c = c.next {
		n++
	}
	return n
}

// New constructs a manager with a single initial segment.
func New(cfg Config) *Manager {
	m := &Manager{cfg: cfg, pool: newPool()}
	m.head = newDataCache(cfg.SegmentSize)
	m.totalBytes = m.head.segment.Len()
	return m
}

// Allocate reserves payloadSize bytes tagged kind, trying the pool
// first, then the active segment's bump tail, then growing with a new
// segment if the cap allows it.
func (m *Manager) Allocate(payloadSize int, kind Kind) ctlerrors.Result[*Allocation] {
	ctx, span := tracing.StartSpan(context.Background(), "datacache.Allocate", tracing.SpanKind.Internal)
	defer span.End()
	span.SetAttributes(
		attribute.Int("recompiler.payload_size", payloadSize),
		attribute.String("recompiler.kind", kind.String()),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.reportMetricsLocked()

	need := alignQuantum(headerSize + payloadSize)

	if offset, chunkSize, ok := m.pool.getFromPool(need); ok {
		writeHeader(m.head.segment, offset, chunkSize, kind)
		tracing.AddEvent(ctx, "served from pool")
		return ctlerrors.Ok(&Allocation{
			Cache:         m.head,
			Offset:        offset,
			ChunkSize:     chunkSize,
			PayloadOffset: offset + headerSize,
			PayloadSize:   chunkSize - headerSize,
			Kind:          kind,
		})
	}

	if a, ok := m.head.bumpAllocate(payloadSize, kind); ok {
		m.maybeMarkAlmostFull(m.head)
		return ctlerrors.Ok(a)
	}

	m.head.status = Full
	if m.totalBytes+m.cfg.SegmentSize > m.cfg.MaxTotalSize {
		tracing.SetError(ctx, fmt.Errorf("data cache exhausted at %d bytes", m.totalBytes))
		return ctlerrors.Err[*Allocation](ctlerrors.ReasonDataCacheExhausted)
	}

	fresh := newDataCache(m.cfg.SegmentSize)
	fresh.next = m.head
	m.head = fresh
	m.totalBytes += fresh.segment.Len()
	tracing.AddEvent(ctx, "grew a new segment")

	a, ok := m.head.bumpAllocate(payloadSize, kind)
	if !ok {
		tracing.SetError(ctx, fmt.Errorf("data cache exhausted at %d bytes", m.totalBytes))
		return ctlerrors.Err[*Allocation](ctlerrors.ReasonDataCacheExhausted)
	}
	m.maybeMarkAlmostFull(m.head)
	return ctlerrors.Ok(a)
}

// maybeMarkAlmostFull demotes a cache once its bump-allocation tail
// drops under one quantum minimum. The status is informational:
// Allocate still bump-allocates from the head cache whatever its status.
func (m *Manager) maybeMarkAlmostFull(c *DataCache) {
	if c.Remaining() < m.cfg.QuantumMinimum {
		c.status = AlmostFull
	}
}

// Free returns a.ChunkSize bytes at a.Offset back to the pool for reuse
// by a future allocation of the same or smaller size, mirroring
// freeDataCacheRecord (spec §13).
func (m *Manager) Free(a *Allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.reportMetricsLocked()
	m.pool.addFree(a.Cache, a.Offset, a.ChunkSize)
}

// Disclaim marks every segment as disclaimed via Segment.Disclaim. No
// OS paging advice is issued, so resident memory is not reduced.
func (m *Manager) Disclaim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := m.head; c != nil; c = c.next {
		c.segment.Disclaim()
	}
}

// TotalBytes reports the sum of all segment capacities the manager has
// grown to.
func (m *Manager) TotalBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes
}

// PoolLen reports how many free chunks the pool currently holds, for
// telemetry export.
func (m *Manager) PoolLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Len()
}

// SegmentCount reports how many segments the manager has grown to.
func (m *Manager) SegmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for c := m.head; c != nil; c = c.next {
		n++
	}
	return n
}
