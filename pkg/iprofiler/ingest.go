package iprofiler

import (
	"sync"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/vm"
)

// Record is one (pc, payload) observation an application thread appends
// to its buffer (spec §4.2 "Ingestion"). Payload's meaning depends on the
// opcode at pc: branch taken-flag, receiver-class pointer, callee
// pointer, or switch operand.
type Record struct {
	PC      PC
	Opcode  vm.Opcode
	Class   ClassID
	Caller  MethodHandle
	BCI     uint32
	Taken   bool
}

// Buffer is a fixed-capacity append-only record list filled by one
// application thread before being posted to the worker or self-parsed
// (spec §4.2).
type Buffer struct {
	records []Record
	cap     int
	invalid bool // set by the GC hook just before class unloading
}

// NewBuffer creates a buffer with room for cap records.
func NewBuffer(cap int) *Buffer {
	return &Buffer{records: make([]Record, 0, cap), cap: cap}
}

// Append adds a record, reporting whether the buffer is now full.
func (b *Buffer) Append(r Record) (full bool) {
	b.records = append(b.records, r)
	return len(b.records) >= b.cap
}

// Reset empties the buffer for reuse from the free list.
func (b *Buffer) Reset() {
	b.records = b.records[:0]
	b.invalid = false
}

// Invalidate marks the buffer invalid; the worker must check this flag
// before parsing (spec §4.2: "Buffers can be marked invalid by the GC
// just before unloading").
func (b *Buffer) Invalidate() { b.invalid = true }

// IsInvalid reports whether the GC invalidated this buffer.
func (b *Buffer) IsInvalid() bool { return b.invalid }

// IngestConfig holds the discard-policy knobs spec §4.2/§6 name.
type IngestConfig struct {
	NumOutstandingBuffers       int
	BufferMaxPercentageToDiscard int
	BufferCapacity              int
}

// BufferManager is the free-list / work-queue pair application threads
// hand buffers through, guarded by a single mutex standing in for the IP
// monitor (spec §5: "IP monitor — guards the free/work buffer lists").
type BufferManager struct {
	mu   sync.Mutex
	free []*Buffer
	work []*Buffer

	cfg IngestConfig

	outstanding    int
	produced       int64
	discarded      int64
}

// NewBufferManager creates a manager with n pre-allocated free buffers.
func NewBufferManager(cfg IngestConfig, n int) *BufferManager {
	m := &BufferManager{cfg: cfg}
	for i := 0; i < n; i++ {
		m.free = append(m.free, NewBuffer(cfg.BufferCapacity))
	}
	return m
}

// AcquireFreeBuffer hands an application thread a fresh buffer to fill,
// or ReasonIPBufferPoolExhausted if none is free (spec §7: transient,
// recovered by falling back to self-parsing).
func (m *BufferManager) AcquireFreeBuffer() ctlerrors.Result[*Buffer] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.free) == 0 {
		return ctlerrors.Err[*Buffer](ctlerrors.ReasonIPBufferPoolExhausted)
	}
	n := len(m.free)
	b := m.free[n-1]
	m.free = m.free[:n-1]
	b.Reset()
	return ctlerrors.Ok(b)
}

// ShouldSelfParse decides, for a thread whose buffer just filled, whether
// it must parse its own buffer rather than post it to the worker (spec
// §4.2): outstanding buffers at or above the configured cap, or the
// cumulative discard rate already over budget.
func (m *BufferManager) ShouldSelfParse() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.outstanding >= m.cfg.NumOutstandingBuffers {
		return true
	}
	if m.produced == 0 {
		return false
	}
	discardPct := int(m.discarded * 100 / m.produced)
	return discardPct >= m.cfg.BufferMaxPercentageToDiscard
}

// PostToWorker attempts to hand a filled buffer to the worker's work
// queue. Returns false if the worker isn't in a state to consume it and
// the caller must fall back to self-parsing (spec §4.2: "if contended or
// the worker is not in a state to consume, the application thread falls
// back to self-processing").
func (m *BufferManager) PostToWorker(b *Buffer, workerReady bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.produced++
	if !workerReady {
		m.discarded++
		return false
	}
	m.work = append(m.work, b)
	m.outstanding++
	return true
}

// TakeWork pops the next buffer for the worker to parse, or nil if none
// is queued.
func (m *BufferManager) TakeWork() *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.work) == 0 {
		return nil
	}
	b := m.work[0]
	m.work = m.work[1:]
	return b
}

// Release returns a parsed buffer to the free list and decrements the
// outstanding count.
func (m *BufferManager) Release(b *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outstanding > 0 {
		m.outstanding--
	}
	m.free = append(m.free, b)
}

// Stats reports (produced, discarded) for telemetry export.
func (m *BufferManager) Stats() (produced, discarded int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.produced, m.discarded
}
