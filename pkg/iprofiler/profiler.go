package iprofiler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/persistence"
	"github.com/tieredvm/recompiler/pkg/telemetry"
	"github.com/tieredvm/recompiler/pkg/tracing"
)

// Config holds the IP-specific knobs spec §6 enumerates.
type Config struct {
	BCHashTableSize          int // _iProfilerBcHashTableSize, power of two
	MethodHashTableSize      int // _iProfilerMethodHashTableSize, power of two
	NumOutstandingBuffers    int
	BufferMaxPercentageToDiscard int
	BufferCapacity           int
	FailHistorySize          int
	DisableClassUnloadThreshold int32 // _disableIProfilerClassUnloadThreshold

	DisableProfiling           bool
	DisableInterpreterSampling bool
	PreferHashtableData        bool
}

// Profiler is the interpreter profiler: the live hashtable, fan-in table,
// DLT table, sampling ring, buffer ingestion pipeline, and worker
// lifecycle, plus the compile-time lookup and persistence operations
// (spec §3.3, §4.2).
type Profiler struct {
	cfg Config

	HT     *Hashtable
	FanIn  *FanInTable
	DLT    *DLTTable
	Ring   *SamplingRing
	Buffers *Worker

	store persistence.Store

	mu              sync.Mutex
	unloadedClasses int32
	sccChecked      map[PC]bool

	functional atomic.Bool

	metrics *telemetry.Metrics
}

// SetMetrics attaches a Prometheus collector set; nil disables
// telemetry recording.
func (p *Profiler) SetMetrics(m *telemetry.Metrics) {
	p.metrics = m
}

// New creates a Profiler and marks it functional. It makes no
// allocation-failure check, so a profiler it returns always reports
// IsFunctional true.
func New(cfg Config, store persistence.Store) *Profiler {
	p := &Profiler{
		cfg:        cfg,
		HT:         NewHashtable(cfg.BCHashTableSize),
		FanIn:      NewFanInTable(),
		DLT:        NewDLTTable(),
		Ring:       NewSamplingRing(cfg.FailHistorySize),
		store:      store,
		sccChecked: make(map[PC]bool),
	}
	bm := NewBufferManager(IngestConfig{
		NumOutstandingBuffers:        cfg.NumOutstandingBuffers,
		BufferMaxPercentageToDiscard: cfg.BufferMaxPercentageToDiscard,
		BufferCapacity:               cfg.BufferCapacity,
	}, cfg.NumOutstandingBuffers)
	p.Buffers = NewWorker(bm)
	p.functional.Store(true)
	return p
}

// IsFunctional reports whether the profiler successfully allocated its
// backbone structures.
func (p *Profiler) IsFunctional() bool { return p.functional.Load() }

// Ingest runs one application thread's filled buffer through the
// self-parse-vs-post-to-worker decision (spec §4.2 "Ingestion").
func (p *Profiler) Ingest(b *Buffer) {
	ctx, span := tracing.StartSpan(context.Background(), "iprofiler.Ingest", tracing.SpanKind.Internal)
	defer span.End()

	if !p.functional.Load() || p.cfg.DisableProfiling {
		return
	}
	if p.Buffers.buffers.ShouldSelfParse() {
		tracing.AddEvent(ctx, "self-parsed")
		if p.metrics != nil {
			p.metrics.RecordIPBufferSelfParsed()
		}
		p.Parse(b)
		return
	}
	if !p.Buffers.buffers.PostToWorker(b, p.Buffers.Ready()) {
		tracing.AddEvent(ctx, "discarded, falling back to self-parse")
		if p.metrics != nil {
			p.metrics.RecordIPBufferDiscarded()
		}
		p.Parse(b)
	}
	if p.metrics != nil {
		p.metrics.SetIPHashtableOccupancy(p.HT.Len())
	}
}

// RunWorkerOnce pulls one posted buffer (if any) and parses it, releasing
// it back to the free list afterward. Intended to be called in a loop
// from the worker goroutine; split out for testability.
func (p *Profiler) RunWorkerOnce() bool {
	b := p.Buffers.buffers.TakeWork()
	if b == nil {
		return false
	}
	if !b.IsInvalid() {
		p.Parse(b)
	}
	p.Buffers.buffers.Release(b)
	return true
}

// Parse decodes every record in b against its opcode, applying the
// throttling and profile/skip banding spec §4.2 describes, then updating
// the hashtable / fan-in table accordingly. The parser conceptually holds
// VM access for the duration (preventing concurrent class unloading);
// this stand-in controller has no such lock to take, so the caller is
// trusted to hold whatever out-of-scope VM-access token applies.
func (p *Profiler) Parse(b *Buffer) {
	if p.ShouldStopProfilingGlobally() {
		return
	}

	for i, rec := range b.records {
		if !p.profileBand(i) {
			continue
		}
		p.applyRecord(rec)
	}
}

// profileBand implements spec §4.2's "alternating 20-sample-wide
// profile/skip bands": records in even 20-wide bands are applied, odd
// bands discarded. The spec's small RNG offset and class-loading-phase
// halving are simplified to a fixed band width here.
func (p *Profiler) profileBand(index int) bool {
	const bandWidth = 20
	return (index/bandWidth)%2 == 0
}

// ShouldStopProfilingGlobally implements the sticky throttle: once
// unloaded classes cross the configured threshold, profiling stops
// globally (spec §4.2).
func (p *Profiler) ShouldStopProfilingGlobally() bool {
	return atomic.LoadInt32(&p.unloadedClasses) >= p.cfg.DisableClassUnloadThreshold
}

// ObserveClassUnload increments the unloaded-class counter (driven by the
// GC/class-unload hook, out of scope here).
func (p *Profiler) ObserveClassUnload() {
	atomic.AddInt32(&p.unloadedClasses, 1)
}

func (p *Profiler) applyRecord(rec Record) {
	kind, ok := ClassifyOpcode(rec.Opcode)
	if !ok {
		return
	}
	switch kind {
	case KindFourBytes:
		entry := p.HT.GetOrInsert(rec.PC, func() Entry { return NewFourBytes(rec.PC) })
		if fb, ok := entry.(*FourBytes); ok {
			fb.RecordBranch(rec.Taken)
		}
	case KindEightWords:
		entry := p.HT.GetOrInsert(rec.PC, func() Entry { return NewEightWords(rec.PC) })
		if ew, ok := entry.(*EightWords); ok {
			ew.RecordTarget(rec.Class)
		}
	case KindCallGraph:
		if rec.Class != 0 {
			entry := p.HT.GetOrInsert(rec.PC, func() Entry { return NewCallGraph(rec.PC) })
			if cg, ok := entry.(*CallGraph); ok {
				cg.SetData(rec.Class, 1)
			}
		} else {
			// Invoke-static/special: no receiver class, so this site
			// updates the fan-in table instead (spec §4.2).
			p.FanIn.Record(MethodHandle(rec.PC), rec.Caller, rec.BCI)
		}
	}
}

// ProfilingSample implements the compile-time lookup policy spec §4.2
// describes under "Compilation-time lookup": prefer the live hashtable
// or the persisted SCC entry per the configured preference. The first
// lookup of a pc loads the SCC data into the hashtable (overwriting slot 0
// and the residue of an existing CallGraph entry) unless
// PreferHashtableData is set and the hashtable already has the entry.
func (p *Profiler) ProfilingSample(pc PC, romKey string, romStart uint32, resolveChain func(classChainOffset, classLoaderChainOffset uint32) (ClassID, bool)) (Entry, bool) {
	htEntry, htHas := p.HT.Get(pc)

	p.mu.Lock()
	alreadyChecked := p.sccChecked[pc]
	p.mu.Unlock()

	if p.cfg.PreferHashtableData && htHas {
		return htEntry, true
	}
	if htHas && alreadyChecked {
		return htEntry, true
	}

	if !alreadyChecked {
		p.mu.Lock()
		p.sccChecked[pc] = true
		p.mu.Unlock()
		LoadMethod(p.HT, romKey, romStart, p.store, resolveChain)
	}

	if loaded, ok := p.HT.Get(pc); ok {
		return loaded, true
	}
	return htEntry, htHas
}

// PersistAllEntries walks every tracked method and persists it, the
// shutdown-time counterpart to per-compilation PersistMethod calls (spec
// §4.2 "persistAllEntries() at shutdown").
func (p *Profiler) PersistAllEntries(methods map[string]struct {
	ROMStart uint32
	ROMSize  uint32
}, resolveClass func(ClassID) (classChainOffset, classLoaderChainOffset uint32, resident bool)) ctlerrors.ReasonCode {
	var last ctlerrors.ReasonCode = ctlerrors.ReasonOK
	for key, rom := range methods {
		if reason := PersistMethod(p.HT, key, rom.ROMStart, rom.ROMSize, p.store, resolveClass); reason != ctlerrors.ReasonOK {
			last = reason
		}
	}
	return last
}
