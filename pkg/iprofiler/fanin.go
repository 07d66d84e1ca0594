package iprofiler

import "sync"

// MethodHandle is the opaque method identity the profiler keys tables by;
// it mirrors event.MethodHandle's meaning without importing pkg/event, so
// iprofiler has no dependency on the strategy layer's event vocabulary.
type MethodHandle uint64

// caller is one (caller-method, callerBytecodeIndex, weight) observation
// in a callee's fan-in list (spec §3.3).
type caller struct {
	method       MethodHandle
	bytecodeIdx  uint32
	weight       uint16
}

// FanInEntry is one callee's bounded caller list plus an "other" bucket
// absorbing weight once the list is full (spec §3.3, §4.2: "a parallel
// _otherBucket with the same residue-absorption rule").
type FanInEntry struct {
	mu          sync.Mutex
	callers     []caller
	otherBucket uint32
}

func newFanInEntry() *FanInEntry {
	return &FanInEntry{callers: make([]caller, 0, MaxFanInCallers)}
}

// Record adds or increments a (caller, bci) observation; new callers are
// linked at the head per spec §4.2's "new callers linked at head" (here,
// prepended). Once the list reaches MaxFanInCallers, further distinct
// callers fold into otherBucket instead of growing the list.
func (e *FanInEntry) Record(caller MethodHandle, bci uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.callers {
		if e.callers[i].method == caller && e.callers[i].bytecodeIdx == bci {
			if e.callers[i].weight != saturationMax {
				e.callers[i].weight++
			}
			return
		}
	}

	if len(e.callers) >= MaxFanInCallers {
		e.otherBucket++
		return
	}

	e.callers = append([]caller{{method: caller, bytecodeIdx: bci, weight: 1}}, e.callers...)
}

// Info reports (count, weight, otherBucketWeight) the way IProfiler.cpp's
// getFaninInfo does: the number of distinct callers tracked, their summed
// weight, and the overflow bucket's weight (SPEC_FULL §13).
func (e *FanInEntry) Info() (count int, weight uint32, other uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.callers {
		weight += uint32(c.weight)
	}
	return len(e.callers), weight, e.otherBucket
}

// FanInTable maps callee method → FanInEntry (spec §3.3: "callee-method →
// linked list of (caller-method, callerBytecodeIndex, saturating-weight)
// with a capacity cap"). Guarded by a single mutex: inserts are rare
// relative to hashtable PC lookups, so this does not need the lock-free
// chain treatment the PC table gets.
type FanInTable struct {
	mu      sync.Mutex
	entries map[MethodHandle]*FanInEntry
}

// NewFanInTable creates an empty fan-in table.
func NewFanInTable() *FanInTable {
	return &FanInTable{entries: make(map[MethodHandle]*FanInEntry)}
}

// Record observes one invoke-static/special call site: callee was called
// from caller at bytecode index bci (spec §4.2: "Invoke-static/special...
// update the fan-in entry caller→callee").
func (t *FanInTable) Record(callee, caller MethodHandle, bci uint32) {
	t.mu.Lock()
	entry, ok := t.entries[callee]
	if !ok {
		entry = newFanInEntry()
		t.entries[callee] = entry
	}
	t.mu.Unlock()

	entry.Record(caller, bci)
}

// Lookup returns the fan-in entry for callee, if any has been recorded.
func (t *FanInTable) Lookup(callee MethodHandle) (*FanInEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[callee]
	return e, ok
}
