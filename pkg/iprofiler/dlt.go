package iprofiler

import (
	"sync"
	"time"
)

// DLTObservation is one {invocationCount-at-observation, timestamp, seqID}
// record the DLT tracking hashtable keeps per method (spec §3.3).
type DLTObservation struct {
	InvocationCountAtObservation int32
	Timestamp                    time.Time
	SeqID                        uint64

	// QueuedForCompilation marks that this method has already been
	// enqueued on the low-priority queue by the "scheduled promotion"
	// path, avoiding duplicate enqueues (spec §4.2).
	QueuedForCompilation bool
}

// DLTTable is the chained hashtable of methods observed for on-stack
// replacement tracking (spec §3.3). Keyed directly by MethodHandle rather
// than a bucketed chain, since method identities are already hashable and
// the table's size is bounded by the live method population, not by a
// bytecode-PC keyspace the way the IP hashtable is.
type DLTTable struct {
	mu      sync.Mutex
	entries map[MethodHandle]*DLTObservation
	nextSeq uint64
}

// NewDLTTable creates an empty DLT tracking table.
func NewDLTTable() *DLTTable {
	return &DLTTable{entries: make(map[MethodHandle]*DLTObservation)}
}

// Observe records a fresh invocation-count observation for m, advancing
// the table's sequence counter (spec §3.3).
func (t *DLTTable) Observe(m MethodHandle, invocationCount int32, now time.Time) *DLTObservation {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	obs, ok := t.entries[m]
	if !ok {
		obs = &DLTObservation{}
		t.entries[m] = obs
	}
	obs.InvocationCountAtObservation = invocationCount
	obs.Timestamp = now
	obs.SeqID = t.nextSeq
	return obs
}

// MarkQueuedForCompilation sets the queuedForCompilation flag, reporting
// false if it was already set (spec §4.2 "Scheduled promotion": "avoiding
// duplicates by marking a queuedForCompilation flag").
func (t *DLTTable) MarkQueuedForCompilation(m MethodHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	obs, ok := t.entries[m]
	if !ok || obs.QueuedForCompilation {
		return false
	}
	obs.QueuedForCompilation = true
	return true
}

// Lookup returns the current observation for m, if any.
func (t *DLTTable) Lookup(m MethodHandle) (DLTObservation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obs, ok := t.entries[m]
	if !ok {
		return DLTObservation{}, false
	}
	return *obs, true
}
