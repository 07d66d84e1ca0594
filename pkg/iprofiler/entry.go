// Package iprofiler implements the interpreter profiler's PC-keyed
// hashtable, fan-in table, DLT tracking table, sampling ring, buffer
// ingestion/worker lifecycle, and persistence codec (spec §3.3, §4.2).
package iprofiler

import (
	"github.com/tieredvm/recompiler/pkg/vm"
)

// PC identifies a bytecode program counter: the effective instruction
// address the hashtable is keyed by.
type PC uint64

// ClassID is an opaque class identity. The real VM/port layer (out of
// scope) owns what this names; the profiler only compares and persists it.
type ClassID uint64

// NSlots is the number of fixed (class, weight) slots a CallGraph entry
// keeps before observations fall into the residue bucket (spec §3.3).
const NSlots = 4

// MaxFanInCallers bounds the per-callee caller list before excess weight
// is folded into the fan-in table's "other" bucket (spec §3.3,
// MAX_IPMETHOD_CALLERS).
const MaxFanInCallers = 8

const saturationMax uint16 = 0xFFFF

// EntryKind tags which variant a hashtable slot holds, the tagged-sum
// idiom used across the controller (e.g. event.MethodEvent) in place of
// the source's single-inheritance IP entry hierarchy (SPEC_FULL §9).
type EntryKind uint8

const (
	KindFourBytes EntryKind = iota
	KindEightWords
	KindCallGraph
)

// ClassifyOpcode maps a bytecode opcode to the IP entry variant that
// should be populated at a PC executing it (spec §4.2's branch/switch/
// invoke record decoding), grounding pkg/vm as the opaque bytecode
// vocabulary this profiler classifies against (SPEC_FULL §12).
func ClassifyOpcode(op vm.Opcode) (EntryKind, bool) {
	switch op {
	case vm.OpJumpIfFalse, vm.OpJumpIfTrue:
		return KindFourBytes, true
	case vm.OpGetIndex, vm.OpIterNext:
		return KindEightWords, true
	case vm.OpCall:
		return KindCallGraph, true
	default:
		return 0, false
	}
}

// Entry is the closed union of IP hashtable entry variants. Only the
// types in this file implement it.
type Entry interface {
	isEntry()
	Kind() EntryKind
	PC() PC
}

type entryBase struct {
	pc PC
}

func (b entryBase) PC() PC { return b.pc }

// FourBytes holds two saturating 16-bit counters for a conditional
// branch's taken/not-taken outcome (spec §3.3).
type FourBytes struct {
	entryBase
	Taken    uint16
	NotTaken uint16
}

func NewFourBytes(pc PC) *FourBytes        { return &FourBytes{entryBase: entryBase{pc}} }
func (*FourBytes) isEntry()                {}
func (*FourBytes) Kind() EntryKind         { return KindFourBytes }

// RecordBranch applies a taken/not-taken observation, saturating-halving
// both counters on overflow rather than wrapping (spec §4.2: "saturating
// update with halving on overflow").
func (f *FourBytes) RecordBranch(taken bool) {
	if taken {
		if f.Taken == saturationMax {
			f.Taken /= 2
			f.NotTaken /= 2
		}
		f.Taken++
	} else {
		if f.NotTaken == saturationMax {
			f.Taken /= 2
			f.NotTaken /= 2
		}
		f.NotTaken++
	}
}

// eightWordsSlots is the fixed slot count for switch/table statistics;
// the last slot is the "other" segment (spec §3.3: "4 segments... the
// 4th segment is other").
const eightWordsSlots = 4

// EightWords tracks per-target-value counts for switch/table dispatch
// across a fixed number of segments, the last one an overflow bucket.
type EightWords struct {
	entryBase
	Targets [eightWordsSlots - 1]ClassID
	Counts  [eightWordsSlots]uint32
}

func NewEightWords(pc PC) *EightWords { return &EightWords{entryBase: entryBase{pc}} }
func (*EightWords) isEntry()          {}
func (*EightWords) Kind() EntryKind   { return KindEightWords }

// RecordTarget increments the count for target, installing it into a free
// segment slot on first sight, or spilling into the "other" segment once
// every slot is occupied by a different target (spec §3.3/§4.2).
func (e *EightWords) RecordTarget(target ClassID) {
	for i := 0; i < eightWordsSlots-1; i++ {
		if e.Counts[i] == 0 {
			e.Targets[i] = target
			e.Counts[i]++
			return
		}
		if e.Targets[i] == target {
			e.Counts[i]++
			return
		}
	}
	e.Counts[eightWordsSlots-1]++
}

// CallGraph is an invoke-virtual/interface/checkcast/instanceof-site
// entry: N_SLOTS fixed (class, weight) slots plus a residue ("other")
// bucket absorbing misses, grounded directly on IProfiler.cpp's
// TR_IPBCDataCallGraph::setData (SPEC_FULL §13).
type CallGraph struct {
	entryBase

	classes [NSlots]ClassID
	weights [NSlots]uint16
	used    [NSlots]bool

	residueWeight uint16

	TooBigToBeInlined  bool
	LockedForPersist   bool
	PersistedEntryRead bool
	CanPersist         bool
}

func NewCallGraph(pc PC) *CallGraph {
	return &CallGraph{entryBase: entryBase{pc}, CanPersist: true}
}
func (*CallGraph) isEntry()        {}
func (*CallGraph) Kind() EntryKind { return KindCallGraph }

// SetData records one observation of class at the given frequency
// (usually 1). Behavior mirrors TR_IPBCDataCallGraph::setData: a matching
// slot saturating-increments; an empty slot installs the class; a miss
// against a full table increments residueWeight; once residueWeight
// exceeds the current maximum slot weight, slot 0 is rotated out for the
// new class (spec §3.3, §4.2).
func (c *CallGraph) SetData(class ClassID, freq uint16) {
	for i := 0; i < NSlots; i++ {
		if c.used[i] && c.classes[i] == class {
			c.weights[i] = saturatingAdd(c.weights[i], freq)
			return
		}
	}
	for i := 0; i < NSlots; i++ {
		if !c.used[i] {
			c.classes[i] = class
			c.weights[i] = freq
			c.used[i] = true
			return
		}
	}

	c.residueWeight = saturatingAdd(c.residueWeight, freq)

	maxWeight, _ := c.dominantSlot()
	if c.residueWeight > maxWeight && !c.LockedForPersist {
		// Rotate slot 0: the source evicts the slot that can be
		// exclusively locked; single-threaded callers always succeed, so
		// slot 0 is the fixed victim here.
		c.classes[0] = class
		c.weights[0] = c.residueWeight
		c.residueWeight = 0
	}
}

func saturatingAdd(w, freq uint16) uint16 {
	if uint32(w)+uint32(freq) >= uint32(saturationMax) {
		return saturationMax
	}
	return w + freq
}

// dominantSlot returns the weight and index of the slot holding the
// maximum weight, ties broken by slot index (spec §8 testable property).
func (c *CallGraph) dominantSlot() (uint16, int) {
	var maxWeight uint16
	maxIdx := -1
	for i := 0; i < NSlots; i++ {
		if c.used[i] && c.weights[i] > maxWeight {
			maxWeight = c.weights[i]
			maxIdx = i
		}
	}
	return maxWeight, maxIdx
}

// DominantClass returns the class of maximum weight and whether any slot
// is populated.
func (c *CallGraph) DominantClass() (ClassID, bool) {
	_, idx := c.dominantSlot()
	if idx < 0 {
		return 0, false
	}
	return c.classes[idx], true
}

// ResidueWeight returns the current "other" bucket weight.
func (c *CallGraph) ResidueWeight() uint16 { return c.residueWeight }

// TotalWeight returns the sum of every slot weight plus the residue,
// which spec §8 requires never to exceed the saturation maximum.
func (c *CallGraph) TotalWeight() uint32 {
	total := uint32(c.residueWeight)
	for i := 0; i < NSlots; i++ {
		if c.used[i] {
			total += uint32(c.weights[i])
		}
	}
	return total
}

// Slots returns a snapshot of the populated (class, weight) pairs, for
// persistence and inspection.
func (c *CallGraph) Slots() []struct {
	Class  ClassID
	Weight uint16
} {
	out := make([]struct {
		Class  ClassID
		Weight uint16
	}, 0, NSlots)
	for i := 0; i < NSlots; i++ {
		if c.used[i] {
			out = append(out, struct {
				Class  ClassID
				Weight uint16
			}{c.classes[i], c.weights[i]})
		}
	}
	return out
}
