package iprofiler

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/persistence"
)

// noLeftChild / noRightChild are the sentinel "no child" values for the
// 8-bit and 16-bit sibling-index fields respectively (spec §6
// "Persistence format": "Left must fit in 8 bits... right in 16").
const (
	noLeftChild  uint8  = 0xFF
	noRightChild uint16 = 0xFFFF
)

// PersistableRecord is one bytecode PC's persistable IP observation: the
// offset-from-ROM-section key the spec's persistence format is keyed by,
// a type tag identifying which Entry variant produced it, and its
// serialized variant payload.
type PersistableRecord struct {
	PCOffset uint32
	TypeTag  EntryKind
	Payload  []byte
}

// blobNode is one persisted BST node: a record plus the sibling indices
// assigned by the middle-out build.
type blobNode struct {
	record PersistableRecord
	left   uint8
	right  uint16
}

// EncodeCallGraphPayload serializes a CallGraph entry's persistable form:
// only the dominant class, as a pair of SCC class-chain offsets, its
// weight, plus the residue weight absorbing everything else (spec §4.2
// "persist only the dominant class... residue absorbs all other
// weight", SPEC_FULL §13).
func EncodeCallGraphPayload(classChainOffset, classLoaderChainOffset uint32, weight, residue uint16) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], classChainOffset)
	binary.BigEndian.PutUint32(buf[4:8], classLoaderChainOffset)
	binary.BigEndian.PutUint16(buf[8:10], weight)
	binary.BigEndian.PutUint16(buf[10:12], residue)
	return buf
}

// DecodeCallGraphPayload is the inverse of EncodeCallGraphPayload.
func DecodeCallGraphPayload(b []byte) (classChainOffset, classLoaderChainOffset uint32, weight, residue uint16, ok bool) {
	if len(b) != 12 {
		return 0, 0, 0, 0, false
	}
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8]), binary.BigEndian.Uint16(b[8:10]), binary.BigEndian.Uint16(b[10:12]), true
}

// BuildBST serializes records into the balanced-BST blob format spec §6
// describes: middle-out recursion over a pc-sorted array produces "the
// shallowest feasible structure". Nodes are written in pre-order (root
// first, which is always index 0) so a reader can start its walk without
// a separate root pointer.
func BuildBST(records []PersistableRecord) ([]byte, error) {
	sorted := append([]PersistableRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PCOffset < sorted[j].PCOffset })

	if len(sorted) > int(noRightChild) {
		return nil, fmt.Errorf("iprofiler: %d records exceeds persistable BST capacity", len(sorted))
	}

	var nodes []blobNode
	var build func(lo, hi int) (selfIdx int, ok bool)
	build = func(lo, hi int) (int, bool) {
		if lo >= hi {
			return 0, false
		}
		mid := lo + (hi-lo)/2
		idx := len(nodes)
		nodes = append(nodes, blobNode{record: sorted[mid]})

		leftIdx, hasLeft := build(lo, mid)
		rightIdx, hasRight := build(mid+1, hi)

		n := &nodes[idx]
		if hasLeft && leftIdx <= int(noLeftChild)-1 {
			n.left = uint8(leftIdx)
		} else {
			n.left = noLeftChild
			hasLeft = false
		}
		if hasRight {
			n.right = uint16(rightIdx)
		} else {
			n.right = noRightChild
		}
		return idx, true
	}
	build(0, len(sorted))

	out := make([]byte, 0, len(nodes)*16)
	for _, n := range nodes {
		var header [11]byte
		binary.BigEndian.PutUint32(header[0:4], n.record.PCOffset)
		header[4] = n.left
		binary.BigEndian.PutUint16(header[5:7], n.right)
		header[7] = byte(n.record.TypeTag)
		binary.BigEndian.PutUint16(header[8:10], uint16(len(n.record.Payload)))
		header[10] = 0 // reserved, keeps the header 11 bytes for alignment
		out = append(out, header[:]...)
		out = append(out, n.record.Payload...)
	}
	return out, nil
}

const nodeHeaderSize = 11

// ParseBST decodes a blob built by BuildBST back into its node list,
// indexed the same way the builder assigned indices (root at 0).
func ParseBST(blob []byte) ([]blobNode, error) {
	var nodes []blobNode
	off := 0
	for off < len(blob) {
		if off+nodeHeaderSize > len(blob) {
			return nil, fmt.Errorf("iprofiler: truncated BST header at offset %d", off)
		}
		pcOffset := binary.BigEndian.Uint32(blob[off : off+4])
		left := blob[off+4]
		right := binary.BigEndian.Uint16(blob[off+5 : off+7])
		typeTag := EntryKind(blob[off+7])
		payloadLen := int(binary.BigEndian.Uint16(blob[off+8 : off+10]))
		off += nodeHeaderSize

		if off+payloadLen > len(blob) {
			return nil, fmt.Errorf("iprofiler: truncated BST payload at offset %d", off)
		}
		payload := blob[off : off+payloadLen]
		off += payloadLen

		nodes = append(nodes, blobNode{
			record: PersistableRecord{PCOffset: pcOffset, TypeTag: typeTag, Payload: payload},
			left:   left,
			right:  right,
		})
	}
	return nodes, nil
}

// LookupBST walks the tree encoded in nodes (as returned by ParseBST,
// root at index 0) for the record at pcOffset.
func LookupBST(nodes []blobNode, pcOffset uint32) (PersistableRecord, bool) {
	if len(nodes) == 0 {
		return PersistableRecord{}, false
	}
	idx := 0
	for {
		n := nodes[idx]
		switch {
		case pcOffset == n.record.PCOffset:
			return n.record, true
		case pcOffset < n.record.PCOffset:
			if n.left == noLeftChild {
				return PersistableRecord{}, false
			}
			idx = int(n.left)
		default:
			if n.right == noRightChild {
				return PersistableRecord{}, false
			}
			idx = int(n.right)
		}
	}
}

// PersistMethod walks the hashtable for every entry whose PC falls within
// [romStart, romStart+romSize), serializes persistable CallGraph entries
// (the only variant the spec persists a dominant class for) into a BST
// blob, and stores it under key in store. Locking entries for persist,
// skipping unloaded classes, and releasing locks on every path — success
// or failure — follows IProfiler.cpp's persistIprofileInfo (SPEC_FULL
// §13): callers resolve classChainOffset/classLoaderChainOffset and
// report whether the dominant class is still loaded via resolveClass.
func PersistMethod(ht *Hashtable, key string, romStart, romSize uint32, store persistence.Store, resolveClass func(ClassID) (classChainOffset, classLoaderChainOffset uint32, resident bool)) ctlerrors.ReasonCode {
	if store.IsFull() {
		return ctlerrors.ReasonSCCFull
	}

	var records []PersistableRecord
	ht.ForEach(func(e Entry) {
		pc := uint64(e.PC())
		if pc < uint64(romStart) || pc >= uint64(romStart)+uint64(romSize) {
			return
		}
		cg, ok := e.(*CallGraph)
		if !ok {
			return
		}
		if cg.LockedForPersist || !cg.CanPersist {
			return
		}
		cg.LockedForPersist = true
		defer func() { cg.LockedForPersist = false }()

		class, has := cg.DominantClass()
		if !has {
			return
		}
		chainOff, loaderOff, resident := resolveClass(class)
		if !resident {
			return
		}
		maxWeight, maxIdx := cg.dominantSlot()
		persistedResidue := cg.ResidueWeight()
		for i := 0; i < NSlots; i++ {
			if i != maxIdx && cg.used[i] {
				persistedResidue = saturatingAdd(persistedResidue, cg.weights[i])
			}
		}
		records = append(records, PersistableRecord{
			PCOffset: uint32(pc) - romStart,
			TypeTag:  KindCallGraph,
			Payload:  EncodeCallGraphPayload(chainOff, loaderOff, maxWeight, persistedResidue),
		})
	})

	if len(records) == 0 {
		return ctlerrors.ReasonOK
	}

	blob, err := BuildBST(records)
	if err != nil {
		return ctlerrors.ReasonPortLayerFailure
	}
	return store.Store(key, blob)
}

// LoadMethod is the inverse of PersistMethod: it loads the blob for key,
// parses it, and installs each CallGraph record into ht as slot 0 (the
// dominant class) plus the persisted residue, matching spec §8's
// round-trip property: "the reloaded entry has slot 0 equal to
// (loaded-class, original-weight) and residue = originalSumOfNonDominant".
func LoadMethod(ht *Hashtable, key string, romStart uint32, store persistence.Store, resolveChain func(classChainOffset, classLoaderChainOffset uint32) (ClassID, bool)) ctlerrors.ReasonCode {
	blob, found, reason := store.Load(key)
	if reason != ctlerrors.ReasonOK {
		return reason
	}
	if !found {
		return ctlerrors.ReasonNoPlan
	}

	nodes, err := ParseBST(blob)
	if err != nil {
		return ctlerrors.ReasonPortLayerFailure
	}

	for _, n := range nodes {
		if n.record.TypeTag != KindCallGraph {
			continue
		}
		chainOff, loaderOff, weight, residue, ok := DecodeCallGraphPayload(n.record.Payload)
		if !ok {
			continue
		}
		class, ok := resolveChain(chainOff, loaderOff)
		if !ok {
			continue
		}
		pc := PC(uint64(romStart) + uint64(n.record.PCOffset))
		entry := ht.GetOrInsert(pc, func() Entry { return NewCallGraph(pc) })
		cg, ok := entry.(*CallGraph)
		if !ok {
			continue
		}
		cg.PersistedEntryRead = true
		// A reloaded entry is never persisted again (sticky).
		cg.CanPersist = false
		// Install the persisted dominant class directly into slot 0 with
		// its original weight, then fold the persisted residue back in —
		// matching spec §8's round-trip property exactly rather than
		// replaying it through SetData's saturating-update path (which
		// would double-count the weight already captured by the blob).
		cg.classes[0] = class
		cg.weights[0] = weight
		cg.used[0] = true
		cg.residueWeight = residue
	}
	return ctlerrors.ReasonOK
}
