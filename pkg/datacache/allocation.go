package datacache

import "encoding/binary"

// headerSize is the in-band record header every allocation carries,
// mirroring J9JITDataCacheHeader: enough to recover the chunk's total
// size and type from the payload pointer alone when it is freed
// (DataCache.cpp's freeDataCacheRecord walks backward from the payload
// to this header — spec §4.3, §13).
const headerSize = 8

// Kind tags what a data-cache record holds, for diagnostics only; the
// allocator does not branch on it.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPersistentMethodInfo
	KindOptimizationPlan
	KindProfilingData
	KindMisc
)

func (k Kind) String() string {
	switch k {
	case KindPersistentMethodInfo:
		return "persistent-method-info"
	case KindOptimizationPlan:
		return "optimization-plan"
	case KindProfilingData:
		return "profiling-data"
	case KindMisc:
		return "misc"
	default:
		return "unknown"
	}
}

// QuantumSize is the allocator's minimum granularity; every chunk size
// (header included) is rounded up to a multiple of it, matching
// TR_DataCacheManager's quantumSize alignment (spec §4.3).
const QuantumSize = 16

func alignQuantum(n int) int {
	return alignUp(n, QuantumSize)
}

// Allocation is a handed-out data-cache record. Offset and chunkSize
// describe the full chunk (header + payload) inside Cache's segment;
// PayloadOffset/PayloadSize describe the caller-visible region.
type Allocation struct {
	Cache         *DataCache
	Offset        int
	ChunkSize     int
	PayloadOffset int
	PayloadSize   int
	Kind          Kind
}

// Payload returns the caller-visible byte range of the allocation.
func (a *Allocation) Payload() []byte {
	return a.Cache.segment.Bytes(a.PayloadOffset, a.PayloadSize)
}

// writeHeader stamps the chunk header at offset within seg.
func writeHeader(seg *Segment, offset, chunkSize int, kind Kind) {
	h := seg.Bytes(offset, headerSize)
	binary.LittleEndian.PutUint32(h[0:4], uint32(chunkSize))
	h[4] = byte(kind)
}

// readHeader recovers (chunkSize, kind) from a chunk header at offset.
func readHeader(seg *Segment, offset int) (chunkSize int, kind Kind) {
	h := seg.Bytes(offset, headerSize)
	return int(binary.LittleEndian.Uint32(h[0:4])), Kind(h[4])
}
