package datacache

import "sort"

// freeList is a LIFO stack of chunk offsets, all of exactly one chunk
// size, inside a single DataCache's segment. Adapted from the teacher's
// BufferPool (pkg/memory/pool.go), which bucketed byte buffers into
// small/<4KB, medium/<64KB, large/>=64KB sync.Pools; the data-cache pool
// instead buckets by exact chunk size (DataCache.cpp's getFromPool finds
// a bucket whose size matches or nearest-exceeds the request, not a
// coarse tier), so each bucket here holds only same-sized free chunks.
type freeList struct {
	cache  *DataCache
	chunks []int // free chunk offsets, most-recently-freed last
}

// Pool is the size-bucketed free-list allocator layered over a cache's
// bump-allocation tail. It holds one freeList per distinct chunk size
// that has ever been freed, grounded on TR_DataCacheManager's per-size
// pool map (spec §4.3, §13).
type Pool struct {
	buckets map[int]*freeList
	sizes   []int // buckets' keys, kept sorted ascending for best-fit scan
}

func newPool() *Pool {
	return &Pool{buckets: make(map[int]*freeList)}
}

// addFree pushes a freed chunk of the given size back into its bucket,
// creating the bucket if this is the first chunk of that size.
func (p *Pool) addFree(cache *DataCache, offset, chunkSize int) {
	fl, ok := p.buckets[chunkSize]
	if !ok {
		fl = &freeList{cache: cache}
		p.buckets[chunkSize] = fl
		p.insertSize(chunkSize)
	}
	fl.chunks = append(fl.chunks, offset)
}

func (p *Pool) insertSize(size int) {
	i := sort.SearchInts(p.sizes, size)
	p.sizes = append(p.sizes, 0)
	copy(p.sizes[i+1:], p.sizes[i:])
	p.sizes[i] = size
}

// getFromPool finds the smallest bucket whose chunk size is >= need,
// pops one chunk from it, and — when the chunk overshoots need by at
// least one quantum — splits the remainder back into the pool as a new,
// smaller free chunk (DataCache.cpp's allocateDataCacheRecord splits the
// tail back rather than wasting it; spec §13).
func (p *Pool) getFromPool(need int) (offset, chunkSize int, ok bool) {
	i := sort.SearchInts(p.sizes, need)
	if i == len(p.sizes) {
		return 0, 0, false
	}
	size := p.sizes[i]
	fl := p.buckets[size]
	last := len(fl.chunks) - 1
	offset = fl.chunks[last]
	fl.chunks = fl.chunks[:last]
	if len(fl.chunks) == 0 {
		delete(p.buckets, size)
		p.sizes = append(p.sizes[:i], p.sizes[i+1:]...)
	}

	remainder := size - need
	if remainder >= QuantumSize {
		writeHeader(fl.cache.segment, offset+need, remainder, KindUnknown)
		p.addFree(fl.cache, offset+need, remainder)
		return offset, need, true
	}
	return offset, size, true
}

// Len reports how many free chunks the pool currently holds across all
// buckets, for diagnostics/telemetry.
func (p *Pool) Len() int {
	n := 0
	for _, fl := range p.buckets {
		n += len(fl.chunks)
	}
	return n
}
