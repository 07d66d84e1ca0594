package datacache

// Status mirrors TR_DataCache's lifecycle: a cache starts Active, is
// demoted to AlmostFull once the manager judges further bump-allocation
// from it unlikely to succeed, and is finally Full once exhausted
// (spec §4.3).
type Status int

const (
	Active Status = iota
	AlmostFull
	Full
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case AlmostFull:
		return "almost-full"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// DataCache is the logical view of one segment: a legacy bump allocator
// over its tail plus bookkeeping the pooling allocator (pool.go) and
// manager (manager.go) layer on top. Each is a node in the manager's
// cache list, grounded on DataCache.cpp's intrusive "next" chain.
type DataCache struct {
	segment *Segment
	status  Status
	next    *DataCache
}

func newDataCache(size int) *DataCache {
	return &DataCache{segment: NewSegment(size)}
}

// bumpAllocate claims a header-tagged chunk of at least payloadSize
// bytes from the cache's unused tail (the "legacy" path, which
// Manager.Allocate uses after a pool miss — spec §4.3).
func (c *DataCache) bumpAllocate(payloadSize int, kind Kind) (*Allocation, bool) {
	chunkSize := alignQuantum(headerSize + payloadSize)
	offset, ok := c.segment.Bump(chunkSize)
	if !ok {
		return nil, false
	}
	writeHeader(c.segment, offset, chunkSize, kind)
	return &Allocation{
		Cache:         c,
		Offset:        offset,
		ChunkSize:     chunkSize,
		PayloadOffset: offset + headerSize,
		PayloadSize:   chunkSize - headerSize,
		Kind:          kind,
	}, true
}

// Remaining reports bytes left in the cache's bump-allocation tail.
func (c *DataCache) Remaining() int { return c.segment.Remaining() }

// StatusValue returns the cache's current lifecycle state.
func (c *DataCache) StatusValue() Status { return c.status }
