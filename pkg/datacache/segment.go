// Package datacache implements the JIT data-cache allocator: OS-backed
// segments, the logical DataCache view over them, the quantum-aligned
// pooling allocator with its size-bucket free list, and a disclaim
// operation that reduces RSS for cold data (spec §3.4, §4.3).
package datacache

// PageSize stands in for the OS port layer's page size query
// (vmem_supported_page_sizes, spec §6); segments are aligned up to it.
const PageSize = 4096

// Segment is an OS-backed contiguous region a DataCache is carved from.
// The real VM allocates this via mmap (disclaim-enabled) or VM-malloc
// (spec §3.4); this stand-in always uses a plain byte slice, since
// portable page-level mmap/disclaim control is not something the Go
// standard library exposes uniformly, and no third-party library in the
// retrieved corpus wraps it either — see DESIGN.md's pkg/datacache entry.
type Segment struct {
	data  []byte
	used  int

	// disclaimed records whether Disclaim has ever been called; nothing
	// clears it. It does not change data's contents, matching Disclaim's
	// "advisory, may be a no-op" semantics.
	disclaimed bool
}

// NewSegment allocates a segment of at least size bytes, rounded up to
// PageSize (spec §3.4: "Aligned to OS page size").
func NewSegment(size int) *Segment {
	aligned := alignUp(size, PageSize)
	return &Segment{data: make([]byte, aligned)}
}

func alignUp(n, align int) int {
	if align <= 0 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// Len returns the segment's total capacity in bytes.
func (s *Segment) Len() int { return len(s.data) }

// Remaining returns bytes not yet claimed by the bump allocator.
func (s *Segment) Remaining() int { return len(s.data) - s.used }

// Bump claims size bytes from the segment's unused tail, returning the
// offset of the claimed region, or false if it doesn't fit.
func (s *Segment) Bump(size int) (offset int, ok bool) {
	if size > s.Remaining() {
		return 0, false
	}
	offset = s.used
	s.used += size
	return offset, true
}

// Bytes returns the byte range [offset, offset+size) of the segment's
// backing storage for direct read/write.
func (s *Segment) Bytes(offset, size int) []byte {
	return s.data[offset : offset+size]
}

// Disclaim marks the segment as paged-out for diagnostics. The real
// MADV_PAGEOUT call is an OS-level RSS hint with no observable effect on
// segment contents; this stand-in just sets the disclaimed flag and makes
// no OS call.
func (s *Segment) Disclaim() {
	s.disclaimed = true
}
