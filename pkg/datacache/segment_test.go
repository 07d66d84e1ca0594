package datacache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSegmentRoundsUpToPageSize(t *testing.T) {
	s := NewSegment(10)
	assert.Equal(t, PageSize, s.Len())
}

func TestSegmentBumpExhausts(t *testing.T) {
	s := NewSegment(64)
	_, ok := s.Bump(PageSize + 1)
	assert.False(t, ok)

	off, ok := s.Bump(16)
	assert.True(t, ok)
	assert.Equal(t, 0, off)
	assert.Equal(t, PageSize-16, s.Remaining())
}

func TestSegmentDisclaimDoesNotAlterContents(t *testing.T) {
	s := NewSegment(64)
	off, _ := s.Bump(8)
	copy(s.Bytes(off, 8), []byte("abcdefgh"))
	s.Disclaim()
	assert.Equal(t, []byte("abcdefgh"), s.Bytes(off, 8))
}
