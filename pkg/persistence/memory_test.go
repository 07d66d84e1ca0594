package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(0)
	reason := s.Store("method:1", []byte("blob-a"))
	require.Equal(t, ctlerrors.ReasonOK, reason)

	blob, found, reason := s.Load("method:1")
	require.True(t, found)
	assert.Equal(t, ctlerrors.ReasonOK, reason)
	assert.Equal(t, []byte("blob-a"), blob)
}

func TestMemoryStoreMissingKey(t *testing.T) {
	s := NewMemoryStore(0)
	_, found, reason := s.Load("nope")
	assert.False(t, found)
	assert.Equal(t, ctlerrors.ReasonOK, reason)
}

func TestMemoryStoreStickyFull(t *testing.T) {
	s := NewMemoryStore(8)
	require.Equal(t, ctlerrors.ReasonOK, s.Store("a", []byte("1234")))
	reason := s.Store("b", []byte("12345678"))
	require.Equal(t, ctlerrors.ReasonSCCFull, reason)
	assert.True(t, s.IsFull())

	// Sticky: even a small write that would otherwise fit short-circuits.
	reason = s.Store("c", []byte("x"))
	assert.Equal(t, ctlerrors.ReasonSCCFull, reason)
}

func TestMemoryStoreOverwriteAdjustsSize(t *testing.T) {
	s := NewMemoryStore(8)
	require.Equal(t, ctlerrors.ReasonOK, s.Store("a", []byte("1234")))
	require.Equal(t, ctlerrors.ReasonOK, s.Store("a", []byte("12345678")))
	blob, found, _ := s.Load("a")
	require.True(t, found)
	assert.Equal(t, []byte("12345678"), blob)
}
