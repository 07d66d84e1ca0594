package iprofiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLTTableObserveAssignsIncreasingSeq(t *testing.T) {
	tbl := NewDLTTable()
	now := time.Now()
	tbl.Observe(MethodHandle(1), 10, now)
	obs := tbl.Observe(MethodHandle(1), 20, now.Add(time.Second))
	assert.Equal(t, int32(20), obs.InvocationCountAtObservation)
	assert.Equal(t, uint64(2), obs.SeqID)
}

func TestDLTTableMarkQueuedForCompilationIsOneShot(t *testing.T) {
	tbl := NewDLTTable()
	tbl.Observe(MethodHandle(1), 10, time.Now())
	require.True(t, tbl.MarkQueuedForCompilation(MethodHandle(1)))
	assert.False(t, tbl.MarkQueuedForCompilation(MethodHandle(1)))
}
