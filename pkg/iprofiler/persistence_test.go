package iprofiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
	"github.com/tieredvm/recompiler/pkg/persistence"
)

func TestBuildAndParseBSTRoundTrips(t *testing.T) {
	records := []PersistableRecord{
		{PCOffset: 100, TypeTag: KindCallGraph, Payload: EncodeCallGraphPayload(1, 2, 100, 10)},
		{PCOffset: 40, TypeTag: KindCallGraph, Payload: EncodeCallGraphPayload(3, 4, 50, 5)},
		{PCOffset: 250, TypeTag: KindCallGraph, Payload: EncodeCallGraphPayload(5, 6, 75, 0)},
	}

	blob, err := BuildBST(records)
	require.NoError(t, err)

	nodes, err := ParseBST(blob)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	rec, found := LookupBST(nodes, 40)
	require.True(t, found)
	_, _, weight, residue, ok := DecodeCallGraphPayload(rec.Payload)
	require.True(t, ok)
	assert.Equal(t, uint16(50), weight)
	assert.Equal(t, uint16(5), residue)

	_, found = LookupBST(nodes, 999)
	assert.False(t, found)
}

// IProfilerScenario5: concrete scenario 5 from spec §8 — persist a
// CallGraph entry with slots [(C1,100),(C2,40)], residue=10; reload and
// expect slot 0 = (C1,100), residue = 50 (40 folded into residue since
// only the dominant class survives persistence), sticky canBePersisted.
func TestScenario5IPPersistLoadRoundTrip(t *testing.T) {
	ht := NewHashtable(16)
	cg := NewCallGraph(1000)
	cg.SetData(1 /* C1 */, 100)
	cg.SetData(2 /* C2 */, 40)
	cg.residueWeight = 10
	entry := ht.GetOrInsert(1000, func() Entry { return cg })
	require.Same(t, Entry(cg), entry)

	store := persistence.NewMemoryStore(0)
	resolveClass := func(c ClassID) (uint32, uint32, bool) {
		return uint32(c), uint32(c) + 1000, true
	}
	reason := PersistMethod(ht, "method:1", 900, 200, store, resolveClass)
	require.Equal(t, ctlerrors.ReasonOK, reason)

	fresh := NewHashtable(16)
	resolveChain := func(chainOff, loaderOff uint32) (ClassID, bool) {
		return ClassID(chainOff), true
	}
	reason = LoadMethod(fresh, "method:1", 900, store, resolveChain)
	require.Equal(t, ctlerrors.ReasonOK, reason)

	loaded, ok := fresh.Get(1000)
	require.True(t, ok)
	loadedCG, ok := loaded.(*CallGraph)
	require.True(t, ok)

	dom, ok := loadedCG.DominantClass()
	require.True(t, ok)
	assert.Equal(t, ClassID(1), dom)
	assert.Equal(t, uint16(100), loadedCG.weights[0])
	// Non-dominant slot weight (40) folds into residue alongside the
	// original residue (10), matching scenario 5 exactly.
	assert.Equal(t, uint16(50), loadedCG.ResidueWeight())
	assert.False(t, loadedCG.CanPersist)
}
