package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAssignsFirstVacantSlot(t *testing.T) {
	sl := New()
	id, delta := sl.Add("mock:h=m1", Master, 0)
	require.Equal(t, ServerId{Index: 1, Generation: 0}, id)
	require.Equal(t, uint64(1), delta.Version)
	require.Equal(t, uint64(1), sl.Version())
	require.Equal(t, 1, sl.NumberOfMasters())
}

func TestLookupFailsOnGenerationMismatch(t *testing.T) {
	sl := New()
	id, _ := sl.Add("mock:h=m1", Master, 0)
	stale := id
	stale.Generation++
	_, ok := sl.Lookup(stale)
	require.False(t, ok)
}

func TestCrashedIsIdempotent(t *testing.T) {
	sl := New()
	id, _ := sl.Add("mock:h=m1", Master, 0)

	_, ok := sl.Crashed(id)
	require.True(t, ok)
	versionAfterFirst := sl.Version()

	delta, ok := sl.Crashed(id)
	require.True(t, ok)
	require.Nil(t, delta)
	require.Equal(t, versionAfterFirst, sl.Version())
}

func TestCrashedFailsOnAbsence(t *testing.T) {
	sl := New()
	_, ok := sl.Crashed(ServerId{Index: 7, Generation: 0})
	require.False(t, ok)
}

func TestGenerationReuseAfterRemove(t *testing.T) {
	sl := New()
	id, _ := sl.Add("mock:h=m1", Master, 0)
	require.Equal(t, ServerId{1, 0}, id)

	_, ok := sl.Remove(id)
	require.True(t, ok)

	reenlisted, _ := sl.Add("mock:h=m1-reenlisted", Master, 0)
	require.Equal(t, ServerId{1, 1}, reenlisted)

	_, ok = sl.Lookup(id)
	require.False(t, ok)

	entry, ok := sl.Lookup(reenlisted)
	require.True(t, ok)
	require.Equal(t, Up, entry.Status)
}

func TestRemoveFromUpStagesTwoDeltas(t *testing.T) {
	sl := New()
	id, _ := sl.Add("mock:h=m1", Master, 0)

	deltas, ok := sl.Remove(id)
	require.True(t, ok)
	require.Len(t, deltas, 2)
	require.Equal(t, Crashed, deltas[0].Entry.Status)
	require.Equal(t, Down, deltas[1].Entry.Status)
	require.Less(t, deltas[0].Version, deltas[1].Version)
}

func TestRemoveFromCrashedStagesOneDelta(t *testing.T) {
	sl := New()
	id, _ := sl.Add("mock:h=m1", Master, 0)
	_, _ = sl.Crashed(id)

	deltas, ok := sl.Remove(id)
	require.True(t, ok)
	require.Len(t, deltas, 1)
	require.Equal(t, Down, deltas[0].Entry.Status)
}

func TestSerializeFiltersServiceAndExcludesDown(t *testing.T) {
	sl := New()
	masterId, _ := sl.Add("mock:h=m1", Master, 0)
	backupId, _ := sl.Add("mock:h=b1", Backup, 100)
	downId, _ := sl.Add("mock:h=m2", Master, 0)
	_, _ = sl.Remove(downId)

	out := sl.Serialize(Master | Backup)
	require.Len(t, out, 2)
	ids := []ServerId{out[0].ServerId, out[1].ServerId}
	require.Contains(t, ids, masterId)
	require.Contains(t, ids, backupId)
}

func TestSerializeIncludesCrashed(t *testing.T) {
	sl := New()
	id, _ := sl.Add("mock:h=m1", Master, 0)
	_, _ = sl.Crashed(id)

	out := sl.Serialize(Master)
	require.Len(t, out, 1)
	require.Equal(t, Crashed, out[0].Status)
}

func TestNextMasterIndexSkipsNonMasters(t *testing.T) {
	sl := New()
	_, _ = sl.Add("mock:h=b1", Backup, 100)
	masterId, _ := sl.Add("mock:h=m1", Master, 0)

	idx := sl.NextMasterIndex(1)
	require.Equal(t, masterId.Index, idx)
}

func TestNextMasterIndexReturnsSentinelWhenNoneFound(t *testing.T) {
	sl := New()
	_, _ = sl.Add("mock:h=b1", Backup, 100)
	require.Equal(t, Sentinel, sl.NextMasterIndex(1))
}

func TestTrackerOrderMatchesCommitOrder(t *testing.T) {
	sl := New()
	tr := NewTracker()
	sl.RegisterTracker(tr)

	id1, _ := sl.Add("mock:h=m1", Master, 0)
	_, _ = sl.Add("mock:h=m2", Master, 0)
	_, _ = sl.Crashed(id1)

	events := tr.Drain()
	require.Len(t, events, 3)
	require.Equal(t, Added, events[0].Kind)
	require.Equal(t, Added, events[1].Kind)
	require.Equal(t, EntryCrashed, events[2].Kind)
}


