package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"clustercoord/internal/cluster"
	"clustercoord/internal/tablet"
	"clustercoord/internal/will"
)

func setup(t *testing.T) (*Coordinator, *cluster.ServerList, *tablet.TabletMap, *will.Store) {
	t.Helper()
	servers := cluster.New()
	tablets := tablet.NewTabletMap()
	wills := will.NewStore()
	return NewCoordinator(servers, tablets, wills), servers, tablets, wills
}

func TestHintServerDownOnUnknownLocatorIsSilent(t *testing.T) {
	rc, _, _, _ := setup(t)
	launch, delta := rc.HintServerDown("nowhere:1")
	require.Nil(t, launch)
	require.Nil(t, delta)
}

func TestHintServerDownOnBackupCrashesWithoutLaunch(t *testing.T) {
	rc, servers, _, _ := setup(t)
	id, _ := servers.Add("backup:1", cluster.Backup, 100)

	launch, delta := rc.HintServerDown("backup:1")
	require.Nil(t, launch)
	require.NotNil(t, delta)
	require.Equal(t, cluster.Crashed, delta.Entry.Status)

	entry, ok := servers.Lookup(id)
	require.True(t, ok)
	require.Equal(t, cluster.Crashed, entry.Status)
}

func TestHintServerDownOnMasterProducesLaunchAndMarksTabletsRecovering(t *testing.T) {
	rc, servers, tablets, wills := setup(t)
	masterId, _ := servers.Add("master:1", cluster.Master, 100)
	backupId, _ := servers.Add("backup:1", cluster.Backup, 100)
	_ = backupId
	wills.AttachEmptyWill(masterId)

	tablets.Add(tablet.Tablet{TableId: 1, StartKey: 0, EndKey: tablet.EndOfKeyspace, ServerId: masterId})
	partitionId, ok := wills.AppendTablet(masterId, tablets.OwnedBy(masterId)[0])
	require.True(t, ok)
	require.Equal(t, uint64(0), partitionId)

	launch, delta := rc.HintServerDown("master:1")
	require.NotNil(t, launch)
	require.NotNil(t, delta)
	require.Equal(t, cluster.Crashed, delta.Entry.Status)
	require.Equal(t, masterId, launch.FailedId)
	require.Len(t, launch.Will.Tablets, 1)
	require.NotEmpty(t, launch.AttemptId)

	owned := tablets.OwnedBy(masterId)
	require.Len(t, owned, 1)
	require.Equal(t, tablet.Recovering, owned[0].State)

	_, stillThere := wills.Peek(masterId)
	require.False(t, stillThere, "will must be detached, not merely peeked")
}

func TestHintServerDownIsIdempotent(t *testing.T) {
	rc, servers, _, wills := setup(t)
	masterId, _ := servers.Add("master:1", cluster.Master, 100)
	wills.AttachEmptyWill(masterId)

	first, firstDelta := rc.HintServerDown("master:1")
	require.NotNil(t, first)
	require.NotNil(t, firstDelta)

	second, secondDelta := rc.HintServerDown("master:1")
	require.Nil(t, second, "a server already CRASHED must not relaunch recovery")
	require.Nil(t, secondDelta, "a server already CRASHED must not re-stage a crash delta")
}

func TestTabletsRecoveredReassignsAndTransitionsToDown(t *testing.T) {
	rc, servers, tablets, wills := setup(t)
	masterId, _ := servers.Add("master:1", cluster.Master, 100)
	newOwnerId, _ := servers.Add("master:2", cluster.Master, 100)
	wills.AttachEmptyWill(masterId)

	tablets.Add(tablet.Tablet{TableId: 1, StartKey: 0, EndKey: tablet.EndOfKeyspace, ServerId: masterId})
	_, ok := wills.AppendTablet(masterId, tablets.OwnedBy(masterId)[0])
	require.True(t, ok)

	launch, _ := rc.HintServerDown("master:1")
	require.NotNil(t, launch)

	delta, err := rc.TabletsRecovered(masterId, newOwnerId, launch.Will.Tablets)
	require.NoError(t, err)
	require.NotNil(t, delta)
	require.Equal(t, cluster.Down, delta.Entry.Status)

	owned := tablets.OwnedBy(newOwnerId)
	require.Len(t, owned, 1)
	require.Equal(t, tablet.Normal, owned[0].State)

	_, stillPresent := servers.Lookup(masterId)
	require.False(t, stillPresent, "failed master's slot must be vacated after full recovery")
}

func TestTabletsRecoveredPartialLeavesMasterCrashed(t *testing.T) {
	rc, servers, tablets, wills := setup(t)
	masterId, _ := servers.Add("master:1", cluster.Master, 100)
	newOwnerId, _ := servers.Add("master:2", cluster.Master, 100)
	wills.AttachEmptyWill(masterId)

	tablets.Add(tablet.Tablet{TableId: 1, StartKey: 0, EndKey: 100, ServerId: masterId})
	tablets.Add(tablet.Tablet{TableId: 1, StartKey: 101, EndKey: tablet.EndOfKeyspace, ServerId: masterId})

	rc.HintServerDown("master:1")

	firstOnly := tablets.OwnedBy(masterId)[:1]
	delta, err := rc.TabletsRecovered(masterId, newOwnerId, firstOnly)
	require.NoError(t, err)
	require.Nil(t, delta, "a partially recovered master must stay CRASHED")

	entry, ok := servers.Lookup(masterId)
	require.True(t, ok)
	require.Equal(t, cluster.Crashed, entry.Status)
}

func TestTabletsRecoveredRejectsUnknownNewOwner(t *testing.T) {
	rc, servers, tablets, wills := setup(t)
	masterId, _ := servers.Add("master:1", cluster.Master, 100)
	wills.AttachEmptyWill(masterId)
	tablets.Add(tablet.Tablet{TableId: 1, StartKey: 0, EndKey: tablet.EndOfKeyspace, ServerId: masterId})
	rc.HintServerDown("master:1")

	bogus := cluster.ServerId{Index: 99, Generation: 0}
	_, err := rc.TabletsRecovered(masterId, bogus, tablets.OwnedBy(masterId))
	require.Error(t, err)
}

func TestNullEngineReportsCompletionSynchronously(t *testing.T) {
	rc, servers, tablets, wills := setup(t)
	masterId, _ := servers.Add("master:1", cluster.Master, 100)
	newOwnerId, _ := servers.Add("master:2", cluster.Master, 100)
	wills.AttachEmptyWill(masterId)
	tablets.Add(tablet.Tablet{TableId: 1, StartKey: 0, EndKey: tablet.EndOfKeyspace, ServerId: masterId})
	_, ok := wills.AppendTablet(masterId, tablets.OwnedBy(masterId)[0])
	require.True(t, ok)

	launch, _ := rc.HintServerDown("master:1")
	require.NotNil(t, launch)

	var reportedFailed, reportedOwner cluster.ServerId
	var reportedTablets []tablet.Tablet
	engine := &NullEngine{OnComplete: func(failedId, newOwnerId cluster.ServerId, recovered []tablet.Tablet) {
		reportedFailed = failedId
		reportedOwner = newOwnerId
		reportedTablets = recovered
	}}

	engine.Start(launch.FailedId, launch.Will, launch.MasterList, launch.BackupList)

	require.Equal(t, masterId, reportedFailed)
	require.Equal(t, newOwnerId, reportedOwner)
	require.Len(t, reportedTablets, 1)
}
