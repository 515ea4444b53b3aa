package recovery

import (
	"clustercoord/internal/cluster"
	"clustercoord/internal/tablet"
	"clustercoord/internal/will"
)

// Engine is the RecoveryEngine collaborator: given a failed master's
// will and the current master/backup lists, it replays the will's
// partitions from backup replicas and, once done, reports completion back
// to the coordinator through the ordinary TabletsRecovered RPC (as if a
// recovery master had called in on its own). Start must not block; a real
// engine dispatches work and returns immediately.
type Engine interface {
	Start(failedId cluster.ServerId, w *will.Will, masterList, backupList []cluster.ServerEntry)
}

// NullEngine stands in for a real recovery engine in tests and in
// configurations that never expect a master to fail. It hands every
// tablet in the will to the first candidate master and reports completion
// through OnComplete, synchronously, so tests can observe the outcome
// without a real replay pipeline.
type NullEngine struct {
	OnComplete func(failedId, newOwnerId cluster.ServerId, recoveredTablets []tablet.Tablet)
}

func (e *NullEngine) Start(failedId cluster.ServerId, w *will.Will, masterList, backupList []cluster.ServerEntry) {
	if e.OnComplete == nil || len(masterList) == 0 || w == nil {
		return
	}
	e.OnComplete(failedId, masterList[0].ServerId, w.Tablets)
}


