// Package recovery implements the failed-master recovery state machine:
// hintServerDown and tabletsRecovered drive a failed master's tablets
// from RECOVERING back to NORMAL under a new owner, and its ServerId from
// CRASHED to vacated once recovery completes.
package recovery

import (
	"fmt"

	"github.com/google/uuid"

	"clustercoord/internal/cluster"
	"clustercoord/internal/tablet"
	"clustercoord/internal/will"
)

// Launch is what the caller (internal/coordinator) must hand to an Engine
// once it has released its lock; recovery itself never calls Engine.Start
// directly, since a real engine's replay can take a long time and must
// not run with the coordinator's state lock held.
type Launch struct {
	AttemptId  string
	FailedId   cluster.ServerId
	Will       *will.Will
	MasterList []cluster.ServerEntry
	BackupList []cluster.ServerEntry
}

// Coordinator carries no lock of its own; every exported method here
// assumes the caller already holds the single coordinator-wide mutex for
// the duration of the call, matching ServerList's and TabletMap's
// convention.
type Coordinator struct {
	servers *cluster.ServerList
	tablets *tablet.TabletMap
	wills   *will.Store
}

func NewCoordinator(servers *cluster.ServerList, tablets *tablet.TabletMap, wills *will.Store) *Coordinator {
	return &Coordinator{servers: servers, tablets: tablets, wills: wills}
}

// HintServerDown implements the three-case crash-handling state machine:
// an unknown or already-down locator is a silent no-op, a crashed backup
// needs no recovery plan, and a crashed master produces a Launch. It
// returns a non-nil Launch only when locator named an UP master; the
// caller must invoke Engine.Start(launch...) after releasing its lock.
// The returned Delta, when non-nil, must be forwarded to the update
// dispatcher so other members learn of the crash. Duplicate hints for the
// same server are idempotent: a server already CRASHED or DOWN, or a
// locator naming no server at all, silently succeeds with both return
// values nil.
func (c *Coordinator) HintServerDown(locator string) (*Launch, *cluster.Delta) {
	entry, ok := c.servers.LookupByLocator(locator)
	if !ok || entry.Status != cluster.Up {
		return nil, nil
	}

	if !entry.Services.Has(cluster.Master) {
		// An UP backup going down is handled by the masters it was
		// replicating for re-replicating elsewhere; no recovery plan needed.
		delta, _ := c.servers.Crashed(entry.ServerId)
		return nil, delta
	}

	failedId := entry.ServerId
	delta, _ := c.servers.Crashed(failedId)
	c.tablets.MarkRecovering(failedId)
	w, hadWill := c.wills.ReadAndDetach(failedId)
	if !hadWill {
		w = &will.Will{}
	}
	entry.WillAttached = false
	if delta != nil {
		delta.Entry.WillAttached = false
	}

	launch := &Launch{
		AttemptId:  uuid.New().String(),
		FailedId:   failedId,
		Will:       w,
		MasterList: c.servers.UpOnly(cluster.Master),
		BackupList: c.servers.UpOnly(cluster.Backup),
	}
	return launch, delta
}

// TabletsRecovered is the second half of the recovery state machine:
// every tablet in recoveredTablets is reassigned to newOwnerId, and once
// no RECOVERING tablet owned by failedId remains, failedId transitions
// CRASHED to DOWN. Returns the DOWN transition delta, if one was
// produced, so the caller can forward it to the update dispatcher; the
// caller looks up newOwnerId's locator itself to push the tablet map.
func (c *Coordinator) TabletsRecovered(failedId, newOwnerId cluster.ServerId, recoveredTablets []tablet.Tablet) (downDelta *cluster.Delta, err error) {
	newOwner, ok := c.servers.Lookup(newOwnerId)
	if !ok {
		return nil, fmt.Errorf("recovery: unknown new owner %s", newOwnerId)
	}

	for _, t := range recoveredTablets {
		if !c.tablets.Reassign(t.TableId, t.StartKey, t.EndKey, newOwnerId, newOwner.ServiceLocator) {
			return nil, fmt.Errorf("recovery: no tablet matching table %d [%d,%d] to reassign", t.TableId, t.StartKey, t.EndKey)
		}
	}

	for _, t := range c.tablets.OwnedBy(failedId) {
		if t.State == tablet.Recovering {
			return nil, nil
		}
	}

	delta, ok := c.servers.Remove(failedId)
	if !ok || len(delta) == 0 {
		return nil, nil
	}
	last := delta[len(delta)-1]
	return &last, nil
}
