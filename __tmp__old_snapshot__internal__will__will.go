// Package will holds the per-master recovery plan: an ordered, partitioned
// set of the tablets that master owns, used to parallelize its recovery.
package will

import (
	"clustercoord/internal/cluster"
	"clustercoord/internal/tablet"
)

// Will is one master's recovery plan: an ordered sequence of tablets, each
// assigned to a partition. partitionId values form a contiguous range
// [0, maxPartitionId]; the union of the will's ranges covers every
// tablet owned by this master.
type Will struct {
	Tablets []tablet.Tablet
}

// MaxPartitionId returns the highest partitionId present, or -1 if the
// will is empty (matching the "or 0 if empty" empty-tablet policy at the
// call site, which adds one to get the very first partition).
func (w *Will) MaxPartitionId() int64 {
	max := int64(-1)
	for _, t := range w.Tablets {
		if int64(t.PartitionId) > max {
			max = int64(t.PartitionId)
		}
	}
	return max
}

func (w *Will) Append(t tablet.Tablet, partitionId uint64) {
	t.PartitionId = partitionId
	w.Tablets = append(w.Tablets, t)
}

// Store is the Will Store: one ordered Will per master, keyed by
// ServerId.
type Store struct {
	byMaster map[cluster.ServerId]*Will
}

func NewStore() *Store {
	return &Store{byMaster: make(map[cluster.ServerId]*Will)}
}

// AttachEmptyWill is called on enlist: a freshly enlisted master starts
// with an empty recovery plan.
func (s *Store) AttachEmptyWill(masterId cluster.ServerId) {
	s.byMaster[masterId] = &Will{}
}

// ReadAndDetach is called on crash: the will transfers exclusively to the
// recovery engine and is removed from the store, so it can never be
// double-read.
func (s *Store) ReadAndDetach(masterId cluster.ServerId) (*Will, bool) {
	w, ok := s.byMaster[masterId]
	if !ok {
		return nil, false
	}
	delete(s.byMaster, masterId)
	return w, true
}

// AppendTablet appends t to masterId's will. Partition assignment policy:
// t goes into a new partition one above the highest existing partitionId,
// or partition 0 for an empty will.
func (s *Store) AppendTablet(masterId cluster.ServerId, t tablet.Tablet) (partitionId uint64, ok bool) {
	w, ok := s.byMaster[masterId]
	if !ok {
		return 0, false
	}
	next := w.MaxPartitionId() + 1
	if next < 0 {
		next = 0
	}
	w.Append(t, uint64(next))
	return uint64(next), true
}

// Peek returns the current will without detaching it, used by read-only
// callers (e.g. a debug dump) that must not consume the will.
func (s *Store) Peek(masterId cluster.ServerId) (*Will, bool) {
	w, ok := s.byMaster[masterId]
	return w, ok
}

// Release drops masterId's will outright. Nothing in this module calls it.
func (s *Store) Release(masterId cluster.ServerId) {
	delete(s.byMaster, masterId)
}


