// Package tablet holds the coordinator's authoritative TabletMap and
// TableDirectory: the mapping from (table, key range) to owning master,
// and the table name -> id catalog.
package tablet

import "clustercoord/internal/cluster"

// EndOfKeyspace denotes the end of the keyspace: the maximum uint64 key.
const EndOfKeyspace uint64 = ^uint64(0)

// State is a Tablet's recovery state.
type State int

const (
	Normal State = iota
	Recovering
)

// Tablet is one contiguous key range of one table.
type Tablet struct {
	TableId        uint64
	StartKey       uint64
	EndKey         uint64
	State          State
	ServerId       cluster.ServerId
	ServiceLocator string
	// PartitionId is meaningful only inside a Will; the public TabletMap
	// ignores it.
	PartitionId uint64
}

func (t Tablet) coversWholeKeyspace() bool {
	return t.StartKey == 0 && t.EndKey == EndOfKeyspace
}
