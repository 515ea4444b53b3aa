// Package cluster holds the coordinator's authoritative ServerList: the
// versioned, slot-indexed directory of every server admitted into the
// cluster.
package cluster

import "fmt"

// ServerId is a (slot index, generation) pair. Equality is on the full
// pair, so a stale reference to a departed server never collides with
// whatever server is later given the same slot.
type ServerId struct {
	Index      uint32
	Generation uint32
}

// Sentinel is returned by the next*Index scans when no matching slot is
// found.
const Sentinel uint32 = ^uint32(0)

func (id ServerId) String() string {
	return fmt.Sprintf("%d.%d", id.Index, id.Generation)
}

// slotZero is reserved and never assigned to a real server, so a zero
// ServerId can be used as an unambiguous "no server" value.
const slotZero uint32 = 0

func (id ServerId) IsZero() bool {
	return id.Index == slotZero
}


