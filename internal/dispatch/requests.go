package dispatch

import (
	"clustercoord/internal/cluster"
	"clustercoord/internal/tablet"
)

// Request/response shapes for the coordinator's RPCs. The wire framing
// (length-prefixed gob, see internal/transport) is
// applied uniformly outside these types; these are the decoded payloads a
// Handler works with.

type CreateTableRequest struct {
	Name string
}
type CreateTableResponse struct{}

type DropTableRequest struct {
	Name string
}
type DropTableResponse struct{}

type OpenTableRequest struct {
	Name string
}
type OpenTableResponse struct {
	TableId uint64
}

type EnlistServerRequest struct {
	ServiceLocator           string
	Services                 cluster.ServiceMask
	ExpectedReadMBytesPerSec uint32
}
type EnlistServerResponse struct {
	ServerId cluster.ServerId
}

type GetBackupListRequest struct{}
type GetBackupListResponse struct {
	Servers []cluster.ServerEntry
}

type GetServerListRequest struct {
	Filter cluster.ServiceMask
}
type GetServerListResponse struct {
	Servers []cluster.ServerEntry
}

type GetTabletMapRequest struct{}
type GetTabletMapResponse struct {
	Tablets []tablet.Tablet
}

type HintServerDownRequest struct {
	ServiceLocator string
}
type HintServerDownResponse struct{}

type TabletsRecoveredRequest struct {
	FailedId          cluster.ServerId
	NewOwnerId        cluster.ServerId
	RecoveredTablets  []tablet.Tablet
}
type TabletsRecoveredResponse struct{}

// PingRequest is a member's heartbeat to the coordinator. ServerId,
// CPUPercent and MemPercent are the caller's own self-measured load,
// reported opportunistically; a zero ServerId means "don't record load"
// (e.g. a bare liveness probe from a client that never enlisted).
type PingRequest struct {
	ServerId   cluster.ServerId
	CPUPercent float64
	MemPercent float64
}

// PingResponse carries the coordinator's own host load alongside the
// liveness bit, so a caller can tell a slow coordinator from a dead one.
type PingResponse struct {
	Alive      bool
	CPUPercent float64
	MemPercent float64
}
