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

type PingRequest struct{}
type PingResponse struct {
	Alive bool
}


