// Package coordinator wires the cluster, tablet, will, update, recovery,
// transport, durablelog and health packages into the coordinator's ten
// RPCs, behind the single mutex that gives the coordinator its
// single-writer concurrency discipline.
package coordinator

import (
	"bytes"
	"encoding/gob"
	"log"
	"sync"

	"clustercoord/internal/cluster"
	"clustercoord/internal/coordfail"
	"clustercoord/internal/dispatch"
	"clustercoord/internal/durablelog"
	"clustercoord/internal/health"
	"clustercoord/internal/recovery"
	"clustercoord/internal/tablet"
	"clustercoord/internal/transport"
	"clustercoord/internal/update"
	"clustercoord/internal/will"
)

// Coordinator owns every piece of coordinator state and the one mutex
// that guards all of it together: ServerList, TabletMap, TableDirectory
// and Will Store are mutated as a single unit, never independently.
type Coordinator struct {
	mu sync.Mutex

	servers *cluster.ServerList
	tablets *tablet.TabletMap
	tables  *tablet.TableDirectory
	wills   *will.Store

	recovery *recovery.Coordinator
	selector tablet.MasterSelector
	health   *health.Sampler

	updates   *update.Dispatcher
	transport transport.Transport
	durable   durablelog.Log
	engine    recovery.Engine
}

// New wires up a fresh Coordinator. engine may be nil, in which case a
// NullEngine with no completion callback is installed (a failed master's
// tablets simply stay RECOVERING until an operator intervenes, which is
// an acceptable idle state, not a crash).
func New(tr transport.Transport, durable durablelog.Log, selector tablet.MasterSelector, engine recovery.Engine) *Coordinator {
	if durable == nil {
		durable = durablelog.NoopLog{}
	}
	if selector == nil {
		selector = tablet.FirstInSlotOrder{}
	}
	if engine == nil {
		engine = &recovery.NullEngine{}
	}

	servers := cluster.New()
	tablets := tablet.NewTabletMap()
	tables := tablet.NewTableDirectory()
	wills := will.NewStore()

	c := &Coordinator{
		servers:   servers,
		tablets:   tablets,
		tables:    tables,
		wills:     wills,
		recovery:  recovery.NewCoordinator(servers, tablets, wills),
		selector:  selector,
		health:    health.NewSampler(),
		transport: tr,
		durable:   durable,
		engine:    engine,
	}
	c.updates = update.NewDispatcher(servers, transport.NewMembershipPusher(tr), c)
	return c
}

// Updates exposes the UpdateDispatcher so cmd/coordinator can start and
// stop its background worker.
func (c *Coordinator) Updates() *update.Dispatcher { return c.updates }

// RegisterHandlers installs every coordinator RPC onto d.
func (c *Coordinator) RegisterHandlers(d *dispatch.Dispatcher) {
	d.Register(dispatch.CreateTable, c.handleCreateTable)
	d.Register(dispatch.DropTable, c.handleDropTable)
	d.Register(dispatch.OpenTable, c.handleOpenTable)
	d.Register(dispatch.EnlistServer, c.handleEnlistServer)
	d.Register(dispatch.GetBackupList, c.handleGetBackupList)
	d.Register(dispatch.GetServerList, c.handleGetServerList)
	d.Register(dispatch.GetTabletMap, c.handleGetTabletMap)
	d.Register(dispatch.HintServerDown, c.handleHintServerDown)
	d.Register(dispatch.TabletsRecovered, c.handleTabletsRecovered)
	d.Register(dispatch.Ping, c.handlePing)
}

// tableDirectoryRecord is the durable-log payload for an OpTableDirectory
// record; TableDirectory itself has no notion of persistence.
type tableDirectoryRecord struct {
	Name    string
	TableId uint64
}

func (c *Coordinator) handleCreateTable(req any, respond dispatch.Responder) {
	r := req.(*dispatch.CreateTableRequest)

	c.mu.Lock()
	tableId, existed := c.tables.Create(r.Name)
	if existed {
		c.mu.Unlock()
		respond(&dispatch.CreateTableResponse{}, nil)
		return
	}

	masterId, ok := c.selector.SelectMaster(c.servers.Serialize(cluster.Master), c.health.Hints())
	if !ok {
		c.tables.Drop(r.Name)
		c.mu.Unlock()
		respond(nil, coordfail.New(coordfail.Retry, "no UP master available to own table %q", r.Name))
		return
	}
	master, _ := c.servers.Lookup(masterId)

	t := tablet.Tablet{TableId: tableId, StartKey: 0, EndKey: tablet.EndOfKeyspace, ServerId: masterId, ServiceLocator: master.ServiceLocator}
	c.tablets.Add(t)
	c.wills.AppendTablet(masterId, t)
	ownedTablets := c.tablets.ForTable(tableId)
	locator := master.ServiceLocator
	c.persist(durablelog.OpTableDirectory, 0, tableDirectoryRecord{Name: r.Name, TableId: tableId})
	c.persist(durablelog.OpTabletMap, 0, t)
	c.mu.Unlock()

	if err := c.pushTabletsTo(locator, ownedTablets); err != nil {
		log.Printf("coordinator: createTable %q: push to %s failed: %v", r.Name, locator, err)
		c.HintServerDown(locator)
	}
	respond(&dispatch.CreateTableResponse{}, nil)
}

func (c *Coordinator) handleDropTable(req any, respond dispatch.Responder) {
	r := req.(*dispatch.DropTableRequest)

	c.mu.Lock()
	tableId, ok := c.tables.Lookup(r.Name)
	if !ok {
		c.mu.Unlock()
		respond(&dispatch.DropTableResponse{}, nil)
		return
	}
	removed := c.tablets.RemoveTable(tableId)
	c.tables.Drop(r.Name)

	byMaster := make(map[cluster.ServerId]string)
	for _, t := range removed {
		byMaster[t.ServerId] = t.ServiceLocator
	}
	c.mu.Unlock()

	// Every master that owned a piece of the dropped table is pushed an
	// updated (now smaller) tablet set, not just the one that happened to
	// answer the request.
	for masterId, locator := range byMaster {
		c.mu.Lock()
		remaining := c.tablets.OwnedBy(masterId)
		c.mu.Unlock()
		if err := c.pushTabletsTo(locator, remaining); err != nil {
			log.Printf("coordinator: dropTable %q: push to %s failed: %v", r.Name, locator, err)
			c.HintServerDown(locator)
		}
	}

	respond(&dispatch.DropTableResponse{}, nil)
}

func (c *Coordinator) handleOpenTable(req any, respond dispatch.Responder) {
	r := req.(*dispatch.OpenTableRequest)

	c.mu.Lock()
	tableId, ok := c.tables.Lookup(r.Name)
	c.mu.Unlock()
	if !ok {
		respond(nil, coordfail.New(coordfail.TableDoesNotExist, "no such table %q", r.Name))
		return
	}
	respond(&dispatch.OpenTableResponse{TableId: tableId}, nil)
}

func (c *Coordinator) handleEnlistServer(req any, respond dispatch.Responder) {
	r := req.(*dispatch.EnlistServerRequest)

	c.mu.Lock()
	id, delta := c.servers.Add(r.ServiceLocator, r.Services, r.ExpectedReadMBytesPerSec)
	if r.Services.Has(cluster.Master) {
		c.wills.AttachEmptyWill(id)
	}
	entryId := c.persist(durablelog.OpServerList, delta.Version, delta.Entry)
	if entryId != 0 {
		if entry, ok := c.servers.Lookup(id); ok {
			persisted := uint64(entryId)
			entry.PersistedEntryId = &persisted
		}
	}
	c.mu.Unlock()

	// The new server does not receive its own birth announcement; it
	// learns its own identity from the EnlistServer response instead.
	c.updates.Enqueue(delta.Version, []cluster.ServerEntry{delta.Entry}, id)

	respond(&dispatch.EnlistServerResponse{ServerId: id}, nil)
}

func (c *Coordinator) handleGetBackupList(req any, respond dispatch.Responder) {
	c.mu.Lock()
	servers := c.servers.Serialize(cluster.Backup)
	c.mu.Unlock()
	respond(&dispatch.GetBackupListResponse{Servers: servers}, nil)
}

func (c *Coordinator) handleGetServerList(req any, respond dispatch.Responder) {
	r := req.(*dispatch.GetServerListRequest)
	c.mu.Lock()
	servers := c.servers.Serialize(r.Filter)
	c.mu.Unlock()
	respond(&dispatch.GetServerListResponse{Servers: servers}, nil)
}

func (c *Coordinator) handleGetTabletMap(req any, respond dispatch.Responder) {
	c.mu.Lock()
	tablets := c.tablets.All()
	c.mu.Unlock()
	respond(&dispatch.GetTabletMapResponse{Tablets: tablets}, nil)
}

// handleHintServerDown replies before starting recovery: if the recovery
// target happens to also be the caller (a master reporting its own peer
// down, then itself becoming the recovery master), waiting for recovery
// to finish before replying would deadlock the caller against itself.
func (c *Coordinator) handleHintServerDown(req any, respond dispatch.Responder) {
	r := req.(*dispatch.HintServerDownRequest)
	launch, delta := c.hintServerDownLocked(r.ServiceLocator)

	respond(&dispatch.HintServerDownResponse{}, nil)

	c.applyHint(launch, delta)
}

// hintServerDownLocked runs the recovery state machine and, if it
// produced a delta, supersedes that server's previous durable record with
// a fresh one reflecting its new status.
func (c *Coordinator) hintServerDownLocked(locator string) (*recovery.Launch, *cluster.Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	launch, delta := c.recovery.HintServerDown(locator)
	if delta == nil {
		return launch, delta
	}

	oldId := delta.Entry.PersistedEntryId
	entryId := c.persist(durablelog.OpServerList, delta.Version, delta.Entry)
	if entry, ok := c.servers.Lookup(delta.Entry.ServerId); ok && entryId != 0 {
		persisted := uint64(entryId)
		entry.PersistedEntryId = &persisted
	}
	c.invalidate(oldId)
	return launch, delta
}

func (c *Coordinator) applyHint(launch *recovery.Launch, delta *cluster.Delta) {
	if delta != nil {
		c.updates.Enqueue(delta.Version, []cluster.ServerEntry{delta.Entry})
	}
	if launch != nil {
		go c.engine.Start(launch.FailedId, launch.Will, launch.MasterList, launch.BackupList)
	}
}

func (c *Coordinator) handleTabletsRecovered(req any, respond dispatch.Responder) {
	r := req.(*dispatch.TabletsRecoveredRequest)

	c.mu.Lock()
	delta, err := c.recovery.TabletsRecovered(r.FailedId, r.NewOwnerId, r.RecoveredTablets)
	var newOwnerLocator string
	if err == nil {
		if entry, ok := c.servers.Lookup(r.NewOwnerId); ok {
			newOwnerLocator = entry.ServiceLocator
		}
		for _, t := range r.RecoveredTablets {
			c.persist(durablelog.OpTabletMap, 0, t)
		}
	}
	recoveredNow := c.tablets.OwnedBy(r.NewOwnerId)
	c.mu.Unlock()

	if err != nil {
		respond(nil, coordfail.New(coordfail.NoSuchServer, "tabletsRecovered: %v", err))
		return
	}

	if newOwnerLocator != "" {
		if pushErr := c.pushTabletsTo(newOwnerLocator, recoveredNow); pushErr != nil {
			log.Printf("coordinator: tabletsRecovered: push to %s failed: %v", newOwnerLocator, pushErr)
		}
	}
	if delta != nil {
		c.updates.Enqueue(delta.Version, []cluster.ServerEntry{delta.Entry})
	}

	respond(&dispatch.TabletsRecoveredResponse{}, nil)
}

func (c *Coordinator) handlePing(req any, respond dispatch.Responder) {
	respond(&dispatch.PingResponse{Alive: true}, nil)
}

// persist appends rec to the durable log (a no-op if none is configured)
// and logs rather than fails the caller on error: the in-memory state
// mutation has already committed by the time persist is called, and a
// coordinator that refused every RPC because its disk was briefly
// unavailable would be worse than one that serves from memory and warns.
func (c *Coordinator) persist(op durablelog.Op, version uint64, entry any) durablelog.EntryId {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		log.Printf("coordinator: encode %s record: %v", op, err)
		return 0
	}
	id, err := c.durable.Append(durablelog.Record{Op: op, Version: version, Entry: buf.Bytes()})
	if err != nil {
		log.Printf("coordinator: append %s record: %v", op, err)
		return 0
	}
	return id
}

func (c *Coordinator) invalidate(id *uint64) {
	if id == nil {
		return
	}
	if err := c.durable.Invalidate(durablelog.EntryId(*id)); err != nil {
		log.Printf("coordinator: invalidate entry %d: %v", *id, err)
	}
}

// pushTabletsTo sends tablets's current full set to locator via a
// MasterClient, dialing fresh per push rather than keeping one open.
func (c *Coordinator) pushTabletsTo(locator string, tablets []tablet.Tablet) error {
	client, err := transport.NewMasterClient(c.transport, locator)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.SetTablets(tablets)
}

// HintServerDown implements update.FailureHinter: the UpdateDispatcher
// calls this when a recipient exhausts its retry budget, routing the
// failure back into the same state machine a client-reported hint uses.
func (c *Coordinator) HintServerDown(locator string) {
	launch, delta := c.hintServerDownLocked(locator)
	c.applyHint(launch, delta)
}


