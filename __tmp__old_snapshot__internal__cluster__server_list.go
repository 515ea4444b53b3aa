package cluster

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// slot is one entry of the sparse ServerList vector. It always carries a
// nextGenerationNumber, even while vacant, so generation numbers survive
// across enlist/remove cycles of the same index.
type slot struct {
	entry               *ServerEntry
	nextGenerationNumber uint32
}

// Delta is one staged ServerList mutation: a snapshot of the affected
// entry plus the global version it produced. The coordinator forwards
// Deltas to the update dispatcher; ServerList itself never talks to the
// dispatcher directly, so it stays trivially unit-testable.
type Delta struct {
	Version uint64
	Entry   ServerEntry
}

// ServerList is the authoritative, versioned directory of cluster members.
// Slot 0 is reserved and never assigned. All methods assume the caller
// already holds whatever single-writer lock guards coordinator state (see
// internal/coordinator); ServerList carries no lock of its own.
type ServerList struct {
	slots            []slot
	version          uint64
	numberOfMasters  int
	numberOfBackups  int
	trackers         []*Tracker
}

// New returns an empty ServerList with slot 0 reserved.
func New() *ServerList {
	sl := &ServerList{}
	sl.slots = append(sl.slots, slot{}) // slot 0, reserved
	return sl
}

func (sl *ServerList) Version() uint64 { return sl.version }

func (sl *ServerList) NumberOfMasters() int { return sl.numberOfMasters }

func (sl *ServerList) NumberOfBackups() int { return sl.numberOfBackups }

func (sl *ServerList) bumpVersion() uint64 {
	sl.version++
	return sl.version
}

// Add finds the first vacant slot (never slot 0), installs a new UP entry,
// and returns its ServerId along with the staged ADDED delta. Add never
// fails; the list grows on demand.
func (sl *ServerList) Add(locator string, services ServiceMask, readMBps uint32) (ServerId, Delta) {
	idx := sl.firstVacantSlot()
	entry := &ServerEntry{
		ServerId:                 ServerId{Index: idx, Generation: sl.slots[idx].nextGenerationNumber},
		ServiceLocator:           locator,
		Services:                 services,
		ExpectedReadMBytesPerSec: readMBps,
		Status:                   Up,
	}
	sl.slots[idx].entry = entry

	if services.Has(Master) {
		sl.numberOfMasters++
	}
	if services.Has(Backup) {
		sl.numberOfBackups++
	}

	version := sl.bumpVersion()
	sl.fireTrackers(Event{Server: entry.clone(), Kind: Added})
	return entry.ServerId, Delta{Version: version, Entry: *entry}
}

func (sl *ServerList) firstVacantSlot() uint32 {
	for i := 1; i < len(sl.slots); i++ {
		if sl.slots[i].entry == nil {
			return uint32(i)
		}
	}
	sl.slots = append(sl.slots, slot{})
	return uint32(len(sl.slots) - 1)
}

// Lookup fails with a *coordfail-shaped miss (reported by ok=false) on
// absence or generation mismatch, matching NoSuchServer semantics one
// layer up.
func (sl *ServerList) Lookup(id ServerId) (*ServerEntry, bool) {
	if id.IsZero() || int(id.Index) >= len(sl.slots) {
		return nil, false
	}
	s := sl.slots[id.Index]
	if s.entry == nil || s.entry.ServerId.Generation != id.Generation {
		return nil, false
	}
	return s.entry, true
}

// Crashed transitions id to CRASHED. If already CRASHED, it is a no-op
// and no delta is produced.
func (sl *ServerList) Crashed(id ServerId) (*Delta, bool) {
	entry, ok := sl.Lookup(id)
	if !ok {
		return nil, false
	}
	if entry.Status == Crashed {
		return nil, true
	}
	if entry.Status == Up {
		if entry.Services.Has(Master) {
			sl.numberOfMasters--
		}
		if entry.Services.Has(Backup) {
			sl.numberOfBackups--
		}
	}
	entry.Status = Crashed
	version := sl.bumpVersion()
	sl.fireTrackers(Event{Server: entry.clone(), Kind: EntryCrashed})
	return &Delta{Version: version, Entry: *entry}, true
}

// Remove requires the entry to exist at id. If it is still UP it is first
// implicitly crashed (staging that delta), then vacated (staging the DOWN
// delta) — always two deltas, in that order, when starting from UP; one
// delta when starting from CRASHED.
func (sl *ServerList) Remove(id ServerId) ([]Delta, bool) {
	entry, ok := sl.Lookup(id)
	if !ok {
		return nil, false
	}

	var deltas []Delta
	if entry.Status == Up {
		if crashDelta, _ := sl.Crashed(id); crashDelta != nil {
			deltas = append(deltas, *crashDelta)
		}
	}

	entry.Status = Down
	version := sl.bumpVersion()
	deltas = append(deltas, Delta{Version: version, Entry: *entry})
	sl.fireTrackers(Event{Server: entry.clone(), Kind: Removed})

	idx := id.Index
	sl.slots[idx].entry = nil
	sl.slots[idx].nextGenerationNumber++

	return deltas, true
}

// nextIndexWithService scans slots >= from for the first UP entry
// advertising svc, using slices.IndexFunc (adopted from the pack) for
// the ordered index walk (slices.IndexFunc reads the same as a manual loop
// but keeps the scan boundary explicit).
func (sl *ServerList) nextIndexWithService(from uint32, svc ServiceMask) uint32 {
	start := int(from)
	if start < 1 {
		start = 1
	}
	if start >= len(sl.slots) {
		return Sentinel
	}
	rel := slices.IndexFunc(sl.slots[start:], func(s slot) bool {
		return s.entry != nil && s.entry.Status == Up && s.entry.Services.Has(svc)
	})
	if rel < 0 {
		return Sentinel
	}
	return uint32(start + rel)
}

func (sl *ServerList) NextMasterIndex(from uint32) uint32 {
	return sl.nextIndexWithService(from, Master)
}

func (sl *ServerList) NextBackupIndex(from uint32) uint32 {
	return sl.nextIndexWithService(from, Backup)
}

// EntryAt returns the entry installed at idx, if any.
func (sl *ServerList) EntryAt(idx uint32) (*ServerEntry, bool) {
	if int(idx) >= len(sl.slots) || sl.slots[idx].entry == nil {
		return nil, false
	}
	return sl.slots[idx].entry, true
}

// Serialize emits every UP or CRASHED entry (never DOWN, since a DOWN slot
// is already vacant) whose services intersect filter, in ascending slot
// order.
func (sl *ServerList) Serialize(filter ServiceMask) []ServerEntry {
	out := make([]ServerEntry, 0, len(sl.slots))
	for i := 1; i < len(sl.slots); i++ {
		e := sl.slots[i].entry
		if e == nil {
			continue
		}
		if e.Status != Up && e.Status != Crashed {
			continue
		}
		if !e.Services.Intersects(filter) {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// RegisterTracker adds t to the subscriber set. The ServerList owns the
// set; t is only ever pushed to, never queried, so dropping references to
// t elsewhere does not require deregistration for correctness.
func (sl *ServerList) RegisterTracker(t *Tracker) {
	sl.trackers = append(sl.trackers, t)
}

func (sl *ServerList) fireTrackers(ev Event) {
	for _, t := range sl.trackers {
		t.enqueue(ev)
	}
}

func (sl *ServerList) String() string {
	return fmt.Sprintf("ServerList{version=%d masters=%d backups=%d slots=%d}",
		sl.version, sl.numberOfMasters, sl.numberOfBackups, len(sl.slots))
}


