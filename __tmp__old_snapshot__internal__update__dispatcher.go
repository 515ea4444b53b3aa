// Package update implements the UpdateDispatcher: an ordered queue of
// ServerList deltas broadcast to every membership-subscribed cluster
// member.
package update

import (
	"encoding/gob"
	"bytes"
	"log"
	"sync"

	"github.com/howeyc/crc16"

	"clustercoord/internal/cluster"
)

// Item is one staged ServerList mutation queued for broadcast.
type Item struct {
	Version  uint64
	Delta    []cluster.ServerEntry
	Exclude  map[cluster.ServerId]bool
	checksum uint16
}

func checksumOf(delta []cluster.ServerEntry) uint16 {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(delta)
	return crc16.Checksum(buf.Bytes(), crc16.IBMTable)
}

// MembershipSource supplies the current set of MEMBERSHIP-advertising
// members to broadcast to. cluster.ServerList satisfies this directly.
type MembershipSource interface {
	Serialize(filter cluster.ServiceMask) []cluster.ServerEntry
}

// Pusher is the collaborator that actually delivers a delta or a full
// resync to one recipient.
type Pusher interface {
	PushDelta(locator string, delta []cluster.ServerEntry, version uint64, checksum uint16) (lostUpdates bool, err error)
	PushFull(locator string, full []cluster.ServerEntry, version uint64) error
}

// FailureHinter is invoked when a recipient exhausts its retry budget; the
// dispatcher never calls hintServerDown itself; it goes through this
// narrow interface so internal/update does not need to depend on
// internal/recovery.
type FailureHinter interface {
	HintServerDown(locator string)
}

const defaultRetryBudget = 3

// Dispatcher buffers deltas and drains them on a background worker.
type Dispatcher struct {
	mu           sync.Mutex
	queue        []Item
	notify       chan struct{}
	stopCh       chan struct{}
	haltCh       chan struct{}
	done         chan struct{}
	source       MembershipSource
	pusher       Pusher
	hinter       FailureHinter
	retryBudget  int
}

func NewDispatcher(source MembershipSource, pusher Pusher, hinter FailureHinter) *Dispatcher {
	return &Dispatcher{
		notify:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		haltCh:      make(chan struct{}),
		done:        make(chan struct{}),
		source:      source,
		pusher:      pusher,
		hinter:      hinter,
		retryBudget: defaultRetryBudget,
	}
}

// Enqueue stages a delta for broadcast, excluding any ServerId in exclude
// (used so a newly-added server does not receive its own birth
// announcement before it is ready to interpret updates).
func (d *Dispatcher) Enqueue(version uint64, delta []cluster.ServerEntry, exclude ...cluster.ServerId) {
	item := Item{Version: version, Delta: delta, checksum: checksumOf(delta)}
	if len(exclude) > 0 {
		item.Exclude = make(map[cluster.ServerId]bool, len(exclude))
		for _, id := range exclude {
			item.Exclude[id] = true
		}
	}
	d.mu.Lock()
	d.queue = append(d.queue, item)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Run drains the queue until Halt or Stop is called. Run is meant to be
// launched with `go dispatcher.Run()`.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for {
		select {
		case <-d.stopCh:
			return
		case <-d.haltCh:
			d.drainOnce()
			return
		case <-d.notify:
			d.drainOnce()
		}
	}
}

func (d *Dispatcher) drainOnce() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		item := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.broadcast(item)
	}
}

func (d *Dispatcher) broadcast(item Item) {
	recipients := d.source.Serialize(cluster.Membership)
	for _, r := range recipients {
		if item.Exclude != nil && item.Exclude[r.ServerId] {
			continue
		}
		d.deliver(r, item)
	}
}

func (d *Dispatcher) deliver(recipient cluster.ServerEntry, item Item) {
	var lastErr error
	for attempt := 0; attempt < d.retryBudget; attempt++ {
		lostUpdates, err := d.pusher.PushDelta(recipient.ServiceLocator, item.Delta, item.Version, item.checksum)
		if err != nil {
			lastErr = err
			continue
		}
		if lostUpdates {
			// Update broadcasts are delivered in monotonically increasing
			// version order; a superseded delta is promoted to a full push
			// rather than dropped.
			full := d.source.Serialize(cluster.Master | cluster.Backup | cluster.Membership | cluster.Ping)
			if err := d.pusher.PushFull(recipient.ServiceLocator, full, item.Version); err != nil {
				lastErr = err
				continue
			}
		}
		return
	}
	log.Printf("update dispatcher: %s exhausted retry budget: %v", recipient.ServiceLocator, lastErr)
	if d.hinter != nil {
		d.hinter.HintServerDown(recipient.ServiceLocator)
	}
}

// Halt drains whatever is queued, then stops (drain-and-stop).
func (d *Dispatcher) Halt() {
	close(d.haltCh)
	<-d.done
}

// Stop stops immediately without draining, for test harnesses.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.done
}


