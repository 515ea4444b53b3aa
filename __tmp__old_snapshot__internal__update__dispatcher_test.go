package update

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clustercoord/internal/cluster"
)

type fakeSource struct {
	entries []cluster.ServerEntry
}

func (f *fakeSource) Serialize(filter cluster.ServiceMask) []cluster.ServerEntry {
	var out []cluster.ServerEntry
	for _, e := range f.entries {
		if e.Services.Intersects(filter) {
			out = append(out, e)
		}
	}
	return out
}

type fakePusher struct {
	mu        sync.Mutex
	delivered []string
	lostOnce  map[string]bool
	fail      map[string]bool
}

func (p *fakePusher) PushDelta(locator string, delta []cluster.ServerEntry, version uint64, checksum uint16) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[locator] {
		return false, errFake
	}
	p.delivered = append(p.delivered, "delta:"+locator)
	if p.lostOnce != nil && p.lostOnce[locator] {
		delete(p.lostOnce, locator)
		return true, nil
	}
	return false, nil
}

func (p *fakePusher) PushFull(locator string, full []cluster.ServerEntry, version uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = append(p.delivered, "full:"+locator)
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errFake = errString("fake push failure")

type fakeHinter struct {
	mu    sync.Mutex
	hints []string
}

func (h *fakeHinter) HintServerDown(locator string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hints = append(h.hints, locator)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBroadcastExcludesFilteredAndExcludedRecipients(t *testing.T) {
	source := &fakeSource{entries: []cluster.ServerEntry{
		{ServerId: cluster.ServerId{Index: 1}, Services: cluster.Ping, ServiceLocator: "s1"},
		{ServerId: cluster.ServerId{Index: 2}, Services: cluster.Membership, ServiceLocator: "s2"},
	}}
	pusher := &fakePusher{}
	d := NewDispatcher(source, pusher, nil)
	go d.Run()

	d.Enqueue(1, nil, cluster.ServerId{Index: 2})
	d.Halt()

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	require.Empty(t, pusher.delivered)
}

func TestLostUpdatesTriggersFullPush(t *testing.T) {
	source := &fakeSource{entries: []cluster.ServerEntry{
		{ServerId: cluster.ServerId{Index: 2}, Services: cluster.Membership, ServiceLocator: "s2"},
	}}
	pusher := &fakePusher{lostOnce: map[string]bool{"s2": true}}
	d := NewDispatcher(source, pusher, nil)
	go d.Run()

	d.Enqueue(1, nil)
	d.Halt()

	require.Equal(t, []string{"delta:s2", "full:s2"}, pusher.delivered)
}

func TestExhaustedRetryBudgetHintsServerDown(t *testing.T) {
	source := &fakeSource{entries: []cluster.ServerEntry{
		{ServerId: cluster.ServerId{Index: 2}, Services: cluster.Membership, ServiceLocator: "flaky"},
	}}
	pusher := &fakePusher{fail: map[string]bool{"flaky": true}}
	hinter := &fakeHinter{}
	d := NewDispatcher(source, pusher, hinter)
	go d.Run()

	d.Enqueue(1, nil)
	d.Halt()

	require.Equal(t, []string{"flaky"}, hinter.hints)
}


