package tablet

import "clustercoord/internal/cluster"

// TabletMap is the authoritative, unordered set of tablets across every
// table. Order is immaterial, so a swap-remove slice suffices.
type TabletMap struct {
	tablets []Tablet
}

func NewTabletMap() *TabletMap {
	return &TabletMap{}
}

func (m *TabletMap) Add(t Tablet) {
	m.tablets = append(m.tablets, t)
}

// RemoveTable removes every tablet belonging to tableId, filtering the
// slice in place, and returns them.
func (m *TabletMap) RemoveTable(tableId uint64) []Tablet {
	var removed []Tablet
	out := m.tablets[:0]
	for _, t := range m.tablets {
		if t.TableId == tableId {
			removed = append(removed, t)
			continue
		}
		out = append(out, t)
	}
	m.tablets = out
	return removed
}

func (m *TabletMap) ForTable(tableId uint64) []Tablet {
	var out []Tablet
	for _, t := range m.tablets {
		if t.TableId == tableId {
			out = append(out, t)
		}
	}
	return out
}

func (m *TabletMap) OwnedBy(id cluster.ServerId) []Tablet {
	var out []Tablet
	for _, t := range m.tablets {
		if t.ServerId == id {
			out = append(out, t)
		}
	}
	return out
}

// All returns every tablet in the map; callers must not mutate the result
// in place.
func (m *TabletMap) All() []Tablet {
	return m.tablets
}

// MarkRecovering flips every tablet owned by id to the RECOVERING state,
// used when the owning master is hinted down.
func (m *TabletMap) MarkRecovering(id cluster.ServerId) {
	for i := range m.tablets {
		if m.tablets[i].ServerId == id {
			m.tablets[i].State = Recovering
		}
	}
}

// Reassign finds the tablet matching (tableId, start, end) and reassigns
// it to newOwner with a NORMAL state and refreshed locator, returning
// whether a match was found.
func (m *TabletMap) Reassign(tableId, start, end uint64, newOwner cluster.ServerId, locator string) bool {
	for i := range m.tablets {
		t := &m.tablets[i]
		if t.TableId == tableId && t.StartKey == start && t.EndKey == end {
			t.State = Normal
			t.ServerId = newOwner
			t.ServiceLocator = locator
			return true
		}
	}
	return false
}

// CoversWholeRange reports whether tableId's tablets exactly tile
// [0, EndOfKeyspace] with no overlap and no gap.
func (m *TabletMap) CoversWholeRange(tableId uint64) bool {
	ranges := m.ForTable(tableId)
	if len(ranges) == 0 {
		return false
	}
	type span struct{ start, end uint64 }
	spans := make([]span, 0, len(ranges))
	for _, t := range ranges {
		spans = append(spans, span{t.StartKey, t.EndKey})
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start <= spans[j].end && spans[j].start <= spans[i].end {
				return false // overlap
			}
		}
	}
	// sort a copy by start, then check contiguity from 0 to EndOfKeyspace.
	sorted := append([]span(nil), spans...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].start < sorted[i].start {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	if sorted[0].start != 0 {
		return false
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].start != sorted[i-1].end+1 {
			return false
		}
	}
	return sorted[len(sorted)-1].end == EndOfKeyspace
}


