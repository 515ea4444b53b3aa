package tablet

import "clustercoord/internal/cluster"

// LoadHints maps a candidate master to a load sample (lower is less
// loaded). A selector that ignores load is free to ignore this argument.
type LoadHints map[cluster.ServerId]float64

// MasterSelector picks a master to own a new table from a list of UP
// candidates. candidates is already in ascending slot order
// (ServerList.Serialize's contract).
type MasterSelector interface {
	SelectMaster(candidates []cluster.ServerEntry, hints LoadHints) (cluster.ServerId, bool)
}

// FirstInSlotOrder picks the first master in slot order. It is the
// default selector.
type FirstInSlotOrder struct{}

func (FirstInSlotOrder) SelectMaster(candidates []cluster.ServerEntry, _ LoadHints) (cluster.ServerId, bool) {
	if len(candidates) == 0 {
		return cluster.ServerId{}, false
	}
	return candidates[0].ServerId, true
}

// LeastLoaded picks the candidate with the lowest load hint, breaking ties
// by slot order. Candidates with no hint are treated as load 0, so an
// unsampled cluster degrades to FirstInSlotOrder.
type LeastLoaded struct{}

func (LeastLoaded) SelectMaster(candidates []cluster.ServerEntry, hints LoadHints) (cluster.ServerId, bool) {
	if len(candidates) == 0 {
		return cluster.ServerId{}, false
	}
	best := candidates[0]
	bestLoad := hints[best.ServerId]
	for _, c := range candidates[1:] {
		load := hints[c.ServerId]
		if load < bestLoad {
			best = c
			bestLoad = load
		}
	}
	return best.ServerId, true
}


