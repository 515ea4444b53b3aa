// Package health samples host resource usage for the coordinator's
// pluggable master-selection policy (tablet.LeastLoaded).
package health

import (
	"context"
	"log"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"clustercoord/internal/cluster"
	"clustercoord/internal/tablet"
)

// Sample is one point-in-time load reading for a server, folded into a
// single scalar for tablet.LoadHints: the mean of CPUPercent and
// MemPercent, from 0 (idle) to 100 (saturated).
type Sample struct {
	CPUPercent  float64
	MemPercent  float64
}

func (s Sample) score() float64 {
	return (s.CPUPercent + s.MemPercent) / 2
}

// Sampler tracks the most recent Sample reported by each server, keyed by
// ServerId, and self-samples the coordinator's own host on demand.
type Sampler struct {
	byServer map[cluster.ServerId]Sample
}

func NewSampler() *Sampler {
	return &Sampler{byServer: make(map[cluster.ServerId]Sample)}
}

// Record stores a Sample reported by a member (e.g. in a Ping response).
func (s *Sampler) Record(id cluster.ServerId, sample Sample) {
	s.byServer[id] = sample
}

// Hints converts recorded samples into tablet.LoadHints for the
// LeastLoaded selection policy.
func (s *Sampler) Hints() tablet.LoadHints {
	hints := make(tablet.LoadHints, len(s.byServer))
	for id, sample := range s.byServer {
		hints[id] = sample.score()
	}
	return hints
}

// SampleLocalHost reads this process's host CPU and memory utilization.
// Nothing in this module calls it; it reads the local host's load
// without a live cluster.
func SampleLocalHost(ctx context.Context) (Sample, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuPct float64
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		log.Printf("health: memory sample failed: %v", err)
		return Sample{CPUPercent: cpuPct}, nil
	}

	return Sample{CPUPercent: cpuPct, MemPercent: vm.UsedPercent}, nil
}


