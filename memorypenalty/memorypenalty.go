// Package memorypenalty aggregates per-device memory usage implied by a
// strategy and converts any capacity overrun into an additive makespan
// penalty.
package memorypenalty

import (
	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/topology"
)

// bytesPerMillisecond converts bytes of capacity overrun into a
// millisecond-scale penalty: 1 MB over budget costs 1 ms. Every other
// duration in this simulator (forward/backward times, transfer times
// computed from bandwidth) is a float in seconds, so "1 ms" here means
// 0.001, not 1.0 — hence 1e-9 per byte rather than the 1e-6 a millisecond-
// denominated engine would use.
const bytesPerMillisecond = 1e-9

// Compute returns the additive memory penalty, in seconds, for strategy
// given costs (the per-operator CostMetrics graphbuilder already measured
// via the cost oracle — memorypenalty never re-invokes the oracle itself).
func Compute(topo *topology.Topology, strategy ffsim.Strategy, costs map[ffsim.Op]ffsim.CostMetrics) float64 {
	usage := make(map[int]uint64)

	for op, config := range strategy {
		cm := costs[op]
		for j := 0; j < config.NumParts(); j++ {
			usage[config.DeviceIDs[j]] += cm.MemoryRequirement
		}
	}

	var penalty float64
	for deviceID, used := range usage {
		capacity := topo.Compute(deviceID).Capacity
		if used > capacity {
			penalty += float64(used-capacity) * bytesPerMillisecond
		}
	}

	return penalty
}
