package memorypenalty_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/internal/testutil"
	"github.com/sarchlab/ffsim/memorypenalty"
	"github.com/sarchlab/ffsim/topology"
)

var _ = Describe("Compute", func() {
	It("returns 0 when usage stays within capacity", func() {
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 1, GPUMemoryCapacity: 1 << 30})
		op := testutil.NewFakeOp(1, "a")
		strategy := ffsim.Strategy{op: {NumDims: 1, Dim: [ffsim.MaxDim]int{1}, DeviceIDs: []int{0}}}
		costs := map[ffsim.Op]ffsim.CostMetrics{op: {MemoryRequirement: 1 << 20}}

		Expect(memorypenalty.Compute(topo, strategy, costs)).To(Equal(0.0))
	})

	It("charges 1ms per megabyte over capacity", func() {
		const gb = uint64(1) << 30
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 1, GPUMemoryCapacity: gb})
		op := testutil.NewFakeOp(1, "a")
		strategy := ffsim.Strategy{op: {NumDims: 1, Dim: [ffsim.MaxDim]int{1}, DeviceIDs: []int{0}}}
		costs := map[ffsim.Op]ffsim.CostMetrics{op: {MemoryRequirement: gb + 2_000_000}}

		Expect(memorypenalty.Compute(topo, strategy, costs)).To(BeNumerically("~", 0.002, 1e-9))
	})

	It("aggregates memory usage across every part of a multi-part operator", func() {
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 2, GPUMemoryCapacity: 1 << 20})
		op := testutil.NewFakeOp(1, "dp")
		strategy := ffsim.Strategy{
			op: {NumDims: 1, Dim: [ffsim.MaxDim]int{2}, DeviceIDs: []int{0, 1}},
		}
		costs := map[ffsim.Op]ffsim.CostMetrics{op: {MemoryRequirement: 1 << 19}}

		// Each device only sees 512KB, under the 1MB capacity: no penalty.
		Expect(memorypenalty.Compute(topo, strategy, costs)).To(Equal(0.0))
	})
})
