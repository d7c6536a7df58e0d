package simulator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/internal/testutil"
	"github.com/sarchlab/ffsim/simulator"
	"github.com/sarchlab/ffsim/topology"
)

func fullDomain(n int64) ffsim.Domain {
	return ffsim.Domain{NumDims: 1, Lo: [ffsim.MaxDim]int64{0}, Hi: [ffsim.MaxDim]int64{n}}
}

func singlePart(deviceID int) ffsim.ParallelConfig {
	return ffsim.ParallelConfig{NumDims: 1, Dim: [ffsim.MaxDim]int{1}, DeviceIDs: []int{deviceID}}
}

var _ = Describe("Simulator", func() {
	It("scenario 1: single op, single GPU, inference", func() {
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 1, GPUMemoryCapacity: 1 << 30})
		sim := simulator.New(topo, 1<<20, 16)

		op := testutil.NewFakeOp(1, "only")
		op.ForwardTime = 0.005
		op.BackwardTime = 0.010

		model := ffsim.Model{Layers: []ffsim.Op{op}}
		strategy := ffsim.Strategy{op: singlePart(0)}

		makespan, err := sim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(makespan).To(BeNumerically("~", 0.005, 1e-9))
	})

	It("scenario 2: two ops, chain, same device", func() {
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 1, GPUMemoryCapacity: 1 << 30})
		sim := simulator.New(topo, 1<<20, 16)

		opA := testutil.NewFakeOp(1, "a")
		opA.ForwardTime = 0.003
		opA.OutputShapeFn = func(ffsim.ParallelConfig, int, int) ffsim.Domain { return fullDomain(1_000_000) }

		opB := testutil.NewFakeOp(2, "b")
		opB.ForwardTime = 0.004
		opB.Inputs = []ffsim.TensorInput{{OwnerOp: opA, OwnerIndex: 0}}
		opB.InputShapeFn = func(ffsim.ParallelConfig, int, int) ffsim.Domain { return fullDomain(1_000_000) }

		model := ffsim.Model{Layers: []ffsim.Op{opA, opB}}
		strategy := ffsim.Strategy{opA: singlePart(0), opB: singlePart(0)}

		makespan, err := sim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(makespan).To(BeNumerically("~", 0.007, 1e-9))
	})

	It("scenario 3: two ops, chain, two GPUs same node", func() {
		topo := topology.New(topology.Machine{
			NumNodes: 1, GPUsPerNode: 2,
			IntraNodeBandwidth: 1e10,
			GPUMemoryCapacity:  1 << 30,
		})
		sim := simulator.New(topo, 1<<20, 16)

		opA := testutil.NewFakeOp(1, "a")
		opA.ForwardTime = 0.003
		opA.OutputShapeFn = func(ffsim.ParallelConfig, int, int) ffsim.Domain { return fullDomain(1_000_000) }

		opB := testutil.NewFakeOp(2, "b")
		opB.ForwardTime = 0.004
		opB.Inputs = []ffsim.TensorInput{{OwnerOp: opA, OwnerIndex: 0}}
		opB.InputShapeFn = func(ffsim.ParallelConfig, int, int) ffsim.Domain { return fullDomain(1_000_000) }

		model := ffsim.Model{Layers: []ffsim.Op{opA, opB}}
		strategy := ffsim.Strategy{opA: singlePart(0), opB: singlePart(1)}

		makespan, err := sim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(makespan).To(BeNumerically("~", 0.0074, 1e-9))
	})

	It("scenario 4: inter-node transfer", func() {
		topo := topology.New(topology.Machine{
			NumNodes: 2, GPUsPerNode: 1,
			InterNodeBandwidth: 5e9,
			GPUToHostBandwidth: 2e10,
			HostToGPUBandwidth: 2e10,
			GPUMemoryCapacity:  1 << 30,
		})
		sim := simulator.New(topo, 1<<20, 16)

		opA := testutil.NewFakeOp(1, "a")
		opA.ForwardTime = 0.003
		opA.OutputShapeFn = func(ffsim.ParallelConfig, int, int) ffsim.Domain { return fullDomain(1_000_000) }

		opB := testutil.NewFakeOp(2, "b")
		opB.ForwardTime = 0.004
		opB.Inputs = []ffsim.TensorInput{{OwnerOp: opA, OwnerIndex: 0}}
		opB.InputShapeFn = func(ffsim.ParallelConfig, int, int) ffsim.Domain { return fullDomain(1_000_000) }

		model := ffsim.Model{Layers: []ffsim.Op{opA, opB}}
		strategy := ffsim.Strategy{opA: singlePart(0), opB: singlePart(1)}

		makespan, err := sim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(makespan).To(BeNumerically("~", 0.0082, 1e-9))
	})

	It("scenario 5: memory penalty added to the makespan", func() {
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 1, GPUMemoryCapacity: 1_000_000_000})
		sim := simulator.New(topo, 1<<20, 16)

		op := testutil.NewFakeOp(1, "only")
		op.MemoryReq = 1_002_000_000 // 2,000,000 bytes over the 1,000,000,000-byte capacity

		model := ffsim.Model{Layers: []ffsim.Op{op}}
		strategy := ffsim.Strategy{op: singlePart(0)}

		makespan, err := sim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(makespan).To(BeNumerically("~", 0.002, 1e-9))
	})

	It("scenario 6: bulk-synchronous weight sync adds the barrier round trip", func() {
		topo := topology.New(topology.Machine{
			NumNodes: 1, GPUsPerNode: 2,
			IntraNodeBandwidth: 1e10,
			GPUMemoryCapacity:  1 << 30,
		})
		sim := simulator.New(topo, 1<<20, 32)

		op := testutil.NewFakeOp(1, "dp")
		op.BackwardTime = 0.003
		op.NumW = 1
		op.WeightShapeFn = func(ffsim.ParallelConfig, int, int) ffsim.Domain { return fullDomain(1_000_000) }

		config := ffsim.ParallelConfig{NumDims: 1, Dim: [ffsim.MaxDim]int{2}, DeviceIDs: []int{0, 1}}
		model := ffsim.Model{Layers: []ffsim.Op{op}, SearchOverlapBackward: false}
		strategy := ffsim.Strategy{op: config}

		makespan, err := sim.Simulate(model, strategy, ffsim.Training, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(makespan).To(BeNumerically("~", 0.0038, 1e-9))
	})

	It("never re-invokes the probe for the same (op, config) across two Simulate calls", func() {
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 1, GPUMemoryCapacity: 1 << 30})
		sim := simulator.New(topo, 1<<20, 16)

		op := testutil.NewFakeOp(1, "only")
		op.ForwardTime = 0.001
		model := ffsim.Model{Layers: []ffsim.Op{op}}
		strategy := ffsim.Strategy{op: singlePart(0)}

		_, err := sim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())
		_, err = sim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())

		Expect(*op.ProbeCalls).To(Equal(1))
	})

	It("gives training makespan at least as large as inference on the same model", func() {
		topo := topology.New(topology.Machine{NumNodes: 1, GPUsPerNode: 1, GPUMemoryCapacity: 1 << 30})

		op := testutil.NewFakeOp(1, "only")
		op.ForwardTime = 0.003
		op.BackwardTime = 0.005
		model := ffsim.Model{Layers: []ffsim.Op{op}}
		strategy := ffsim.Strategy{op: singlePart(0)}

		infSim := simulator.New(topo, 1<<20, 16)
		inference, err := infSim.Simulate(model, strategy, ffsim.Inference, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())

		trainSim := simulator.New(topo, 1<<20, 16)
		training, err := trainSim.Simulate(model, strategy, ffsim.Training, simulator.Options{})
		Expect(err).NotTo(HaveOccurred())

		Expect(training).To(BeNumerically(">=", inference))
	})
})
