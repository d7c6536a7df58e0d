package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/internal/config"
	"github.com/sarchlab/ffsim/internal/testutil"
)

const validYAML = `
machine:
  num_nodes: 1
  gpus_per_node: 2
  intra_node_bandwidth_bps: 1e10
  gpu_memory_capacity_bytes: 1073741824
strategy:
  operators:
    - op: conv1
      dim: [2]
      device_ids: [0, 1]
training: true
use_nccl: false
`

var _ = Describe("ParseRunYAML", func() {
	It("parses and validates a well-formed document", func() {
		run, err := config.ParseRunYAML([]byte(validYAML))
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Machine.GPUsPerNode).To(Equal(2))
		Expect(run.Strategy.Operators).To(HaveLen(1))
		Expect(run.Training).To(BeTrue())
		Expect(run.OverlapBackwardUpdate).To(BeFalse())
	})

	It("parses overlap_backward_update when the document sets it", func() {
		run, err := config.ParseRunYAML([]byte(validYAML + "overlap_backward_update: true\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(run.OverlapBackwardUpdate).To(BeTrue())
	})

	It("rejects a machine with zero gpus_per_node", func() {
		_, err := config.ParseRunYAML([]byte(`
machine:
  num_nodes: 1
  gpus_per_node: 0
  gpu_memory_capacity_bytes: 1024
strategy:
  operators: []
`))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a multi-node machine with no inter-node bandwidth", func() {
		_, err := config.ParseRunYAML([]byte(`
machine:
  num_nodes: 2
  gpus_per_node: 1
  gpu_memory_capacity_bytes: 1024
strategy:
  operators: []
`))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a strategy entry whose device_ids count doesn't match dim", func() {
		_, err := config.ParseRunYAML([]byte(`
machine:
  num_nodes: 1
  gpus_per_node: 2
  gpu_memory_capacity_bytes: 1024
strategy:
  operators:
    - op: conv1
      dim: [2]
      device_ids: [0]
`))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a duplicate strategy entry for the same op", func() {
		_, err := config.ParseRunYAML([]byte(`
machine:
  num_nodes: 1
  gpus_per_node: 1
  gpu_memory_capacity_bytes: 1024
strategy:
  operators:
    - op: conv1
      dim: [1]
      device_ids: [0]
    - op: conv1
      dim: [1]
      device_ids: [0]
`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Machine.Topology", func() {
	It("carries every field through to topology.Machine", func() {
		run, err := config.ParseRunYAML([]byte(validYAML))
		Expect(err).NotTo(HaveOccurred())

		topo := run.Machine.Topology()
		Expect(topo.GPUsPerNode).To(Equal(2))
		Expect(topo.IntraNodeBandwidth).To(BeNumerically("~", 1e10, 1))
	})
})

var _ = Describe("Strategy.Resolve", func() {
	It("resolves each operator config against the matching model layer by name", func() {
		op := testutil.NewFakeOp(1, "conv1")
		model := ffsim.Model{Layers: []ffsim.Op{op}}

		strategy := config.Strategy{Operators: []config.OperatorConfig{
			{Op: "conv1", Dim: []int{2}, DeviceIDs: []int{0, 1}},
		}}

		resolved, err := strategy.Resolve(model)
		Expect(err).NotTo(HaveOccurred())
		Expect(resolved[op].NumParts()).To(Equal(2))
		Expect(resolved[op].DeviceIDs).To(Equal([]int{0, 1}))
	})

	It("errors when a model layer has no matching strategy entry", func() {
		op := testutil.NewFakeOp(1, "conv1")
		model := ffsim.Model{Layers: []ffsim.Op{op}}

		strategy := config.Strategy{}
		_, err := strategy.Resolve(model)
		Expect(err).To(HaveOccurred())
	})
})
