// Package config loads and validates the YAML documents ffsim's CLI
// accepts: a machine topology and a strategy (one ParallelConfig per
// named operator), following the parse-then-validate shape
// GoSim-25-26J-441-simulation-core/pkg/config uses for its own Config and
// Scenario documents.
package config

// Machine is the YAML-facing mirror of topology.Machine. It is kept as a
// separate type (instead of adding yaml tags directly to topology.Machine)
// so the topology package stays free of a config-format dependency.
type Machine struct {
	NumNodes           int     `yaml:"num_nodes"`
	GPUsPerNode        int     `yaml:"gpus_per_node"`
	IntraNodeBandwidth float64 `yaml:"intra_node_bandwidth_bps"`
	InterNodeBandwidth float64 `yaml:"inter_node_bandwidth_bps"`
	GPUToHostBandwidth float64 `yaml:"gpu_to_host_bandwidth_bps"`
	HostToGPUBandwidth float64 `yaml:"host_to_gpu_bandwidth_bps"`
	GPUMemoryCapacity  uint64  `yaml:"gpu_memory_capacity_bytes"`
}

// OperatorConfig is one entry of a strategy document: the parallel
// partitioning of a single named operator.
type OperatorConfig struct {
	Op         string `yaml:"op"`
	DeviceType int    `yaml:"device_type"`
	Dim        []int  `yaml:"dim"`
	DeviceIDs  []int  `yaml:"device_ids"`
}

// Strategy is the YAML-facing list form of an ffsim.Strategy; cmd/ffsim
// resolves each entry's Op name against the loaded model's layers to
// build the map ffsim.Strategy actually is.
type Strategy struct {
	Operators []OperatorConfig `yaml:"operators"`
}

// Run bundles everything a single `ffsim run` invocation needs beyond the
// trace directory: the hardware to simulate over, the compute mode, whether
// to use the NCCL blocking-cost path instead of explicit weight-sync tasks,
// and which weight-synchronization wiring the graph builder should use when
// it isn't.
type Run struct {
	Machine  Machine  `yaml:"machine"`
	Strategy Strategy `yaml:"strategy"`
	Training bool     `yaml:"training"`
	UseNCCL  bool     `yaml:"use_nccl"`

	// OverlapBackwardUpdate selects overlap-with-backward weight-sync
	// wiring (graphbuilder.buildOverlapUpdates) over the bulk-synchronous
	// alternative (graphbuilder.buildBulkSynchronousUpdates) on the
	// non-NCCL path; it is the YAML-facing form of
	// ffsim.Model.SearchOverlapBackward.
	OverlapBackwardUpdate bool `yaml:"overlap_backward_update"`
}
