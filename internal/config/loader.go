package config

import (
	"fmt"
	"os"

	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/topology"
)

// LoadRun reads and parses a Run document from path.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	run, err := ParseRunYAML(data)
	if err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}

	return run, nil
}

// Topology converts the YAML-facing Machine into a topology.Machine.
func (m Machine) Topology() topology.Machine {
	return topology.Machine{
		NumNodes:           m.NumNodes,
		GPUsPerNode:        m.GPUsPerNode,
		IntraNodeBandwidth: m.IntraNodeBandwidth,
		InterNodeBandwidth: m.InterNodeBandwidth,
		GPUToHostBandwidth: m.GPUToHostBandwidth,
		HostToGPUBandwidth: m.HostToGPUBandwidth,
		GPUMemoryCapacity:  m.GPUMemoryCapacity,
	}
}

// Resolve turns the YAML strategy (operator names) into an ffsim.Strategy
// (operator values), matching each OperatorConfig against model's layers
// by name. Every layer must have exactly one matching entry: a model
// operator ffsim has no strategy for cannot be scheduled, so that is a
// configuration error rather than a default-config fallback.
func (s Strategy) Resolve(model ffsim.Model) (ffsim.Strategy, error) {
	byName := make(map[string]OperatorConfig, len(s.Operators))
	for _, oc := range s.Operators {
		byName[oc.Op] = oc
	}

	strategy := make(ffsim.Strategy, len(model.Layers))
	for _, op := range model.Layers {
		oc, ok := byName[op.Name()]
		if !ok {
			return nil, fmt.Errorf("config: no strategy entry for op %q", op.Name())
		}

		var dim [ffsim.MaxDim]int
		if len(oc.Dim) > ffsim.MaxDim {
			return nil, fmt.Errorf("config: op %q: dim has %d axes, max is %d", op.Name(), len(oc.Dim), ffsim.MaxDim)
		}
		copy(dim[:], oc.Dim)

		strategy[op] = ffsim.ParallelConfig{
			DeviceType: oc.DeviceType,
			NumDims:    len(oc.Dim),
			Dim:        dim,
			DeviceIDs:  oc.DeviceIDs,
		}
	}

	return strategy, nil
}
