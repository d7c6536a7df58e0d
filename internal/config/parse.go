package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseRunYAML parses a Run from YAML bytes and validates it, the same
// split GoSim's ParseConfigYAML uses: unmarshal, then a dedicated
// validate pass so a malformed document fails with a field-specific
// message instead of a zero-value config silently simulating nothing.
func ParseRunYAML(data []byte) (*Run, error) {
	var run Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("config: parsing run yaml: %w", err)
	}

	if err := validateRun(&run); err != nil {
		return nil, fmt.Errorf("config: invalid run: %w", err)
	}

	return &run, nil
}

func validateRun(r *Run) error {
	if err := validateMachine(&r.Machine); err != nil {
		return fmt.Errorf("machine: %w", err)
	}
	if err := validateStrategy(&r.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return nil
}

func validateMachine(m *Machine) error {
	if m.NumNodes <= 0 {
		return fmt.Errorf("num_nodes must be positive, got %d", m.NumNodes)
	}
	if m.GPUsPerNode <= 0 {
		return fmt.Errorf("gpus_per_node must be positive, got %d", m.GPUsPerNode)
	}
	if m.GPUMemoryCapacity == 0 {
		return fmt.Errorf("gpu_memory_capacity_bytes must be positive")
	}
	if m.NumNodes > 1 && m.InterNodeBandwidth <= 0 {
		return fmt.Errorf("inter_node_bandwidth_bps must be positive when num_nodes > 1")
	}
	if m.GPUsPerNode > 1 && m.IntraNodeBandwidth <= 0 {
		return fmt.Errorf("intra_node_bandwidth_bps must be positive when gpus_per_node > 1")
	}
	return nil
}

func validateStrategy(s *Strategy) error {
	seen := make(map[string]bool, len(s.Operators))
	for _, oc := range s.Operators {
		if oc.Op == "" {
			return fmt.Errorf("operator entry is missing its op name")
		}
		if seen[oc.Op] {
			return fmt.Errorf("duplicate strategy entry for op %q", oc.Op)
		}
		seen[oc.Op] = true

		if len(oc.Dim) == 0 {
			return fmt.Errorf("op %q: dim must have at least one entry", oc.Op)
		}
		nparts := 1
		for _, d := range oc.Dim {
			if d <= 0 {
				return fmt.Errorf("op %q: every dim entry must be positive, got %d", oc.Op, d)
			}
			nparts *= d
		}
		if len(oc.DeviceIDs) != nparts {
			return fmt.Errorf("op %q: dim implies %d parts but device_ids has %d entries",
				oc.Op, nparts, len(oc.DeviceIDs))
		}
	}
	return nil
}
