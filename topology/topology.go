// Package topology provides an immutable registry of compute devices and
// communication links annotated with bandwidths and memory capacities.
package topology

import "fmt"

// DeviceType distinguishes a compute device from a communication link.
type DeviceType int

// DeviceType values.
const (
	Compute DeviceType = iota
	Comm
)

// A Device is either a compute GPU (NodeID/GPUID/Capacity set, Bandwidth
// unused) or a communication link (Bandwidth set, NodeID = GPUID = -1). A
// Device is immutable once the Topology that owns it has been built.
type Device struct {
	Type      DeviceType
	NodeID    int
	GPUID     int
	Capacity  uint64
	Bandwidth float64 // bytes/sec
}

func newComputeDevice(nodeID, gpuID int, capacity uint64) *Device {
	return &Device{Type: Compute, NodeID: nodeID, GPUID: gpuID, Capacity: capacity}
}

func newCommDevice(bandwidth float64) *Device {
	return &Device{Type: Comm, NodeID: -1, GPUID: -1, Bandwidth: bandwidth}
}

type gpuPair struct{ src, dst int }
type nodePair struct{ src, dst int }

// Machine describes the hardware the Topology should construct, mirroring
// the flags triosim/triosim/main.go exposes at the CLI (bandwidth,
// ptp-bandwidth, GPUnumber, capacity) generalized to a multi-node mesh.
type Machine struct {
	NumNodes             int
	GPUsPerNode          int
	IntraNodeBandwidth   float64 // bytes/sec, GPU<->GPU within a node
	InterNodeBandwidth   float64 // bytes/sec, DRAM<->DRAM across nodes
	GPUToHostBandwidth   float64 // bytes/sec
	HostToGPUBandwidth   float64 // bytes/sec
	GPUMemoryCapacity    uint64  // bytes, per GPU
}

// Topology owns every Device value and the lookup maps used to resolve a
// device by the ids the strategy/graph builder address it with. Every
// lookup that is queried with an id pair the Machine did not register
// panics rather than returning an error: the caller (graph builder) only
// ever constructs ids from the topology it was given, so a miss is a
// programmer error.
type Topology struct {
	machine Machine

	computeByDeviceID map[int]*Device
	intraNodeLink     map[gpuPair]*Device
	gpuToDram         map[int]*Device
	dramToGPU         map[int]*Device
	interNodeLink     map[nodePair]*Device

	totalGPUs int
}

// New builds a Topology for m: one compute Device per GPU, plus every
// directed communication Device the graph builder might need to resolve
// (intra-node GPU<->GPU, GPU<->host DRAM, inter-node DRAM<->DRAM).
func New(m Machine) *Topology {
	t := &Topology{
		machine:           m,
		computeByDeviceID: make(map[int]*Device),
		intraNodeLink:     make(map[gpuPair]*Device),
		gpuToDram:         make(map[int]*Device),
		dramToGPU:         make(map[int]*Device),
		interNodeLink:     make(map[nodePair]*Device),
	}

	t.totalGPUs = m.NumNodes * m.GPUsPerNode

	for node := 0; node < m.NumNodes; node++ {
		for g := 0; g < m.GPUsPerNode; g++ {
			id := node*m.GPUsPerNode + g
			t.computeByDeviceID[id] = newComputeDevice(node, id, m.GPUMemoryCapacity)
		}
	}

	for node := 0; node < m.NumNodes; node++ {
		base := node * m.GPUsPerNode
		for i := 0; i < m.GPUsPerNode; i++ {
			for j := 0; j < m.GPUsPerNode; j++ {
				if i == j {
					continue
				}
				src, dst := base+i, base+j
				t.intraNodeLink[gpuPair{src, dst}] = newCommDevice(m.IntraNodeBandwidth)
			}
		}
	}

	for id := 0; id < t.totalGPUs; id++ {
		t.gpuToDram[id] = newCommDevice(m.GPUToHostBandwidth)
		t.dramToGPU[id] = newCommDevice(m.HostToGPUBandwidth)
	}

	for i := 0; i < m.NumNodes; i++ {
		for j := 0; j < m.NumNodes; j++ {
			if i == j {
				continue
			}
			t.interNodeLink[nodePair{i, j}] = newCommDevice(m.InterNodeBandwidth)
		}
	}

	return t
}

// TotalGPUs returns the number of compute devices registered.
func (t *Topology) TotalGPUs() int { return t.totalGPUs }

// Compute resolves a compute device by its flat device id.
func (t *Topology) Compute(deviceID int) *Device {
	d, ok := t.computeByDeviceID[deviceID]
	if !ok {
		panic(fmt.Sprintf("topology: no compute device with id %d", deviceID))
	}
	return d
}

// IntraNodeLink resolves the GPU<->GPU link within one node.
func (t *Topology) IntraNodeLink(srcGPUID, dstGPUID int) *Device {
	d, ok := t.intraNodeLink[gpuPair{srcGPUID, dstGPUID}]
	if !ok {
		panic(fmt.Sprintf("topology: no intra-node link %d->%d", srcGPUID, dstGPUID))
	}
	return d
}

// GPUToDram resolves the GPU->host link for gpuID.
func (t *Topology) GPUToDram(gpuID int) *Device {
	d, ok := t.gpuToDram[gpuID]
	if !ok {
		panic(fmt.Sprintf("topology: no gpu->dram link for gpu %d", gpuID))
	}
	return d
}

// DramToGPU resolves the host->GPU link for gpuID.
func (t *Topology) DramToGPU(gpuID int) *Device {
	d, ok := t.dramToGPU[gpuID]
	if !ok {
		panic(fmt.Sprintf("topology: no dram->gpu link for gpu %d", gpuID))
	}
	return d
}

// InterNodeLink resolves the DRAM<->DRAM link between two nodes.
func (t *Topology) InterNodeLink(srcNodeID, dstNodeID int) *Device {
	d, ok := t.interNodeLink[nodePair{srcNodeID, dstNodeID}]
	if !ok {
		panic(fmt.Sprintf("topology: no inter-node link %d->%d", srcNodeID, dstNodeID))
	}
	return d
}
