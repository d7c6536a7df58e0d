// Package graphbuilder expands a model and strategy into the fine-grained
// task DAG a scheduler can list-schedule: one compute task per operator
// part, one chain of communication tasks per cross-device dependency, and
// (outside the NCCL path) the barrier/update tasks that realize weight
// synchronization. Grounded on FlexFlow's simulate_runtime Steps 1-3.
package graphbuilder

import (
	"fmt"

	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/costoracle"
	"github.com/sarchlab/ffsim/taskpool"
	"github.com/sarchlab/ffsim/topology"
)

const bytesPerElement = 4 // sizeof(float32)

// Result is what Build hands back to the simulator: the per-operator costs
// it measured along the way, so the memory penalizer can reuse them without
// re-invoking the cost oracle.
type Result struct {
	Costs map[ffsim.Op]ffsim.CostMetrics
}

// Build runs Pass A (compute tasks), Pass B (cross-operator data
// dependencies), and, when useNCCL is false, Pass C (weight
// synchronization via barrier/update tasks) against pool. It allocates
// every task through pool and topo; the caller is expected to have just
// Reset the pool. Fatal configuration and programmer errors panic (pool
// exhaustion, topology lookup miss, weight all-or-nothing violation);
// Build itself returns no error.
func Build(
	pool *taskpool.Pool,
	topo *topology.Topology,
	oracle *costoracle.Oracle,
	model ffsim.Model,
	strategy ffsim.Strategy,
	mode ffsim.ComputeMode,
	useNCCL bool,
) *Result {
	costs := make(map[ffsim.Op]ffsim.CostMetrics, len(model.Layers))

	passA(pool, topo, oracle, model, strategy, mode, costs)
	passB(pool, topo, model, strategy, mode)
	if !useNCCL {
		passC(pool, topo, model, strategy, mode)
	}

	return &Result{Costs: costs}
}

// passA creates one forward (and, in Training, one backward) compute task
// per operator part, bound to the device the strategy assigns it.
func passA(
	pool *taskpool.Pool,
	topo *topology.Topology,
	oracle *costoracle.Oracle,
	model ffsim.Model,
	strategy ffsim.Strategy,
	mode ffsim.ComputeMode,
	costs map[ffsim.Op]ffsim.CostMetrics,
) {
	for _, op := range model.Layers {
		config := strategy[op]
		cm := oracle.Cost(op, config)
		costs[op] = cm

		for j := 0; j < config.NumParts(); j++ {
			fwd := pool.NewForward(op.ID(), op.Name(), j)
			fwd.Device = topo.Compute(config.DeviceIDs[j])
			fwd.RunTime = cm.ForwardTime

			if mode == ffsim.Training {
				bwd := pool.NewBackward(op.ID(), op.Name(), j)
				bwd.Device = topo.Compute(config.DeviceIDs[j])
				bwd.RunTime = cm.BackwardTime
				fwd.AddNext(bwd)
			}
		}
	}
}

// passB wires forward dependency edges (and, in Training, their mirrored
// backward edges) between every pair of producer/consumer parts whose
// tiles overlap.
func passB(
	pool *taskpool.Pool,
	topo *topology.Topology,
	model ffsim.Model,
	strategy ffsim.Strategy,
	mode ffsim.ComputeMode,
) {
	for _, op := range model.Layers {
		config := strategy[op]

		for i := 0; i < op.NumInputs(); i++ {
			in := op.Input(i)
			preOp := in.OwnerOp
			if preOp == nil {
				continue // model input: no producer, no edge
			}
			preConfig := strategy[preOp]

			for dst := 0; dst < config.NumParts(); dst++ {
				dstR := op.InputTensorShape(config, i, dst)

				for src := 0; src < preConfig.NumParts(); src++ {
					srcR := preOp.OutputTensorShape(preConfig, in.OwnerIndex, src)

					vol := dstR.Intersection(srcR).Volume()
					if vol == 0 {
						continue
					}
					bytes := float64(vol) * bytesPerElement

					dstT := pool.ForwardTask(op.ID(), dst)
					srcT := pool.ForwardTask(preOp.ID(), src)
					addEdgeWithTransfer(pool, topo, srcT, dstT, bytes)

					if mode == ffsim.Training {
						dstB := pool.BackwardTask(op.ID(), dst)
						srcB := pool.BackwardTask(preOp.ID(), src)
						addEdgeWithTransfer(pool, topo, dstB, srcB, bytes)
					}
				}
			}
		}
	}
}

// passC builds the non-NCCL weight synchronization layer: one final
// per-device barrier, plus either the overlap-with-backward or the
// bulk-synchronous Update wiring, chosen by model.SearchOverlapBackward.
func passC(
	pool *taskpool.Pool,
	topo *topology.Topology,
	model ffsim.Model,
	strategy ffsim.Strategy,
	mode ffsim.ComputeMode,
) {
	finals := make(map[int]*taskpool.SimTask, topo.TotalGPUs())
	for d := 0; d < topo.TotalGPUs(); d++ {
		t := pool.NewBarrier()
		t.Device = topo.Compute(d)
		finals[d] = t
	}

	if mode != ffsim.Training {
		return
	}

	if model.SearchOverlapBackward {
		buildOverlapUpdates(pool, topo, model, strategy, finals)
	} else {
		buildBulkSynchronousUpdates(pool, topo, model, strategy, finals)
	}
}

// buildOverlapUpdates walks layers in reverse (mirroring FlexFlow's
// backward-pass order) and, per weight equivalence class, chains every
// non-representative member's backward task into one Update task on the
// representative's device, then from that Update task on to the member's
// own device's final barrier.
func buildOverlapUpdates(
	pool *taskpool.Pool,
	topo *topology.Topology,
	model ffsim.Model,
	strategy ffsim.Strategy,
	finals map[int]*taskpool.SimTask,
) {
	for l := len(model.Layers) - 1; l >= 0; l-- {
		op := model.Layers[l]
		pc := strategy[op]

		for w := 0; w < op.NumWeights(); w++ {
			for _, class := range equivalenceClasses(op, w, pc) {
				first := class.members[0]
				firstR := op.WeightTensorShape(pc, w, first)
				bytes := float64(firstR.Volume()) * bytesPerElement

				updateT := pool.NewUpdate()
				updateT.Device = topo.Compute(pc.DeviceIDs[first])

				for _, next := range class.members[1:] {
					backT := pool.BackwardTask(op.ID(), next)
					addEdgeWithTransfer(pool, topo, backT, updateT, bytes)
					finalT := finals[backT.Device.GPUID]
					addEdgeWithTransfer(pool, topo, updateT, finalT, bytes)
				}
			}
		}
	}
}

// buildBulkSynchronousUpdates inserts a second per-device barrier layer
// that every backward task feeds into, then drives Update tasks from that
// barrier rather than directly from backward tasks.
func buildBulkSynchronousUpdates(
	pool *taskpool.Pool,
	topo *topology.Topology,
	model ffsim.Model,
	strategy ffsim.Strategy,
	finals map[int]*taskpool.SimTask,
) {
	barriers := make(map[int]*taskpool.SimTask, topo.TotalGPUs())
	for d := 0; d < topo.TotalGPUs(); d++ {
		t := pool.NewBarrier()
		t.Device = topo.Compute(d)
		barriers[d] = t
	}

	for _, op := range model.Layers {
		pc := strategy[op]
		for j := 0; j < pc.NumParts(); j++ {
			backT := pool.BackwardTask(op.ID(), j)
			backT.AddNext(barriers[backT.Device.GPUID])
		}
	}

	for _, op := range model.Layers {
		pc := strategy[op]

		for w := 0; w < op.NumWeights(); w++ {
			for _, class := range equivalenceClasses(op, w, pc) {
				first := class.members[0]
				firstR := op.WeightTensorShape(pc, w, first)
				bytes := float64(firstR.Volume()) * bytesPerElement

				updateT := pool.NewUpdate()
				updateT.Device = topo.Compute(pc.DeviceIDs[first])
				barriers[updateT.Device.GPUID].AddNext(updateT)

				for _, next := range class.members[1:] {
					backT := pool.BackwardTask(op.ID(), next)
					barrierT := barriers[backT.Device.GPUID]
					addEdgeWithTransfer(pool, topo, barrierT, updateT, bytes)
					finalT := finals[backT.Device.GPUID]
					addEdgeWithTransfer(pool, topo, updateT, finalT, bytes)
				}
			}
		}
	}
}

// addEdgeWithTransfer adds a dependency edge from src to dst carrying
// numBytes, inserting the one, two, or three serial comm tasks the
// device pairing requires (same GPU: none; same node: one intra-node hop;
// cross-node: GPU->host, host->host, host->GPU).
func addEdgeWithTransfer(
	pool *taskpool.Pool,
	topo *topology.Topology,
	src, dst *taskpool.SimTask,
	numBytes float64,
) {
	if src.Device == dst.Device {
		src.AddNext(dst)
		return
	}

	if src.Device.NodeID == dst.Device.NodeID {
		comm := pool.NewComm()
		comm.Device = topo.IntraNodeLink(src.Device.GPUID, dst.Device.GPUID)
		comm.RunTime = float32(numBytes / comm.Device.Bandwidth)
		src.AddNext(comm)
		comm.AddNext(dst)
		return
	}

	gpuToDram := pool.NewComm()
	gpuToDram.Device = topo.GPUToDram(src.Device.GPUID)
	gpuToDram.RunTime = float32(numBytes / gpuToDram.Device.Bandwidth)

	dramToDram := pool.NewComm()
	dramToDram.Device = topo.InterNodeLink(src.Device.NodeID, dst.Device.NodeID)
	dramToDram.RunTime = float32(numBytes / dramToDram.Device.Bandwidth)

	dramToGPU := pool.NewComm()
	dramToGPU.Device = topo.DramToGPU(dst.Device.GPUID)
	dramToGPU.RunTime = float32(numBytes / dramToGPU.Device.Bandwidth)

	src.AddNext(gpuToDram)
	gpuToDram.AddNext(dramToDram)
	dramToDram.AddNext(dramToGPU)
	dramToGPU.AddNext(dst)
}

// weightClass is one equivalence class of a weight's parts under "tile
// intersects": members[0] is the representative every other member
// synchronizes through.
type weightClass struct {
	members []int
}

// equivalenceClasses partitions weight w's parts into classes under the
// "crucial invariant": any two parts whose tiles intersect must have
// identical tiles (all-or-nothing overlap), or the configuration is
// rejected as a fatal error.
func equivalenceClasses(op ffsim.Op, weightIndex int, config ffsim.ParallelConfig) []weightClass {
	nParts := config.NumParts()
	synched := make([]bool, nParts)
	var classes []weightClass

	for first := 0; first < nParts; first++ {
		if synched[first] {
			continue
		}
		synched[first] = true
		firstR := op.WeightTensorShape(config, weightIndex, first)
		class := weightClass{members: []int{first}}

		for next := first + 1; next < nParts; next++ {
			if synched[next] {
				continue
			}
			nextR := op.WeightTensorShape(config, weightIndex, next)
			if nextR.Intersection(firstR).Volume() == 0 {
				continue
			}
			if !firstR.Equal(nextR) {
				panic(fmt.Sprintf(
					"graphbuilder: weight %d of op %q parts %d and %d intersect but are not equal",
					weightIndex, op.Name(), first, next))
			}
			synched[next] = true
			class.members = append(class.members, next)
		}

		classes = append(classes, class)
	}

	return classes
}

// NCCLBlockingCost computes the sequential, blocking NCCL collective cost
// for every weight equivalence class across every operator: the maximum
// pairwise transfer cost within a class, summed across all classes and
// weights. It is the simulator's Step-6-equivalent addition to sim_time
// when useNCCL is set, run after scheduling rather than during graph
// construction (the NCCL path skips synchronization tasks entirely during
// Build). Returns 0 outside Training mode.
func NCCLBlockingCost(
	topo *topology.Topology,
	model ffsim.Model,
	strategy ffsim.Strategy,
	mode ffsim.ComputeMode,
) float64 {
	if mode != ffsim.Training {
		return 0
	}

	var total float64
	for _, op := range model.Layers {
		pc := strategy[op]

		for w := 0; w < op.NumWeights(); w++ {
			for _, class := range equivalenceClasses(op, w, pc) {
				first := class.members[0]
				firstDevice := topo.Compute(pc.DeviceIDs[first])
				firstR := op.WeightTensorShape(pc, w, first)

				var classTime float64
				for _, next := range class.members[1:] {
					nextDevice := topo.Compute(pc.DeviceIDs[next])
					if firstDevice.GPUID == nextDevice.GPUID {
						continue
					}

					var bandwidth float64
					if firstDevice.NodeID == nextDevice.NodeID {
						bandwidth = topo.IntraNodeLink(firstDevice.GPUID, nextDevice.GPUID).Bandwidth
					} else {
						bandwidth = topo.InterNodeLink(firstDevice.NodeID, nextDevice.NodeID).Bandwidth
					}

					t := float64(firstR.Volume()) * bytesPerElement / bandwidth
					if t > classTime {
						classTime = t
					}
				}
				total += classTime
			}
		}
	}

	return total
}
