package opset

import (
	"fmt"

	ffsim "github.com/sarchlab/ffsim"
)

// bytesPerElement assumes f32 tensors, the same convention graphbuilder
// uses when it turns a tile's element Volume into a byte count.
const bytesPerElement = 4

// TracedOp is an ffsim.Op whose cost comes from a single recorded
// measurement rather than an analytical model. Its MeasureOperatorCost is
// the RecordedTimeEstimator idiom folded directly into the Op contract:
// it hands back the trace's measured time unconditionally for the
// single-partition config the trace was captured under, and reports
// unimplemented for every other ParallelConfig, since a recorded trace
// has no way to predict what re-partitioning the op would cost.
type TracedOp struct {
	idVal       uint64
	nameVal     string
	inputs      []ffsim.TensorInput
	inputBytes  []uint64
	outputBytes []uint64
	weightBytes []uint64
	forwardTime float64
	backwardTime float64
}

var _ ffsim.Op = (*TracedOp)(nil)

func (t *TracedOp) ID() uint64      { return t.idVal }
func (t *TracedOp) Name() string    { return t.nameVal }
func (t *TracedOp) OpType() string  { return "traced" }
func (t *TracedOp) NumInputs() int  { return len(t.inputs) }
func (t *TracedOp) NumWeights() int { return len(t.weightBytes) }

func (t *TracedOp) Input(i int) ffsim.TensorInput { return t.inputs[i] }

func (t *TracedOp) InputTensorShape(config ffsim.ParallelConfig, tensorIndex, partIndex int) ffsim.Domain {
	return wholeTensorDomain(t.inputBytes[tensorIndex], config, partIndex)
}

func (t *TracedOp) OutputTensorShape(config ffsim.ParallelConfig, tensorIndex, partIndex int) ffsim.Domain {
	return wholeTensorDomain(t.outputBytes[tensorIndex], config, partIndex)
}

func (t *TracedOp) WeightTensorShape(config ffsim.ParallelConfig, weightIndex, partIndex int) ffsim.Domain {
	return wholeTensorDomain(t.weightBytes[weightIndex], config, partIndex)
}

// wholeTensorDomain models a tensor as one contiguous 1-D run of elements.
// A traced op only has a recorded shape for the single partition it was
// captured under, so every part beyond the first one is empty: graph
// building treats recorded tensors as belonging entirely to partIndex 0.
// Under a config with more than one part, every part (part 0 included) is
// empty.
func wholeTensorDomain(numBytes uint64, config ffsim.ParallelConfig, partIndex int) ffsim.Domain {
	if partIndex != 0 || config.NumParts() != 1 {
		return ffsim.Domain{NumDims: 1}
	}
	return ffsim.Domain{NumDims: 1, Hi: [ffsim.MaxDim]int64{int64(numBytes / bytesPerElement)}}
}

// MeasureOperatorCost hands back the recorded forward/backward time and
// total tensor footprint for the single-partition config the trace was
// captured under. probe is untouched: there is no synthetic-tile
// measurement to scratch-allocate here, unlike an analytical Op.
func (t *TracedOp) MeasureOperatorCost(
	probe ffsim.CostProbe,
	config ffsim.ParallelConfig,
) (ffsim.CostMetrics, bool) {
	if config.NumParts() != 1 {
		return ffsim.CostMetrics{}, false
	}

	var memory uint64
	for _, b := range t.inputBytes {
		memory += b
	}
	for _, b := range t.outputBytes {
		memory += b
	}
	for _, b := range t.weightBytes {
		memory += b
	}

	return ffsim.CostMetrics{
		ForwardTime:       float32(t.forwardTime),
		BackwardTime:      float32(t.backwardTime),
		MemoryRequirement: memory,
	}, true
}

// BuildModel turns a trace's layer/tensor records into an ffsim.Model in
// producer-before-consumer order, the order trace.csv's rows already
// carry. Each distinct layer id becomes one TracedOp; a "backward" stage
// row for the same id folds its time into that op's BackwardTime instead
// of creating a second operator, since ffsim models one op with two
// costs rather than two ops with one cost each.
func BuildModel(layers []layerRecord, tensors map[string]tensorRecord) (ffsim.Model, error) {
	ops := make(map[int]*TracedOp)
	producerOf := make(map[string]*TracedOp)
	var order []int

	for _, lr := range layers {
		op, ok := ops[lr.id]
		if !ok {
			op = &TracedOp{idVal: uint64(lr.id), nameVal: lr.name}
			ops[lr.id] = op
			order = append(order, lr.id)

			for _, tid := range lr.inputIDs {
				tr, ok := tensors[tid]
				if !ok {
					return ffsim.Model{}, fmt.Errorf("opset: layer %s references unknown tensor %s", lr.name, tid)
				}
				if tr.category == categoryWeight {
					op.weightBytes = append(op.weightBytes, tr.bytes)
					continue
				}
				op.inputBytes = append(op.inputBytes, tr.bytes)
				if producer, ok := producerOf[tid]; ok {
					op.inputs = append(op.inputs, ffsim.TensorInput{OwnerOp: producer, OwnerIndex: 0})
				} else {
					op.inputs = append(op.inputs, ffsim.TensorInput{})
				}
			}
			for _, tid := range lr.outputIDs {
				tr, ok := tensors[tid]
				if !ok {
					return ffsim.Model{}, fmt.Errorf("opset: layer %s references unknown tensor %s", lr.name, tid)
				}
				op.outputBytes = append(op.outputBytes, tr.bytes)
				producerOf[tid] = op
			}
		}

		switch lr.stage {
		case "backward":
			op.backwardTime = lr.timeInSec
		default:
			op.forwardTime = lr.timeInSec
		}
	}

	layersOut := make([]ffsim.Op, len(order))
	for i, id := range order {
		layersOut[i] = ops[id]
	}

	return ffsim.Model{Layers: layersOut}, nil
}
