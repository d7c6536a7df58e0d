// Package testutil provides hand-written test doubles shared across
// package test suites. Most suites reach for a plain configurable fake
// like FakeOp rather than a gomock mock; costoracle's suite additionally
// keeps a generated-shape MockOp (see costoracle/mock_ffsim_test.go) for
// the one test that needs to assert exact call counts and argument
// equality rather than just stub return values.
package testutil

import (
	ffsim "github.com/sarchlab/ffsim"
)

// FakeOp is a minimal, fully-controllable ffsim.Op used by unit tests.
// NewFakeOp returns a one-input, one-weight, non-data-dependent operator;
// fields can be overridden per test.
type FakeOp struct {
	IDVal      uint64
	NameVal    string
	OpTypeVal  string
	NumIn      int
	NumW       int
	Inputs     []ffsim.TensorInput

	ForwardTime  float32
	BackwardTime float32
	MemoryReq    uint64
	Implemented  bool
	ProbeCalls   *int

	InputShapeFn  func(config ffsim.ParallelConfig, tensorIndex, partIndex int) ffsim.Domain
	OutputShapeFn func(config ffsim.ParallelConfig, tensorIndex, partIndex int) ffsim.Domain
	WeightShapeFn func(config ffsim.ParallelConfig, weightIndex, partIndex int) ffsim.Domain
}

// NewFakeOp returns a FakeOp with sane defaults: implemented probe, unit
// output domain, no overlap between distinct part indices.
func NewFakeOp(id uint64, name string) *FakeOp {
	calls := 0
	return &FakeOp{
		IDVal:       id,
		NameVal:     name,
		OpTypeVal:   "FakeOp",
		NumIn:       1,
		NumW:        1,
		Implemented: true,
		ProbeCalls:  &calls,
	}
}

// ID implements ffsim.Op.
func (o *FakeOp) ID() uint64 { return o.IDVal }

// Name implements ffsim.Op.
func (o *FakeOp) Name() string { return o.NameVal }

// OpType implements ffsim.Op.
func (o *FakeOp) OpType() string { return o.OpTypeVal }

// NumInputs implements ffsim.Op.
func (o *FakeOp) NumInputs() int { return o.NumIn }

// NumWeights implements ffsim.Op.
func (o *FakeOp) NumWeights() int { return o.NumW }

// Input implements ffsim.Op.
func (o *FakeOp) Input(i int) ffsim.TensorInput {
	if i < len(o.Inputs) {
		return o.Inputs[i]
	}
	return ffsim.TensorInput{}
}

// InputTensorShape implements ffsim.Op.
func (o *FakeOp) InputTensorShape(config ffsim.ParallelConfig, tensorIndex, partIndex int) ffsim.Domain {
	if o.InputShapeFn != nil {
		return o.InputShapeFn(config, tensorIndex, partIndex)
	}
	return unitDomainForPart(partIndex)
}

// OutputTensorShape implements ffsim.Op.
func (o *FakeOp) OutputTensorShape(config ffsim.ParallelConfig, tensorIndex, partIndex int) ffsim.Domain {
	if o.OutputShapeFn != nil {
		return o.OutputShapeFn(config, tensorIndex, partIndex)
	}
	return unitDomainForPart(partIndex)
}

// WeightTensorShape implements ffsim.Op.
func (o *FakeOp) WeightTensorShape(config ffsim.ParallelConfig, weightIndex, partIndex int) ffsim.Domain {
	if o.WeightShapeFn != nil {
		return o.WeightShapeFn(config, weightIndex, partIndex)
	}
	return unitDomainForPart(partIndex)
}

// MeasureOperatorCost implements ffsim.Op.
func (o *FakeOp) MeasureOperatorCost(probe ffsim.CostProbe, config ffsim.ParallelConfig) (ffsim.CostMetrics, bool) {
	if o.ProbeCalls != nil {
		*o.ProbeCalls++
	}
	_, _ = probe.Allocate(1, 4)
	if !o.Implemented {
		return ffsim.CostMetrics{}, false
	}
	return ffsim.CostMetrics{
		ForwardTime:       o.ForwardTime,
		BackwardTime:      o.BackwardTime,
		MemoryRequirement: o.MemoryReq,
	}, true
}

// unitDomainForPart gives each part index a disjoint 1-D unit cell by
// default, so operators with no injected shape function never spuriously
// overlap.
func unitDomainForPart(partIndex int) ffsim.Domain {
	return ffsim.Domain{
		NumDims: 1,
		Lo:      [ffsim.MaxDim]int64{int64(partIndex)},
		Hi:      [ffsim.MaxDim]int64{int64(partIndex) + 1},
	}
}
