// Package costoracle memoizes (operator, config) -> CostMetrics so that
// repeated strategy evaluations amortize kernel-measurement cost. Strategy
// search is expected to call the oracle millions of times with a small set
// of distinct (op, partitioning-shape) pairs, so hit rates are high.
package costoracle

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/sarchlab/ffsim/arena"
	"github.com/sirupsen/logrus"

	ffsim "github.com/sarchlab/ffsim"
)

// Oracle is a fingerprint -> CostMetrics cache. It never evicts and lives
// for the owning Simulator's lifetime (the cache is the one piece of
// cross-call state that accumulates across repeated Simulate calls).
type Oracle struct {
	arena *arena.Arena
	cache map[uint64]ffsim.CostMetrics
	log   *logrus.Entry
}

// New creates an Oracle that delegates probe misses through scratch, an
// arena the probe uses to synthesize tiles.
func New(scratch *arena.Arena) *Oracle {
	return &Oracle{
		arena: scratch,
		cache: make(map[uint64]ffsim.CostMetrics),
		log:   logrus.WithField("component", "costoracle"),
	}
}

// fingerprint is an order-sensitive, 64-bit mix of
// (op.ID(), config.DeviceType, config.NumDims, config.Dim[0:NumDims]). It
// replaces FlexFlow's naive "17*31 + ... * 31" rolling hash with an
// FNV-1a mixer to keep collisions between distinct (op, config) pairs
// vanishingly unlikely.
func fingerprint(op ffsim.Op, config ffsim.ParallelConfig) uint64 {
	h := fnv.New64a()

	var buf [8]byte
	write := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}

	write(int64(op.ID()))
	write(int64(config.DeviceType))
	write(int64(config.NumDims))
	for i := 0; i < config.NumDims; i++ {
		write(int64(config.Dim[i]))
	}

	return h.Sum64()
}

// Cost returns op's CostMetrics under config, measuring it via op's probe
// on a cache miss. A probe that reports "not implemented" is a fatal error:
// the caller cannot meaningfully continue strategy evaluation for an
// operator type that has no cost model.
func (o *Oracle) Cost(op ffsim.Op, config ffsim.ParallelConfig) ffsim.CostMetrics {
	key := fingerprint(op, config)

	if cm, ok := o.cache[key]; ok {
		o.log.Debugf("cache hit for op %q", op.Name())
		return cm
	}

	o.log.Debugf("cache miss for op %q, invoking probe", op.Name())
	o.arena.FreeAll()

	cm, implemented := op.MeasureOperatorCost(o.arena, config)
	if !implemented {
		panic((&ffsim.ErrUnimplementedProbe{OpName: op.Name(), OpType: op.OpType()}).Error())
	}

	o.cache[key] = cm
	return cm
}

// Len reports the number of distinct (op, config) pairs cached, mostly
// useful for tests asserting that repeated calls hit the cache.
func (o *Oracle) Len() int { return len(o.cache) }
