// Package simulator wires the device topology, measurement arena, cost
// oracle, task pool, graph builder, scheduler, and memory penalizer into
// the single entry point external callers use: predict the wall-clock
// makespan of one model under one strategy.
package simulator

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/akita/akita/v3/sim"

	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/arena"
	"github.com/sarchlab/ffsim/costoracle"
	"github.com/sarchlab/ffsim/graphbuilder"
	"github.com/sarchlab/ffsim/memorypenalty"
	"github.com/sarchlab/ffsim/scheduler"
	"github.com/sarchlab/ffsim/taskpool"
	"github.com/sarchlab/ffsim/topology"
)

// Options controls one Simulate call beyond the model/strategy/mode triple.
type Options struct {
	// UseNCCL selects the NCCL collective-cost path: weight synchronization
	// is skipped during graph construction and instead added as a single
	// blocking cost after scheduling.
	UseNCCL bool
	// ExportPath, if non-empty, asks the scheduler to also write a
	// Graphviz dot file of the scheduled task graph.
	ExportPath string
}

// Simulator owns the per-instance state a strategy search amortizes across
// many Simulate calls: the task pool and measurement arena are bump-reset
// on every call, but the cost oracle's cache is append-only and never
// reset. A Simulator is not safe for concurrent use; parallel strategy
// search instantiates one Simulator per worker.
type Simulator struct {
	topo    *topology.Topology
	scratch *arena.Arena
	oracle  *costoracle.Oracle
	pool    *taskpool.Pool
	log     *logrus.Entry
}

// New creates a Simulator over topo, with workspaceBytes of probe scratch
// space and a task pool sized for up to maxNumTasks tasks per simulation.
func New(topo *topology.Topology, workspaceBytes uintptr, maxNumTasks int) *Simulator {
	scratch := arena.New(workspaceBytes)
	return &Simulator{
		topo:    topo,
		scratch: scratch,
		oracle:  costoracle.New(scratch),
		pool:    taskpool.New(maxNumTasks),
		log:     logrus.WithField("component", "simulator"),
	}
}

// Simulate predicts the iteration makespan, in seconds, of model run under
// strategy in mode, plus any memory-capacity penalty. It is the
// simulate_runtime equivalent: reset, build, schedule, add NCCL blocking
// cost when requested, add memory penalty.
func (s *Simulator) Simulate(
	model ffsim.Model,
	strategy ffsim.Strategy,
	mode ffsim.ComputeMode,
	opts Options,
) (float64, error) {
	s.log.Debugf("simulating %d layers in %s mode (nccl=%v)", len(model.Layers), mode, opts.UseNCCL)
	s.logStrategyShape(model, strategy)

	s.pool.Reset()
	s.scratch.FreeAll()

	built := graphbuilder.Build(s.pool, s.topo, s.oracle, model, strategy, mode, opts.UseNCCL)

	engine := sim.NewSerialEngine()
	sched := scheduler.New(engine, engine)

	simTime, err := sched.Run(s.pool, engine, opts.ExportPath)
	if err != nil {
		return 0, fmt.Errorf("simulator: scheduling: %w", err)
	}

	if opts.UseNCCL {
		nccl := graphbuilder.NCCLBlockingCost(s.topo, model, strategy, mode)
		s.log.Debugf("nccl blocking cost: %.9fs", nccl)
		simTime += nccl
	}

	penalty := memorypenalty.Compute(s.topo, strategy, built.Costs)
	if penalty > 0 {
		s.log.Debugf("memory penalty: %.9fs", penalty)
	}
	simTime += penalty

	return simTime, nil
}

// logStrategyShape reports, per operator, whether the assigned config is a
// plain data-parallel split (ParallelConfig.IsDataParallel) or a more
// general model-parallel partitioning — useful when a predicted makespan
// looks off and the caller wants to know what kind of strategy produced it,
// without having to inspect the Strategy map by hand.
func (s *Simulator) logStrategyShape(model ffsim.Model, strategy ffsim.Strategy) {
	for _, op := range model.Layers {
		config := strategy[op]
		if config.IsDataParallel() {
			s.log.Debugf("op %q: data-parallel across %d device(s)", op.Name(), config.NumParts())
		} else {
			s.log.Debugf("op %q: model-parallel config across %d device(s)", op.Name(), config.NumParts())
		}
	}
}
