// Package scheduler list-schedules a task DAG built by graphbuilder,
// honoring both task dependencies and per-device serial occupancy, and
// reports the resulting makespan. It is driven by the akita discrete-event
// primitives (gitlab.com/akita/akita/v3/sim) sarchlab's network models are
// built on: a task becoming ready is an event scheduled at its ready time,
// and the engine's own event-time ordering plays the role of the priority
// queue in FlexFlow's C++ simulator, which this scheduler's list-scheduling
// algorithm is adapted from.
package scheduler

import (
	"fmt"

	"gitlab.com/akita/akita/v3/sim"

	"github.com/sarchlab/ffsim/taskpool"
	"github.com/sarchlab/ffsim/topology"
)

// taskReadyEvent fires when a SimTask's in-edge counter has reached zero
// and it is eligible for dispatch.
type taskReadyEvent struct {
	time    sim.VTimeInSec
	handler sim.Handler
	task    *taskpool.SimTask
}

func (e taskReadyEvent) Time() sim.VTimeInSec  { return e.time }
func (e taskReadyEvent) Handler() sim.Handler  { return e.handler }
func (e taskReadyEvent) IsSecondary() bool     { return false }

// engineRunner is the slice of sim.Engine the Scheduler needs beyond
// EventScheduler/TimeTeller: draining the event queue it just seeded.
type engineRunner interface {
	Run() error
}

// Scheduler list-schedules one task DAG per Run call. It holds no state
// across calls other than what it is handed; device occupancy and the
// optional dot export are reset at the start of every Run.
type Scheduler struct {
	sim.HookableBase
	sim.EventScheduler
	sim.TimeTeller

	deviceEndTime map[*topology.Device]float32
	simTime       float32
	processed     int
	dot           *dotGraph
}

// New creates a Scheduler driven by es/tt, normally the same sim.Engine
// value (gitlab.com/akita/akita/v3/sim.NewSerialEngine()) for both.
func New(es sim.EventScheduler, tt sim.TimeTeller) *Scheduler {
	return &Scheduler{EventScheduler: es, TimeTeller: tt}
}

// Run seeds the engine with every counter==0 task in pool, drains it via
// eng.Run, and returns the resulting makespan in seconds. If exportPath is
// non-empty, a Graphviz dot file recording every task's start/end time is
// written alongside.
func (s *Scheduler) Run(pool *taskpool.Pool, eng engineRunner, exportPath string) (float64, error) {
	s.deviceEndTime = make(map[*topology.Device]float32)
	s.simTime = 0
	s.processed = 0
	if exportPath != "" {
		s.dot = newDotGraph()
	} else {
		s.dot = nil
	}

	for i := 0; i < pool.GlobalTaskID(); i++ {
		t := pool.Task(i)
		if t.Counter == 0 {
			s.Schedule(taskReadyEvent{time: sim.VTimeInSec(t.ReadyTime), handler: s, task: t})
		}
	}

	if err := eng.Run(); err != nil {
		return 0, fmt.Errorf("scheduler: engine run: %w", err)
	}

	if s.processed != pool.GlobalTaskID() {
		panic(fmt.Sprintf(
			"scheduler: processed %d of %d tasks; the task DAG has a cycle or an orphaned dependency",
			s.processed, pool.GlobalTaskID()))
	}

	if s.dot != nil {
		if err := s.dot.writeFile(exportPath); err != nil {
			return 0, err
		}
	}

	return float64(s.simTime), nil
}

// Handle implements sim.Handler. It applies one step of the list-schedule
// loop: compute start/end against the task's device's occupancy, advance
// the makespan, then release every successor whose counter reaches zero.
func (s *Scheduler) Handle(e sim.Event) error {
	evt, ok := e.(taskReadyEvent)
	if !ok {
		return fmt.Errorf("scheduler: unexpected event type %T", e)
	}
	t := evt.task

	start := t.ReadyTime
	if busy := s.deviceEndTime[t.Device]; busy > start {
		start = busy
	}
	end := start + t.RunTime
	s.deviceEndTime[t.Device] = end
	if end > s.simTime {
		s.simTime = end
	}
	s.processed++

	if s.dot != nil {
		s.dot.addNode(t, start, end)
	}

	for _, next := range t.Next {
		if s.dot != nil {
			s.dot.addEdge(t, next)
		}
		if end > next.ReadyTime {
			next.ReadyTime = end
		}
		next.Counter--
		if next.Counter == 0 {
			s.Schedule(taskReadyEvent{time: sim.VTimeInSec(next.ReadyTime), handler: s, task: next})
		}
	}

	return nil
}
