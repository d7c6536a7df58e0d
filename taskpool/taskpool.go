// Package taskpool provides a preallocated arena of SimTask records plus
// the forward/backward fingerprint indices the graph builder uses to wire
// dependency edges across passes.
package taskpool

import (
	"fmt"

	"github.com/sarchlab/ffsim/topology"
)

// TaskType enumerates the kinds of work a SimTask represents.
type TaskType int

// TaskType values.
const (
	Forward TaskType = iota
	Backward
	Comm
	Update
	Barrier
)

// String implements fmt.Stringer, used for dot-export node labels.
func (t TaskType) String() string {
	switch t {
	case Forward:
		return "Forward"
	case Backward:
		return "Backward"
	case Comm:
		return "Comm"
	case Update:
		return "Update"
	case Barrier:
		return "Barrier"
	default:
		return "Unknown"
	}
}

// SimTask is one node of the task DAG: a unit of compute, communication, or
// synchronization work bound to a device.
type SimTask struct {
	ID        int
	Type      TaskType
	Device    *topology.Device
	RunTime   float32
	ReadyTime float32
	Counter   uint32
	Next      []*SimTask
	OpName    string
}

// AddNext records a dependency edge from t to next, incrementing next's
// in-edge counter. Mirrors FlexFlow's SimTask::add_next_task.
func (t *SimTask) AddNext(next *SimTask) {
	t.Next = append(t.Next, next)
	next.Counter++
}

type opPart struct {
	opID uint64
	part int
}

// Pool is a preallocated contiguous array of SimTask records plus a
// monotonic cursor, and the forward/backward indices used to look tasks up
// by (op, part) across the graph builder's passes. Reset does not
// reinitialize slots; allocation does.
type Pool struct {
	tasks        []SimTask
	maxNumTasks  int
	globalTaskID int

	forward  map[opPart]*SimTask
	backward map[opPart]*SimTask
}

// New preallocates a Pool able to hold up to maxNumTasks SimTask records
// per simulation (between two Resets).
func New(maxNumTasks int) *Pool {
	return &Pool{
		tasks:       make([]SimTask, maxNumTasks),
		maxNumTasks: maxNumTasks,
		forward:     make(map[opPart]*SimTask),
		backward:    make(map[opPart]*SimTask),
	}
}

// Reset zeroes the cursor and clears the fingerprint indices. It must run
// at the start of every simulate_runtime call; slots are reinitialized
// lazily by NewTask, not here.
func (p *Pool) Reset() {
	p.globalTaskID = 0
	for k := range p.forward {
		delete(p.forward, k)
	}
	for k := range p.backward {
		delete(p.backward, k)
	}
}

// GlobalTaskID returns the number of tasks allocated since the last Reset.
func (p *Pool) GlobalTaskID() int { return p.globalTaskID }

// Task returns the i-th allocated task (0-indexed), used by the scheduler
// to seed its ready queue and by tests to assert completeness.
func (p *Pool) Task(i int) *SimTask { return &p.tasks[i] }

// NewTask allocates and zero-initializes the next slot. Pool exhaustion —
// more tasks requested in one simulation than maxNumTasks — is a fatal
// configuration error: widen the pool rather than recover.
func (p *Pool) NewTask() *SimTask {
	if p.globalTaskID >= p.maxNumTasks {
		panic(fmt.Sprintf(
			"taskpool: exhausted pool of %d tasks; widen the task pool", p.maxNumTasks))
	}

	t := &p.tasks[p.globalTaskID]
	*t = SimTask{ID: p.globalTaskID}
	p.globalTaskID++
	return t
}

// NewComm allocates a Comm task.
func (p *Pool) NewComm() *SimTask {
	t := p.NewTask()
	t.Type = Comm
	return t
}

// NewUpdate allocates an Update task.
func (p *Pool) NewUpdate() *SimTask {
	t := p.NewTask()
	t.Type = Update
	return t
}

// NewBarrier allocates a Barrier task.
func (p *Pool) NewBarrier() *SimTask {
	t := p.NewTask()
	t.Type = Barrier
	return t
}

// NewForward allocates a Forward task bound to (opID, part) and indexes it
// for later lookup with ForwardTask.
func (p *Pool) NewForward(opID uint64, opName string, part int) *SimTask {
	t := p.NewTask()
	t.Type = Forward
	t.OpName = opName
	p.forward[opPart{opID, part}] = t
	return t
}

// NewBackward allocates a Backward task bound to (opID, part) and indexes
// it for later lookup with BackwardTask.
func (p *Pool) NewBackward(opID uint64, opName string, part int) *SimTask {
	t := p.NewTask()
	t.Type = Backward
	t.OpName = opName
	p.backward[opPart{opID, part}] = t
	return t
}

// ForwardTask retrieves the forward task previously registered for
// (opID, part). It panics if none was registered, since the graph builder
// only ever queries parts it itself just created in Pass A.
func (p *Pool) ForwardTask(opID uint64, part int) *SimTask {
	t, ok := p.forward[opPart{opID, part}]
	if !ok {
		panic(fmt.Sprintf("taskpool: no forward task for op %d part %d", opID, part))
	}
	return t
}

// BackwardTask retrieves the backward task previously registered for
// (opID, part).
func (p *Pool) BackwardTask(opID uint64, part int) *SimTask {
	t, ok := p.backward[opPart{opID, part}]
	if !ok {
		panic(fmt.Sprintf("taskpool: no backward task for op %d part %d", opID, part))
	}
	return t
}
