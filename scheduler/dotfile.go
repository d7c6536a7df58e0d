package scheduler

import (
	"fmt"
	"os"
	"strings"

	"github.com/sarchlab/ffsim/taskpool"
)

// dotGraph accumulates a Graphviz digraph of the scheduled task DAG, one
// record-shaped node per task labeled "{op_name | type | {start|end}}"
// (the op_name field is left out for tasks with no OpName, such as comm,
// update and barrier tasks), built the way Atul-Ranjan12's visualize.go assembles a DOT file with
// strings.Builder rather than a template.
type dotGraph struct {
	b       strings.Builder
	ids     map[*taskpool.SimTask]int
	nextID  int
}

func newDotGraph() *dotGraph {
	g := &dotGraph{ids: make(map[*taskpool.SimTask]int)}
	g.b.WriteString("digraph TaskGraph {\n")
	g.b.WriteString("  node [shape=record];\n")
	return g
}

func (g *dotGraph) nodeID(t *taskpool.SimTask) int {
	if id, ok := g.ids[t]; ok {
		return id
	}
	id := g.nextID
	g.nextID++
	g.ids[t] = id
	return id
}

func (g *dotGraph) addNode(t *taskpool.SimTask, start, end float32) {
	var label strings.Builder
	label.WriteString("{ ")
	if t.OpName != "" {
		fmt.Fprintf(&label, "%s | ", t.OpName)
	}
	fmt.Fprintf(&label, "%s | { %.6f | %.6f } }", t.Type.String(), start, end)

	fmt.Fprintf(&g.b, "  n%d [label=\"%s\"];\n", g.nodeID(t), label.String())
}

func (g *dotGraph) addEdge(from, to *taskpool.SimTask) {
	fmt.Fprintf(&g.b, "  n%d -> n%d;\n", g.nodeID(from), g.nodeID(to))
}

func (g *dotGraph) writeFile(path string) error {
	g.b.WriteString("}\n")
	if err := os.WriteFile(path, []byte(g.b.String()), 0o644); err != nil {
		return fmt.Errorf("scheduler: writing dot export to %q: %w", path, err)
	}
	return nil
}
