package planner

import (
	"fmt"
	"io"

	"github.com/gomlx/execplan/model"
)

// DumpPlan writes a human-readable rendering of plan in the traditional
// two-section format:
//
//	Allocation Plan:
//	(<idx>) <name> : <Kind>[ <reused_idx>], <device>[, use fence when async]
//	...
//	Execution Plan:
//	[<step>] <OpType> (<NodeName>)
//	Free ml-values: (<idx>) <name>, ...
//
// The format is informative only; executors and tests must not parse it
// back into structured data.
func DumpPlan(w io.Writer, plan *ExecutionPlan, graph model.GraphView, names model.NameResolver) error {
	if _, err := fmt.Fprintln(w, "Allocation Plan:"); err != nil {
		return err
	}
	for v := range plan.Alloc {
		if err := dumpAllocLine(w, plan, model.ValueIndex(v), names); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(w, "Execution Plan:"); err != nil {
		return err
	}
	nodesByIndex := indexNodesByIndex(graph)
	for s, nodeIdx := range plan.Steps {
		node := nodesByIndex[nodeIdx]
		if _, err := fmt.Fprintf(w, "[%d] %s (%s)\n", s, node.OpType, node.Name); err != nil {
			return err
		}
		if err := dumpFreedLine(w, plan, s, names); err != nil {
			return err
		}
	}
	return nil
}

func indexNodesByIndex(graph model.GraphView) map[model.NodeIndex]*model.Node {
	byIndex := make(map[model.NodeIndex]*model.Node)
	for _, node := range graph.Steps() {
		byIndex[node.Index] = node
	}
	return byIndex
}

func dumpAllocLine(w io.Writer, plan *ExecutionPlan, v model.ValueIndex, names model.NameResolver) error {
	name, err := names.NameOf(v)
	if err != nil {
		name = "?"
	}
	decision := plan.Alloc[v]
	kindStr := decision.Kind.String()
	if decision.Kind == AllocReuse || decision.Kind == AllocAlias {
		kindStr = fmt.Sprintf("%s %d", kindStr, decision.Ref)
	}
	device := plan.Placement[v].Provider
	suffix := ""
	if int(v) < len(plan.ValueFence) && plan.ValueFence[v] {
		suffix = ", use fence when async"
	}
	_, err = fmt.Fprintf(w, "(%d) %s : %s, %s%s\n", v, name, kindStr, device, suffix)
	return err
}

func dumpFreedLine(w io.Writer, plan *ExecutionPlan, s int, names model.NameResolver) error {
	freed := plan.FreedAtStep(s)
	if len(freed) == 0 {
		return nil
	}
	if _, err := fmt.Fprint(w, "Free ml-values: "); err != nil {
		return err
	}
	for i, v := range freed {
		name, err := names.NameOf(v)
		if err != nil {
			name = "?"
		}
		sep := ", "
		if i == len(freed)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprintf(w, "(%d) %s%s", v, name, sep); err != nil {
			return err
		}
	}
	return nil
}
