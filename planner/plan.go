// Package planner implements the offline allocation planner: given a
// graph view and its oracles, it produces an immutable ExecutionPlan in
// one topological pass.
package planner

import (
	"github.com/gomlx/execplan/model"
)

// AllocKind is the kind of AllocationDecision made for a value.
type AllocKind int

const (
	// AllocExternal marks a buffer supplied by the caller; never reused.
	AllocExternal AllocKind = iota
	// AllocStatic marks a long-lived constant allocated once at session load.
	AllocStatic
	// AllocFresh marks a new buffer allocated at definition.
	AllocFresh
	// AllocReuse marks storage shared with an earlier value (Ref).
	AllocReuse
	// AllocGraphOutput marks a buffer allocated fresh but materialized
	// into the caller's output slot.
	AllocGraphOutput
	// AllocAlias marks an identity pass-through of Ref: no new buffer,
	// no copy.
	AllocAlias
)

func (k AllocKind) String() string {
	switch k {
	case AllocExternal:
		return "External"
	case AllocStatic:
		return "Static"
	case AllocFresh:
		return "Fresh"
	case AllocReuse:
		return "Reuse"
	case AllocGraphOutput:
		return "GraphOutput"
	case AllocAlias:
		return "Alias"
	default:
		return "Unknown"
	}
}

// AllocationDecision is the per-value outcome of planning: what kind of
// buffer lifetime this value gets, and for Reuse/Alias, which value's
// buffer it shares.
type AllocationDecision struct {
	Kind AllocKind
	Ref  model.ValueIndex // valid only for AllocReuse (root value) and AllocAlias
}

// ExecutionPlan is the planner's immutable product: a topological step
// order, a per-value allocation decision and placement, a per-step fence
// flag, and a deallocation schedule.
type ExecutionPlan struct {
	// Steps is the topological node order; step s runs Steps[s].
	Steps []model.NodeIndex

	// Alloc and Placement are indexed by ValueIndex, one entry per value.
	Alloc     []AllocationDecision
	Placement []model.DeviceMemoryInfo

	// FenceFlag is indexed by step (not value): FenceFlag[s] is true iff
	// step s touches any value whose producer or consumer runs on a
	// non-default execution queue, directly or through a Reuse root.
	FenceFlag []bool

	// ValueFence is indexed by ValueIndex: ValueFence[v] is true iff v
	// itself is produced or consumed on a non-default execution queue
	// (Pass B's per-value fence flag, carried through to the published
	// plan for diagnostics such as DumpPlan's "use fence when async"
	// annotation -- mirrors AllocPlanPerValue.create_fence_if_async).
	ValueFence []bool

	// ToBeFreed is the flat sequence of values released across the
	// whole plan; FreeFrom[s]..FreeTo[s] (inclusive) indexes the slice
	// of ToBeFreed released after step s completes. An empty range is
	// encoded as FreeFrom[s] > FreeTo[s].
	ToBeFreed []model.ValueIndex
	FreeFrom  []int
	FreeTo    []int
}

// FreedAtStep returns the values released after step s completes.
func (p *ExecutionPlan) FreedAtStep(s int) []model.ValueIndex {
	from, to := p.FreeFrom[s], p.FreeTo[s]
	if from > to {
		return nil
	}
	return p.ToBeFreed[from : to+1]
}

// valueAux is the planner's per-value scratch state, live only during
// CreatePlan and not part of the published ExecutionPlan.
type valueAux struct {
	useCount   int
	reusedRoot model.ValueIndex // parent-index array entry; root_of follows this to a fixed point
	defSite    model.DefinitionSite
	shape      model.SymShape
	hasShape   bool
	fenced     bool // per-value fence flag, set in Pass B when produced/consumed on a non-default queue
	defined    bool
}

// freelistEntry is one recyclable buffer: the root value whose storage
// is free, and the step at which it was released.
type freelistEntry struct {
	value          model.ValueIndex
	releasedAtStep int
}
