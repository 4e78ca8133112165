package planner

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/execplan/model"
)

// Planner runs the four-pass allocation planning algorithm over a graph
// and its oracles, producing an immutable ExecutionPlan. It is
// single-threaded and deterministic: identical inputs produce
// byte-identical plans.
type Planner struct {
	graph   model.GraphView
	values  *model.ValueTable
	kernels model.KernelOracle
	placer  model.PlacementOracle
	shapes  model.ShapeOracle
	ctx     model.PlannerContext
}

// NewPlanner constructs a Planner over the given graph, oracles, and
// planning-mode context (parallel vs sequential, enclosing subgraph node).
func NewPlanner(graph model.GraphView, values *model.ValueTable, kernels model.KernelOracle, placer model.PlacementOracle, shapes model.ShapeOracle, ctx model.PlannerContext) *Planner {
	return &Planner{graph: graph, values: values, kernels: kernels, placer: placer, shapes: shapes, ctx: ctx}
}

// planState carries the passes' shared working state -- sized once in
// Pass A and mutated in place through Pass D.
type planState struct {
	p *Planner

	info      []valueAux
	alloc     []AllocationDecision
	placement []model.DeviceMemoryInfo
	freelist  []freelistEntry

	// initializer placement candidates, gathered during Pass B and
	// resolved by the dedicated sub-pass that follows it.
	initializerSites map[model.ValueIndex][]model.DeviceMemoryInfo
}

// CreatePlan runs passes A through D and returns the resulting
// ExecutionPlan, or the first fatal error encountered.
func (p *Planner) CreatePlan() (*ExecutionPlan, error) {
	st := &planState{p: p}
	st.initPassA()

	if klog.V(2).Enabled() {
		klog.V(2).Infof("planner: pass A done, %d values", len(st.info))
	}

	if err := st.passB_UseCountsAndPlacement(); err != nil {
		return nil, err
	}
	st.planInitializerPlacement()

	if err := st.passC_ReusePlan(); err != nil {
		return nil, err
	}

	plan := st.passD_FenceAndDeallocation()

	if klog.V(2).Enabled() {
		klog.V(2).Infof("planner: plan complete, %d steps, %d freed entries", len(plan.Steps), len(plan.ToBeFreed))
	}
	return plan, nil
}

// initPassA sizes alloc, placement, and the auxiliary info slice. Every
// value starts as its own reuse root with a zero use count.
func (st *planState) initPassA() {
	n := int(st.p.values.MaxIndex())
	st.info = make([]valueAux, n)
	st.alloc = make([]AllocationDecision, n)
	st.placement = make([]model.DeviceMemoryInfo, n)
	st.initializerSites = make(map[model.ValueIndex][]model.DeviceMemoryInfo)
	for v := 0; v < n; v++ {
		st.info[v].reusedRoot = model.ValueIndex(v)
	}
}

func (st *planState) rootOf(v model.ValueIndex) model.ValueIndex {
	for st.info[v].reusedRoot != v {
		v = st.info[v].reusedRoot
	}
	return v
}

// reuse splices v onto u's reuse root: v's use count is folded into the
// root's, v's AllocationDecision becomes {kind, root}, and v's
// reusedRoot is updated so later rootOf(v) calls are O(1).
func (st *planState) reuse(u, v model.ValueIndex, kind AllocKind) {
	r := st.rootOf(u)
	st.info[v].reusedRoot = r
	st.info[r].useCount += st.info[v].useCount
	st.alloc[v] = AllocationDecision{Kind: kind, Ref: r}
}

func (st *planState) registerExternalDef(v model.ValueIndex, kind model.DefinitionKind) {
	st.info[v].defined = true
	st.info[v].defSite = model.DefinitionSite{Kind: kind}
	switch kind {
	case model.DefInitializer:
		st.alloc[v] = AllocationDecision{Kind: AllocStatic}
	default:
		st.alloc[v] = AllocationDecision{Kind: AllocExternal}
	}
}

func (st *planState) shapeOf(v model.ValueIndex) model.SymShape {
	if st.info[v].hasShape {
		return st.info[v].shape
	}
	shape, ok := st.p.shapes.ShapeOf(v)
	if !ok {
		klog.V(1).Infof("planner: %v for value %d", &model.PlanShapeMissingError{Value: v}, v)
		return model.SymShape{}
	}
	st.info[v].shape = shape
	st.info[v].hasShape = true
	return shape
}

// passB_UseCountsAndPlacement is Pass B: register every value's
// definition, accumulate use counts, assign placement for graph inputs
// and outer-scope refs directly, set the per-value fence flag for
// nodes on a non-default execution queue, and add sentinel uses for
// values the caller can observe (graph inputs/outer-scope refs here;
// graph outputs once all steps are processed).
func (st *planState) passB_UseCountsAndPlacement() error {
	for _, v := range st.p.graph.Inputs() {
		st.registerExternalDef(v, model.DefGraphInput)
		st.info[v].useCount++ // sentinel: never reusable
	}
	for _, v := range st.p.graph.OuterScopeRefs() {
		st.registerExternalDef(v, model.DefOuterScope)
		st.info[v].useCount++
	}
	for _, v := range st.p.graph.Initializers() {
		st.registerExternalDef(v, model.DefInitializer)
		st.info[v].useCount++
	}

	for _, node := range st.p.graph.Steps() {
		queueID, err := st.p.kernels.ExecQueueID(node)
		if err != nil {
			return errors.Wrapf(err, "planner: no kernel bound for node %d (op %q)", node.Index, node.OpType)
		}
		fenced := queueID != 0

		for i, v := range node.Inputs {
			st.info[v].useCount++
			if fenced {
				st.info[v].fenced = true
			}
			if st.info[v].defSite.Kind == model.DefGraphInput || st.info[v].defSite.Kind == model.DefOuterScope {
				// Unconditional overwrite, not first-use-wins: when a
				// graph input or outer-scope value is consumed by more
				// than one node with differing memory-type requirements,
				// the last consuming node (in step order) determines its
				// placement, matching process_input's unconditional
				// plan_.SetLocation call.
				memType, err := st.p.kernels.InputMemoryType(node, i)
				if err != nil {
					return err
				}
				info, err := st.p.placer.AllocatorInfo(node, i, memType)
				if err != nil {
					return err
				}
				st.placement[v] = info
			} else if st.info[v].defSite.Kind == model.DefInitializer {
				memType, err := st.p.kernels.InputMemoryType(node, i)
				if err != nil {
					return err
				}
				info, err := st.p.placer.AllocatorInfo(node, i, memType)
				if err != nil {
					return err
				}
				st.initializerSites[v] = append(st.initializerSites[v], info)
			}
		}
		for _, v := range node.ImplicitInputs {
			st.info[v].useCount++
			if fenced {
				st.info[v].fenced = true
			}
		}
		for i, v := range node.Outputs {
			st.info[v].defined = true
			st.info[v].defSite = model.DefinitionSite{Kind: model.DefNodeOutput, Node: node.Index, Slot: i}
			st.info[v].useCount++
			if fenced {
				st.info[v].fenced = true
			}
			memType, err := st.p.kernels.OutputMemoryType(node, i)
			if err != nil {
				return err
			}
			info, err := st.p.placer.AllocatorInfo(node, i, memType)
			if err != nil {
				return err
			}
			st.placement[v] = info
		}
	}

	for _, v := range st.p.graph.Outputs() {
		st.info[v].useCount++ // sentinel: graph outputs are never freelisted
	}
	return nil
}

// planInitializerPlacement is the dedicated sub-pass mirroring the
// original's GeneratePlanForWeights: if every consuming site agreed on
// a DeviceMemoryInfo for a given initializer, place it there; otherwise
// fall back to the default CPU device and let downstream kernels insert
// copies.
func (st *planState) planInitializerPlacement() {
	for _, v := range st.p.graph.Initializers() {
		sites := st.initializerSites[v]
		if len(sites) == 0 {
			st.placement[v] = st.p.placer.DefaultCPUMemoryInfo()
			continue
		}
		agreed := sites[0]
		for _, s := range sites[1:] {
			if s != agreed {
				agreed = st.p.placer.DefaultCPUMemoryInfo()
				break
			}
		}
		st.placement[v] = agreed
	}
}

func isGraphOutput(graph model.GraphView, v model.ValueIndex) bool {
	for _, o := range graph.Outputs() {
		if o == v {
			return true
		}
	}
	return false
}

func findAliasInput(pairs []model.AliasPair, slot int) (int, bool) {
	for _, pair := range pairs {
		if pair.OutputSlot == slot {
			return pair.InputIndex, true
		}
	}
	return -1, false
}

// passC_ReusePlan is Pass C: for every step's outputs, in declaration
// order, choose an AllocationDecision by the first matching rule, then
// release the step's inputs/implicit inputs/outputs onto the freelist.
func (st *planState) passC_ReusePlan() error {
	for s, node := range st.p.graph.Steps() {
		aliasPairs, err := st.p.kernels.AliasMap(node)
		if err != nil {
			return err
		}
		inplacePairs, err := st.p.kernels.InplaceMap(node)
		if err != nil {
			return err
		}

		for slot, v := range node.Outputs {
			st.planOutput(node, slot, v, aliasPairs, inplacePairs)
		}

		st.releaseStep(node, s)
	}
	return nil
}

func (st *planState) planOutput(node *model.Node, slot int, v model.ValueIndex, aliasPairs, inplacePairs []model.AliasPair) {
	// Rule 1: graph output, with the Identity-in-Loop alias special case.
	if isGraphOutput(st.p.graph, v) {
		parent, hasParent := st.p.ctx.ParentNode()
		if node.OpType == "Identity" && hasParent && parent.OpType == "Loop" &&
			len(node.Inputs) == 1 && st.alloc[node.Inputs[0]].Kind == AllocExternal {
			st.reuse(node.Inputs[0], v, AllocAlias)
			return
		}
		st.alloc[v] = AllocationDecision{Kind: AllocGraphOutput}
		return
	}

	// Rule 2: non-tensor output never shares storage.
	if !st.shapeOf(v).IsTensor() {
		st.alloc[v] = AllocationDecision{Kind: AllocFresh}
		return
	}

	// Rule 3: forced alias.
	if u, ok := findAliasInput(aliasPairs, slot); ok && u >= 0 && u < len(node.Inputs) {
		st.reuse(node.Inputs[u], v, AllocReuse)
		return
	}

	// Rule 4: opportunistic in-place.
	if u, ok := findAliasInput(inplacePairs, slot); ok && u >= 0 && u < len(node.Inputs) {
		src := node.Inputs[u]
		root := st.rootOf(src)
		if st.info[root].useCount == 1 && model.SameSize(st.shapeOf(src), st.shapeOf(v)) {
			st.reuse(src, v, AllocReuse)
			return
		}
	}

	// Rule 5: freelist reuse, sequential mode only.
	// SameSize stays conservative here: a shape-different buffer of equal
	// total byte size is never chosen (no byte-equal comparison).
	if !st.p.ctx.IsParallel() {
		for i, entry := range st.freelist {
			if st.placement[entry.value] == st.placement[v] && model.SameSize(st.shapeOf(entry.value), st.shapeOf(v)) {
				st.reuse(entry.value, v, AllocReuse)
				st.freelist = append(st.freelist[:i], st.freelist[i+1:]...)
				return
			}
		}
	}

	// Rule 6: fresh.
	st.alloc[v] = AllocationDecision{Kind: AllocFresh}
}

// releaseStep processes node's regular inputs, implicit inputs, and
// outputs for release after step s's outputs have all been planned.
func (st *planState) releaseStep(node *model.Node, s int) {
	release := func(w model.ValueIndex) {
		root := st.rootOf(w)
		st.info[root].useCount--
		if st.info[root].useCount == 0 {
			st.freelist = append([]freelistEntry{{value: root, releasedAtStep: s}}, st.freelist...)
		}
	}
	for _, w := range node.Inputs {
		release(w)
	}
	for _, w := range node.ImplicitInputs {
		release(w)
	}
	for _, w := range node.Outputs {
		release(w)
	}
}

// passD_FenceAndDeallocation is Pass D: compute each step's fence flag
// and emit the deallocation schedule from the freelist's release order.
func (st *planState) passD_FenceAndDeallocation() *ExecutionPlan {
	steps := st.p.graph.Steps()
	m := len(steps)

	fenceFlag := make([]bool, m)
	for s, node := range steps {
		fenceFlag[s] = st.stepHasFence(node)
	}

	toBeFreed, freeFrom, freeTo := st.deallocationSchedule(m)

	stepIndices := make([]model.NodeIndex, m)
	for s, node := range steps {
		stepIndices[s] = node.Index
	}

	valueFence := make([]bool, len(st.info))
	for v := range st.info {
		valueFence[v] = st.info[v].fenced
	}

	return &ExecutionPlan{
		Steps:      stepIndices,
		Alloc:      st.alloc,
		Placement:  st.placement,
		FenceFlag:  fenceFlag,
		ValueFence: valueFence,
		ToBeFreed:  toBeFreed,
		FreeFrom:   freeFrom,
		FreeTo:     freeTo,
	}
}

// stepHasFence reports whether any of node's inputs, implicit inputs, or
// outputs carries a fence flag -- directly, or through one hop of Reuse
// indirection (Reuse always points straight at a root by construction,
// so a single hop is enough; it is never a full rootOf walk).
func (st *planState) stepHasFence(node *model.Node) bool {
	check := func(w model.ValueIndex) bool {
		if st.info[w].fenced {
			return true
		}
		if st.alloc[w].Kind == AllocReuse && st.info[st.alloc[w].Ref].fenced {
			return true
		}
		return false
	}
	for _, w := range node.Inputs {
		if check(w) {
			return true
		}
	}
	for _, w := range node.ImplicitInputs {
		if check(w) {
			return true
		}
	}
	for _, w := range node.Outputs {
		if check(w) {
			return true
		}
	}
	return false
}

// deallocationSchedule iterates the freelist in reverse -- oldest-freed
// first, since releaseStep always inserts at the front -- and groups
// consecutive entries by their release step into ToBeFreed/FreeFrom/FreeTo.
func (st *planState) deallocationSchedule(m int) (toBeFreed []model.ValueIndex, freeFrom, freeTo []int) {
	freeFrom = make([]int, m)
	freeTo = make([]int, m)
	for s := range freeFrom {
		freeFrom[s] = 0
		freeTo[s] = -1
	}

	currentStep := -1
	for i := len(st.freelist) - 1; i >= 0; i-- {
		entry := st.freelist[i]
		if entry.releasedAtStep != currentStep {
			if currentStep != -1 {
				freeTo[currentStep] = len(toBeFreed) - 1
			}
			currentStep = entry.releasedAtStep
			freeFrom[currentStep] = len(toBeFreed)
		}
		toBeFreed = append(toBeFreed, entry.value)
	}
	if currentStep != -1 {
		freeTo[currentStep] = len(toBeFreed) - 1
	}
	return toBeFreed, freeFrom, freeTo
}
