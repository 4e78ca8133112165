package model

// DefinitionKind classifies where a value comes from.
type DefinitionKind int

const (
	// DefGraphInput marks a value supplied by the caller at run time.
	DefGraphInput DefinitionKind = iota
	// DefOuterScope marks a value captured from an enclosing subgraph.
	DefOuterScope
	// DefInitializer marks a constant baked into the graph.
	DefInitializer
	// DefNodeOutput marks a value produced by a node's output slot.
	DefNodeOutput
)

// DefinitionSite is where a value is defined: either external (graph
// input / outer-scope / initializer) or a specific node's output slot.
type DefinitionSite struct {
	Kind DefinitionKind
	Node NodeIndex // valid only when Kind == DefNodeOutput
	Slot int       // output slot index within Node, when Kind == DefNodeOutput
}

// IsExternal reports whether the site is outside the topological step
// sequence (graph input, outer-scope reference, or initializer).
func (d DefinitionSite) IsExternal() bool {
	return d.Kind != DefNodeOutput
}

// Node is an operator invocation: ordered input and output value indices,
// an operator type name, and a unique node index. Implicit inputs are
// values consumed by a nested subgraph body (e.g. a Loop's body) rather
// than by the node's own kernel directly, but which must still be live
// and fenced when the node runs.
type Node struct {
	Index          NodeIndex
	OpType         string
	Name           string
	Inputs         []ValueIndex
	ImplicitInputs []ValueIndex
	Outputs        []ValueIndex
	OutputEdges    [][]NodeIndex // OutputEdges[i] = nodes consuming Outputs[i]
}

// GraphView is the planner's read-only view of the graph: a
// topologically-sortable sequence of nodes plus the sets of externally
// defined values. The planner accepts the topological order it is given
// and never reorders it.
type GraphView interface {
	// Steps returns nodes in topological order; step s is Steps()[s].
	Steps() []*Node

	// Inputs, Outputs, Initializers, and OuterScopeRefs name the value
	// indices with each of those definition kinds, in declaration order.
	Inputs() []ValueIndex
	Outputs() []ValueIndex
	Initializers() []ValueIndex
	OuterScopeRefs() []ValueIndex

	// MaxNodeIndex returns one past the highest node index in the graph.
	MaxNodeIndex() NodeIndex
}
