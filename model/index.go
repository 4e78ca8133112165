// Package model holds the shared vocabulary between the planner and the
// executor: value and node indices, the external-collaborator interfaces
// (ValueTable, ShapeOracle, KernelOracle, PlacementOracle, FenceController,
// GraphView), and the error taxonomy both packages return.
package model

// ValueIndex identifies a value: a graph input, outer-scope reference,
// initializer, or node output. Stable for the life of a session.
type ValueIndex int32

// NodeIndex identifies a node (operator invocation) in the graph.
type NodeIndex int32

// InvalidValueIndex marks the absence of a value, e.g. an unbound alias
// source.
const InvalidValueIndex ValueIndex = -1

// InvalidNodeIndex marks the absence of a node, e.g. a value with an
// external definition site.
const InvalidNodeIndex NodeIndex = -1
