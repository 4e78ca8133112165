package model

// MemoryType is a hint about how a kernel expects an argument to be
// placed, independent of the kernel's primary execution provider -- the
// canonical example is a GPU kernel that still wants one input pinned on
// the CPU.
type MemoryType int

const (
	// MemTypeDefault places the argument on the kernel's primary device.
	MemTypeDefault MemoryType = iota
	// MemTypeCPUInput pins an input argument to the CPU regardless of the
	// kernel's primary provider.
	MemTypeCPUInput
	// MemTypeCPUOutput pins an output argument to the CPU regardless of
	// the kernel's primary provider.
	MemTypeCPUOutput
)

// DeviceMemoryInfo describes where a buffer physically lives: a device
// provider name plus an arena/allocator tag. Two values can only share
// storage if their DeviceMemoryInfo is equal.
type DeviceMemoryInfo struct {
	Provider string
	Arena    string
}

// AliasPair pairs an input index with an output slot the kernel requires
// to share storage (a forced alias, e.g. Reshape).
type AliasPair struct {
	InputIndex int
	OutputSlot int
}

// KernelOracle exposes the bound kernel's memory-sharing contract for a
// node: which inputs must or may share storage with which outputs, how
// each argument should be placed, and whether the kernel runs on an
// asynchronous execution queue.
type KernelOracle interface {
	// AliasMap returns (input, output) pairs the kernel requires to
	// share storage -- mandatory for correctness (e.g. Reshape).
	AliasMap(node *Node) ([]AliasPair, error)

	// InplaceMap returns (input, output) pairs the kernel permits to
	// share storage opportunistically, when shapes match and the input
	// is at its last use.
	InplaceMap(node *Node) ([]AliasPair, error)

	// InputMemoryType and OutputMemoryType report placement hints for
	// argument i of node.
	InputMemoryType(node *Node, i int) (MemoryType, error)
	OutputMemoryType(node *Node, i int) (MemoryType, error)

	// ExecQueueID returns the node's execution queue id; non-zero means
	// asynchronous and triggers fence generation.
	ExecQueueID(node *Node) (int, error)
}

// PlacementOracle resolves the device memory descriptor an allocator
// would produce for a given node argument, or for the default CPU
// device used when initializer placement sites disagree.
type PlacementOracle interface {
	AllocatorInfo(node *Node, argIndex int, memType MemoryType) (DeviceMemoryInfo, error)
	DefaultCPUMemoryInfo() DeviceMemoryInfo
}

// ShapeOracle looks up a value's abstract shape, obtained from external
// type inference. A missing shape is reported by ok == false, not an
// error -- PlanShapeMissing is non-fatal; the planner treats the value
// conservatively as non-reusable and continues.
type ShapeOracle interface {
	ShapeOf(v ValueIndex) (shape SymShape, ok bool)
}

// PlannerContext carries planning-mode configuration: whether the plan
// is being built for parallel execution (disabling freelist reuse) and,
// for a nested subgraph, the enclosing node (enabling the
// Identity-in-Loop alias rule).
type PlannerContext interface {
	IsParallel() bool
	ParentNode() (node *Node, ok bool)
}

// SimplePlannerContext is a plain-struct PlannerContext, the usual way
// to supply planning mode when no richer session-level context exists.
type SimplePlannerContext struct {
	Parallel bool
	Parent   *Node
}

func (c SimplePlannerContext) IsParallel() bool { return c.Parallel }

func (c SimplePlannerContext) ParentNode() (*Node, bool) {
	if c.Parent == nil {
		return nil, false
	}
	return c.Parent, true
}
