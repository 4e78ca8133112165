package model

// Tensor is an opaque handle to a piece of tensor storage. Its concrete
// representation is owned entirely by the Frame implementation; the
// planner and executor never inspect its contents.
type Tensor any

// Frame is the executor's per-run tensor-storage contract: an external
// collaborator that owns buffer allocation, feed/fetch wiring, and
// memory-pattern capture. Tensor storage and device allocators are
// explicitly out of scope for the planner and executor themselves.
type Frame interface {
	// GetTensor returns the tensor currently bound to v, allocating it
	// per plan.Alloc[v] on first access if it does not exist yet.
	GetTensor(v ValueIndex) (Tensor, error)

	// SetTensor binds t to v, used for feeds and for a node's outputs
	// after its kernel runs.
	SetTensor(v ValueIndex, t Tensor) error

	// ReleaseTensor releases the buffer backing v, called once v is
	// listed in a step's to_be_freed range.
	ReleaseTensor(v ValueIndex) error

	// FenceFor returns the FenceController bound to v's buffer, or
	// NoopFenceController if v has none.
	FenceFor(v ValueIndex) FenceController

	// GenerateMemoryPattern snapshots this run's allocation pattern, for
	// session-level caching keyed by input shapes.
	GenerateMemoryPattern() (MemoryPattern, error)
}

// MemoryPattern is an opaque, frame-defined snapshot of a run's buffer
// layout, reusable across runs with the same input shapes.
type MemoryPattern any

// Allocator is an opaque, caller-supplied buffer allocator, used to
// override how a specific fetch's output buffer is obtained from Frame.
type Allocator any

// TensorShapeKeyer is an optional Tensor extension exposing a stable
// string key for its runtime shape. A session's memory-pattern cache is
// keyed by input shapes (spec.md §4.4 item 5); since Tensor is otherwise
// opaque, a feed only participates in that cache if its concrete type
// implements this interface.
type TensorShapeKeyer interface {
	ShapeKey() string
}

// AllocatorAwareFrame is an optional Frame extension for implementations
// that accept a custom allocator for specific fetch values. The executor
// checks for this interface via a type assertion rather than requiring
// every Frame to implement it.
type AllocatorAwareFrame interface {
	Frame
	SetCustomAllocator(v ValueIndex, alloc Allocator) error
}
