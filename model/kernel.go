package model

// KernelContext is the per-invocation binding a kernel's compute function
// runs against: the node being computed, the frame it reads inputs from and
// writes outputs into, and a cooperative-cancellation check. This is the
// narrow slice of OpKernelContext the core needs to expose -- the kernel
// implementations themselves are out of scope (spec.md §1).
type KernelContext struct {
	Node       *Node
	Frame      Frame
	Terminated func() bool
}

// Input returns the tensor bound to this node's i'th input.
func (c *KernelContext) Input(i int) (Tensor, error) {
	return c.Frame.GetTensor(c.Node.Inputs[i])
}

// ImplicitInput returns the tensor bound to this node's i'th implicit input.
func (c *KernelContext) ImplicitInput(i int) (Tensor, error) {
	return c.Frame.GetTensor(c.Node.ImplicitInputs[i])
}

// SetOutput binds t as this node's i'th output.
func (c *KernelContext) SetOutput(i int, t Tensor) error {
	return c.Frame.SetTensor(c.Node.Outputs[i], t)
}

// Kernel is a node's bound compute function, resolved at dispatch time by a
// KernelLookup. Kernel implementations and kernel-registry lookup are out
// of scope for this module (spec.md §1); only the invocation contract the
// executor calls through is defined here.
type Kernel interface {
	// Provider is this kernel's primary execution provider id, the default
	// reported to fence hooks unless a CPU-pinned memory type overrides it
	// for a given argument.
	Provider() string

	// Compute runs the kernel against ctx, reading ctx.Node's inputs from
	// ctx.Frame and writing its outputs back into ctx.Frame. A returned
	// error, or a panic recovered at the executor's task boundary, aborts
	// the node's chain with a KernelFailedError.
	Compute(ctx *KernelContext) error
}

// KernelLookup resolves the bound Kernel for a node at run time -- the
// "KernelInfo lookup function" the executor consumes per spec.md §1.
type KernelLookup func(node *Node) (Kernel, error)
