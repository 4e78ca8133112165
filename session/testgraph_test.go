package session

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gomlx/execplan/model"
)

type fixtureGraph struct {
	steps   []*model.Node
	inputs  []model.ValueIndex
	outputs []model.ValueIndex
	maxNode model.NodeIndex
}

func (g *fixtureGraph) Steps() []*model.Node              { return g.steps }
func (g *fixtureGraph) Inputs() []model.ValueIndex        { return g.inputs }
func (g *fixtureGraph) Outputs() []model.ValueIndex       { return g.outputs }
func (g *fixtureGraph) Initializers() []model.ValueIndex  { return nil }
func (g *fixtureGraph) OuterScopeRefs() []model.ValueIndex { return nil }
func (g *fixtureGraph) MaxNodeIndex() model.NodeIndex     { return g.maxNode }

// fixtureKernels satisfies model.KernelOracle with no aliasing/in-place
// sharing -- every node's output plans to Fresh or GraphOutput.
type fixtureKernels struct{}

func (fixtureKernels) AliasMap(*model.Node) ([]model.AliasPair, error)   { return nil, nil }
func (fixtureKernels) InplaceMap(*model.Node) ([]model.AliasPair, error) { return nil, nil }
func (fixtureKernels) InputMemoryType(*model.Node, int) (model.MemoryType, error) {
	return model.MemTypeDefault, nil
}
func (fixtureKernels) OutputMemoryType(*model.Node, int) (model.MemoryType, error) {
	return model.MemTypeDefault, nil
}
func (fixtureKernels) ExecQueueID(*model.Node) (int, error) { return 0, nil }

type fixturePlacement struct{}

func (fixturePlacement) AllocatorInfo(*model.Node, int, model.MemoryType) (model.DeviceMemoryInfo, error) {
	return model.DeviceMemoryInfo{Provider: "CPU"}, nil
}
func (fixturePlacement) DefaultCPUMemoryInfo() model.DeviceMemoryInfo {
	return model.DeviceMemoryInfo{Provider: "CPU"}
}

type fixtureShapes struct {
	byValue map[model.ValueIndex]model.SymShape
}

func (s *fixtureShapes) ShapeOf(v model.ValueIndex) (model.SymShape, bool) {
	shape, ok := s.byValue[v]
	return shape, ok
}

func float32Vec4() model.SymShape {
	return model.SymShape{DType: model.Float32, Dims: []model.Dim{model.KnownDim(4)}}
}

// shapeKeyedTensor is a model.Tensor that also reports a shape key, for
// exercising the session's memory-pattern cache.
type shapeKeyedTensor struct {
	value float64
	key   string
}

func (t shapeKeyedTensor) ShapeKey() string { return t.key }

// fnKernel adapts a plain func to model.Kernel.
type fnKernel struct {
	compute func(ctx *model.KernelContext) error
}

func (k *fnKernel) Provider() string { return "CPU" }
func (k *fnKernel) Compute(ctx *model.KernelContext) error { return k.compute(ctx) }

func addOneLookup(node *model.Node) (model.Kernel, error) {
	return &fnKernel{compute: func(ctx *model.KernelContext) error {
		in, err := ctx.Input(0)
		if err != nil {
			return err
		}
		switch v := in.(type) {
		case float64:
			return ctx.SetOutput(0, v+1)
		case shapeKeyedTensor:
			return ctx.SetOutput(0, shapeKeyedTensor{value: v.value + 1, key: v.key})
		default:
			return errors.Errorf("unsupported tensor type %T", in)
		}
	}}, nil
}

type memFrame struct {
	mu      sync.Mutex
	tensors map[model.ValueIndex]model.Tensor
}

func newMemFrame() *memFrame {
	return &memFrame{tensors: make(map[model.ValueIndex]model.Tensor)}
}

func (f *memFrame) GetTensor(v model.ValueIndex) (model.Tensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tensors[v]
	if !ok {
		return nil, errors.Errorf("memFrame: value %d has no tensor bound", v)
	}
	return t, nil
}

func (f *memFrame) SetTensor(v model.ValueIndex, t model.Tensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tensors[v] = t
	return nil
}

func (f *memFrame) ReleaseTensor(v model.ValueIndex) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tensors, v)
	return nil
}

func (f *memFrame) FenceFor(model.ValueIndex) model.FenceController {
	return model.NoopFenceController{}
}

func (f *memFrame) GenerateMemoryPattern() (model.MemoryPattern, error) {
	return "pattern-snapshot", nil
}
