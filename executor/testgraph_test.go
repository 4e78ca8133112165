package executor

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gomlx/execplan/model"
)

// fixtureGraph is a minimal hand-built model.GraphView, mirroring the
// planner package's test fixture but carrying OutputEdges, which the
// planner itself never reads.
type fixtureGraph struct {
	steps          []*model.Node
	inputs         []model.ValueIndex
	outputs        []model.ValueIndex
	initializers   []model.ValueIndex
	outerScopeRefs []model.ValueIndex
	maxNode        model.NodeIndex
}

func (g *fixtureGraph) Steps() []*model.Node               { return g.steps }
func (g *fixtureGraph) Inputs() []model.ValueIndex         { return g.inputs }
func (g *fixtureGraph) Outputs() []model.ValueIndex        { return g.outputs }
func (g *fixtureGraph) Initializers() []model.ValueIndex   { return g.initializers }
func (g *fixtureGraph) OuterScopeRefs() []model.ValueIndex { return g.outerScopeRefs }
func (g *fixtureGraph) MaxNodeIndex() model.NodeIndex      { return g.maxNode }

// fixtureKernelOracle satisfies model.KernelOracle; AliasMap/InplaceMap
// are never consulted by the executor, only ExecQueueID/InputMemoryType.
type fixtureKernelOracle struct {
	queueID      map[model.NodeIndex]int
	inputMemType map[model.NodeIndex]map[int]model.MemoryType
}

func newFixtureKernelOracle() *fixtureKernelOracle {
	return &fixtureKernelOracle{
		queueID:      make(map[model.NodeIndex]int),
		inputMemType: make(map[model.NodeIndex]map[int]model.MemoryType),
	}
}

func (k *fixtureKernelOracle) AliasMap(*model.Node) ([]model.AliasPair, error)   { return nil, nil }
func (k *fixtureKernelOracle) InplaceMap(*model.Node) ([]model.AliasPair, error) { return nil, nil }

func (k *fixtureKernelOracle) InputMemoryType(node *model.Node, i int) (model.MemoryType, error) {
	if byArg, ok := k.inputMemType[node.Index]; ok {
		return byArg[i], nil
	}
	return model.MemTypeDefault, nil
}

func (k *fixtureKernelOracle) OutputMemoryType(*model.Node, int) (model.MemoryType, error) {
	return model.MemTypeDefault, nil
}

func (k *fixtureKernelOracle) ExecQueueID(node *model.Node) (int, error) {
	return k.queueID[node.Index], nil
}

// fnKernel adapts a plain func to model.Kernel.
type fnKernel struct {
	provider string
	compute  func(ctx *model.KernelContext) error
}

func (k *fnKernel) Provider() string                        { return k.provider }
func (k *fnKernel) Compute(ctx *model.KernelContext) error { return k.compute(ctx) }

// addOneKernel returns a Kernel computing output[0] = input[0].(float64) + 1.
func addOneKernel() model.Kernel {
	return &fnKernel{provider: "CPU", compute: func(ctx *model.KernelContext) error {
		in, err := ctx.Input(0)
		if err != nil {
			return err
		}
		return ctx.SetOutput(0, in.(float64)+1)
	}}
}

// sumKernel returns a Kernel computing output[0] = sum of all inputs.
func sumKernel() model.Kernel {
	return &fnKernel{provider: "CPU", compute: func(ctx *model.KernelContext) error {
		var total float64
		for i := range ctx.Node.Inputs {
			in, err := ctx.Input(i)
			if err != nil {
				return err
			}
			total += in.(float64)
		}
		return ctx.SetOutput(0, total)
	}}
}

// failKernel returns a Kernel that always fails with msg.
func failKernel(msg string) model.Kernel {
	return &fnKernel{provider: "CPU", compute: func(*model.KernelContext) error {
		return errors.New(msg)
	}}
}

// fencingFenceController records each call it receives, for assertions
// about fence-hook ordering and the provider/queue ids passed in.
type fencingFenceController struct {
	mu        sync.Mutex
	calls     []string
	providers []string
	queues    []int
}

func (f *fencingFenceController) BeforeUsingAsInput(provider string, queue int) error {
	f.record("before-input", provider, queue)
	return nil
}
func (f *fencingFenceController) AfterUsedAsInput(queue int) error {
	f.record("after-input", "", queue)
	return nil
}
func (f *fencingFenceController) BeforeUsingAsOutput(provider string, queue int) error {
	f.record("before-output", provider, queue)
	return nil
}
func (f *fencingFenceController) AfterUsedAsOutput(queue int) error {
	f.record("after-output", "", queue)
	return nil
}

func (f *fencingFenceController) record(kind, provider string, queue int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	f.providers = append(f.providers, provider)
	f.queues = append(f.queues, queue)
}

// memFrame is a minimal in-memory model.Frame for executor tests: a
// mutex-protected tensor map plus a release log and per-value fences.
type memFrame struct {
	mu       sync.Mutex
	tensors  map[model.ValueIndex]model.Tensor
	released []model.ValueIndex
	fences   map[model.ValueIndex]model.FenceController
}

func newMemFrame() *memFrame {
	return &memFrame{
		tensors: make(map[model.ValueIndex]model.Tensor),
		fences:  make(map[model.ValueIndex]model.FenceController),
	}
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
	f.released = append(f.released, v)
	delete(f.tensors, v)
	return nil
}

func (f *memFrame) FenceFor(v model.ValueIndex) model.FenceController {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fc, ok := f.fences[v]; ok {
		return fc
	}
	return model.NoopFenceController{}
}

func (f *memFrame) GenerateMemoryPattern() (model.MemoryPattern, error) {
	return "pattern", nil
}
