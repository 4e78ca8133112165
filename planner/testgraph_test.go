package planner

import (
	"github.com/gomlx/execplan/model"
)

// fixtureGraph is a minimal hand-built model.GraphView for exercising
// the planner against the scenarios in spec.md section 8.
type fixtureGraph struct {
	steps          []*model.Node
	inputs         []model.ValueIndex
	outputs        []model.ValueIndex
	initializers   []model.ValueIndex
	outerScopeRefs []model.ValueIndex
	maxNode        model.NodeIndex
}

func (g *fixtureGraph) Steps() []*model.Node                { return g.steps }
func (g *fixtureGraph) Inputs() []model.ValueIndex           { return g.inputs }
func (g *fixtureGraph) Outputs() []model.ValueIndex          { return g.outputs }
func (g *fixtureGraph) Initializers() []model.ValueIndex     { return g.initializers }
func (g *fixtureGraph) OuterScopeRefs() []model.ValueIndex   { return g.outerScopeRefs }
func (g *fixtureGraph) MaxNodeIndex() model.NodeIndex        { return g.maxNode }

// fixtureKernelInfo is one node's kernel contract.
type fixtureKernelInfo struct {
	aliasMap      []model.AliasPair
	inplaceMap    []model.AliasPair
	inputMemType  map[int]model.MemoryType
	outputMemType map[int]model.MemoryType
	queueID       int
}

// fixtureKernels implements model.KernelOracle over a per-node map;
// nodes absent from the map fail with NoKernelError.
type fixtureKernels struct {
	byNode map[model.NodeIndex]*fixtureKernelInfo
}

func newFixtureKernels() *fixtureKernels {
	return &fixtureKernels{byNode: make(map[model.NodeIndex]*fixtureKernelInfo)}
}

func (k *fixtureKernels) bind(node model.NodeIndex, info *fixtureKernelInfo) {
	k.byNode[node] = info
}

func (k *fixtureKernels) lookup(node *model.Node) (*fixtureKernelInfo, error) {
	info, ok := k.byNode[node.Index]
	if !ok {
		return nil, &model.NoKernelError{Node: node.Index, OpType: node.OpType}
	}
	return info, nil
}

func (k *fixtureKernels) AliasMap(node *model.Node) ([]model.AliasPair, error) {
	info, err := k.lookup(node)
	if err != nil {
		return nil, err
	}
	return info.aliasMap, nil
}

func (k *fixtureKernels) InplaceMap(node *model.Node) ([]model.AliasPair, error) {
	info, err := k.lookup(node)
	if err != nil {
		return nil, err
	}
	return info.inplaceMap, nil
}

func (k *fixtureKernels) InputMemoryType(node *model.Node, i int) (model.MemoryType, error) {
	info, err := k.lookup(node)
	if err != nil {
		return model.MemTypeDefault, err
	}
	return info.inputMemType[i], nil
}

func (k *fixtureKernels) OutputMemoryType(node *model.Node, i int) (model.MemoryType, error) {
	info, err := k.lookup(node)
	if err != nil {
		return model.MemTypeDefault, err
	}
	return info.outputMemType[i], nil
}

func (k *fixtureKernels) ExecQueueID(node *model.Node) (int, error) {
	info, err := k.lookup(node)
	if err != nil {
		return 0, err
	}
	return info.queueID, nil
}

// fixturePlacement places every default-memory-type argument on "CPU"
// and every CPU-pinned-input argument also on "CPU"; tests that need an
// async/GPU provider override specific nodes via perNode.
type fixturePlacement struct {
	defaultInfo model.DeviceMemoryInfo
	perNode     map[model.NodeIndex]model.DeviceMemoryInfo
}

func newFixturePlacement() *fixturePlacement {
	return &fixturePlacement{defaultInfo: model.DeviceMemoryInfo{Provider: "CPU"}}
}

func (p *fixturePlacement) AllocatorInfo(node *model.Node, argIndex int, memType model.MemoryType) (model.DeviceMemoryInfo, error) {
	if p.perNode != nil {
		if info, ok := p.perNode[node.Index]; ok {
			return info, nil
		}
	}
	return p.defaultInfo, nil
}

func (p *fixturePlacement) DefaultCPUMemoryInfo() model.DeviceMemoryInfo {
	return model.DeviceMemoryInfo{Provider: "CPU"}
}

// fixtureShapes is a plain map-backed model.ShapeOracle.
type fixtureShapes struct {
	byValue map[model.ValueIndex]model.SymShape
}

func newFixtureShapes() *fixtureShapes {
	return &fixtureShapes{byValue: make(map[model.ValueIndex]model.SymShape)}
}

func (s *fixtureShapes) set(v model.ValueIndex, shape model.SymShape) {
	s.byValue[v] = shape
}

func (s *fixtureShapes) ShapeOf(v model.ValueIndex) (model.SymShape, bool) {
	shape, ok := s.byValue[v]
	return shape, ok
}

// float32Vec4 is the shape most fixtures use: a rank-1 float32 tensor of
// static length 4.
func float32Vec4() model.SymShape {
	return model.SymShape{DType: model.Float32, Dims: []model.Dim{model.KnownDim(4)}}
}
