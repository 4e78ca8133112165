// Package session is the minimal session-lifecycle façade: it builds an
// ExecutionPlan once, owns the ParallelExecutor that runs against it, and
// maintains the session-scoped memory-pattern cache keyed by input shapes
// (spec.md §4.4 item 5, §9 "the memory-pattern cache is the only
// session-scoped mutation"). Model-file decoding, type inference, and
// kernel-registry lookup remain out of scope; a Session is built from the
// same oracles the planner and executor already consume.
package session

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gomlx/execplan/executor"
	"github.com/gomlx/execplan/model"
	"github.com/gomlx/execplan/planner"
)

// Options configures a Session's executor setup. Plan-build configuration
// (parallel vs sequential, parent node) is supplied directly as a
// model.PlannerContext to New, since the planner already exposes that
// contract and a second config struct would only duplicate it.
type Options struct {
	Executor executor.Options
}

// Session owns one graph's compiled ExecutionPlan and the ParallelExecutor
// built against it, plus the run-correlated memory-pattern cache. Stable
// for the life of a session: the plan is built once in New and never
// recomputed.
type Session struct {
	values *model.ValueTable
	graph  model.GraphView
	plan   *planner.ExecutionPlan
	ex     *executor.ParallelExecutor

	patternMu sync.Mutex
	patterns  map[string]model.MemoryPattern
}

// New builds the session's ExecutionPlan via planner.Planner.CreatePlan and
// the ParallelExecutor that will run it. lookup resolves each node's bound
// Kernel at dispatch time (out of scope for planning itself).
func New(graph model.GraphView, values *model.ValueTable, kernels model.KernelOracle, placer model.PlacementOracle, shapes model.ShapeOracle, plannerCtx model.PlannerContext, lookup model.KernelLookup, opts Options) (*Session, error) {
	plan, err := planner.NewPlanner(graph, values, kernels, placer, shapes, plannerCtx).CreatePlan()
	if err != nil {
		return nil, errors.Wrap(err, "session: building execution plan")
	}
	ex := executor.NewParallelExecutor(graph, plan, kernels, lookup, opts.Executor)
	return &Session{
		values:   values,
		graph:    graph,
		plan:     plan,
		ex:       ex,
		patterns: make(map[string]model.MemoryPattern),
	}, nil
}

// Plan returns the session's compiled ExecutionPlan, for diagnostics (e.g.
// planner.DumpPlan) or inspection by tests.
func (s *Session) Plan() *planner.ExecutionPlan {
	return s.plan
}

// RunRequest is Session.Execute's run-scoped input, matching
// executor.RunOptions plus the Frame the caller's collaborator built for
// this run.
type RunRequest struct {
	Frame            model.Frame
	Feeds            []executor.Feed
	FetchIndices     []model.ValueIndex
	CustomAllocators map[model.ValueIndex]model.Allocator
	TerminateFlag    *atomic.Bool
	Logger           executor.Logger
	Profiler         executor.Profiler
	CapturePattern   bool
}

// Execute tags the run with a correlation id for log lines, delegates to
// the session's ParallelExecutor, and -- when CapturePattern is set and
// every feed's Tensor exposes a model.TensorShapeKeyer -- stores the
// resulting pattern in the session's cache.
func (s *Session) Execute(req RunRequest) (*executor.RunResult, error) {
	runID := uuid.NewString()
	logger := req.Logger
	if logger == nil {
		logger = executor.DefaultLogger
	}
	logger.Infof("session: run %s starting, %d feeds, %d fetches", runID, len(req.Feeds), len(req.FetchIndices))

	result, err := s.ex.Execute(req.Frame, executor.RunOptions{
		Feeds:            req.Feeds,
		FetchIndices:     req.FetchIndices,
		CustomAllocators: req.CustomAllocators,
		TerminateFlag:    req.TerminateFlag,
		Logger:           logger,
		Profiler:         req.Profiler,
		CapturePattern:   req.CapturePattern,
	})
	if err != nil {
		logger.Errorf("session: run %s failed: %v", runID, err)
		return nil, err
	}

	if req.CapturePattern && result.Pattern != nil {
		if key, ok := patternKey(req.Feeds); ok {
			s.patternMu.Lock()
			s.patterns[key] = result.Pattern
			s.patternMu.Unlock()
		}
	}

	logger.Infof("session: run %s complete", runID)
	return result, nil
}

// CachedPattern returns a previously captured memory pattern for a run
// whose feeds carry the same shape key as feeds, if one exists.
func (s *Session) CachedPattern(feeds []executor.Feed) (model.MemoryPattern, bool) {
	key, ok := patternKey(feeds)
	if !ok {
		return nil, false
	}
	s.patternMu.Lock()
	defer s.patternMu.Unlock()
	pattern, ok := s.patterns[key]
	return pattern, ok
}

// patternKey combines every feed's shape key in order; it reports ok ==
// false if any feed's Tensor does not implement model.TensorShapeKeyer,
// mirroring the original's all-feeds-must-be-tensors gate.
func patternKey(feeds []executor.Feed) (string, bool) {
	var sb strings.Builder
	for i, f := range feeds {
		keyer, ok := f.Tensor.(model.TensorShapeKeyer)
		if !ok {
			return "", false
		}
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(keyer.ShapeKey())
	}
	return sb.String(), true
}

// Close tears down the session's executor, blocking until every in-flight
// node has returned.
func (s *Session) Close() {
	s.ex.Close()
}
