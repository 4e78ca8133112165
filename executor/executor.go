package executor

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gomlx/execplan/internal/workerspool"
	"github.com/gomlx/execplan/internal/xsync"
	"github.com/gomlx/execplan/model"
	"github.com/gomlx/execplan/planner"
)

// cpuProviderID is the provider id reported to a fence hook for a
// CPU-pinned input, overriding the kernel's primary provider -- spec.md
// §4.4 step 3.
const cpuProviderID = "CPU"

// ParallelExecutor consumes a compiled ExecutionPlan, tracks per-node
// readiness through input-edge counters, dispatches ready nodes onto a
// bounded worker pool, and coordinates cross-queue fences around each node
// invocation. Built once per session and reused across runs; all run-scoped
// state lives in an internal runState, never on the ParallelExecutor
// itself, so concurrent Execute calls over the same plan are safe.
type ParallelExecutor struct {
	graph   model.GraphView
	plan    *planner.ExecutionPlan
	kernels model.KernelOracle
	lookup  model.KernelLookup
	pool    *workerspool.Pool

	nodesByIndex map[model.NodeIndex]*model.Node
	stepOf       map[model.NodeIndex]int
	rootNodes    []model.NodeIndex
	pendingInit  []int32
}

// NewParallelExecutor builds a ParallelExecutor over graph and plan. kernels
// supplies ExecQueueID/InputMemoryType for fence decisions (the same oracle
// the planner used to produce plan); lookup resolves each node's bound
// Kernel at dispatch time.
func NewParallelExecutor(graph model.GraphView, plan *planner.ExecutionPlan, kernels model.KernelOracle, lookup model.KernelLookup, opts Options) *ParallelExecutor {
	nodesByIndex := make(map[model.NodeIndex]*model.Node, len(plan.Steps))
	for _, node := range graph.Steps() {
		nodesByIndex[node.Index] = node
	}

	stepOf := make(map[model.NodeIndex]int, len(plan.Steps))
	for s, idx := range plan.Steps {
		stepOf[idx] = s
	}

	pendingInit := make([]int32, int(graph.MaxNodeIndex()))
	for _, node := range graph.Steps() {
		for _, targets := range node.OutputEdges {
			for _, target := range targets {
				pendingInit[target]++
			}
		}
	}

	var roots []model.NodeIndex
	for _, node := range graph.Steps() {
		if pendingInit[node.Index] == 0 {
			roots = append(roots, node.Index)
		}
	}

	parallelism := opts.MaxParallelism
	if parallelism == 0 {
		parallelism = DefaultWorkerPoolSize
	}

	return &ParallelExecutor{
		graph:        graph,
		plan:         plan,
		kernels:      kernels,
		lookup:       lookup,
		pool:         workerspool.NewWithParallelism(parallelism),
		nodesByIndex: nodesByIndex,
		stepOf:       stepOf,
		rootNodes:    roots,
		pendingInit:  pendingInit,
	}
}

// Close blocks until every in-flight node has returned and disables the
// executor's worker pool, for session teardown.
func (ex *ParallelExecutor) Close() {
	ex.pool.Close()
}

// runState is one Execute call's run-scoped state: the per-run readiness
// counters, outstanding-task tracker, and accumulated errors. None of this
// is shared across runs.
type runState struct {
	ex        *ParallelExecutor
	frame     model.Frame
	terminate *atomic.Bool
	logger    Logger
	profiler  Profiler

	refMu   sync.Mutex
	pending []int32

	outstanding *xsync.DynamicWaitGroup

	completeMu sync.Mutex
	errs       []error
}

// Execute runs frame, already bound to plan via the caller's Frame
// implementation, to completion: binds feeds, pushes every root node,
// waits for all in-flight chains to settle, then collects fetches. Per
// spec.md §4.4: root nodes are enqueued first, the caller blocks until
// outstanding work reaches zero, and a non-empty error set short-circuits
// before any fetch is read.
func (ex *ParallelExecutor) Execute(frame model.Frame, opts RunOptions) (*RunResult, error) {
	terminate := opts.TerminateFlag
	if terminate == nil {
		terminate = new(atomic.Bool)
	}
	logger := opts.Logger
	if logger == nil {
		logger = DefaultLogger
	}
	profiler := opts.Profiler
	if profiler == nil {
		profiler = NoopProfiler{}
	}

	for _, feed := range opts.Feeds {
		if err := frame.SetTensor(feed.Value, feed.Tensor); err != nil {
			return nil, errors.Wrapf(err, "executor: binding feed %d", feed.Value)
		}
	}
	if af, ok := frame.(model.AllocatorAwareFrame); ok {
		for v, alloc := range opts.CustomAllocators {
			if err := af.SetCustomAllocator(v, alloc); err != nil {
				return nil, errors.Wrapf(err, "executor: setting custom allocator for value %d", v)
			}
		}
	}

	rs := &runState{
		ex:          ex,
		frame:       frame,
		terminate:   terminate,
		logger:      logger,
		profiler:    profiler,
		pending:     append([]int32(nil), ex.pendingInit...),
		outstanding: xsync.NewDynamicWaitGroup(),
	}

	for _, root := range ex.rootNodes {
		rs.enqueueNode(root)
	}

	rs.outstanding.Wait()

	if err := model.AggregateErrors(rs.errs); err != nil {
		logger.Errorf("executor: run failed: %v", err)
		return nil, err
	}

	fetches := make([]model.Tensor, len(opts.FetchIndices))
	for i, v := range opts.FetchIndices {
		t, err := frame.GetTensor(v)
		if err != nil {
			return nil, errors.Wrapf(err, "executor: fetching value %d", v)
		}
		fetches[i] = t
	}

	result := &RunResult{Fetches: fetches}
	if opts.CapturePattern && allTensorFeeds(opts.Feeds) {
		pattern, err := frame.GenerateMemoryPattern()
		if err != nil {
			return nil, errors.Wrap(err, "executor: generating memory pattern")
		}
		result.Pattern = pattern
	}
	return result, nil
}

func allTensorFeeds(feeds []Feed) bool {
	for _, f := range feeds {
		if f.Tensor == nil {
			return false
		}
	}
	return true
}

// enqueueNode schedules node onto the worker pool, unless errors are
// already present -- matching the original's early short-circuit before
// incrementing the outstanding counter, which avoids a wait-forever hazard
// if an enqueue raced with a completion (see DESIGN.md).
func (rs *runState) enqueueNode(node model.NodeIndex) {
	rs.completeMu.Lock()
	if len(rs.errs) > 0 {
		rs.completeMu.Unlock()
		return
	}
	rs.outstanding.Add(1)
	rs.completeMu.Unlock()

	rs.ex.pool.WaitToStart(func() {
		err := rs.runChain(node)
		rs.finishNodeRun(err)
	})
}

// finishNodeRun is the completion protocol: record a failure if any, then
// signal the outstanding-task tracker.
func (rs *runState) finishNodeRun(err error) {
	if err != nil {
		rs.completeMu.Lock()
		rs.errs = append(rs.errs, err)
		rs.completeMu.Unlock()
	}
	rs.outstanding.Done()
}

// runChain is RunNodeAsync: it executes start and, as long as completing a
// node makes exactly one dependent ready, continues inline with that
// dependent instead of re-entering the scheduler. Any additional
// newly-ready dependents are enqueued as new tasks.
func (rs *runState) runChain(start model.NodeIndex) error {
	current := start
	for {
		if rs.terminate.Load() {
			return &model.CancelledError{}
		}

		node := rs.ex.nodesByIndex[current]
		kernel, err := rs.ex.lookup(node)
		if err != nil {
			return errors.Wrapf(err, "executor: resolving kernel for node %d (%s %q)", node.Index, node.OpType, node.Name)
		}

		step := rs.ex.stepOf[current]
		fenced := rs.ex.plan.FenceFlag[step]
		var queueID int
		if fenced {
			queueID, err = rs.ex.kernels.ExecQueueID(node)
			if err != nil {
				return err
			}
			if err := rs.fenceBefore(node, kernel, queueID); err != nil {
				return errors.Wrapf(err, "executor: fence-before for node %d", node.Index)
			}
		}

		endEvent := rs.profiler.StartEvent(node.Name + "_kernel_time")
		computeErr := rs.invokeKernel(node, kernel)
		endEvent()
		if computeErr != nil {
			return computeErr
		}

		if fenced {
			if err := rs.fenceAfter(node, queueID); err != nil {
				return errors.Wrapf(err, "executor: fence-after for node %d", node.Index)
			}
		}

		if err := rs.releaseFreed(step); err != nil {
			return err
		}

		next, hasNext := rs.completeNodeAndDispatch(node)
		if !hasNext {
			return nil
		}
		current = next
	}
}

// invokeKernel calls kernel.Compute, converting a returned error into a
// KernelFailedError and recovering a panic the same way.
func (rs *runState) invokeKernel(node *model.Node, kernel model.Kernel) (err error) {
	defer model.RecoverKernelPanic(node.Index, node.OpType, node.Name, &err)
	ctx := &model.KernelContext{Node: node, Frame: rs.frame, Terminated: rs.terminate.Load}
	if computeErr := kernel.Compute(ctx); computeErr != nil {
		return &model.KernelFailedError{Node: node.Index, OpType: node.OpType, Name: node.Name, Cause: computeErr}
	}
	return nil
}

// fenceBefore calls BeforeUsingAsInput/BeforeUsingAsOutput for every input,
// implicit input, and output of node. A CPU-pinned input always reports
// the CPU provider, regardless of the kernel's primary provider.
func (rs *runState) fenceBefore(node *model.Node, kernel model.Kernel, queueID int) error {
	provider := kernel.Provider()
	for i, v := range node.Inputs {
		memType, err := rs.ex.kernels.InputMemoryType(node, i)
		if err != nil {
			return err
		}
		p := provider
		if memType == model.MemTypeCPUInput {
			p = cpuProviderID
		}
		if err := rs.frame.FenceFor(v).BeforeUsingAsInput(p, queueID); err != nil {
			return err
		}
	}
	for _, v := range node.ImplicitInputs {
		if err := rs.frame.FenceFor(v).BeforeUsingAsInput(provider, queueID); err != nil {
			return err
		}
	}
	for _, v := range node.Outputs {
		if err := rs.frame.FenceFor(v).BeforeUsingAsOutput(provider, queueID); err != nil {
			return err
		}
	}
	return nil
}

// fenceAfter calls AfterUsedAsInput/AfterUsedAsOutput for every input,
// implicit input, and output of node.
func (rs *runState) fenceAfter(node *model.Node, queueID int) error {
	for _, v := range node.Inputs {
		if err := rs.frame.FenceFor(v).AfterUsedAsInput(queueID); err != nil {
			return err
		}
	}
	for _, v := range node.ImplicitInputs {
		if err := rs.frame.FenceFor(v).AfterUsedAsInput(queueID); err != nil {
			return err
		}
	}
	for _, v := range node.Outputs {
		if err := rs.frame.FenceFor(v).AfterUsedAsOutput(queueID); err != nil {
			return err
		}
	}
	return nil
}

// releaseFreed releases every value the plan lists as freed after step s.
func (rs *runState) releaseFreed(step int) error {
	for _, v := range rs.ex.plan.FreedAtStep(step) {
		if err := rs.frame.ReleaseTensor(v); err != nil {
			return errors.Wrapf(err, "executor: releasing value %d", v)
		}
	}
	return nil
}

// completeNodeAndDispatch decrements pending[] for every dependent of node
// under refMu -- the atomic decrement-and-branch sequence that prevents a
// node from being enqueued twice -- then enqueues every newly-ready
// dependent except the first, which the caller continues inline.
func (rs *runState) completeNodeAndDispatch(node *model.Node) (next model.NodeIndex, hasNext bool) {
	var extra []model.NodeIndex

	rs.refMu.Lock()
	for _, targets := range node.OutputEdges {
		for _, m := range targets {
			rs.pending[m]--
			if rs.pending[m] == 0 {
				if !hasNext {
					next, hasNext = m, true
				} else {
					extra = append(extra, m)
				}
			}
		}
	}
	rs.refMu.Unlock()

	for _, m := range extra {
		rs.enqueueNode(m)
	}
	return next, hasNext
}
