// Package executor implements the parallel dispatcher: given a compiled
// ExecutionPlan, it tracks node readiness through input-edge counters,
// dispatches ready nodes onto a bounded worker pool, and coordinates
// cross-queue fences around each node invocation.
package executor

import (
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/gomlx/execplan/model"
)

// DefaultWorkerPoolSize is the executor's fixed worker-pool size, per
// spec.md §5 -- independent of host core count, unlike most worker-pool
// defaults in the corpus.
const DefaultWorkerPoolSize = 32

// Logger is the diagnostics sink a ParallelExecutor reports through. A nil
// Logger in RunOptions falls back to DefaultLogger (klog-backed).
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

type klogLogger struct{}

func (klogLogger) Infof(format string, args ...any)    { klog.V(1).Infof(format, args...) }
func (klogLogger) Warningf(format string, args ...any) { klog.Warningf(format, args...) }
func (klogLogger) Errorf(format string, args ...any)   { klog.Errorf(format, args...) }

// DefaultLogger is the klog-backed Logger used when RunOptions.Logger is nil.
var DefaultLogger Logger = klogLogger{}

// Profiler is a no-op-capable per-node event sink; profiling subsystems are
// an external collaborator per spec.md §1, so only this narrow interface
// is defined here.
type Profiler interface {
	// StartEvent begins timing an event named name and returns a func to
	// call when it ends.
	StartEvent(name string) func()
}

// NoopProfiler is a Profiler whose events are not recorded, the default
// when RunOptions.Profiler is nil.
type NoopProfiler struct{}

func (NoopProfiler) StartEvent(string) func() { return func() {} }

// Options configures a ParallelExecutor's session-lifetime state.
type Options struct {
	// MaxParallelism is the worker pool's target size; 0 uses
	// DefaultWorkerPoolSize.
	MaxParallelism int
}

// Feed binds a tensor to a graph input, outer-scope ref, or initializer
// value at the start of a run.
type Feed struct {
	Value  model.ValueIndex
	Tensor model.Tensor
}

// RunOptions is the executor's run-scoped input contract, per spec.md §6.
type RunOptions struct {
	Feeds            []Feed
	FetchIndices     []model.ValueIndex
	CustomAllocators map[model.ValueIndex]model.Allocator

	// TerminateFlag is the cooperative cancellation signal, checked once
	// per chain iteration; a nil value means the run cannot be cancelled.
	TerminateFlag *atomic.Bool

	Logger   Logger
	Profiler Profiler

	// CapturePattern requests a memory-pattern snapshot after a successful
	// run, gated on every feed being a tensor (spec.md §4.4 item 5).
	CapturePattern bool
}

// RunResult is the executor's run-scoped output, per spec.md §6.
type RunResult struct {
	Fetches []model.Tensor
	// Pattern is non-nil only when RunOptions.CapturePattern was set and
	// every feed was a tensor.
	Pattern model.MemoryPattern
}
