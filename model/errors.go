package model

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// UnknownValueError is returned by ValueTable when a name was never
// registered.
type UnknownValueError struct {
	Name string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("unknown value %q", e.Name)
}

// NoKernelError is returned by the planner when KernelOracle has no
// kernel bound for a node's op type. This aborts planning.
type NoKernelError struct {
	Node   NodeIndex
	OpType string
}

func (e *NoKernelError) Error() string {
	return fmt.Sprintf("no kernel bound for node %d (op %q)", e.Node, e.OpType)
}

// NoProviderError reports a node with no execution-provider binding. The
// planner does not look up provider bindings and never constructs this
// error itself; CreatePlan returns it only when an oracle returns it.
type NoProviderError struct {
	Node NodeIndex
}

func (e *NoProviderError) Error() string {
	return fmt.Sprintf("no execution provider for node %d", e.Node)
}

// PlanShapeMissingError marks a value whose shape was unavailable from
// ShapeOracle. It is non-fatal: the planner logs it and conservatively
// treats the value as non-reusable; it is never returned from
// Planner.CreatePlan.
type PlanShapeMissingError struct {
	Value ValueIndex
}

func (e *PlanShapeMissingError) Error() string {
	return fmt.Sprintf("shape missing for value %d", e.Value)
}

// CancelledError is returned by the executor when TerminateFlag was
// observed set before a node started.
type CancelledError struct{}

func (e *CancelledError) Error() string {
	return "execution cancelled"
}

// KernelFailedError wraps a kernel compute failure (or recovered panic)
// with the node's identity.
type KernelFailedError struct {
	Node   NodeIndex
	OpType string
	Name   string
	Cause  error
}

func (e *KernelFailedError) Error() string {
	return fmt.Sprintf("kernel failed at node %d (%s %q): %v", e.Node, e.OpType, e.Name, e.Cause)
}

func (e *KernelFailedError) Unwrap() error {
	return e.Cause
}

// MultipleErrorsError aggregates more than one chain failure from a
// single Execute call.
type MultipleErrorsError struct {
	Errors []error
}

func (e *MultipleErrorsError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("multiple errors were found: %s", strings.Join(parts, "; "))
}

// AggregateErrors collapses a slice of errors into a single error per
// spec: zero errors returns nil, one error is returned unwrapped, more
// than one is wrapped in MultipleErrorsError.
func AggregateErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &MultipleErrorsError{Errors: errs}
	}
}

// WrapKernelPanic converts a recovered panic value into a KernelFailedError.
func WrapKernelPanic(node NodeIndex, opType, name string, recovered any) error {
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	} else {
		cause = errors.Errorf("panic: %v", recovered)
	}
	return &KernelFailedError{Node: node, OpType: opType, Name: name, Cause: cause}
}
