// Package handler defines the contract a user-authored resource handler
// implements. Handlers are plain functions: the framework supplies the
// primary key and merged input object, and receives back a value, nil, or a
// domain error.
package handler

import "context"

// Func is the uniform invocation contract every resource handler implements,
// regardless of whether it is driven locally (CLI) or remotely (worker).
//
// pk is nil when the operation has no primary key (e.g. a plain "create").
// obj is the merged input object assembled by the Input Assembler (CLI) or
// decoded request body/path/query (HTTP).
//
// A handler returns (value, nil) for success (value may be nil for 204), or
// (nil, *DomainError) for an expected domain failure, or (nil, err) for any
// other error, which the runtime treats as unexpected/internal.
type Func func(ctx context.Context, pk *string, obj map[string]any) (any, error)

// DomainError is raised by handler code to signal an expected failure with
// an explicit response payload and status code.
type DomainError struct {
	Payload any
	Status  int
}

func (e *DomainError) Error() string { return "handler domain error" }

// LongRunning is a marker for handlers (typically wrapping a Func in a small
// adapter) that run long. The worker runtime does not consult it: lone
// descriptors store plain Funcs, and the 202-accept path is chosen from the
// operation's x-laf-long-running annotation in its OpenAPI document.
type LongRunning interface {
	LongRunning() bool
}

// LongRunningFunc wraps a Func and marks it long-running.
type LongRunningFunc struct {
	Func
}

// LongRunning always reports true for LongRunningFunc.
func (LongRunningFunc) LongRunning() bool { return true }
