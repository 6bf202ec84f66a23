package filter

import (
	"context"
)

// CompiledFilter is a pre-compiled expression ready for evaluation against
// items of an API list response.
type CompiledFilter interface {
	// Match reports whether item satisfies the filter
	Match(item any) (bool, error)

	// Expression returns the original filter expression
	Expression() string
}

// Compiler compiles filter expressions into executable filters
type Compiler interface {
	// Compile parses and compiles a filter expression
	Compile(expression string) (CompiledFilter, error)
}

// Evaluator evaluates filters against lists of items
type Evaluator interface {
	// Evaluate returns the items matched by filter, in their original order
	Evaluate(ctx context.Context, filter CompiledFilter, items []any) ([]any, error)
}

// CachingCompiler provides caching for compiled filters
type CachingCompiler interface {
	Compiler

	// Clear removes all cached filters
	Clear()

	// Size returns the number of cached filters
	Size() int
}

// WorkerPool defines the interface for concurrent work execution
type WorkerPool interface {
	// Submit submits work to the pool
	Submit(work func()) error

	// Stop gracefully stops the worker pool
	Stop(ctx context.Context) error
}
