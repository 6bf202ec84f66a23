package filter

import (
	"context"
	"runtime"
	"sync"
)

// EvaluatorOption configures an evaluator
type EvaluatorOption func(*ConcurrentEvaluator)

// WithWorkers sets the number of worker goroutines
func WithWorkers(workers int) EvaluatorOption {
	return func(e *ConcurrentEvaluator) {
		e.workerCount = workers
	}
}

// WithBatchSize sets the batch size for chunked processing
func WithBatchSize(size int) EvaluatorOption {
	return func(e *ConcurrentEvaluator) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithSkipErrors treats items the filter fails on as non-matching instead
// of aborting the evaluation.
func WithSkipErrors() EvaluatorOption {
	return func(e *ConcurrentEvaluator) {
		e.skipErrors = true
	}
}

// ConcurrentEvaluator implements Evaluator, fanning large lists out over a
// worker pool.
type ConcurrentEvaluator struct {
	workerCount int
	batchSize   int
	skipErrors  bool
	pool        WorkerPool
}

// NewConcurrentEvaluator creates a new concurrent evaluator
func NewConcurrentEvaluator(opts ...EvaluatorOption) *ConcurrentEvaluator {
	e := &ConcurrentEvaluator{
		workerCount: runtime.GOMAXPROCS(0),
		batchSize:   100,
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.workerCount <= 0 {
		e.workerCount = 1
	}

	e.pool = NewWorkerPool(e.workerCount)

	return e
}

// Evaluate returns the items matched by filter, preserving their order
func (e *ConcurrentEvaluator) Evaluate(ctx context.Context, filter CompiledFilter, items []any) ([]any, error) {
	if len(items) == 0 {
		return []any{}, nil
	}

	// Small lists are not worth the coordination
	if len(items) < e.batchSize {
		return e.evaluateChunk(filter, items, 0)
	}

	return e.evaluateConcurrent(ctx, filter, items)
}

// evaluateChunk evaluates filter against items sequentially. offset is the
// index of items[0] in the full list.
func (e *ConcurrentEvaluator) evaluateChunk(filter CompiledFilter, items []any, offset int) ([]any, error) {
	matches := make([]any, 0, len(items)/4)
	for i, item := range items {
		ok, err := filter.Match(item)
		if err != nil {
			if e.skipErrors {
				continue
			}
			return nil, &EvaluationError{
				Expression: filter.Expression(),
				Index:      offset + i,
				Reason:     err.Error(),
				Err:        err,
			}
		}
		if ok {
			matches = append(matches, item)
		}
	}
	return matches, nil
}

// evaluateConcurrent evaluates a filter against items using the worker pool
func (e *ConcurrentEvaluator) evaluateConcurrent(ctx context.Context, filter CompiledFilter, items []any) ([]any, error) {
	chunkSize := max(len(items)/e.workerCount, e.batchSize)

	type chunkResult struct {
		matches []any
		err     error
		order   int
	}

	resultChan := make(chan chunkResult, (len(items)/chunkSize)+1)
	var wg sync.WaitGroup

	chunks := 0
	for i := 0; i < len(items); i += chunkSize {
		end := min(i+chunkSize, len(items))
		chunk := items[i:end]
		offset := i
		index := chunks
		chunks++

		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				return
			}

			matches, err := e.evaluateChunk(filter, chunk, offset)
			resultChan <- chunkResult{matches: matches, err: err, order: index}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]chunkResult, chunks)
	for result := range resultChan {
		results[result.order] = result
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		total += len(r.matches)
	}

	matches := make([]any, 0, total)
	for _, r := range results {
		matches = append(matches, r.matches...)
	}

	return matches, nil
}

// Stop gracefully stops the evaluator's worker pool
func (e *ConcurrentEvaluator) Stop(ctx context.Context) error {
	return e.pool.Stop(ctx)
}
