// Package query projects API payloads through jq expressions.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// Query is a compiled jq expression. It is safe for concurrent use.
type Query struct {
	expression string
	code       *gojq.Code
}

// Compile parses and compiles a jq expression.
func Compile(expression string) (*Query, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, errors.New("empty jq expression")
	}

	parsed, err := gojq.Parse(expression)
	if err != nil {
		var parseErr *gojq.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("invalid jq expression at position %d: %w", parseErr.Offset, err)
		}
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}

	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq expression: %w", err)
	}

	return &Query{expression: expression, code: code}, nil
}

// String returns the source expression.
func (q *Query) String() string {
	return q.expression
}

// Run evaluates the query against input and collects every emitted value.
// input may be any value that marshals to JSON.
func (q *Query) Run(ctx context.Context, input any) ([]any, error) {
	normalized, err := normalize(input)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0)
	iter := q.code.RunWithContext(ctx, normalized)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := v.(error); isErr {
			var haltErr *gojq.HaltError
			if errors.As(err, &haltErr) && haltErr.Value() == nil {
				break
			}
			return nil, formatError(err)
		}

		values = append(values, v)
	}

	return values, nil
}

// First returns the first value the query emits, or nil when it emits none.
func (q *Query) First(ctx context.Context, input any) (any, error) {
	values, err := q.Run(ctx, input)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

// normalize converts input to the plain JSON types gojq operates on.
func normalize(input any) (any, error) {
	switch input.(type) {
	case nil, bool, string, float64, int, map[string]any, []any:
		return input, nil
	}

	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("query input is not JSON-encodable: %w", err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("query input is not JSON-encodable: %w", err)
	}
	return out, nil
}

// formatError adds a hint to the runtime errors users hit most often.
func formatError(err error) error {
	var haltErr *gojq.HaltError
	if errors.As(err, &haltErr) {
		return fmt.Errorf("query halted with: %v", haltErr.Value())
	}

	msg := err.Error()
	var hint string
	switch {
	case strings.Contains(msg, "cannot iterate over: null"):
		hint = " (the path may not exist in this response)"
	case strings.Contains(msg, "cannot index") && strings.Contains(msg, "with"):
		hint = " (field not found or wrong type)"
	}

	return fmt.Errorf("query failed: %w%s", err, hint)
}
