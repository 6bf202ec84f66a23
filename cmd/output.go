package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"

	"github.com/s0up4200/alclient/filter"
	"github.com/s0up4200/alclient/query"
)

var (
	queryExpr  string
	filterExpr string
)

// shape applies --filter and then --query to a decoded api_response
func shape(ctx context.Context, manager *filter.Manager, filterBy, jq string, payload any) (any, error) {
	var err error
	if filterBy != "" {
		payload, err = applyFilter(ctx, manager, filterBy, payload)
		if err != nil {
			return nil, err
		}
	}

	if jq != "" {
		q, err := query.Compile(jq)
		if err != nil {
			return nil, err
		}
		values, err := q.Run(ctx, payload)
		if err != nil {
			return nil, err
		}
		if len(values) == 1 {
			return values[0], nil
		}
		return values, nil
	}

	return payload, nil
}

// applyFilter filters a list response, or the items of a search response
func applyFilter(ctx context.Context, manager *filter.Manager, filterBy string, payload any) (any, error) {
	switch v := payload.(type) {
	case []any:
		return manager.Apply(ctx, filterBy, v)
	case map[string]any:
		items, ok := v["items"].([]any)
		if !ok {
			break
		}
		matched, err := manager.Apply(ctx, filterBy, items)
		if err != nil {
			return nil, err
		}
		out := maps.Clone(v)
		out["items"] = matched
		return out, nil
	}
	return nil, fmt.Errorf("--filter needs a list response or an object with an items list")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
