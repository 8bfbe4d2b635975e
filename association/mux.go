package association

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRoute is returned by Mux when no fetcher handles a request's target type.
var ErrNoRoute = errors.New("association: no fetcher for target type")

// Mux dispatches requests to fetchers by descriptor target type.
type Mux struct {
	routes   map[string]Fetcher
	fallback Fetcher
}

func NewMux() *Mux {
	return &Mux{routes: make(map[string]Fetcher)}
}

// Handle routes requests whose descriptor targets targetType to f.
func (m *Mux) Handle(targetType string, f Fetcher) *Mux {
	m.routes[targetType] = f
	return m
}

// Default sets the fetcher used when no route matches, e.g. for polymorphic
// belongs_to associations that have no static target type.
func (m *Mux) Default(f Fetcher) *Mux {
	m.fallback = f
	return m
}

func (m *Mux) route(req FetchRequest) (Fetcher, error) {
	f, _, err := m.resolve(req)
	return f, err
}

// resolve returns the fetcher and the route key it was found under; the
// fallback uses the empty key.
func (m *Mux) resolve(req FetchRequest) (Fetcher, string, error) {
	if f, ok := m.routes[req.Descriptor.TargetType]; ok {
		return f, req.Descriptor.TargetType, nil
	}
	if m.fallback != nil {
		return m.fallback, "", nil
	}
	return nil, "", fmt.Errorf("%w: %q (%s.%s)", ErrNoRoute, req.Descriptor.TargetType, req.OwnerType, req.Descriptor.Name)
}

func (m *Mux) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	f, err := m.route(req)
	if err != nil {
		return FetchResult{}, err
	}
	return f.Fetch(ctx, req)
}

// Count uses the routed fetcher's Counter, or fetches and counts when it has none.
func (m *Mux) Count(ctx context.Context, req FetchRequest) (int, error) {
	f, err := m.route(req)
	if err != nil {
		return 0, err
	}
	if counter, ok := f.(Counter); ok {
		return counter.Count(ctx, req)
	}
	res, err := f.Fetch(ctx, req)
	if err != nil {
		return 0, err
	}
	return len(res.Records), nil
}

// FetchBatch groups requests by route and batches each group when the routed
// fetcher supports it.
func (m *Mux) FetchBatch(ctx context.Context, reqs []FetchRequest) ([]BatchResult, error) {
	results := make([]BatchResult, len(reqs))
	groups := make(map[string][]int)
	fetchers := make(map[string]Fetcher)
	var order []string

	for i, req := range reqs {
		f, key, err := m.resolve(req)
		if err != nil {
			results[i].Err = err
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
			fetchers[key] = f
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		f, idx := fetchers[key], groups[key]
		if batcher, ok := f.(BatchFetcher); ok {
			sub := make([]FetchRequest, len(idx))
			for j, i := range idx {
				sub[j] = reqs[i]
			}
			res, err := batcher.FetchBatch(ctx, sub)
			if err != nil {
				return nil, err
			}
			if len(res) != len(sub) {
				return nil, fmt.Errorf("batch fetcher returned %d results for %d requests", len(res), len(sub))
			}
			for j, i := range idx {
				results[i] = res[j]
			}
			continue
		}
		for _, i := range idx {
			res, err := f.Fetch(ctx, reqs[i])
			results[i] = BatchResult{FetchResult: res, Err: err}
		}
	}
	return results, nil
}
