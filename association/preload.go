package association

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const defaultPreloadConcurrency = 4

// PreloadOption configures Preload.
type PreloadOption func(*preloadConfig)

type preloadConfig struct {
	concurrency int
}

// WithPreloadConcurrency bounds the number of concurrent fetches Preload issues
// when the fetcher cannot batch.
func WithPreloadConcurrency(n int) PreloadOption {
	return func(c *preloadConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// Preload loads the named associations of every owner ahead of access. Unsaved
// owners and proxies that are already loaded are skipped. A BatchFetcher gets one
// call per association name; any other fetcher is fanned out concurrently.
// Owners that no longer exist end up with dangling proxies.
func Preload(ctx context.Context, fetcher Fetcher, owners []*Owner, names []string, opts ...PreloadOption) error {
	cfg := preloadConfig{concurrency: defaultPreloadConcurrency}
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, name := range names {
		var proxies []*Proxy
		for _, o := range owners {
			if o == nil || !o.Persisted() {
				continue
			}
			p, err := o.Association(name)
			if err != nil {
				return err
			}
			if p.loaded {
				continue
			}
			proxies = append(proxies, p)
		}
		if len(proxies) == 0 {
			continue
		}

		reqs := make([]FetchRequest, len(proxies))
		for i, p := range proxies {
			reqs[i] = p.request(p.stale)
		}

		results, err := fetchAll(ctx, fetcher, reqs, cfg)
		if err != nil {
			return fmt.Errorf("preload %s: %w", name, err)
		}

		for i, p := range proxies {
			res := results[i]
			p.fetches++
			switch {
			case res.Err == nil:
				p.apply(res.Records)
			case IsOwnerNotFound(res.Err):
				p.markDangling()
			default:
				return fmt.Errorf("preload %s: %w", name, res.Err)
			}
		}
	}
	return nil
}

func fetchAll(ctx context.Context, fetcher Fetcher, reqs []FetchRequest, cfg preloadConfig) ([]BatchResult, error) {
	if batcher, ok := fetcher.(BatchFetcher); ok {
		results, err := batcher.FetchBatch(ctx, reqs)
		if err != nil {
			return nil, err
		}
		if len(results) != len(reqs) {
			return nil, fmt.Errorf("batch fetcher returned %d results for %d requests", len(results), len(reqs))
		}
		return results, nil
	}

	results := make([]BatchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := fetcher.Fetch(gctx, req)
			if err != nil && !IsOwnerNotFound(err) {
				return err
			}
			results[i] = BatchResult{FetchResult: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
