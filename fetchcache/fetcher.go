package fetchcache

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-association-cache/association"
	"github.com/goliatone/go-association-cache/cache"
)

var (
	_ association.Fetcher      = (*Fetcher)(nil)
	_ association.Counter      = (*Fetcher)(nil)
	_ association.BatchFetcher = (*Fetcher)(nil)
)

const (
	methodFetch = "Fetch"
	methodCount = "Count"
)

// keyEntry describes what a tracked cache key holds so it can be invalidated
// without parsing the key back.
type keyEntry struct {
	method    string
	scope     []string
	ownerType string
	ownerID   string
	name      string
}

// Fetcher decorates a base fetcher so fetch and count results are shared
// through a CacheService by every owner instance with the same identity.
type Fetcher struct {
	base          association.Fetcher
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	keyRegistry   *xsync.MapOf[string, keyEntry]
	logger        logr.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger used to report invalidation failures.
func WithLogger(logger logr.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher that wraps base with caching.
func New(base association.Fetcher, cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *Fetcher {
	f := &Fetcher{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		keyRegistry:   xsync.NewMapOf[string, keyEntry](),
		logger:        logr.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Base returns the decorated fetcher.
func (f *Fetcher) Base() association.Fetcher {
	return f.base
}

// Fetch returns the shared result for req, calling the base fetcher on a miss.
// A request with Reload set drops the shared entry first.
func (f *Fetcher) Fetch(ctx context.Context, req association.FetchRequest) (association.FetchResult, error) {
	key := f.prepare(ctx, methodFetch, req)
	return cache.GetOrFetch(ctx, f.cache, key, func(ctx context.Context) (association.FetchResult, error) {
		f.logger.V(1).Info("shared cache miss", "key", key)
		return f.base.Fetch(ctx, req)
	})
}

// Count returns the shared target count for req. Base fetchers that cannot
// count are served from the shared fetch result.
func (f *Fetcher) Count(ctx context.Context, req association.FetchRequest) (int, error) {
	counter, ok := f.base.(association.Counter)
	if !ok {
		res, err := f.Fetch(ctx, req)
		if err != nil {
			return 0, err
		}
		return len(res.Records), nil
	}

	key := f.prepare(ctx, methodCount, req)
	return cache.GetOrFetch(ctx, f.cache, key, func(ctx context.Context) (int, error) {
		return counter.Count(ctx, req)
	})
}

// FetchBatch serves requests with tracked keys from the shared cache and sends
// the rest to the base fetcher in one batch, seeding the cache with the results.
func (f *Fetcher) FetchBatch(ctx context.Context, reqs []association.FetchRequest) ([]association.BatchResult, error) {
	out := make([]association.BatchResult, len(reqs))
	keys := make([]string, len(reqs))

	var missIdx []int
	var missReqs []association.FetchRequest
	for i, req := range reqs {
		entry := f.entry(ctx, methodFetch, req)
		keys[i] = f.key(entry, req)
		_, seen := f.keyRegistry.Load(keys[i])
		f.register(ctx, keys[i], entry, req.Reload)
		if seen && !req.Reload {
			res, err := cache.GetOrFetch(ctx, f.cache, keys[i], func(ctx context.Context) (association.FetchResult, error) {
				return f.base.Fetch(ctx, req)
			})
			out[i] = association.BatchResult{FetchResult: res, Err: err}
			continue
		}
		missIdx = append(missIdx, i)
		missReqs = append(missReqs, req)
	}

	if len(missReqs) == 0 {
		return out, nil
	}

	batcher, ok := f.base.(association.BatchFetcher)
	if !ok {
		for _, i := range missIdx {
			req := reqs[i]
			res, err := cache.GetOrFetch(ctx, f.cache, keys[i], func(ctx context.Context) (association.FetchResult, error) {
				return f.base.Fetch(ctx, req)
			})
			out[i] = association.BatchResult{FetchResult: res, Err: err}
		}
		return out, nil
	}

	results, err := batcher.FetchBatch(ctx, missReqs)
	if err != nil {
		return nil, err
	}
	if len(results) != len(missReqs) {
		return nil, errors.New("fetchcache: batch result count mismatch")
	}

	for j, i := range missIdx {
		res := results[j]
		out[i] = res
		if res.Err != nil {
			continue
		}
		if _, err := f.cache.GetOrFetch(ctx, keys[i], func(context.Context) (any, error) {
			return res.FetchResult, nil
		}); err != nil {
			f.logger.Error(err, "seed shared cache", "key", keys[i])
		}
	}

	return out, nil
}

// InvalidateOwner drops every shared entry of one owner, in any scope.
func (f *Fetcher) InvalidateOwner(ctx context.Context, ownerType, ownerID string) error {
	ownerType = toSnake(ownerType)
	return f.invalidatePrefix(ctx, f.prefix(ownerType, ownerID), func(e keyEntry) bool {
		return e.ownerType == ownerType && e.ownerID == ownerID
	})
}

// InvalidateAssociation drops the shared entries of one association of one owner.
func (f *Fetcher) InvalidateAssociation(ctx context.Context, ownerType, ownerID, name string) error {
	ownerType = toSnake(ownerType)
	return f.invalidatePrefix(ctx, f.prefix(ownerType, ownerID, name), func(e keyEntry) bool {
		return e.ownerType == ownerType && e.ownerID == ownerID && e.name == name
	})
}

// InvalidateType drops every shared entry for owners of one type.
func (f *Fetcher) InvalidateType(ctx context.Context, ownerType string) error {
	ownerType = toSnake(ownerType)
	return f.invalidatePrefix(ctx, f.prefix(ownerType), func(e keyEntry) bool {
		return e.ownerType == ownerType
	})
}

// InvalidateScope drops every entry registered under the given scope segment.
func (f *Fetcher) InvalidateScope(ctx context.Context, scope string) error {
	return f.invalidate(ctx, func(e keyEntry) bool {
		for _, s := range e.scope {
			if s == scope {
				return true
			}
		}
		return false
	})
}

// InvalidateAll drops every entry this fetcher has registered.
func (f *Fetcher) InvalidateAll(ctx context.Context) error {
	return f.invalidate(ctx, func(keyEntry) bool { return true })
}

// TrackedKeys returns the number of keys currently registered.
func (f *Fetcher) TrackedKeys() int {
	return f.keyRegistry.Size()
}

// prepare computes and registers the key for req, dropping the cached entry
// when the caller asked for a reload.
func (f *Fetcher) prepare(ctx context.Context, method string, req association.FetchRequest) string {
	entry := f.entry(ctx, method, req)
	key := f.key(entry, req)
	f.register(ctx, key, entry, req.Reload)
	return key
}

func (f *Fetcher) register(ctx context.Context, key string, entry keyEntry, reload bool) {
	if reload {
		if err := f.cache.Delete(ctx, key); err != nil {
			f.logger.Error(err, "drop shared entry", "key", key)
		}
	}
	f.track(key, entry)
}

func (f *Fetcher) entry(ctx context.Context, method string, req association.FetchRequest) keyEntry {
	return keyEntry{
		method:    method,
		scope:     cacheScopeFromContext(ctx),
		ownerType: toSnake(req.OwnerType),
		ownerID:   req.OwnerID,
		name:      req.Descriptor.Name,
	}
}

// key lays segments out owner first so every key of an owner, or of one of
// its associations, shares a prefix:
//
//	<owner type>::<owner id>::<name>::<method>[::<scope>...]::<signature>
func (f *Fetcher) key(e keyEntry, req association.FetchRequest) string {
	args := make([]any, 0, len(e.scope)+4)
	args = append(args, e.ownerID, e.name, e.method)
	for _, s := range e.scope {
		args = append(args, s)
	}
	args = append(args, signatureOf(req))
	return f.keySerializer.SerializeKey(e.ownerType, args...)
}

// prefix returns the key prefix of the given leading segments, ending with the
// separator so "p1" never matches "p10".
func (f *Fetcher) prefix(ownerType string, segments ...string) string {
	args := make([]any, 0, len(segments)+1)
	for _, s := range segments {
		args = append(args, s)
	}
	// an empty trailing segment yields the trailing separator
	args = append(args, "")
	return f.keySerializer.SerializeKey(ownerType, args...)
}

// track registers a cache key in the key registry for later invalidation
func (f *Fetcher) track(key string, e keyEntry) {
	f.keyRegistry.Store(key, e)
}

func (f *Fetcher) invalidate(ctx context.Context, match func(keyEntry) bool) error {
	var keys []string
	f.keyRegistry.Range(func(key string, e keyEntry) bool {
		if match(e) {
			keys = append(keys, key)
		}
		return true
	})
	if len(keys) == 0 {
		return nil
	}

	for _, key := range keys {
		f.keyRegistry.Delete(key)
	}
	f.logger.V(1).Info("invalidated shared entries", "count", len(keys))
	return f.cache.InvalidateKeys(ctx, keys)
}

func (f *Fetcher) invalidatePrefix(ctx context.Context, prefix string, match func(keyEntry) bool) error {
	n := 0
	f.keyRegistry.Range(func(key string, e keyEntry) bool {
		if match(e) {
			f.keyRegistry.Delete(key)
			n++
		}
		return true
	})
	f.logger.V(1).Info("invalidated shared entries", "prefix", prefix, "count", n)
	return f.cache.DeleteByPrefix(ctx, prefix)
}
