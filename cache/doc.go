// Package cache provides the shared cache contracts used to memoize association
// fetches across owner instances.
//
// # Overview
//
// This package exports two interfaces and their default implementations:
//
//   - CacheService: read-through get-or-fetch with key and prefix invalidation
//   - KeySerializer: builds stable cache keys from a method name and arguments
//
// NewCacheService returns the sturdyc backed implementation configured by Config.
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	keys := cache.NewDefaultKeySerializer()
//	key := keys.SerializeKey("Fetch", "post", "42", "comments")
//
//	rows, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) ([]Comment, error) {
//		return loadComments(ctx, "42")
//	})
//
// # Key Layout
//
// Keys are the method name followed by each argument, joined with KeySeparator.
// Strings, numbers and booleans are written verbatim so callers can invalidate a
// family of keys by prefix (for example every key of one owner). Slices and maps
// are expanded recursively, maps with sorted entries. Structs and other values
// without a natural string form are JSON encoded and hashed with xxhash.
//
// Function values serialize by pointer and are only stable within one process.
//
// # Errors
//
// GetOrFetch returns ErrInvalidResultType when a key holds a value of another
// type. Fetch errors are returned unchanged and are never cached.
package cache
