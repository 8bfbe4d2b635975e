// Package fetchcache provides a caching decorator for association fetchers.
//
// # Overview
//
// An association.Cache lives on one owner instance, so two in-memory copies of
// the same row each fetch their associations. Fetcher wraps a base
// association.Fetcher and shares fetch and count results through a
// cache.CacheService, keyed by owner type, owner id, association name and the
// descriptor fields that shape the query.
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	shared := fetchcache.New(base, svc, cache.NewDefaultKeySerializer())
//
//	post := association.NewOwner(postTable, shared, "42")
//	comments, _ := post.Association("comments")
//	res, err := comments.Get(ctx, false)
//
// Sharing is a trade-off against freshness. A fresh owner is served whatever
// another instance loaded until the entry expires or is invalidated, so rows
// changed elsewhere, and owners deleted elsewhere, stay visible until then.
//
// # Reloads
//
// Requests carrying Reload (a forced proxy reload, or the first fetch after
// Cache.Clear or Cache.Reset) drop the shared entry before fetching, so the
// backing store is consulted and the refreshed rows become the shared copy.
//
// # Errors
//
// Errors from the base fetcher, including association.ErrOwnerNotFound, are
// returned unchanged and never cached.
//
// # Invalidation
//
// Every key is recorded in a concurrent registry together with its owner and
// association. Writers call InvalidateOwner, InvalidateAssociation,
// InvalidateType, InvalidateScope or InvalidateAll after changing rows.
// Keys start with owner type and id, so the owner, association and type
// variants drop entries by key prefix.
//
// # Scopes
//
// WithCacheScope adds segments (tenant, locale) to the keys of fetches made
// with the returned context:
//
//	ctx = fetchcache.WithCacheScope(ctx, "tenant-a")
//
// # Batches
//
// FetchBatch answers already cached requests from the cache and sends the rest
// to the base fetcher in one batch when it implements association.BatchFetcher,
// seeding the cache with the successful results.
//
// Records in a shared result are shared between owner instances. Treat them as
// read-only or reload before mutating.
package fetchcache
