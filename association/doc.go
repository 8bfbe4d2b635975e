// Package association caches ORM-style associations per owning record.
//
// # Overview
//
// Every Owner carries a Cache, a lazily populated registry of Proxy values keyed
// by association name. A Proxy holds what has been fetched for one association
// of one owner, the records added locally but not saved yet, and whether the
// association is loaded. Reads go through the proxy:
//
//	post := association.NewOwner(postTable, fetcher, "42")
//	comments, err := post.Association("comments")
//	res, err := comments.Get(ctx, false) // fetches once
//	res, err = comments.Get(ctx, false)  // served from memory
//
// # Descriptors
//
// Associations are declared up front in a Table, one per owner type. A Schema
// keeps the tables and supports subtypes: Extend copies the parent table and a
// redeclared name replaces the inherited descriptor, hooks included.
//
// # Fetching
//
// The Fetcher is the only way the cache talks to the backing store. Fetchers may
// also implement Counter, used by Proxy.Size to count without materializing, and
// BatchFetcher, used by Preload. Mux routes requests to fetchers by target type.
//
// # Deleted owners
//
// When a fetcher reports ErrOwnerNotFound the proxy returns a Result whose Absent
// method is true. This is not an error: it tells callers the owner row was
// deleted after it was loaded, which is different from an unloaded proxy.
//
// # Invalidation
//
// Proxy.Reset and Cache.Reset discard everything, local additions included.
// Proxy.Invalidate and Cache.Clear only drop fetched data, so additions that
// were never saved survive and are merged into the next fetch.
//
// # Concurrency
//
// Owners, caches and proxies are not safe for concurrent use. Keep one owner per
// goroutine or serialize access. Fetchers must be safe for concurrent use.
package association
