package association

import (
	"context"
	"reflect"
)

// Record is anything that can be the target of an association.
// An empty RecordID means the record has not been saved yet.
type Record interface {
	RecordID() string
}

// FetchRequest identifies one association of one owner for a fetcher.
type FetchRequest struct {
	OwnerType  string
	OwnerID    string
	Descriptor Descriptor
	// Through is the resolved intermediate descriptor when Descriptor.Through is set.
	Through *Descriptor
	// Reload is set when the caller wants the backing store, not a shared cached copy.
	Reload bool
}

// FetchResult is what a fetcher returns for a single request. Singular
// associations return at most one record.
type FetchResult struct {
	Records []Record
}

// Fetcher loads association targets from the backing store. It returns
// ErrOwnerNotFound (possibly wrapped) when the owner no longer exists.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// Counter is implemented by fetchers that can count targets without
// materializing them.
type Counter interface {
	Count(ctx context.Context, req FetchRequest) (int, error)
}

// BatchResult is the per-request outcome of a batch fetch.
type BatchResult struct {
	FetchResult
	Err error
}

// BatchFetcher is implemented by fetchers that can serve several requests in
// one round trip. Results are positional; per-request errors go in BatchResult.Err.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, reqs []FetchRequest) ([]BatchResult, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req FetchRequest) (FetchResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	return f(ctx, req)
}

// SameRecord reports whether a and b refer to the same record: same id when both
// are saved, same pointer otherwise.
func SameRecord(a, b Record) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	ida, idb := a.RecordID(), b.RecordID()
	if ida != "" && idb != "" {
		return ida == idb
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Pointer {
		return false
	}
	return va.Pointer() == vb.Pointer()
}

func indexOf(records []Record, r Record) int {
	for i, candidate := range records {
		if SameRecord(candidate, r) {
			return i
		}
	}
	return -1
}

func contains(records []Record, r Record) bool {
	return indexOf(records, r) >= 0
}
