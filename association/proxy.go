package association

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

// Proxy mediates every read and write of one association of one owner.
//
// A proxy starts unloaded. Reads on an unloaded proxy call the fetcher once and
// keep the result until Reset, Invalidate or a forced reload. Additions made
// before the first load are buffered and merged into whatever the fetcher
// returns. Proxies belonging to owners without an identity never fetch.
type Proxy struct {
	owner   *Owner
	desc    Descriptor
	through *Descriptor
	fetcher Fetcher
	logger  logr.Logger

	target  []Record
	pending []Record
	removed []Record

	loaded   bool
	dangling bool
	// cleared marks an explicit Set(nil) on a singular association.
	cleared bool
	// stale forces the next fetch past any shared cache after an invalidation.
	stale   bool
	fetches int
}

func newProxy(owner *Owner, desc Descriptor, through *Descriptor, fetcher Fetcher, logger logr.Logger) (*Proxy, error) {
	if err := desc.Validate(); err != nil {
		return nil, &InvalidDescriptorError{Owner: owner.typeName, Name: desc.Name, Err: err}
	}
	if fetcher == nil {
		return nil, &InvalidDescriptorError{Owner: owner.typeName, Name: desc.Name, Err: fmt.Errorf("no fetcher configured")}
	}
	return &Proxy{
		owner:   owner,
		desc:    desc,
		through: through,
		fetcher: fetcher,
		logger:  logger.WithValues("owner", owner.typeName, "association", desc.Name),
	}, nil
}

func (p *Proxy) Descriptor() Descriptor { return p.desc.clone() }

func (p *Proxy) Owner() *Owner { return p.owner }

// Loaded reports whether reads are served from memory. Associations of unsaved
// owners are always loaded.
func (p *Proxy) Loaded() bool {
	return p.loaded || !p.owner.Persisted()
}

// Dangling reports whether the last fetch found the owner gone from the backing store.
func (p *Proxy) Dangling() bool { return p.dangling }

// Fetches returns how many times this proxy called its fetcher.
func (p *Proxy) Fetches() int { return p.fetches }

// Pending returns the buffered additions that have not round-tripped through a save.
func (p *Proxy) Pending() []Record {
	return append([]Record(nil), p.pending...)
}

// Removed returns saved records dropped locally since the last Commit.
func (p *Proxy) Removed() []Record {
	return append([]Record(nil), p.removed...)
}

// Get returns the association target, fetching it when the proxy is unloaded or
// forceReload is set. A deleted owner yields an absent result, not an error.
func (p *Proxy) Get(ctx context.Context, forceReload bool) (Result, error) {
	arity := p.desc.Arity()

	if !p.owner.Persisted() {
		return newResult(arity, p.local()), nil
	}

	if p.loaded && !forceReload {
		p.logger.V(1).Info("association cache hit", "id", p.owner.id)
		if p.dangling {
			return absentResult(arity), nil
		}
		return newResult(arity, p.target), nil
	}

	res, err := p.fetch(ctx, p.request(forceReload || p.stale))
	if err != nil {
		if IsOwnerNotFound(err) {
			p.markDangling()
			return absentResult(arity), nil
		}
		return Result{arity: arity}, err
	}

	p.apply(res.Records)
	return newResult(arity, p.target), nil
}

// Reload always re-executes the fetcher.
func (p *Proxy) Reload(ctx context.Context) (Result, error) {
	return p.Get(ctx, true)
}

// Append buffers records on a collection association without loading it.
// When the proxy is loaded the records are merged into the target immediately.
func (p *Proxy) Append(records ...Record) (Result, error) {
	if p.desc.Arity() != Collection {
		return p.view(), fmt.Errorf("%w: %s.%s is singular", ErrArityMismatch, p.owner.typeName, p.desc.Name)
	}

	for _, r := range records {
		if r == nil {
			continue
		}
		for _, hook := range p.desc.BeforeAppend {
			if err := hook(p.owner, r); err != nil {
				return p.view(), err
			}
		}
		p.removed = without(p.removed, r)

		if p.loaded && contains(p.target, r) {
			continue
		}
		if !contains(p.pending, r) {
			p.pending = append(p.pending, r)
		}
		if p.loaded {
			p.target = append(p.target, r)
		}
	}
	return p.view(), nil
}

// Set assigns the target of a singular association locally. A nil record
// clears it. The assignment wins over fetched data until Reset.
func (p *Proxy) Set(record Record) (Result, error) {
	if p.desc.Arity() != Singular {
		return p.view(), fmt.Errorf("%w: %s.%s is a collection", ErrArityMismatch, p.owner.typeName, p.desc.Name)
	}

	if record == nil {
		p.pending = nil
		p.cleared = true
	} else {
		p.pending = []Record{record}
		p.cleared = false
	}
	if p.loaded && !p.dangling {
		p.target = append([]Record(nil), p.pending...)
	}
	return p.view(), nil
}

// Remove drops record from the in-memory target and the pending additions.
// It reports whether the record was present.
func (p *Proxy) Remove(record Record) bool {
	found := contains(p.target, record) || contains(p.pending, record)
	p.target = without(p.target, record)
	p.pending = without(p.pending, record)
	if record != nil && record.RecordID() != "" && !contains(p.removed, record) {
		p.removed = append(p.removed, record)
	}
	return found
}

// Size counts the association. Loaded proxies answer from memory; unloaded ones
// ask a Counter when the fetcher has one and load otherwise.
func (p *Proxy) Size(ctx context.Context) (int, error) {
	if !p.owner.Persisted() {
		return len(p.local()), nil
	}
	if p.loaded {
		return len(p.target), nil
	}

	counter, ok := p.fetcher.(Counter)
	if !ok {
		res, err := p.Get(ctx, false)
		if err != nil {
			return 0, err
		}
		return res.Len(), nil
	}

	n, err := counter.Count(ctx, p.request(p.stale))
	if err != nil {
		if IsOwnerNotFound(err) {
			p.dangling = true
			p.logger.V(1).Info("owner not found while counting", "id", p.owner.id)
			return countUnsaved(p.pending), nil
		}
		return 0, err
	}

	n += countUnsaved(p.pending) - countSaved(p.removed)
	if p.desc.Arity() == Singular {
		switch {
		case p.cleared:
			n = 0
		case len(p.pending) > 0 || n > 1:
			n = 1
		}
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// IncludesLocally checks the target and the pending additions without loading.
func (p *Proxy) IncludesLocally(record Record) bool {
	return contains(p.target, record) || contains(p.pending, record)
}

// Reset returns the proxy to the unloaded state and discards local changes.
// It never touches the backing store.
func (p *Proxy) Reset() {
	p.target = nil
	p.pending = nil
	p.removed = nil
	p.loaded = false
	p.dangling = false
	p.cleared = false
	p.stale = p.stale || p.fetches > 0
}

// Invalidate drops fetched data but keeps unsaved local changes.
func (p *Proxy) Invalidate() {
	p.target = nil
	p.loaded = false
	p.dangling = false
	p.stale = p.stale || p.fetches > 0
}

// Commit forgets pending additions that now carry an identity and local removals.
func (p *Proxy) Commit() {
	kept := p.pending[:0:0]
	for _, r := range p.pending {
		if r.RecordID() == "" {
			kept = append(kept, r)
		}
	}
	p.pending = kept
	p.removed = nil
	p.cleared = false
}

func (p *Proxy) request(reload bool) FetchRequest {
	req := FetchRequest{
		OwnerType:  p.owner.typeName,
		OwnerID:    p.owner.id,
		Descriptor: p.desc.clone(),
		Reload:     reload,
	}
	if p.through != nil {
		through := p.through.clone()
		req.Through = &through
	}
	return req
}

func (p *Proxy) fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	p.fetches++
	p.logger.V(1).Info("fetching association", "id", req.OwnerID, "reload", req.Reload)
	return p.fetcher.Fetch(ctx, req)
}

// apply installs fetched records as the target and merges the buffered additions.
func (p *Proxy) apply(fetched []Record) {
	target := make([]Record, 0, len(fetched)+len(p.pending))
	for _, r := range fetched {
		if r == nil || contains(p.removed, r) || contains(target, r) {
			continue
		}
		target = append(target, r)
	}

	kept := p.pending[:0:0]
	for _, r := range p.pending {
		if !contains(fetched, r) {
			kept = append(kept, r)
		}
	}
	p.pending = kept

	if p.desc.Arity() == Singular {
		switch {
		case p.cleared:
			target = target[:0]
		case len(p.pending) > 0:
			target = []Record{p.pending[len(p.pending)-1]}
		case len(target) > 1:
			target = target[:1]
		}
	} else {
		for _, r := range p.pending {
			if !contains(target, r) {
				target = append(target, r)
			}
		}
	}

	p.target = target
	p.loaded = true
	p.dangling = false
	p.stale = false
}

func (p *Proxy) markDangling() {
	p.logger.V(1).Info("owner not found, association is dangling", "id", p.owner.id)
	p.target = nil
	p.loaded = true
	p.dangling = true
	p.stale = false
}

// local is the view of an association whose owner has never been saved.
func (p *Proxy) local() []Record {
	if p.desc.Arity() == Singular && p.cleared {
		return nil
	}
	return p.pending
}

func (p *Proxy) view() Result {
	arity := p.desc.Arity()
	switch {
	case !p.owner.Persisted():
		return newResult(arity, p.local())
	case p.loaded && p.dangling:
		return absentResult(arity)
	case p.loaded:
		return newResult(arity, p.target)
	default:
		return newResult(arity, p.local())
	}
}

func without(records []Record, r Record) []Record {
	if r == nil {
		return records
	}
	out := records[:0:0]
	for _, candidate := range records {
		if !SameRecord(candidate, r) {
			out = append(out, candidate)
		}
	}
	return out
}

func countUnsaved(records []Record) int {
	n := 0
	for _, r := range records {
		if r.RecordID() == "" {
			n++
		}
	}
	return n
}

func countSaved(records []Record) int {
	return len(records) - countUnsaved(records)
}
