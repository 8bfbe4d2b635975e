package testsupport

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-association-cache/association"
)

// Item is a generic association target used across tests and fixtures.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordID implements association.Record.
func (i *Item) RecordID() string { return i.ID }

// SetRecordID lets Store.Persist assign identities to saved items.
func (i *Item) SetRecordID(id string) { i.ID = id }

type ownerKey struct {
	Type string
	ID   string
}

type linkKey struct {
	ownerKey
	Name string
}

// Store is an in-memory backing store. It implements association.Fetcher,
// association.Counter and association.BatchFetcher and records how often each
// was called, so tests can assert on cache behaviour.
type Store struct {
	mu       sync.Mutex
	owners   map[ownerKey]bool
	links    map[linkKey][]association.Record
	failures map[string]error

	fetchCalls int
	countCalls int
	batchCalls int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		owners:   make(map[ownerKey]bool),
		links:    make(map[linkKey][]association.Record),
		failures: make(map[string]error),
	}
}

// AddOwner registers an owner row.
func (s *Store) AddOwner(ownerType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[ownerKey{ownerType, id}] = true
}

// DeleteOwner removes an owner row and everything linked to it, as if another
// process deleted it.
func (s *Store) DeleteOwner(ownerType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{ownerType, id}
	delete(s.owners, key)
	for lk := range s.links {
		if lk.ownerKey == key {
			delete(s.links, lk)
		}
	}
}

// Link appends records to an owner's association rows.
func (s *Store) Link(ownerType, id, name string, records ...association.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link(linkKey{ownerKey{ownerType, id}, name}, records...)
}

func (s *Store) link(key linkKey, records ...association.Record) {
	for _, r := range records {
		exists := false
		for _, existing := range s.links[key] {
			if association.SameRecord(existing, r) {
				exists = true
				break
			}
		}
		if !exists {
			s.links[key] = append(s.links[key], r)
		}
	}
}

// Unlink removes a record from an owner's association rows.
func (s *Store) Unlink(ownerType, id, name string, record association.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unlink(linkKey{ownerKey{ownerType, id}, name}, record)
}

func (s *Store) unlink(key linkKey, record association.Record) {
	rows := s.links[key][:0:0]
	for _, r := range s.links[key] {
		if !association.SameRecord(r, record) {
			rows = append(rows, r)
		}
	}
	s.links[key] = rows
}

// Fail makes every request for the named association return err. A nil err
// removes the failure.
func (s *Store) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, name)
		return
	}
	s.failures[name] = err
}

// Fetch implements association.Fetcher.
func (s *Store) Fetch(ctx context.Context, req association.FetchRequest) (association.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return association.FetchResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchCalls++
	records, err := s.resolve(req)
	return association.FetchResult{Records: records}, err
}

// Count implements association.Counter.
func (s *Store) Count(ctx context.Context, req association.FetchRequest) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.countCalls++
	records, err := s.resolve(req)
	return len(records), err
}

// FetchBatch implements association.BatchFetcher.
func (s *Store) FetchBatch(ctx context.Context, reqs []association.FetchRequest) ([]association.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batchCalls++
	out := make([]association.BatchResult, len(reqs))
	for i, req := range reqs {
		records, err := s.resolve(req)
		out[i] = association.BatchResult{FetchResult: association.FetchResult{Records: records}, Err: err}
	}
	return out, nil
}

func (s *Store) resolve(req association.FetchRequest) ([]association.Record, error) {
	if err, ok := s.failures[req.Descriptor.Name]; ok {
		return nil, err
	}
	owner := ownerKey{req.OwnerType, req.OwnerID}
	if !s.owners[owner] {
		return nil, association.ErrOwnerNotFound
	}

	var rows []association.Record
	if req.Through != nil {
		// Rows of the intermediate association each carry their own link under
		// this association's name.
		for _, mid := range s.links[linkKey{owner, req.Through.Name}] {
			midKey := linkKey{ownerKey{req.Through.TargetType, mid.RecordID()}, req.Descriptor.Name}
			rows = append(rows, s.links[midKey]...)
		}
	} else {
		rows = append(rows, s.links[linkKey{owner, req.Descriptor.Name}]...)
	}

	if req.Descriptor.Arity() == association.Singular && len(rows) > 1 {
		rows = rows[:1]
	}
	return rows, nil
}

type identifiable interface {
	SetRecordID(id string)
}

// Persist saves owner and the local changes of its loaded or touched
// associations. Records without an identity get a new uuid, every pending
// record is linked and every locally removed record is unlinked. The owner's
// cache is then committed.
func (s *Store) Persist(ctx context.Context, owner *association.Owner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !owner.Persisted() {
		owner.Persist(uuid.NewString())
	}
	s.AddOwner(owner.Type(), owner.ID())

	var errs []error
	owner.Cache().Each(func(p *association.Proxy) {
		key := linkKey{ownerKey{owner.Type(), owner.ID()}, p.Descriptor().Name}
		s.mu.Lock()
		for _, r := range p.Removed() {
			s.unlink(key, r)
		}
		s.mu.Unlock()
		for _, r := range p.Pending() {
			if r.RecordID() == "" {
				setter, ok := r.(identifiable)
				if !ok {
					errs = append(errs, errors.New("testsupport: record cannot be assigned an id"))
					continue
				}
				setter.SetRecordID(uuid.NewString())
			}
			s.mu.Lock()
			if p.Descriptor().Arity() == association.Singular {
				s.links[key] = nil
			}
			s.link(key, r)
			s.mu.Unlock()
		}
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}

	owner.Cache().Commit()
	return nil
}

// FetchCalls returns the number of Fetch calls served.
func (s *Store) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

// CountCalls returns the number of Count calls served.
func (s *Store) CountCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countCalls
}

// BatchCalls returns the number of FetchBatch calls served.
func (s *Store) BatchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchCalls
}

// ResetCalls zeroes the call counters.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls, s.countCalls, s.batchCalls = 0, 0, 0
}
