package repofetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-association-cache/association"
	"github.com/goliatone/go-association-cache/internal/joinplan"
)

var (
	_ association.Fetcher = (*Fetcher)(nil)
	_ association.Counter = (*Fetcher)(nil)
)

// ErrNoSource is returned when no repository is registered for a target type.
var ErrNoSource = errors.New("repofetcher: no repository registered for target type")

// Lister is the read side of a go-repository-bun repository.
type Lister[T any] interface {
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)
}

// source is a type erased target repository.
type source struct {
	list  func(ctx context.Context, criteria ...repository.SelectCriteria) ([]association.Record, error)
	count func(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)
	table string
	pk    string
}

// owner knows how to check that an owner row exists and where it lives.
type owner struct {
	table  string
	pk     string
	exists func(ctx context.Context, id string) (bool, error)
}

// Fetcher loads associations through go-repository-bun repositories, one per
// target type. Each association becomes bun select criteria on the target
// repository; belongs_to, many_to_many and through associations use a
// subquery. Empty key names default to inflected names, e.g. "post_id".
// A descriptor Join holding repository.SelectCriteria adds extra scopes.
type Fetcher struct {
	sources map[string]source
	owners  map[string]owner
	logger  logr.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the fetcher logger.
func WithLogger(logger logr.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates an empty Fetcher. Register sources before use.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		sources: make(map[string]source),
		owners:  make(map[string]owner),
		logger:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SourceOption configures a registered repository.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	table string
	pk    string
}

// WithTable overrides the table name used in owner subqueries.
func WithTable(table string) SourceOption {
	return func(c *sourceConfig) {
		c.table = table
	}
}

// WithPrimaryKey overrides the primary key column, "id" by default.
func WithPrimaryKey(column string) SourceOption {
	return func(c *sourceConfig) {
		c.pk = column
	}
}

func newSourceConfig(typeName string, opts []SourceOption) sourceConfig {
	def := joinplan.DefaultNaming()
	cfg := sourceConfig{table: def.Table(typeName), pk: def.PrimaryKey(typeName)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Register makes repo the source of records of targetType.
func Register[T association.Record](f *Fetcher, targetType string, repo Lister[T], opts ...SourceOption) {
	cfg := newSourceConfig(targetType, opts)
	f.sources[targetType] = source{
		table: cfg.table,
		pk:    cfg.pk,
		list: func(ctx context.Context, criteria ...repository.SelectCriteria) ([]association.Record, error) {
			rows, _, err := repo.List(ctx, criteria...)
			if err != nil {
				return nil, err
			}
			out := make([]association.Record, len(rows))
			for i, row := range rows {
				out[i] = row
			}
			return out, nil
		},
		count: repo.Count,
	}
}

// RegisterOwner enables owner existence checks for ownerType. Every Fetch and
// Count for a registered owner type first looks up the owner row, so child rows
// left behind by a deleted owner are never returned. Owners without a
// registration are assumed to exist.
func RegisterOwner[T any](f *Fetcher, ownerType string, repo Lister[T], opts ...SourceOption) {
	cfg := newSourceConfig(ownerType, opts)
	f.owners[ownerType] = owner{
		table: cfg.table,
		pk:    cfg.pk,
		exists: func(ctx context.Context, id string) (bool, error) {
			n, err := repo.Count(ctx, equals(cfg.pk, id))
			return n > 0, err
		},
	}
}

// Fetch implements association.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, req association.FetchRequest) (association.FetchResult, error) {
	src, criteria, plan, err := f.plan(req)
	if err != nil {
		return association.FetchResult{}, err
	}
	if err := f.checkOwner(ctx, req); err != nil {
		return association.FetchResult{}, err
	}

	criteria = append(criteria, orderBy(plan.OrderBy))
	if plan.Singular {
		criteria = append(criteria, limit(1))
	}

	records, err := src.list(ctx, criteria...)
	if err != nil {
		return association.FetchResult{}, err
	}

	f.logger.V(1).Info("fetched association", "owner", req.OwnerType, "id", req.OwnerID, "name", req.Descriptor.Name, "rows", len(records))
	return association.FetchResult{Records: records}, nil
}

// Count implements association.Counter.
func (f *Fetcher) Count(ctx context.Context, req association.FetchRequest) (int, error) {
	src, criteria, plan, err := f.plan(req)
	if err != nil {
		return 0, err
	}
	if err := f.checkOwner(ctx, req); err != nil {
		return 0, err
	}

	n, err := src.count(ctx, criteria...)
	if err != nil {
		return 0, err
	}
	if n > 1 && plan.Singular {
		n = 1
	}
	return n, nil
}

func (f *Fetcher) checkOwner(ctx context.Context, req association.FetchRequest) error {
	o, ok := f.owners[req.OwnerType]
	if !ok {
		return nil
	}
	exists, err := o.exists(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %q: %w", req.OwnerType, req.OwnerID, association.ErrOwnerNotFound)
	}
	return nil
}

// plan picks the target repository and builds the criteria selecting the
// association rows.
func (f *Fetcher) plan(req association.FetchRequest) (source, []repository.SelectCriteria, joinplan.Plan, error) {
	src, ok := f.sources[req.Descriptor.TargetType]
	if !ok {
		return source{}, nil, joinplan.Plan{}, fmt.Errorf("%w: %q", ErrNoSource, req.Descriptor.TargetType)
	}

	plan, err := joinplan.Build(req, f.naming())
	if err != nil {
		return source{}, nil, joinplan.Plan{}, err
	}

	criteria := make([]repository.SelectCriteria, 0, len(plan.Conditions)+1)
	for _, cond := range plan.Conditions {
		criteria = append(criteria, condition(cond))
	}
	criteria = append(criteria, scopes(req.Descriptor.Join)...)
	return src, criteria, plan, nil
}

// naming resolves tables and keys from registrations, falling back to
// pluralized type names.
func (f *Fetcher) naming() joinplan.Naming {
	def := joinplan.DefaultNaming()
	return joinplan.Naming{
		Table: func(typeName string) string {
			if o, ok := f.owners[typeName]; ok {
				return o.table
			}
			if s, ok := f.sources[typeName]; ok {
				return s.table
			}
			return def.Table(typeName)
		},
		PrimaryKey: func(typeName string) string {
			if s, ok := f.sources[typeName]; ok {
				return s.pk
			}
			if o, ok := f.owners[typeName]; ok {
				return o.pk
			}
			return def.PrimaryKey(typeName)
		},
	}
}

// scopes extracts extra criteria passed through the descriptor Join blob.
func scopes(join any) []repository.SelectCriteria {
	switch j := join.(type) {
	case repository.SelectCriteria:
		return []repository.SelectCriteria{j}
	case []repository.SelectCriteria:
		return j
	}
	return nil
}
