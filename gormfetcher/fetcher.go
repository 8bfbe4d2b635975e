package gormfetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/goliatone/go-association-cache/association"
	"github.com/goliatone/go-association-cache/internal/joinplan"
)

var (
	_ association.Fetcher = (*Fetcher)(nil)
	_ association.Counter = (*Fetcher)(nil)
)

// ErrNoModel is returned when no model is registered for a target type.
var ErrNoModel = errors.New("gormfetcher: no model registered for target type")

// Scope is a gorm scope. A descriptor Join holding a Scope (or a slice of
// them) narrows the association query, e.g. to published rows.
type Scope = func(*gorm.DB) *gorm.DB

type model struct {
	table string
	pk    string
	find  func(tx *gorm.DB) ([]association.Record, error)
	count func(tx *gorm.DB) (int64, error)
}

type owner struct {
	table string
	pk    string
}

// Fetcher resolves associations with gorm queries against registered models.
type Fetcher struct {
	db     *gorm.DB
	models map[string]model
	owners map[string]owner
	logger logr.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the fetcher logger.
func WithLogger(logger logr.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher using db.
func New(db *gorm.DB, opts ...Option) *Fetcher {
	f := &Fetcher{
		db:     db,
		models: make(map[string]model),
		owners: make(map[string]owner),
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ModelOption configures a registration.
type ModelOption func(*modelConfig)

type modelConfig struct {
	table string
	pk    string
}

// WithTable overrides the table name derived from the type name.
func WithTable(table string) ModelOption {
	return func(c *modelConfig) {
		c.table = table
	}
}

// WithPrimaryKey overrides the primary key column, "id" by default.
func WithPrimaryKey(column string) ModelOption {
	return func(c *modelConfig) {
		c.pk = column
	}
}

func (f *Fetcher) config(typeName string, opts []ModelOption) modelConfig {
	cfg := modelConfig{table: f.db.NamingStrategy.TableName(typeName), pk: "id"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Register maps targetType to the gorm model T, usually a pointer to a struct.
func Register[T association.Record](f *Fetcher, targetType string, opts ...ModelOption) {
	cfg := f.config(targetType, opts)
	f.models[targetType] = model{
		table: cfg.table,
		pk:    cfg.pk,
		find: func(tx *gorm.DB) ([]association.Record, error) {
			var rows []T
			if err := tx.Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]association.Record, len(rows))
			for i, row := range rows {
				out[i] = row
			}
			return out, nil
		},
		count: func(tx *gorm.DB) (int64, error) {
			var rows []T
			var n int64
			err := tx.Model(&rows).Count(&n).Error
			return n, err
		},
	}
}

// RegisterOwner enables owner existence checks for ownerType. Every Fetch and
// Count for a registered owner type first looks up the owner row, so child rows
// left behind by a deleted owner are never returned. Owners without a
// registration are assumed to exist.
func (f *Fetcher) RegisterOwner(ownerType string, opts ...ModelOption) {
	cfg := f.config(ownerType, opts)
	f.owners[ownerType] = owner{table: cfg.table, pk: cfg.pk}
}

// Fetch implements association.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, req association.FetchRequest) (association.FetchResult, error) {
	m, tx, plan, err := f.query(ctx, req)
	if err != nil {
		return association.FetchResult{}, err
	}
	if err := f.checkOwner(ctx, req); err != nil {
		return association.FetchResult{}, err
	}

	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: plan.OrderBy}})
	if plan.Singular {
		tx = tx.Limit(1)
	}

	records, err := m.find(tx)
	if err != nil {
		return association.FetchResult{}, err
	}

	f.logger.V(1).Info("fetched association", "owner", req.OwnerType, "id", req.OwnerID, "name", req.Descriptor.Name, "rows", len(records))
	return association.FetchResult{Records: records}, nil
}

// Count implements association.Counter.
func (f *Fetcher) Count(ctx context.Context, req association.FetchRequest) (int, error) {
	m, tx, plan, err := f.query(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := f.checkOwner(ctx, req); err != nil {
		return 0, err
	}

	n, err := m.count(tx)
	if err != nil {
		return 0, err
	}
	if n > 1 && plan.Singular {
		n = 1
	}
	return int(n), nil
}

func (f *Fetcher) query(ctx context.Context, req association.FetchRequest) (model, *gorm.DB, joinplan.Plan, error) {
	m, ok := f.models[req.Descriptor.TargetType]
	if !ok {
		return model{}, nil, joinplan.Plan{}, fmt.Errorf("%w: %q", ErrNoModel, req.Descriptor.TargetType)
	}

	plan, err := joinplan.Build(req, f.naming())
	if err != nil {
		return model{}, nil, joinplan.Plan{}, err
	}

	tx := f.db.WithContext(ctx)
	for _, cond := range plan.Conditions {
		tx = f.where(ctx, tx, cond)
	}
	tx = tx.Scopes(scopes(req.Descriptor.Join)...)
	return m, tx, plan, nil
}

func (f *Fetcher) where(ctx context.Context, tx *gorm.DB, cond joinplan.Condition) *gorm.DB {
	column := clause.Column{Table: clause.CurrentTable, Name: cond.Column}
	if cond.In == nil {
		return tx.Where(clause.Eq{Column: column, Value: cond.Value})
	}

	sub := f.db.Session(&gorm.Session{NewDB: true, Context: ctx}).
		Table(cond.In.Table).
		Select(cond.In.Select).
		Where(clause.Eq{Column: clause.Column{Name: cond.In.Match}, Value: cond.In.Value})
	if cond.In.TypeColumn != "" {
		sub = sub.Where(clause.Eq{Column: clause.Column{Name: cond.In.TypeColumn}, Value: cond.In.TypeValue})
	}
	return tx.Where("? IN (?)", column, sub)
}

func (f *Fetcher) checkOwner(ctx context.Context, req association.FetchRequest) error {
	o, ok := f.owners[req.OwnerType]
	if !ok {
		return nil
	}

	var n int64
	err := f.db.WithContext(ctx).
		Table(o.table).
		Where(clause.Eq{Column: clause.Column{Name: o.pk}, Value: req.OwnerID}).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", req.OwnerType, req.OwnerID, association.ErrOwnerNotFound)
	}
	return nil
}

func (f *Fetcher) naming() joinplan.Naming {
	return joinplan.Naming{
		Table: func(typeName string) string {
			if o, ok := f.owners[typeName]; ok {
				return o.table
			}
			if m, ok := f.models[typeName]; ok {
				return m.table
			}
			return f.db.NamingStrategy.TableName(typeName)
		},
		PrimaryKey: func(typeName string) string {
			if m, ok := f.models[typeName]; ok {
				return m.pk
			}
			if o, ok := f.owners[typeName]; ok {
				return o.pk
			}
			return "id"
		},
	}
}

func scopes(join any) []Scope {
	switch j := join.(type) {
	case Scope:
		return []Scope{j}
	case []Scope:
		return j
	}
	return nil
}
