package di

import (
	"context"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/goliatone/go-association-cache/association"
	"github.com/goliatone/go-association-cache/cache"
	"github.com/goliatone/go-association-cache/fetchcache"
)

// Container provides dependency injection for association components.
// It manages singleton instances of the cache service, key serializer,
// schema and fetcher, and hands out owners bound to them.
type Container struct {
	config        Config
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	schema        *association.Schema
	base          association.Fetcher
	shared        *fetchcache.Fetcher
	logger        logr.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithLogger overrides the container logger.
func WithLogger(logger logr.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithSchema uses schema instead of an empty one.
func WithSchema(schema *association.Schema) Option {
	return func(c *Container) {
		c.schema = schema
	}
}

// NewContainer creates a new DI container around base, the fetcher that talks
// to the backing store. When SharedCache is enabled base is wrapped so owners
// with the same identity share fetch results; see Config.SharedCache.
func NewContainer(config Config, base association.Fetcher, opts ...Option) (*Container, error) {
	if base == nil {
		return nil, fmt.Errorf("di: base fetcher is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cacheService, err := cache.NewCacheService(config.Cache)
	if err != nil {
		return nil, err
	}

	c := &Container{
		config:        config,
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
		schema:        association.NewSchema(),
		base:          base,
		logger:        logr.Discard(),
	}
	if config.Debug {
		c.logger = newDebugLogger()
	}
	for _, opt := range opts {
		opt(c)
	}

	if config.SharedCache {
		c.shared = fetchcache.New(base, c.cacheService, c.keySerializer, fetchcache.WithLogger(c.logger.WithName("fetchcache")))
	}

	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(base association.Fetcher, opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), base, opts...)
}

func newDebugLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: 1})
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

func (c *Container) Schema() *association.Schema {
	return c.schema
}

func (c *Container) Logger() logr.Logger {
	return c.logger
}

// Fetcher returns the fetcher owners are bound to: the shared fetch cache when
// enabled, the base fetcher otherwise.
func (c *Container) Fetcher() association.Fetcher {
	if c.shared != nil {
		return c.shared
	}
	return c.base
}

// SharedFetcher returns the shared fetch cache, or nil when it is disabled.
func (c *Container) SharedFetcher() *fetchcache.Fetcher {
	return c.shared
}

// NewOwner returns an owner of typeName bound to the container fetcher. The
// type must have been defined on the schema.
func (c *Container) NewOwner(typeName, id string) (*association.Owner, error) {
	table, ok := c.schema.Table(typeName)
	if !ok {
		return nil, fmt.Errorf("di: type %q is not defined", typeName)
	}
	return association.NewOwner(table, c.Fetcher(), id, association.WithLogger(c.logger.WithName(typeName))), nil
}

// Preload loads names for every owner with the configured concurrency.
func (c *Container) Preload(ctx context.Context, owners []*association.Owner, names ...string) error {
	return association.Preload(ctx, c.Fetcher(), owners, names, association.WithPreloadConcurrency(c.config.PreloadConcurrency))
}

// Invalidate drops everything cached for owner, in the shared fetch cache and
// in the owner's own cache. Unsaved additions are kept.
func (c *Container) Invalidate(ctx context.Context, owner *association.Owner) error {
	if c.shared != nil && owner.Persisted() {
		if err := c.shared.InvalidateOwner(ctx, owner.Type(), owner.ID()); err != nil {
			return err
		}
	}
	owner.Cache().Clear()
	return nil
}

// Config is the container configuration, loadable from YAML.
type Config struct {
	Cache cache.Config `yaml:"cache"`

	// SharedCache routes fetches through a fetchcache.Fetcher so a fresh owner
	// instance is served what another instance of the same row already loaded.
	// Off by default: a shared entry is not refreshed until it expires, is
	// invalidated or an instance reloads, so a fresh owner may see rows that
	// were changed or deleted in the meantime, including a deleted owner.
	SharedCache bool `yaml:"shared_cache"`

	PreloadConcurrency int  `yaml:"preload_concurrency"`
	Debug              bool `yaml:"debug"`
}

// DefaultConfig returns the default container configuration. Every owner
// instance fetches on its own unless SharedCache is turned on.
func DefaultConfig() Config {
	return Config{
		Cache:              cache.DefaultConfig(),
		PreloadConcurrency: 4,
	}
}

// Validate checks the container and cache configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.PreloadConcurrency, validation.Min(0).Error("must be non-negative")),
	)
	if err != nil {
		return fmt.Errorf("di: invalid config: %w", err)
	}
	return c.Cache.Validate()
}
