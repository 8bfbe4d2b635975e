package association

import (
	"fmt"

	"github.com/go-logr/logr"
)

// Cache is the per-owner registry of association proxies. It is not safe for
// concurrent use.
type Cache struct {
	owner   *Owner
	fetcher Fetcher
	logger  logr.Logger
	proxies map[string]*Proxy
	order   []string
}

func newCache(owner *Owner, fetcher Fetcher, logger logr.Logger) *Cache {
	return &Cache{
		owner:   owner,
		fetcher: fetcher,
		logger:  logger,
		proxies: make(map[string]*Proxy),
	}
}

// ProxyFor returns the proxy for name, constructing an unloaded one on first use.
func (c *Cache) ProxyFor(name string) (*Proxy, error) {
	if p, ok := c.proxies[name]; ok {
		return p, nil
	}

	desc, ok := c.owner.table.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAssociation, c.owner.typeName, name)
	}

	var through *Descriptor
	if desc.Through != "" {
		td, ok := c.owner.table.Lookup(desc.Through)
		if !ok {
			return nil, &InvalidDescriptorError{
				Owner: c.owner.typeName,
				Name:  name,
				Err:   fmt.Errorf("through association %q is not declared", desc.Through),
			}
		}
		through = &td
	}

	p, err := newProxy(c.owner, desc, through, c.fetcher, c.logger)
	if err != nil {
		return nil, err
	}
	c.proxies[name] = p
	c.order = append(c.order, name)
	return p, nil
}

// Loaded reports whether the named proxy exists and is loaded.
func (c *Cache) Loaded(name string) bool {
	p, ok := c.proxies[name]
	return ok && p.Loaded()
}

// Names returns the names of the proxies created so far, in creation order.
func (c *Cache) Names() []string {
	return append([]string(nil), c.order...)
}

// Each calls fn for every proxy in creation order.
func (c *Cache) Each(fn func(*Proxy)) {
	for _, name := range c.order {
		fn(c.proxies[name])
	}
}

// Clear invalidates fetched data on every proxy. Buffered additions that were
// never saved are kept, so the next read re-fetches and merges them back in.
func (c *Cache) Clear() {
	c.logger.V(1).Info("clearing association cache", "owner", c.owner.typeName, "id", c.owner.id, "proxies", len(c.proxies))
	c.Each(func(p *Proxy) { p.Invalidate() })
}

// Reset returns every proxy to its initial state, pending additions included.
func (c *Cache) Reset() {
	c.logger.V(1).Info("resetting association cache", "owner", c.owner.typeName, "id", c.owner.id, "proxies", len(c.proxies))
	c.Each(func(p *Proxy) { p.Reset() })
}

// Commit drops pending additions that have been saved since they were added.
func (c *Cache) Commit() {
	c.Each(func(p *Proxy) { p.Commit() })
}
