package association

// Owner is an in-memory record that holds associations. Its identity is empty
// until it has been persisted.
type Owner struct {
	typeName string
	id       string
	table    *Table
	cache    *Cache
}

// NewOwner binds an owner of table's type to fetcher. Pass an empty id for a
// record that has not been saved yet.
func NewOwner(table *Table, fetcher Fetcher, id string, opts ...Option) *Owner {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Owner{
		typeName: table.Type(),
		id:       id,
		table:    table,
	}
	o.cache = newCache(o, fetcher, cfg.logger)
	return o
}

func (o *Owner) Type() string { return o.typeName }

func (o *Owner) ID() string { return o.id }

func (o *Owner) Table() *Table { return o.table }

func (o *Owner) Cache() *Cache { return o.cache }

// Persisted reports whether the owner has an identity in the backing store.
func (o *Owner) Persisted() bool { return o.id != "" }

// Association returns the proxy for name, creating it on first access.
func (o *Owner) Association(name string) (*Proxy, error) {
	return o.cache.ProxyFor(name)
}

// Persist records the identity assigned by a save. Moving an already persisted
// owner to another identity invalidates everything fetched for the old one.
func (o *Owner) Persist(id string) {
	if o.id != "" && o.id != id {
		o.cache.Clear()
	}
	o.id = id
}

// Forget drops all association state, pending additions included. Use it after
// the owner has been deleted and will be looked up again by identity.
func (o *Owner) Forget() {
	o.cache.Reset()
}
