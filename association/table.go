package association

import (
	"fmt"
	"sort"
	"sync"
)

// Table holds the association descriptors declared for one owner type.
// Tables are built at setup time and read afterwards.
type Table struct {
	typeName    string
	parent      string
	descriptors map[string]Descriptor
}

// NewTable creates an empty descriptor table for typeName.
func NewTable(typeName string) *Table {
	return &Table{
		typeName:    typeName,
		descriptors: make(map[string]Descriptor),
	}
}

// Type returns the owner type name the table belongs to.
func (t *Table) Type() string { return t.typeName }

// Parent returns the supertype the table was extended from, if any.
func (t *Table) Parent() string { return t.parent }

// Declare validates d and stores it, replacing any descriptor with the same name.
// A replaced descriptor is not merged: its hooks are dropped with it.
func (t *Table) Declare(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return &InvalidDescriptorError{Owner: t.typeName, Name: d.Name, Err: err}
	}
	if d.Through != "" {
		if _, ok := t.descriptors[d.Through]; !ok {
			return &InvalidDescriptorError{
				Owner: t.typeName,
				Name:  d.Name,
				Err:   fmt.Errorf("through association %q is not declared", d.Through),
			}
		}
	}
	t.descriptors[d.Name] = d.clone()
	return nil
}

// MustDeclare is Declare for static setup code; it panics on invalid metadata.
func (t *Table) MustDeclare(descriptors ...Descriptor) *Table {
	for _, d := range descriptors {
		if err := t.Declare(d); err != nil {
			panic(err)
		}
	}
	return t
}

// Lookup returns the descriptor declared under name.
func (t *Table) Lookup(name string) (Descriptor, bool) {
	d, ok := t.descriptors[name]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// Names returns the declared association names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.descriptors))
	for name := range t.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extend returns a copy of the table for a subtype. Entries redeclared on the
// copy fully replace the inherited ones.
func (t *Table) Extend(subtype string) *Table {
	sub := NewTable(subtype)
	sub.parent = t.typeName
	for name, d := range t.descriptors {
		sub.descriptors[name] = d.clone()
	}
	return sub
}

// Schema is a registry of descriptor tables keyed by owner type.
type Schema struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{tables: make(map[string]*Table)}
}

// Define registers a new empty table for typeName, or returns the existing one.
func (s *Schema) Define(typeName string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[typeName]; ok {
		return t
	}
	t := NewTable(typeName)
	s.tables[typeName] = t
	return t
}

// Extend registers subtype with a copy of supertype's table.
func (s *Schema) Extend(subtype, supertype string) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.tables[supertype]
	if !ok {
		return nil, fmt.Errorf("association: unknown supertype %q", supertype)
	}
	if _, exists := s.tables[subtype]; exists {
		return nil, fmt.Errorf("association: type %q already defined", subtype)
	}
	t := parent.Extend(subtype)
	s.tables[subtype] = t
	return t, nil
}

// Table returns the table registered for typeName.
func (s *Schema) Table(typeName string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[typeName]
	return t, ok
}
