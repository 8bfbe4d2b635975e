package association

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind is the relationship type of an association.
type Kind string

const (
	HasOne     Kind = "has_one"
	HasMany    Kind = "has_many"
	BelongsTo  Kind = "belongs_to"
	ManyToMany Kind = "many_to_many"
)

// Arity tells whether an association holds zero-or-one record or an ordered sequence.
type Arity int

const (
	Singular Arity = iota
	Collection
)

func (a Arity) String() string {
	if a == Collection {
		return "collection"
	}
	return "singular"
}

// AppendHook runs before a record is added to a collection association.
// Returning an error aborts the append.
type AppendHook func(owner *Owner, record Record) error

// Descriptor is the static metadata for one declared association.
// Key and join fields are only interpreted by fetchers.
type Descriptor struct {
	Name       string
	Kind       Kind
	TargetType string

	// ForeignKey is the column holding the owner id on the target (has_one, has_many)
	// or the target id on the owner (belongs_to).
	ForeignKey string
	// TargetKey is the referenced key on the target, usually its primary key.
	TargetKey string

	JoinTable      string
	JoinForeignKey string
	JoinTargetKey  string

	// Through names another association on the same owner that this one is reached through.
	Through string
	// As is the polymorphic interface name for has_one/has_many (e.g. "commentable").
	As string
	// Polymorphic marks a belongs_to whose target type is stored on the owner row.
	Polymorphic bool

	// Join is opaque to the cache and handed to fetchers as is.
	Join any

	BeforeAppend []AppendHook
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Arity derives the association arity from its kind.
func (d Descriptor) Arity() Arity {
	switch d.Kind {
	case HasMany, ManyToMany:
		return Collection
	default:
		return Singular
	}
}

// Validate checks the descriptor metadata.
func (d Descriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required, validation.Match(namePattern)),
		validation.Field(&d.Kind, validation.Required, validation.In(HasOne, HasMany, BelongsTo, ManyToMany)),
		validation.Field(&d.TargetType, validation.When(!d.Polymorphic, validation.Required)),
		validation.Field(&d.JoinTable, validation.When(d.Kind == ManyToMany && d.Through == "", validation.Required)),
		validation.Field(&d.As, validation.When(d.Kind == BelongsTo || d.Kind == ManyToMany, validation.Empty)),
		validation.Field(&d.Polymorphic, validation.When(d.Kind != BelongsTo, validation.Empty)),
		validation.Field(&d.Through, validation.When(d.Through != "", validation.NotIn(d.Name).Error("cannot reference itself"))),
	)
}

func (d Descriptor) clone() Descriptor {
	if d.BeforeAppend != nil {
		d.BeforeAppend = append([]AppendHook(nil), d.BeforeAppend...)
	}
	return d
}
