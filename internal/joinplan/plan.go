// Package joinplan turns an association fetch request into the table level
// conditions a SQL backed fetcher needs, independent of the query builder.
package joinplan

import (
	"fmt"

	"github.com/jinzhu/inflection"

	"github.com/goliatone/go-association-cache/association"
)

// Naming resolves the table and primary key of a type name.
type Naming struct {
	Table      func(typeName string) string
	PrimaryKey func(typeName string) string
}

// DefaultNaming pluralizes type names and uses "id" as primary key.
func DefaultNaming() Naming {
	return Naming{
		Table:      func(typeName string) string { return inflection.Plural(typeName) },
		PrimaryKey: func(string) string { return "id" },
	}
}

// Subquery selects Select from Table where Match equals Value, and TypeColumn
// equals TypeValue when TypeColumn is set.
type Subquery struct {
	Table      string
	Select     string
	Match      string
	Value      any
	TypeColumn string
	TypeValue  string
}

// Condition restricts a target column either to a value or to a subquery.
type Condition struct {
	Column string
	Value  any
	In     *Subquery
}

// Plan is the full set of conditions for one request.
type Plan struct {
	TargetType string
	Conditions []Condition
	OrderBy    string
	Singular   bool
}

// ForeignKey returns the conventional foreign key column for a type name.
func ForeignKey(name string) string {
	return inflection.Singular(name) + "_id"
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// Build computes the plan for req.
//
//   - has_one, has_many: target.<foreign_key> = owner id
//   - polymorphic (As): also target.<as>_type = owner type
//   - belongs_to: target.<pk> IN (SELECT <foreign_key> FROM <owner table> ...)
//   - many_to_many: target.<pk> IN (SELECT <join_target_key> FROM <join_table> ...)
//   - through: target.<pk> IN (SELECT <join_target_key> FROM <through table> ...)
func Build(req association.FetchRequest, naming Naming) (Plan, error) {
	d := req.Descriptor
	if d.Polymorphic {
		return Plan{}, fmt.Errorf("association %q: polymorphic belongs_to needs a target type per row", d.Name)
	}

	pk := naming.PrimaryKey(d.TargetType)
	column := orDefault(d.TargetKey, pk)
	plan := Plan{
		TargetType: d.TargetType,
		OrderBy:    pk,
		Singular:   d.Arity() == association.Singular,
	}

	switch {
	case d.Through != "":
		if req.Through == nil {
			return Plan{}, fmt.Errorf("association %q: through %q not resolved", d.Name, d.Through)
		}
		through := *req.Through
		sub := &Subquery{
			Table:  naming.Table(through.TargetType),
			Select: orDefault(d.JoinTargetKey, ForeignKey(d.TargetType)),
			Match:  orDefault(through.ForeignKey, ForeignKey(req.OwnerType)),
			Value:  req.OwnerID,
		}
		if through.As != "" {
			sub.Match = orDefault(through.ForeignKey, ForeignKey(through.As))
			sub.TypeColumn = through.As + "_type"
			sub.TypeValue = req.OwnerType
		}
		plan.Conditions = append(plan.Conditions, Condition{Column: column, In: sub})

	case d.Kind == association.BelongsTo:
		plan.Conditions = append(plan.Conditions, Condition{Column: column, In: &Subquery{
			Table:  naming.Table(req.OwnerType),
			Select: orDefault(d.ForeignKey, ForeignKey(d.Name)),
			Match:  naming.PrimaryKey(req.OwnerType),
			Value:  req.OwnerID,
		}})

	case d.Kind == association.ManyToMany:
		plan.Conditions = append(plan.Conditions, Condition{Column: column, In: &Subquery{
			Table:  d.JoinTable,
			Select: orDefault(d.JoinTargetKey, ForeignKey(d.TargetType)),
			Match:  orDefault(d.JoinForeignKey, ForeignKey(req.OwnerType)),
			Value:  req.OwnerID,
		}})

	case d.As != "":
		plan.Conditions = append(plan.Conditions,
			Condition{Column: orDefault(d.ForeignKey, ForeignKey(d.As)), Value: req.OwnerID},
			Condition{Column: d.As + "_type", Value: req.OwnerType},
		)

	default:
		plan.Conditions = append(plan.Conditions,
			Condition{Column: orDefault(d.ForeignKey, ForeignKey(req.OwnerType)), Value: req.OwnerID},
		)
	}

	return plan, nil
}
