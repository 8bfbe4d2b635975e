package repofetcher

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-association-cache/internal/joinplan"
)

// condition translates a plan condition into bun select criteria.
func condition(c joinplan.Condition) repository.SelectCriteria {
	if c.In == nil {
		return equals(c.Column, c.Value)
	}

	sub := *c.In
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if sub.TypeColumn == "" {
			return q.Where("?TableAlias.? IN (SELECT ? FROM ? WHERE ? = ?)",
				bun.Ident(c.Column), bun.Ident(sub.Select), bun.Ident(sub.Table), bun.Ident(sub.Match), sub.Value)
		}
		return q.Where("?TableAlias.? IN (SELECT ? FROM ? WHERE ? = ? AND ? = ?)",
			bun.Ident(c.Column), bun.Ident(sub.Select), bun.Ident(sub.Table), bun.Ident(sub.Match), sub.Value,
			bun.Ident(sub.TypeColumn), sub.TypeValue)
	}
}

func equals(column string, value any) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(column), value)
	}
}

func orderBy(column string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.? ASC", bun.Ident(column))
	}
}

func limit(n int) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(n)
	}
}
