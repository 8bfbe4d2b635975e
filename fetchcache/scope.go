package fetchcache

import (
	"context"

	"github.com/goliatone/go-association-cache/association"
)

type cacheScopeContextKey struct{}

// WithCacheScope attaches scope segments (tenant, locale, ...) to the context.
// Fetches made with a scoped context get their own shared entries.
func WithCacheScope(ctx context.Context, scope ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(scope) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(cacheScopeFromContext(ctx), scope...))
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, cacheScopeContextKey{}, combined)
}

func cacheScopeFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if scope, ok := ctx.Value(cacheScopeContextKey{}).([]string); ok {
		return append([]string(nil), scope...)
	}
	return nil
}

// dedupeStrings drops empty and repeated values, keeping first occurrence order.
func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// signature captures the descriptor fields that change which rows a fetch
// returns, so a name redeclared on a subtype never shares an entry with the
// supertype's.
type signature struct {
	TargetType     string
	ForeignKey     string
	TargetKey      string
	JoinTable      string
	JoinForeignKey string
	JoinTargetKey  string
	Through        string
	As             string
	Polymorphic    bool
	Join           any
}

func signatureOf(req association.FetchRequest) signature {
	d := req.Descriptor
	return signature{
		TargetType:     d.TargetType,
		ForeignKey:     d.ForeignKey,
		TargetKey:      d.TargetKey,
		JoinTable:      d.JoinTable,
		JoinForeignKey: d.JoinForeignKey,
		JoinTargetKey:  d.JoinTargetKey,
		Through:        d.Through,
		As:             d.As,
		Polymorphic:    d.Polymorphic,
		Join:           d.Join,
	}
}
