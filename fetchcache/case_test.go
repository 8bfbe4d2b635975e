package fetchcache

import (
	"context"
	"testing"
)

func TestToSnake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"post", "post"},
		{"BlogPost", "blog_post"},
		{"blog-post", "blog_post"},
		{"HTTPRequest", "http_request"},
		{"post2", "post2"},
		{"Post2Draft", "post2_draft"},
		{"*models.BlogPost", "models_blog_post"},
		{"__Weird  Name__", "weird_name"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := toSnake(tt.in); got != tt.want {
				t.Errorf("toSnake(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithCacheScope(t *testing.T) {
	ctx := WithCacheScope(context.Background(), "tenant-a", "", "tenant-a")
	ctx = WithCacheScope(ctx, "en")

	got := cacheScopeFromContext(ctx)
	if len(got) != 2 || got[0] != "tenant-a" || got[1] != "en" {
		t.Errorf("unexpected scope %v", got)
	}

	if got := cacheScopeFromContext(WithCacheScope(ctx)); len(got) != 2 {
		t.Errorf("empty scope should keep existing segments, got %v", got)
	}
}
