package association_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-association-cache/association"
	"github.com/goliatone/go-association-cache/pkg/testsupport"
)

func TestCache_ProxyForIsLazyAndStable(t *testing.T) {
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	cache := owner.Cache()

	assert.Empty(t, cache.Names())

	first, err := cache.ProxyFor("comments")
	require.NoError(t, err)
	second, err := cache.ProxyFor("comments")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"comments"}, cache.Names())
	assert.False(t, cache.Loaded("comments"))
	assert.False(t, cache.Loaded("author"))
}

func TestCache_ProxyForUnknownName(t *testing.T) {
	owner := association.NewOwner(postTable(t), testsupport.NewStore(), "p1")

	_, err := owner.Association("likes")
	assert.ErrorIs(t, err, association.ErrUnknownAssociation)
}

func TestCache_ProxyForWithoutFetcher(t *testing.T) {
	owner := association.NewOwner(postTable(t), nil, "p1")

	_, err := owner.Association("comments")
	assert.ErrorIs(t, err, association.ErrInvalidDescriptor)
}

func TestCache_ClearResetsLoadedProxies(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")

	comments := proxy(t, owner, "comments")
	author := proxy(t, owner, "author")

	_, err := comments.Get(ctx, false)
	require.NoError(t, err)
	_, err = author.Get(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, store.FetchCalls())

	owner.Cache().Clear()

	assert.False(t, comments.Loaded())
	assert.False(t, author.Loaded())

	store.ResetCalls()
	_, err = comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.FetchCalls())

	_, err = author.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, store.FetchCalls())

	// both are loaded again
	_, err = comments.Get(ctx, false)
	require.NoError(t, err)
	_, err = author.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, store.FetchCalls())
}

func TestCache_ClearKeepsUnsavedAdditions(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	_, err := comments.Get(ctx, false)
	require.NoError(t, err)

	draft := &testsupport.Item{Name: "draft"}
	_, err = comments.Append(draft)
	require.NoError(t, err)

	owner.Cache().Clear()

	assert.True(t, comments.IncludesLocally(draft))
	assert.False(t, comments.Loaded())

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len())
	assert.True(t, res.Contains(draft))
}

func TestCache_ResetDiscardsUnsavedAdditions(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	draft := &testsupport.Item{Name: "draft"}
	_, err := comments.Append(draft)
	require.NoError(t, err)

	owner.Forget()

	assert.False(t, comments.IncludesLocally(draft))
	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
}

func TestCache_ClearSeesBackingStoreChanges(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	other := association.NewOwner(postTable(t), store, "p1")

	comments := proxy(t, owner, "comments")
	_, err := comments.Get(ctx, false)
	require.NoError(t, err)

	// another in-memory instance of the same row writes through
	otherComments := proxy(t, other, "comments")
	added := &testsupport.Item{Name: "elsewhere"}
	_, err = otherComments.Append(added)
	require.NoError(t, err)
	require.NoError(t, store.Persist(ctx, other))

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len(), "caches of different instances diverge")

	owner.Cache().Clear()
	res, err = comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len())
	assert.True(t, res.Contains(added))
}

func TestOwner_PersistWithNewIdentityInvalidates(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	_, err := comments.Get(ctx, false)
	require.NoError(t, err)

	owner.Persist("p1")
	assert.True(t, comments.Loaded())

	owner.Persist("p2")
	assert.False(t, comments.Loaded())

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
}

func TestCache_CommitDropsSavedPending(t *testing.T) {
	owner := association.NewOwner(postTable(t), testsupport.NewStore(), "")
	comments := proxy(t, owner, "comments")

	saved := &testsupport.Item{Name: "saved"}
	unsaved := &testsupport.Item{Name: "unsaved"}
	_, err := comments.Append(saved, unsaved)
	require.NoError(t, err)

	saved.ID = "c9"
	owner.Cache().Commit()

	assert.Equal(t, []association.Record{unsaved}, comments.Pending())
}
