package association_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-association-cache/association"
	"github.com/goliatone/go-association-cache/pkg/testsupport"
)

func postTable(t *testing.T) *association.Table {
	t.Helper()
	table := association.NewTable("post")
	require.NoError(t, table.Declare(association.Descriptor{Name: "comments", Kind: association.HasMany, TargetType: "comment"}))
	require.NoError(t, table.Declare(association.Descriptor{Name: "author", Kind: association.BelongsTo, TargetType: "user"}))
	require.NoError(t, table.Declare(association.Descriptor{Name: "taggings", Kind: association.HasMany, TargetType: "tagging"}))
	require.NoError(t, table.Declare(association.Descriptor{Name: "tags", Kind: association.HasMany, TargetType: "tag", Through: "taggings"}))
	return table
}

func seeded(t *testing.T) (*testsupport.Store, map[string]*testsupport.Item) {
	t.Helper()
	return testsupport.SeedStore(t, testsupport.FixturePath("blog.json"))
}

func proxy(t *testing.T, owner *association.Owner, name string) *association.Proxy {
	t.Helper()
	p, err := owner.Association(name)
	require.NoError(t, err)
	return p
}

func TestProxy_GetCachesUntilForced(t *testing.T) {
	ctx := context.Background()
	store, items := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	assert.False(t, comments.Loaded())

	first, err := comments.Get(ctx, false)
	require.NoError(t, err)
	second, err := comments.Get(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, store.FetchCalls())
	assert.True(t, comments.Loaded())
	assert.Equal(t, first.Records(), second.Records())
	assert.True(t, first.Contains(items["c1"]))

	_, err = comments.Get(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, store.FetchCalls())
	assert.Equal(t, 2, comments.Fetches())
}

func TestProxy_ResetThenGetFetchesOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	_, err := comments.Get(ctx, false)
	require.NoError(t, err)

	comments.Reset()
	comments.Reset()
	assert.False(t, comments.Loaded())

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, store.FetchCalls())
	assert.Equal(t, 2, res.Len())
}

func TestProxy_UnsavedOwnerNeverFetches(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewStore()
	owner := association.NewOwner(postTable(t), store, "")
	comments := proxy(t, owner, "comments")
	author := proxy(t, owner, "author")

	a := &testsupport.Item{Name: "a"}
	_, err := comments.Append(a)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := comments.Get(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Len())

		_, err = comments.Reload(ctx)
		require.NoError(t, err)

		n, err := comments.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		assert.True(t, comments.IncludesLocally(a))

		one, err := author.Get(ctx, false)
		require.NoError(t, err)
		assert.Nil(t, one.One())
	}

	assert.True(t, comments.Loaded())
	assert.True(t, author.Loaded())
	assert.Zero(t, store.FetchCalls())
	assert.Zero(t, store.CountCalls())
}

func TestProxy_AppendBeforeLoadMergesWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	store, items := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	fresh := []*testsupport.Item{{Name: "x"}, {Name: "y"}, {Name: "z"}}
	for _, item := range fresh {
		_, err := comments.Append(item)
		require.NoError(t, err)
	}
	// appending an already stored row and a duplicate must not duplicate it
	_, err := comments.Append(items["c1"], fresh[0])
	require.NoError(t, err)

	assert.Zero(t, store.FetchCalls())
	assert.False(t, comments.Loaded())

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, store.FetchCalls())
	assert.Equal(t, 5, res.Len())
	for _, item := range fresh {
		assert.True(t, res.Contains(item))
	}

	seen := map[association.Record]int{}
	for _, r := range res.Records() {
		seen[r]++
	}
	for r, n := range seen {
		assert.Equal(t, 1, n, "record %v appears more than once", r)
	}

	// c1 round-tripped; only the unsaved items stay pending
	assert.Len(t, comments.Pending(), 3)
}

func TestProxy_AppendToLoadedMergesImmediately(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	_, err := comments.Get(ctx, false)
	require.NoError(t, err)

	item := &testsupport.Item{Name: "late"}
	res, err := comments.Append(item)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Len())
	assert.True(t, comments.Loaded())

	n, err := comments.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, store.FetchCalls())
	assert.Zero(t, store.CountCalls())
}

func TestProxy_AppendOnSingularFails(t *testing.T) {
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	author := proxy(t, owner, "author")

	_, err := author.Append(&testsupport.Item{})
	assert.ErrorIs(t, err, association.ErrArityMismatch)

	comments := proxy(t, owner, "comments")
	_, err = comments.Set(&testsupport.Item{})
	assert.ErrorIs(t, err, association.ErrArityMismatch)
}

func TestProxy_UnsavedOwnerThenPersisted(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewStore()
	owner := association.NewOwner(postTable(t), store, "")
	items := proxy(t, owner, "comments")

	a := &testsupport.Item{Name: "A"}
	_, err := items.Append(a)
	require.NoError(t, err)

	assert.True(t, items.IncludesLocally(a))
	assert.Zero(t, store.FetchCalls())

	require.NoError(t, store.Persist(ctx, owner))

	b := &testsupport.Item{Name: "B"}
	_, err = items.Append(b)
	require.NoError(t, err)

	n, err := items.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, store.FetchCalls())
	assert.False(t, items.Loaded())

	res, err := items.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
	assert.True(t, res.Contains(a))
	assert.True(t, res.Contains(b))
}

func TestProxy_ReloadDanglingSingular(t *testing.T) {
	ctx := context.Background()
	store, items := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	author := proxy(t, owner, "author")

	res, err := author.Get(ctx, false)
	require.NoError(t, err)
	assert.Same(t, items["u1"], res.One())
	assert.False(t, res.Absent())

	store.DeleteOwner("post", "p1")

	res, err = author.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, res.Absent())
	assert.Nil(t, res.One())
	assert.True(t, author.Dangling())
	assert.True(t, author.Loaded())

	// cached absent stays absent; a forced reload re-executes and stays absent
	res, err = author.Get(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Absent())

	calls := store.FetchCalls()
	res, err = author.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, res.Absent())
	assert.Equal(t, calls+1, store.FetchCalls())
}

func TestProxy_AbsentDistinctFromUnloaded(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	store.DeleteOwner("post", "p2")
	owner := association.NewOwner(postTable(t), store, "p2")
	comments := proxy(t, owner, "comments")

	assert.False(t, comments.Loaded())
	assert.False(t, comments.Dangling())

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Absent())
	assert.True(t, comments.Dangling())
}

func TestProxy_FetchFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	boom := errors.New("connection reset")
	store.Fail("comments", boom)

	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	_, err := comments.Get(ctx, false)
	assert.ErrorIs(t, err, boom)
	assert.False(t, comments.Loaded())

	_, err = comments.Size(ctx)
	assert.ErrorIs(t, err, boom)

	store.Fail("comments", nil)
	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
}

func TestProxy_SizeUsesCounter(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	n, err := comments.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, store.CountCalls())
	assert.Zero(t, store.FetchCalls())
	assert.False(t, comments.Loaded())
}

func TestProxy_SizeWithoutCounterLoads(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	fetchOnly := association.FetcherFunc(store.Fetch)
	owner := association.NewOwner(postTable(t), fetchOnly, "p1")
	comments := proxy(t, owner, "comments")

	n, err := comments.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, comments.Loaded())
	assert.Equal(t, 1, store.FetchCalls())
}

func TestProxy_SizeDanglingCountsUnsaved(t *testing.T) {
	ctx := context.Background()
	store, _ := seeded(t)
	store.DeleteOwner("post", "p1")
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	_, err := comments.Append(&testsupport.Item{Name: "orphan"})
	require.NoError(t, err)

	n, err := comments.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, comments.Dangling())
}

func TestProxy_RemoveIsReflected(t *testing.T) {
	ctx := context.Background()
	store, items := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	comments := proxy(t, owner, "comments")

	assert.False(t, comments.Remove(items["c1"]), "c1 is not loaded yet")

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
	assert.False(t, res.Contains(items["c1"]))

	assert.True(t, comments.Remove(items["c2"]))
	n, err := comments.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// re-adding a removed record brings it back
	res, err = comments.Append(items["c1"])
	require.NoError(t, err)
	assert.True(t, res.Contains(items["c1"]))
}

func TestProxy_SetSingular(t *testing.T) {
	ctx := context.Background()
	store, items := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	author := proxy(t, owner, "author")

	bob := &testsupport.Item{Name: "bob"}
	_, err := author.Set(bob)
	require.NoError(t, err)

	res, err := author.Get(ctx, false)
	require.NoError(t, err)
	assert.Same(t, bob, res.One())

	_, err = author.Set(nil)
	require.NoError(t, err)
	res, err = author.Get(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, res.One())

	author.Reset()
	res, err = author.Get(ctx, false)
	require.NoError(t, err)
	assert.Same(t, items["u1"], res.One())
}

func TestProxy_Through(t *testing.T) {
	ctx := context.Background()
	store, items := seeded(t)
	owner := association.NewOwner(postTable(t), store, "p1")
	tags := proxy(t, owner, "tags")

	res, err := tags.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []association.Record{items["g1"], items["g2"]}, res.Records())
}

func TestProxy_BeforeAppendHook(t *testing.T) {
	rejected := errors.New("rejected")
	table := association.NewTable("post").MustDeclare(association.Descriptor{
		Name:       "comments",
		Kind:       association.HasMany,
		TargetType: "comment",
		BeforeAppend: []association.AppendHook{
			func(_ *association.Owner, r association.Record) error {
				if r.(*testsupport.Item).Name == "" {
					return rejected
				}
				return nil
			},
		},
	})
	owner := association.NewOwner(table, testsupport.NewStore(), "")
	comments := proxy(t, owner, "comments")

	res, err := comments.Append(&testsupport.Item{Name: "ok"}, &testsupport.Item{})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, res.Len())
}
