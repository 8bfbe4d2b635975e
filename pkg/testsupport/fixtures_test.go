package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-association-cache/association"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.json")

	jsonData, err := json.Marshal(map[string]any{"name": "test", "value": 42})
	if err != nil {
		t.Fatalf("failed to marshal test data: %v", err)
	}
	if err := os.WriteFile(testFile, jsonData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var result map[string]any
	LoadFixtureJSON(t, testFile, &result)

	if result["name"] != "test" {
		t.Errorf("expected name=test, got %v", result["name"])
	}
	if result["value"] != float64(42) {
		t.Errorf("expected value=42, got %v", result["value"])
	}
}

func TestFixturePath(t *testing.T) {
	if got, want := FixturePath("blog.json"), filepath.Join("testdata", "blog.json"); got != want {
		t.Errorf("FixturePath() = %q, want %q", got, want)
	}
}

func commentsDescriptor() association.Descriptor {
	return association.Descriptor{Name: "comments", Kind: association.HasMany, TargetType: "comment"}
}

func TestSeedStore(t *testing.T) {
	store, items := SeedStore(t, FixturePath("blog.json"))

	require.Contains(t, items, "u1")
	assert.Equal(t, "alice", items["u1"].Name)

	res, err := store.Fetch(context.Background(), association.FetchRequest{
		OwnerType:  "post",
		OwnerID:    "p1",
		Descriptor: commentsDescriptor(),
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Same(t, items["c1"], res.Records[0])
	assert.Same(t, items["c2"], res.Records[1])
	assert.Equal(t, 1, store.FetchCalls())
}

func TestStore_OwnerNotFound(t *testing.T) {
	store, _ := SeedStore(t, FixturePath("blog.json"))
	store.DeleteOwner("post", "p1")

	req := association.FetchRequest{OwnerType: "post", OwnerID: "p1", Descriptor: commentsDescriptor()}

	_, err := store.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, association.ErrOwnerNotFound)

	_, err = store.Count(context.Background(), req)
	assert.ErrorIs(t, err, association.ErrOwnerNotFound)
}

func TestStore_Through(t *testing.T) {
	store, items := SeedStore(t, FixturePath("blog.json"))

	taggings := association.Descriptor{Name: "taggings", Kind: association.HasMany, TargetType: "tagging"}
	res, err := store.Fetch(context.Background(), association.FetchRequest{
		OwnerType:  "post",
		OwnerID:    "p1",
		Descriptor: association.Descriptor{Name: "tags", Kind: association.HasMany, TargetType: "tag", Through: "taggings"},
		Through:    &taggings,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Same(t, items["g1"], res.Records[0])
	assert.Same(t, items["g2"], res.Records[1])
}

func TestStore_FailAndBatch(t *testing.T) {
	store, _ := SeedStore(t, FixturePath("blog.json"))
	boom := errors.New("boom")
	store.Fail("comments", boom)

	out, err := store.FetchBatch(context.Background(), []association.FetchRequest{
		{OwnerType: "post", OwnerID: "p1", Descriptor: commentsDescriptor()},
		{OwnerType: "post", OwnerID: "p1", Descriptor: association.Descriptor{Name: "author", Kind: association.BelongsTo, TargetType: "user"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.ErrorIs(t, out[0].Err, boom)
	assert.NoError(t, out[1].Err)
	assert.Len(t, out[1].Records, 1)
	assert.Equal(t, 1, store.BatchCalls())

	store.Fail("comments", nil)
	res, err := store.Fetch(context.Background(), association.FetchRequest{OwnerType: "post", OwnerID: "p1", Descriptor: commentsDescriptor()})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

func TestStore_Persist(t *testing.T) {
	store := NewStore()
	table := association.NewTable("post").MustDeclare(commentsDescriptor())
	owner := association.NewOwner(table, store, "")

	comments, err := owner.Association("comments")
	require.NoError(t, err)
	item := &Item{Name: "draft"}
	_, err = comments.Append(item)
	require.NoError(t, err)

	require.NoError(t, store.Persist(context.Background(), owner))

	assert.True(t, owner.Persisted())
	assert.NotEmpty(t, item.ID)
	assert.Empty(t, comments.Pending())

	n, err := store.Count(context.Background(), association.FetchRequest{
		OwnerType:  "post",
		OwnerID:    owner.ID(),
		Descriptor: commentsDescriptor(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_PersistUnlinksRemoved(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.AddOwner("post", "p1")
	kept := &Item{ID: "c1", Name: "kept"}
	dropped := &Item{ID: "c2", Name: "dropped"}
	store.Link("post", "p1", "comments", kept, dropped)

	table := association.NewTable("post").MustDeclare(commentsDescriptor())
	owner := association.NewOwner(table, store, "p1")
	comments, err := owner.Association("comments")
	require.NoError(t, err)

	res, err := comments.Get(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())
	assert.True(t, comments.Remove(dropped))

	require.NoError(t, store.Persist(ctx, owner))
	assert.Empty(t, comments.Removed())

	owner.Cache().Clear()
	res, err = comments.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []association.Record{kept}, res.Records())
	assert.False(t, res.Contains(dropped))
}
