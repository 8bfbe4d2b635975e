package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-association-cache/association"
)

// OwnerFixture describes one owner row and its associated items.
type OwnerFixture struct {
	Type         string             `json:"type"`
	ID           string             `json:"id"`
	Associations map[string][]*Item `json:"associations"`
}

// StoreFixture is the on-disk layout of a seeded store.
type StoreFixture struct {
	Owners []OwnerFixture `json:"owners"`
}

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// SeedStore builds a Store from a StoreFixture file and returns it together
// with the items by id, so tests can compare identities.
func SeedStore(t *testing.T, path string) (*Store, map[string]*Item) {
	t.Helper()

	var fixture StoreFixture
	LoadFixtureJSON(t, path, &fixture)

	store := NewStore()
	items := make(map[string]*Item)
	for _, owner := range fixture.Owners {
		store.AddOwner(owner.Type, owner.ID)
		for name, rows := range owner.Associations {
			records := make([]association.Record, 0, len(rows))
			for _, row := range rows {
				if existing, ok := items[row.ID]; ok {
					row = existing
				} else {
					items[row.ID] = row
				}
				records = append(records, row)
			}
			store.Link(owner.Type, owner.ID, name, records...)
		}
	}
	return store, items
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
