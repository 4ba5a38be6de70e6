// Package testutil provides shared test helpers for setting up databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/notesapp/internal/localstore"
)

// TestSecret signs access tokens of stores opened by LocalStore.
const TestSecret = "testutil-token-secret"

// LocalStore creates a temporary SQLite store that is automatically cleaned up.
func LocalStore(t *testing.T, opts ...localstore.Option) *localstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notesapp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	opts = append([]localstore.Option{localstore.WithTokenSecret(TestSecret)}, opts...)
	db, err := localstore.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
