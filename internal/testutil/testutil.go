// Package testutil provides shared test helpers for setting up data
// directories and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/webring/internal/index"
	"github.com/starford/webring/internal/storage"
)

// RegistryFile is the registry document name used by TestDataDir.
const RegistryFile = "members.ts"

// LedgerFile is the ledger name used by tests.
const LedgerFile = "submissions.json"

// RegistryDocument is an empty registry document with the default markers
// and a commented example entry inside the managed region.
const RegistryDocument = `import type { Member } from "./types";

export const members: Member[] = [
  // ADD YOUR ENTRY BELOW THIS LINE

  // Example entry (copy this as a template):
  // {
  //   id: "john-doe",
  //   name: "John Doe",
  //   website: "https://johndoe.com",
  // },

  // ADD YOUR ENTRY ABOVE THIS LINE
];
`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "webring-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDataDir creates a temporary data directory holding RegistryDocument
// as RegistryFile, and a storage.FS rooted at it.
func TestDataDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Write(RegistryFile, []byte(RegistryDocument)); err != nil {
		t.Fatal(err)
	}
	return dir, store
}
