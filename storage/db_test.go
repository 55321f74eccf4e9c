package storage

import (
	"bytes"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("a"))
	if err != nil || !bytes.Equal(got, []byte("1")) {
		t.Fatalf("get: %q %v", got, err)
	}

	batch := db.NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("a"))
	if batch.Len() != 2 {
		t.Fatalf("batch len %d", batch.Len())
	}
	if _, err := db.Get([]byte("b")); !IsNotFound(err) {
		t.Fatalf("batch leaked before write: %v", err)
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("batch write: %v", err)
	}
	if _, err := db.Get([]byte("a")); !IsNotFound(err) {
		t.Fatalf("expected a deleted, got %v", err)
	}
	got, err = db.Get([]byte("b"))
	if err != nil || !bytes.Equal(got, []byte("2")) {
		t.Fatalf("get b: %q %v", got, err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	exerciseDatabase(t, db)
	if keys := db.Keys(); len(keys) != 1 || string(keys[0]) != "b" {
		t.Fatalf("unexpected keys %q", keys)
	}
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ldb"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("rocks", t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	db, err := Open("memory", "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := db.(*MemDB); !ok {
		t.Fatalf("expected MemDB, got %T", db)
	}
}
