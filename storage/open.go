package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open constructs the backend named by kind rooted at dir.
func Open(kind, dir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewMemDB(), nil
	case "leveldb":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
		return NewLevelDB(filepath.Join(dir, "ledger"))
	case "bolt":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
		return NewBoltDB(filepath.Join(dir, "ledger.db"), nil)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}
