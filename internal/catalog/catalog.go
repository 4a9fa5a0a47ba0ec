package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

// Catalog is the durable store for files, p2p_rooms, and the orphan-key
// ledger. It is safe for concurrent use; dbx.DB pools *sql.DB connections
// internally.
type Catalog struct {
	db *dbx.DB
}

// Open creates (or reuses) a SQLite database file under dataDir and applies
// any pending migrations.
func Open(dataDir string) (*Catalog, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: create data dir %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, "catalog.db")

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite: one writer at a time avoids SQLITE_BUSY storms

	db := dbx.NewFromDB(sqlDB, "sqlite")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &Catalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// DB exposes the underlying dbx handle for components (e.g. the janitor)
// that need ad hoc queries beyond the typed methods below.
func (c *Catalog) DB() *dbx.DB { return c.db }

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("catalog: empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, raw)
}
