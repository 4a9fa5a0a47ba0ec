// Package catalog is the durable relational store for file and room
// records. It wraps a SQLite database (modernc's pure-Go driver) behind
// the github.com/pocketbase/dbx query builder, without adopting the full
// PocketBase collection/access-rule framework.
package catalog

import (
	"fmt"

	"github.com/pocketbase/dbx"
)

// migration is one timestamp-ordered, named schema step applied as plain
// SQL.
type migration struct {
	id string
	up string
}

// migrations must stay append-only; ids are timestamps fixed at authoring
// time.
var migrations = []migration{
	{
		id: "20240601000000_create_files",
		up: `
CREATE TABLE IF NOT EXISTS files (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	original_name    TEXT NOT NULL,
	storage_key      TEXT NOT NULL UNIQUE,
	size_bytes       INTEGER NOT NULL,
	mime_type        TEXT NOT NULL DEFAULT 'application/octet-stream',
	share_code       TEXT NOT NULL DEFAULT '',
	password_hash    TEXT NOT NULL DEFAULT '',
	expires_at       TEXT NOT NULL DEFAULT '',
	download_count   INTEGER NOT NULL DEFAULT 0,
	tombstoned       INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_files_share_code ON files (share_code) WHERE share_code <> '';
CREATE INDEX IF NOT EXISTS idx_files_owner_created ON files (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_files_expires_at ON files (expires_at);
`,
	},
	{
		id: "20240601000100_create_p2p_rooms",
		up: `
CREATE TABLE IF NOT EXISTS p2p_rooms (
	room_code   TEXT PRIMARY KEY,
	host_id     TEXT NOT NULL,
	file_name   TEXT NOT NULL DEFAULT '',
	file_size   INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'waiting',
	created_at  TEXT NOT NULL,
	expires_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rooms_expires_at ON p2p_rooms (expires_at);
`,
	},
	{
		id: "20240601000200_create_orphan_keys",
		up: `
CREATE TABLE IF NOT EXISTS orphan_keys (
	storage_key TEXT PRIMARY KEY,
	reason      TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
`,
	},
	{
		id: "20240601000300_schema_migrations",
		up: `
CREATE TABLE IF NOT EXISTS schema_migrations (
	id TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`,
	},
}

// Migrate applies every migration not yet recorded in schema_migrations, in
// id order, inside one transaction per migration. It is idempotent and safe
// to call on every process start (cmd's `migrate` subcommand and `serve`
// both call it).
func Migrate(db *dbx.DB) error {
	// The tracking table itself must exist before we can query it, and it is
	// always migration zero conceptually, so create it unconditionally first.
	if _, err := db.NewQuery(migrations[len(migrations)-1].up).Execute(); err != nil {
		return fmt.Errorf("catalog: bootstrap schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.NewQuery("SELECT COUNT(*) FROM schema_migrations WHERE id = {:id}").
			Bind(dbx.Params{"id": m.id}).Row(&count)
		if err != nil {
			return fmt.Errorf("catalog: check migration %s: %w", m.id, err)
		}
		if count > 0 {
			continue
		}

		err = db.Transactional(func(tx *dbx.Tx) error {
			if _, err := tx.NewQuery(m.up).Execute(); err != nil {
				return err
			}
			_, err := tx.Insert("schema_migrations", dbx.Params{
				"id":         m.id,
				"applied_at": nowRFC3339(),
			}).Execute()
			return err
		})
		if err != nil {
			return fmt.Errorf("catalog: apply migration %s: %w", m.id, err)
		}
	}

	return nil
}
