package catalog

import (
	"github.com/pocketbase/dbx"

	"github.com/websoft9/dropcode/internal/apierr"
)

// OrphanKey is a blob-store object the janitor must keep trying to delete
// because the owning file row is already gone.
type OrphanKey struct {
	StorageKey   string `db:"storage_key" json:"storageKey"`
	Reason       string `db:"reason" json:"reason"`
	CreatedAtRaw string `db:"created_at" json:"-"`
}

// AddOrphanKey records a key whose blob delete failed after its row was
// already removed. Re-adding the same key is a harmless upsert.
func (c *Catalog) AddOrphanKey(storageKey, reason string) error {
	_, err := c.db.NewQuery(
		`INSERT INTO orphan_keys (storage_key, reason, created_at) VALUES ({:key}, {:reason}, {:now})
		 ON CONFLICT(storage_key) DO UPDATE SET reason = {:reason}`).
		Bind(dbx.Params{"key": storageKey, "reason": reason, "now": nowRFC3339()}).Execute()
	if err != nil {
		return apierr.Upstream("record orphan key", err)
	}
	return nil
}

// ListOrphanKeys returns every key still awaiting a successful blob delete.
func (c *Catalog) ListOrphanKeys() ([]*OrphanKey, error) {
	var keys []*OrphanKey
	err := c.db.Select("*").From("orphan_keys").All(&keys)
	if err != nil {
		return nil, apierr.Upstream("list orphan keys", err)
	}
	return keys, nil
}

// ClearOrphanKey removes a key once its blob delete finally succeeds.
func (c *Catalog) ClearOrphanKey(storageKey string) error {
	_, err := c.db.Delete("orphan_keys", dbx.HashExp{"storage_key": storageKey}).Execute()
	if err != nil {
		return apierr.Upstream("clear orphan key", err)
	}
	return nil
}
