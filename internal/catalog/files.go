package catalog

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pocketbase/dbx"

	"github.com/websoft9/dropcode/internal/apierr"
)

// File is the persistent file record.
type File struct {
	ID            string    `db:"id" json:"id"`
	OwnerID       string    `db:"owner_id" json:"ownerId"`
	OriginalName  string    `db:"original_name" json:"originalName"`
	StorageKey    string    `db:"storage_key" json:"-"`
	SizeBytes     int64     `db:"size_bytes" json:"size"`
	MimeType      string    `db:"mime_type" json:"mimeType"`
	ShareCode     string    `db:"share_code" json:"shareCode,omitempty"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	ExpiresAtRaw  string    `db:"expires_at" json:"-"`
	DownloadCount int64     `db:"download_count" json:"downloadCount"`
	Tombstoned    bool      `db:"tombstoned" json:"-"`
	CreatedAtRaw  string    `db:"created_at" json:"-"`
}

// HasPassword reports whether the file requires a password to unlock.
func (f *File) HasPassword() bool { return f.PasswordHash != "" }

// ExpiresAt parses the stored expiry, or the zero Time when there is none.
func (f *File) ExpiresAt() (time.Time, bool) {
	if f.ExpiresAtRaw == "" {
		return time.Time{}, false
	}
	t, err := parseTime(f.ExpiresAtRaw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsExpired reports whether the file is past its expiry. A file with
// expires_at exactly equal to now is treated as expired.
func (f *File) IsExpired(now time.Time) bool {
	t, ok := f.ExpiresAt()
	if !ok {
		return false
	}
	return !now.Before(t)
}

// CreateFileParams is the input to CreateFile.
type CreateFileParams struct {
	ID           string
	OwnerID      string
	OriginalName string
	StorageKey   string
	SizeBytes    int64
	MimeType     string
	ShareCode    string
	PasswordHash string
	ExpiresAt    *time.Time
}

// CreateFile inserts a new file row. storage_key and share_code uniqueness
// is enforced by the schema; a violation surfaces as apierr.KindCollision.
func (c *Catalog) CreateFile(p CreateFileParams) (*File, error) {
	mime := p.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}

	var expiresRaw string
	if p.ExpiresAt != nil {
		expiresRaw = p.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := c.db.Insert("files", dbx.Params{
		"id":             p.ID,
		"owner_id":       p.OwnerID,
		"original_name":  p.OriginalName,
		"storage_key":    p.StorageKey,
		"size_bytes":     p.SizeBytes,
		"mime_type":      mime,
		"share_code":     p.ShareCode,
		"password_hash":  p.PasswordHash,
		"expires_at":     expiresRaw,
		"download_count": 0,
		"tombstoned":     false,
		"created_at":     nowRFC3339(),
	}).Execute()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierr.Collision("storage key or share code already in use")
		}
		return nil, apierr.Upstream("create file", err)
	}

	return c.GetFile(p.ID)
}

// GetFile returns a file by id, or apierr.KindNotFound.
func (c *Catalog) GetFile(id string) (*File, error) {
	var f File
	err := c.db.Select("*").From("files").
		Where(dbx.HashExp{"id": id, "tombstoned": false}).One(&f)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("file not found")
		}
		return nil, apierr.Upstream("get file", err)
	}
	return &f, nil
}

// GetFileByShareCode looks up a file by its (case-insensitive) share code.
// Canonical storage is uppercase; callers should normalize before calling,
// but this also upper-cases defensively.
func (c *Catalog) GetFileByShareCode(code string) (*File, error) {
	if code == "" {
		return nil, apierr.NotFound("share code not found")
	}
	var f File
	err := c.db.Select("*").From("files").
		Where(dbx.HashExp{"share_code": strings.ToUpper(code), "tombstoned": false}).One(&f)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("share code not found")
		}
		return nil, apierr.Upstream("get file by share code", err)
	}
	return &f, nil
}

// ListFilesByOwner returns the owner's files, newest first.
func (c *Catalog) ListFilesByOwner(ownerID string) ([]*File, error) {
	var files []*File
	err := c.db.Select("*").From("files").
		Where(dbx.HashExp{"owner_id": ownerID, "tombstoned": false}).
		OrderBy("created_at DESC").All(&files)
	if err != nil {
		return nil, apierr.Upstream("list files", err)
	}
	return files, nil
}

// DeleteFile removes a file row outright (used once the blob is confirmed
// gone). A second call is a no-op success;
// callers distinguish "already gone" at the handler layer via GetFile first.
func (c *Catalog) DeleteFile(id string) error {
	_, err := c.db.Delete("files", dbx.HashExp{"id": id}).Execute()
	if err != nil {
		return apierr.Upstream("delete file", err)
	}
	return nil
}

// MarkTombstoned flags a file row as tombstoned without deleting it, used
// when the blob delete failed and bytes might still be reachable.
func (c *Catalog) MarkTombstoned(id string) error {
	_, err := c.db.Update("files", dbx.Params{"tombstoned": true}, dbx.HashExp{"id": id}).Execute()
	if err != nil {
		return apierr.Upstream("tombstone file", err)
	}
	return nil
}

// IncrementDownloadCount atomically bumps the download counter by one using
// a single SQL UPDATE, satisfying the "at most once per mint" invariant at
// the call site; the statement itself is always exactly +1.
func (c *Catalog) IncrementDownloadCount(id string) error {
	_, err := c.db.NewQuery("UPDATE files SET download_count = download_count + 1 WHERE id = {:id}").
		Bind(dbx.Params{"id": id}).Execute()
	if err != nil {
		return apierr.Upstream("increment download count", err)
	}
	return nil
}

// ListExpiredFiles returns every non-tombstoned file whose expiry has
// passed, for the janitor sweep.
func (c *Catalog) ListExpiredFiles(now time.Time) ([]*File, error) {
	var files []*File
	err := c.db.Select("*").From("files").
		Where(dbx.NewExp("expires_at <> '' AND expires_at <= {:now} AND tombstoned = 0", dbx.Params{
			"now": now.UTC().Format(time.RFC3339Nano),
		})).All(&files)
	if err != nil {
		return nil, apierr.Upstream("list expired files", err)
	}
	return files, nil
}

// ListTombstoned returns files flagged tombstoned, so the janitor can retry
// their blob delete.
func (c *Catalog) ListTombstoned() ([]*File, error) {
	var files []*File
	err := c.db.Select("*").From("files").Where(dbx.HashExp{"tombstoned": true}).All(&files)
	if err != nil {
		return nil, apierr.Upstream("list tombstoned files", err)
	}
	return files, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
