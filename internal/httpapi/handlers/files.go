// Package handlers implements the HTTP API layer for file operations
// and the small health/ready surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/websoft9/dropcode/internal/apierr"
	"github.com/websoft9/dropcode/internal/audit"
	"github.com/websoft9/dropcode/internal/blobstore"
	"github.com/websoft9/dropcode/internal/catalog"
	"github.com/websoft9/dropcode/internal/config"
	"github.com/websoft9/dropcode/internal/httpapi/httperr"
	"github.com/websoft9/dropcode/internal/identity"
	"github.com/websoft9/dropcode/internal/mimeallow"
	"github.com/websoft9/dropcode/internal/passwordhash"
	"github.com/websoft9/dropcode/internal/ratelimit"
	"github.com/websoft9/dropcode/internal/sharecode"
	"github.com/websoft9/dropcode/internal/storagekey"
)

// FilesAPI groups the dependencies every file-operation handler needs.
// Handlers are methods on it rather than closures, avoiding package-level
// mutable state.
type FilesAPI struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	blobs    blobstore.Store
	hashPool *passwordhash.Pool
	http     *http.Client
	unlockRL *ratelimit.PerKey
}

// NewFilesAPI builds a FilesAPI.
func NewFilesAPI(cfg *config.Config, cat *catalog.Catalog, blobs blobstore.Store, hashPool *passwordhash.Pool) *FilesAPI {
	return &FilesAPI{
		cfg:      cfg,
		catalog:  cat,
		blobs:    blobs,
		hashPool: hashPool,
		http:     &http.Client{Timeout: 30 * time.Second},
		// 1 password-unlock attempt/sec per remote address, burst of 5: a
		// human retrying a forgotten password is unaffected, a brute-force
		// loop is not.
		unlockRL: ratelimit.NewPerKey(rate.Limit(1), 5),
	}
}

// ─── Presign ──────────────────────────────────────────────

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (req presignRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.FileName, validation.Required, validation.Length(1, 512)),
		validation.Field(&req.ContentType, validation.Required),
		validation.Field(&req.Size, validation.Min(int64(0))),
	)
}

type presignResponse struct {
	UploadURL  string `json:"uploadUrl"`
	StorageKey string `json:"storageKey"`
	ShareCode  string `json:"shareCode"`
}

// Presign begins an upload: mints a storage key and a PUT URL, plus
// an as-yet-unbound share code.
func (a *FilesAPI) Presign(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ownerID := identity.OwnerID(r.Context())
	key := storagekey.Build(ownerID, time.Now().UnixMilli(), req.FileName)

	code, err := sharecode.Allocate(a.shareCodeExists, 0)
	if err != nil {
		httperr.Write(w, r, mapShareCodeErr(err))
		return
	}

	url, err := a.blobs.PresignPut(r.Context(), key, req.ContentType, a.cfg.PresignTTL)
	if err != nil {
		httperr.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, presignResponse{UploadURL: url, StorageKey: key, ShareCode: code})
}

func (a *FilesAPI) shareCodeExists(code string) (bool, error) {
	_, err := a.catalog.GetFileByShareCode(code)
	if err == nil {
		return true, nil
	}
	if ae, ok := apierr.As(err); ok && ae.Kind == apierr.KindNotFound {
		return false, nil
	}
	return false, err
}

func mapShareCodeErr(err error) error {
	if errors.Is(err, sharecode.ErrExhausted) {
		return apierr.Collision("could not allocate a unique share code")
	}
	return apierr.Upstream("share code allocation", err)
}

// ─── Confirm ──────────────────────────────────────────────

type confirmRequest struct {
	StorageKey   string     `json:"storageKey"`
	ShareCode    string     `json:"shareCode"`
	OriginalName string     `json:"originalName"`
	Size         int64      `json:"size"`
	ContentType  string     `json:"contentType"`
	Password     string     `json:"password,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

func (req confirmRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.StorageKey, validation.Required),
		validation.Field(&req.ShareCode, validation.Required, validation.Length(sharecode.Length, sharecode.Length)),
		validation.Field(&req.OriginalName, validation.Required, validation.Length(1, 512)),
		validation.Field(&req.Size, validation.Min(int64(0))),
	)
}

type confirmResponse struct {
	ShareCode string `json:"shareCode"`
}

// Confirm finalizes an upload, creating the catalog row and making the
// share code resolvable.
func (a *FilesAPI) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ownerID := identity.OwnerID(r.Context())
	if !storagekey.BelongsToOwner(req.StorageKey, ownerID) {
		httperr.Write(w, r, apierr.Validation("storage key does not belong to this owner"))
		return
	}

	var passwordHash string
	if req.Password != "" {
		h, err := a.hashPool.Hash(r.Context(), req.Password)
		if err != nil {
			httperr.Write(w, r, apierr.Upstream("hash password", err))
			return
		}
		passwordHash = h
	}

	f, err := a.catalog.CreateFile(catalog.CreateFileParams{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		OriginalName: req.OriginalName,
		StorageKey:   req.StorageKey,
		SizeBytes:    req.Size,
		MimeType:     req.ContentType,
		ShareCode:    sharecode.Normalize(req.ShareCode),
		PasswordHash: passwordHash,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		audit.Write(audit.Entry{Action: "files.confirm", ActorID: ownerID, Status: audit.StatusFailed, Detail: err.Error()})
		httperr.Write(w, r, err)
		return
	}

	audit.Write(audit.Entry{Action: "files.confirm", ActorID: ownerID, Status: audit.StatusSuccess, Detail: f.ID})
	log.Info().Str("fileId", f.ID).Str("size", humanize.Bytes(uint64(f.SizeBytes))).Msg("files.confirm: upload finalized")
	writeJSON(w, http.StatusOK, confirmResponse{ShareCode: f.ShareCode})
}

// ─── Upload (alternative single-round multipart) ───────────

// Upload accepts a multipart body up to MAX_UPLOAD_BYTES, sniffs the real
// content type against the allow-list, streams it to BlobStore via a
// self-minted presigned PUT, then creates the catalog row.
func (a *FilesAPI) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes+1<<20) // +1MiB slack for form fields

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httperr.Write(w, r, apierr.Validation("multipart body too large or malformed"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httperr.Write(w, r, apierr.Validation("missing multipart field \"file\""))
		return
	}
	defer file.Close()

	if header.Size > a.cfg.MaxUploadBytes {
		httperr.Write(w, r, apierr.Validation(fmt.Sprintf("file exceeds MAX_UPLOAD_BYTES (%d)", a.cfg.MaxUploadBytes)))
		return
	}

	sniffed, err := mimetype.DetectReader(file)
	if err != nil {
		httperr.Write(w, r, apierr.Validation("could not determine content type"))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		httperr.Write(w, r, apierr.Upstream("rewind upload", err))
		return
	}
	contentType := sniffed.String()
	if !mimeallow.Allowed(contentType) {
		httperr.Write(w, r, apierr.Validation(fmt.Sprintf("content type %q is not allowed", contentType)))
		return
	}

	ownerID := identity.OwnerID(r.Context())
	originalName := r.FormValue("fileName")
	if originalName == "" {
		originalName = header.Filename
	}
	key := storagekey.Build(ownerID, time.Now().UnixMilli(), originalName)

	if err := a.putViaPresign(r.Context(), key, contentType, file, header.Size); err != nil {
		httperr.Write(w, r, err)
		return
	}

	code, err := sharecode.Allocate(a.shareCodeExists, 0)
	if err != nil {
		httperr.Write(w, r, mapShareCodeErr(err))
		return
	}

	var passwordHash string
	if pw := r.FormValue("password"); pw != "" {
		h, err := a.hashPool.Hash(r.Context(), pw)
		if err != nil {
			httperr.Write(w, r, apierr.Upstream("hash password", err))
			return
		}
		passwordHash = h
	}

	f, err := a.catalog.CreateFile(catalog.CreateFileParams{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		OriginalName: originalName,
		StorageKey:   key,
		SizeBytes:    header.Size,
		MimeType:     contentType,
		ShareCode:    code,
		PasswordHash: passwordHash,
	})
	if err != nil {
		httperr.Write(w, r, err)
		return
	}

	audit.Write(audit.Entry{Action: "files.upload", ActorID: ownerID, Status: audit.StatusSuccess, Detail: f.ID})
	log.Info().Str("fileId", f.ID).Str("size", humanize.Bytes(uint64(header.Size))).Msg("files.upload: stored")
	writeJSON(w, http.StatusOK, confirmResponse{ShareCode: f.ShareCode})
}

// putViaPresign mints a PUT URL for key and performs the upload itself,
// so the multipart handler never needs a server-side Put on the Store
// interface distinct from what the presign flow already exposes.
func (a *FilesAPI) putViaPresign(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	url, err := a.blobs.PresignPut(ctx, key, contentType, a.cfg.PresignTTL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return apierr.Upstream("build blob store request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	resp, err := a.http.Do(req)
	if err != nil {
		return apierr.Upstream("blob store upload failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apierr.Upstream(fmt.Sprintf("blob store upload returned %d", resp.StatusCode), nil)
	}
	return nil
}

// ─── List ───────────────────────────────────────────────────

type fileListItem struct {
	*catalog.File
	ExistsInStorage bool `json:"existsInStorage"`
}

// List returns the owner's files, each annotated with existsInStorage via a
// bounded-concurrency batch of blob-store HEAD calls.
func (a *FilesAPI) List(w http.ResponseWriter, r *http.Request) {
	ownerID := identity.OwnerID(r.Context())
	files, err := a.catalog.ListFilesByOwner(ownerID)
	if err != nil {
		httperr.Write(w, r, err)
		return
	}

	items := make([]fileListItem, len(files))
	const maxConcurrentHeads = 8
	sem := make(chan struct{}, maxConcurrentHeads)
	var wg sync.WaitGroup
	for i, f := range files {
		items[i] = fileListItem{File: f}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, key string) {
			defer wg.Done()
			defer func() { <-sem }()
			head, err := a.blobs.Head(r.Context(), key)
			if err != nil {
				log.Debug().Err(err).Str("storageKey", key).Msg("files.list: head failed")
				return
			}
			items[i].ExistsInStorage = head.Exists
		}(i, f.StorageKey)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, items)
}

// ─── Download resolve / unlock ───────────────────────────────

type downloadResolveResponse struct {
	URL          string `json:"url,omitempty"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// DownloadResolve handles GET /files/download/{code}: missing →404,
// expired →410, password-protected →401 with requiresPassword and no URL,
// otherwise mints the URL and increments the counter.
func (a *FilesAPI) DownloadResolve(w http.ResponseWriter, r *http.Request) {
	code := sharecode.Normalize(chi.URLParam(r, "code"))
	f, err := a.catalog.GetFileByShareCode(code)
	if err != nil {
		httperr.Write(w, r, err)
		return
	}
	if f.IsExpired(time.Now()) {
		httperr.Write(w, r, apierr.Gone("file has expired"))
		return
	}
	if f.HasPassword() {
		httperr.WriteLocked(w, "password required", map[string]any{
			"originalName": f.OriginalName,
			"size":         f.SizeBytes,
		})
		return
	}

	a.resolveAndRespond(w, r, f)
}

type downloadUnlockRequest struct {
	Password string `json:"password"`
}

// DownloadUnlock handles POST /files/download/{code}: constant-time
// password compare; success mints + increments, failure is 401 without
// incrementing.
func (a *FilesAPI) DownloadUnlock(w http.ResponseWriter, r *http.Request) {
	if !a.unlockRL.Allow(remoteKey(r)) {
		httperr.Write(w, r, apierr.Validation("too many attempts, slow down"))
		return
	}

	code := sharecode.Normalize(chi.URLParam(r, "code"))
	var req downloadUnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, r, apierr.Validation("malformed request body"))
		return
	}

	f, err := a.catalog.GetFileByShareCode(code)
	if err != nil {
		httperr.Write(w, r, err)
		return
	}
	if f.IsExpired(time.Now()) {
		httperr.Write(w, r, apierr.Gone("file has expired"))
		return
	}

	ok, err := a.hashPool.Verify(r.Context(), req.Password, f.PasswordHash)
	if err != nil {
		httperr.Write(w, r, apierr.Upstream("verify password", err))
		return
	}
	if !ok {
		audit.Write(audit.Entry{Action: "files.download.unlock", Status: audit.StatusFailed, Detail: f.ID})
		httperr.Write(w, r, apierr.Locked("incorrect password"))
		return
	}

	a.resolveAndRespond(w, r, f)
}

func (a *FilesAPI) resolveAndRespond(w http.ResponseWriter, r *http.Request, f *catalog.File) {
	url, err := a.blobs.PresignGet(r.Context(), f.StorageKey, a.cfg.PresignTTL)
	if err != nil {
		httperr.Write(w, r, err)
		return
	}
	if err := a.catalog.IncrementDownloadCount(f.ID); err != nil {
		httperr.Write(w, r, err)
		return
	}
	audit.Write(audit.Entry{Action: "files.download.resolve", Status: audit.StatusSuccess, Detail: f.ID})
	writeJSON(w, http.StatusOK, downloadResolveResponse{URL: url, OriginalName: f.OriginalName, Size: f.SizeBytes})
}

// ─── Delete ───────────────────────────────────────────────

// Delete is the owner-delete endpoint: 404 if missing, 403 if not
// owner, blob deleted first (best-effort retry inside the adapter), row
// deleted on success; on persistent blob failure the row is tombstoned and
// the key is handed to the janitor's orphan ledger instead of leaking bytes
// silently.
func (a *FilesAPI) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ownerID := identity.OwnerID(r.Context())

	f, err := a.catalog.GetFile(id)
	if err != nil {
		httperr.Write(w, r, err)
		return
	}
	if f.OwnerID != ownerID {
		httperr.Write(w, r, apierr.Forbidden("not the owner of this file"))
		return
	}

	if err := a.blobs.Delete(r.Context(), f.StorageKey); err != nil {
		log.Warn().Err(err).Str("fileId", id).Msg("files.delete: blob delete failed, tombstoning")
		if tombErr := a.catalog.MarkTombstoned(id); tombErr != nil {
			httperr.Write(w, r, tombErr)
			return
		}
		if orphanErr := a.catalog.AddOrphanKey(f.StorageKey, "delete: blob store failure"); orphanErr != nil {
			log.Error().Err(orphanErr).Msg("files.delete: record orphan key failed")
		}
		audit.Write(audit.Entry{Action: "files.delete", ActorID: ownerID, Status: audit.StatusFailed, Detail: err.Error()})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := a.catalog.DeleteFile(id); err != nil {
		httperr.Write(w, r, err)
		return
	}
	audit.Write(audit.Entry{Action: "files.delete", ActorID: ownerID, Status: audit.StatusSuccess, Detail: id})
	w.WriteHeader(http.StatusNoContent)
}

// ─── shared helpers ───────────────────────────────────────

// remoteKey identifies the caller for per-address rate limiting. It relies
// on chimiddleware.RealIP having already rewritten r.RemoteAddr upstream in
// the router's middleware chain, so a reverse proxy's X-Forwarded-For is
// honored rather than the proxy's own address.
func remoteKey(r *http.Request) string {
	return r.RemoteAddr
}

type validator interface {
	Validate() error
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst validator) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httperr.Write(w, r, apierr.Validation("malformed request body"))
		return false
	}
	if err := dst.Validate(); err != nil {
		httperr.Write(w, r, apierr.Validation(err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
