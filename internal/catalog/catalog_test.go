package catalog

import (
	"testing"
	"time"

	"github.com/websoft9/dropcode/internal/apierr"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateAndGetFile(t *testing.T) {
	c := newTestCatalog(t)

	f, err := c.CreateFile(CreateFileParams{
		ID:           "f1",
		OwnerID:      "u1",
		OriginalName: "photo.jpg",
		StorageKey:   "uploads/u1/1-photo.jpg",
		SizeBytes:    2097152,
		MimeType:     "image/jpeg",
		ShareCode:    "ABCDEF",
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if f.DownloadCount != 0 {
		t.Errorf("DownloadCount = %d, want 0", f.DownloadCount)
	}

	got, err := c.GetFileByShareCode("abcdef")
	if err != nil {
		t.Fatalf("GetFileByShareCode (lowercase): %v", err)
	}
	if got.ID != "f1" {
		t.Errorf("ID = %q, want f1", got.ID)
	}
}

func TestDuplicateStorageKeyCollides(t *testing.T) {
	c := newTestCatalog(t)
	p := CreateFileParams{ID: "f1", OwnerID: "u1", OriginalName: "a", StorageKey: "k1", SizeBytes: 1}
	if _, err := c.CreateFile(p); err != nil {
		t.Fatalf("first create: %v", err)
	}
	p.ID = "f2"
	_, err := c.CreateFile(p)
	ae, ok := apierr.As(err)
	if !ok || ae.Kind != apierr.KindCollision {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestIncrementDownloadCountIsMonotonic(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateFile(CreateFileParams{ID: "f1", OwnerID: "u1", OriginalName: "a", StorageKey: "k1", SizeBytes: 1})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.IncrementDownloadCount("f1"); err != nil {
			t.Fatalf("IncrementDownloadCount: %v", err)
		}
	}

	f, err := c.GetFile("f1")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if f.DownloadCount != 3 {
		t.Errorf("DownloadCount = %d, want 3", f.DownloadCount)
	}
}

func TestListFilesByOwnerOrdersNewestFirst(t *testing.T) {
	c := newTestCatalog(t)
	for i, id := range []string{"f1", "f2", "f3"} {
		if _, err := c.CreateFile(CreateFileParams{ID: id, OwnerID: "u1", OriginalName: id, StorageKey: id, SizeBytes: int64(i)}); err != nil {
			t.Fatalf("CreateFile %s: %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	files, err := c.ListFilesByOwner("u1")
	if err != nil {
		t.Fatalf("ListFilesByOwner: %v", err)
	}
	if len(files) != 3 || files[0].ID != "f3" {
		t.Fatalf("expected newest-first [f3,f2,f1], got %+v", files)
	}
}

func TestFileExpiryBoundary(t *testing.T) {
	now := time.Now().UTC()
	f := &File{ExpiresAtRaw: now.Format(time.RFC3339Nano)}
	if !f.IsExpired(now) {
		t.Error("file with expires_at == now must be treated as expired")
	}
	if f.IsExpired(now.Add(-time.Second)) {
		t.Error("file should not be expired one second before its deadline")
	}
}

func TestRoomLifecycle(t *testing.T) {
	c := newTestCatalog(t)
	r, err := c.CreateRoom(CreateRoomParams{RoomCode: "XYZ123", HostID: "h1", FileName: "a.bin", FileSize: 42, TTL: time.Hour})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if r.Status != RoomStatusWaiting {
		t.Errorf("Status = %q, want waiting", r.Status)
	}

	if err := c.UpdateRoomStatus("XYZ123", RoomStatusConnected); err != nil {
		t.Fatalf("UpdateRoomStatus: %v", err)
	}
	r, err = c.GetRoom("XYZ123")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if r.Status != RoomStatusConnected {
		t.Errorf("Status = %q, want connected", r.Status)
	}

	if err := c.DeleteRoom("XYZ123"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if _, err := c.GetRoom("XYZ123"); err == nil {
		t.Error("expected NotFound after delete")
	}
}

func TestDeleteRoomNoopOnMissing(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.DeleteRoom("GHOST1"); err != nil {
		t.Errorf("DeleteRoom on missing room should be a no-op success, got %v", err)
	}
}

func TestDeleteFileNoopOnMissing(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.DeleteFile("ghost"); err != nil {
		t.Errorf("DeleteFile on missing file should be a no-op success, got %v", err)
	}
}
