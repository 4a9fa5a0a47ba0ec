package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/websoft9/dropcode/internal/blobstore"
	"github.com/websoft9/dropcode/internal/catalog"
	"github.com/websoft9/dropcode/internal/signaling"
)

func newTestJanitor(t *testing.T) (*Janitor, *catalog.Catalog, *blobstore.Fake) {
	t.Helper()
	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	blobs := blobstore.NewFake()
	hub := signaling.New(cat, time.Hour)
	j := New(cat, blobs, hub, asynq.RedisClientOpt{Addr: "localhost:0"}, time.Minute, 5*time.Minute)
	return j, cat, blobs
}

func TestSweepDeletesExpiredFileAndBlob(t *testing.T) {
	j, cat, blobs := newTestJanitor(t)

	past := time.Now().Add(-time.Minute)
	_, err := cat.CreateFile(catalog.CreateFileParams{
		ID: "f1", OwnerID: "u1", OriginalName: "a", StorageKey: "uploads/u1/a", SizeBytes: 1,
		ExpiresAt: &past,
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	blobs.Put("uploads/u1/a", []byte("data"))

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, ok := blobs.Get("uploads/u1/a"); ok {
		t.Error("expired file's blob should have been deleted")
	}
	if _, err := cat.GetFile("f1"); err == nil {
		t.Error("expired file row should have been deleted")
	}
}

func TestSweepLeavesUnexpiredFileAlone(t *testing.T) {
	j, cat, blobs := newTestJanitor(t)

	future := time.Now().Add(time.Hour)
	_, err := cat.CreateFile(catalog.CreateFileParams{
		ID: "f1", OwnerID: "u1", OriginalName: "a", StorageKey: "uploads/u1/a", SizeBytes: 1,
		ExpiresAt: &future,
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	blobs.Put("uploads/u1/a", []byte("data"))

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := cat.GetFile("f1"); err != nil {
		t.Error("unexpired file row should still exist")
	}
}

func TestSweepDeletesExpiredRoomAndTearsDownHub(t *testing.T) {
	j, cat, _ := newTestJanitor(t)
	// nil catalog: the hub writes no mirror row of its own, so the expired
	// row created below is the only one.
	hub := signaling.New(nil, time.Hour)
	j.hub = hub

	_, err := cat.CreateRoom(catalog.CreateRoomParams{RoomCode: "ROOM01", HostID: "h1", TTL: -time.Second})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := hub.HostJoin("ROOM01", "h1", "", 0, &fakeRoomTransport{}); err != nil {
		t.Fatalf("HostJoin: %v", err)
	}

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := cat.GetRoom("ROOM01"); err == nil {
		t.Error("expired room row should have been deleted")
	}
	if hub.HasHost("ROOM01") {
		t.Error("expired room should have been torn down in the hub")
	}
}

func TestDrainOrphanKeysClearsOnSuccessfulDelete(t *testing.T) {
	j, cat, blobs := newTestJanitor(t)
	blobs.Put("uploads/u1/orphan", []byte("x"))
	if err := cat.AddOrphanKey("uploads/u1/orphan", "test"); err != nil {
		t.Fatalf("AddOrphanKey: %v", err)
	}

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	keys, err := cat.ListOrphanKeys()
	if err != nil {
		t.Fatalf("ListOrphanKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("orphan keys = %v, want none after successful delete", keys)
	}
}

func TestReconcileOrphanRoomsRespectsGracePeriod(t *testing.T) {
	j, cat, _ := newTestJanitor(t)
	hub := signaling.New(nil, time.Hour) // nil catalog: no durable mirror, purely in-memory
	j.hub = hub

	host := &fakeRoomTransport{}
	if err := hub.HostJoin("ORPHAN1", "h1", "", 0, host); err != nil {
		t.Fatalf("HostJoin: %v", err)
	}
	// No catalog row exists for ORPHAN1 (the hub has no catalog to mirror
	// into), so the janitor's lookup in its own catalog misses and the
	// reconciliation pass tears the room down once past the grace period.
	_ = cat // the janitor reads this catalog through j.cat

	// Within the default 5-minute grace the room must survive a sweep.
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !hub.HasHost("ORPHAN1") {
		t.Fatal("orphaned room inside the grace period should not be torn down")
	}

	j.orphanGrace = 0 // now every room is past the grace period
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if hub.HasHost("ORPHAN1") {
		t.Error("orphaned in-memory room should have been torn down")
	}
}

type fakeRoomTransport struct{}

func (f *fakeRoomTransport) Send(signaling.Envelope) error { return nil }
func (f *fakeRoomTransport) Close(int, string) error       { return nil }
