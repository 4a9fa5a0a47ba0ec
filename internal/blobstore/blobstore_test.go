package blobstore

import (
	"context"
	"testing"
	"time"
)

func TestFakePutConfirmGetRoundTrip(t *testing.T) {
	store := NewFake()
	ctx := context.Background()

	putURL, err := store.PresignPut(ctx, "uploads/u1/1-photo.jpg", "image/jpeg", time.Hour)
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}
	if putURL == "" {
		t.Fatal("PresignPut returned empty URL")
	}

	payload := []byte("fixed-2mb-stand-in-bytes")
	store.Put("uploads/u1/1-photo.jpg", payload)

	getURL, err := store.PresignGet(ctx, "uploads/u1/1-photo.jpg", time.Hour)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if getURL == "" {
		t.Fatal("PresignGet returned empty URL")
	}

	got, ok := store.Get("uploads/u1/1-photo.jpg")
	if !ok {
		t.Fatal("Get: object not found after Put")
	}
	if string(got) != string(payload) {
		t.Errorf("Get returned %q, want %q", got, payload)
	}
}

func TestFakeDeleteIsIdempotent(t *testing.T) {
	store := NewFake()
	ctx := context.Background()
	store.Put("k", []byte("x"))

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete on absent key must be a no-op success, got %v", err)
	}
}

func TestFakeHeadReportsAbsence(t *testing.T) {
	store := NewFake()
	res, err := store.Head(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if res.Exists {
		t.Error("Head on missing key reported Exists = true")
	}
}

func TestPresignedURLExpiresAfterTTL(t *testing.T) {
	store := NewFake()
	ctx := context.Background()
	if _, err := store.PresignGet(ctx, "k", time.Second); err != nil {
		t.Fatalf("PresignGet: %v", err)
	}

	if store.URLExpired("k", time.Now()) {
		t.Error("URL should not be expired immediately after minting")
	}
	if !store.URLExpired("k", time.Now().Add(2*time.Second)) {
		t.Error("URL should be expired after PRESIGN_TTL_SECONDS has elapsed")
	}
}
