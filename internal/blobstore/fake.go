package blobstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Store used by handler and janitor tests. It models
// presign TTL expiry and delete idempotence without touching the network.
type Fake struct {
	// BaseURL prefixes every minted URL. Tests that need the URLs to be
	// actually fetchable point this at an httptest.Server that writes PUT
	// bodies back into the Fake via Put.
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
	ttls    map[string]time.Time
}

// NewFake returns an empty in-memory store.
func NewFake() *Fake {
	return &Fake{BaseURL: "https://fake.local", objects: map[string][]byte{}, ttls: map[string]time.Time{}}
}

// Put directly seeds an object, simulating a client's PUT to a presigned
// URL without actually serving HTTP.
func (f *Fake) Put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
}

// Get reads back a seeded object, simulating a client's GET against a
// presigned URL.
func (f *Fake) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}

func (f *Fake) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = time.Now().Add(ttl)
	return fmt.Sprintf("%s/put/%s?expires=%d", f.BaseURL, key, f.ttls[key].Unix()), nil
}

func (f *Fake) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = time.Now().Add(ttl)
	return fmt.Sprintf("%s/get/%s?expires=%d", f.BaseURL, key, f.ttls[key].Unix()), nil
}

func (f *Fake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil // absence is not an error
}

func (f *Fake) Head(_ context.Context, key string) (HeadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return HeadResult{Exists: false}, nil
	}
	return HeadResult{Exists: true, SizeBytes: int64(len(b))}, nil
}

// URLExpired reports whether a previously minted URL's ttl has passed.
// Tests use it to assert that signed URLs stop working after their ttl.
func (f *Fake) URLExpired(key string, at time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	deadline, ok := f.ttls[key]
	if !ok {
		return false
	}
	return at.After(deadline)
}

var _ Store = (*Fake)(nil)
