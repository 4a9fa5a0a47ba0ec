package passwordhash

import (
	"context"
	"testing"
	"time"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h, err := Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !Verify("hunter2", h) {
		t.Error("Verify(correct password) = false, want true")
	}
	if Verify("wrong", h) {
		t.Error("Verify(wrong password) = true, want false")
	}
}

func TestHashProducesDifferentSaltEachTime(t *testing.T) {
	h1, _ := Hash("same-password")
	h2, _ := Hash("same-password")
	if h1 == h2 {
		t.Error("two hashes of the same password must differ (random salt)")
	}
	if !Verify("same-password", h1) || !Verify("same-password", h2) {
		t.Error("both hashes must still verify the original password")
	}
}

func TestVerifyRejectsMalformedEncoding(t *testing.T) {
	if Verify("anything", "not-a-valid-hash") {
		t.Error("Verify on malformed hash must return false, not panic or succeed")
	}
}

func TestPoolHashAndVerify(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := pool.Hash(ctx, "hunter2")
	if err != nil {
		t.Fatalf("pool.Hash: %v", err)
	}

	ok, err := pool.Verify(ctx, "hunter2", h)
	if err != nil {
		t.Fatalf("pool.Verify: %v", err)
	}
	if !ok {
		t.Error("pool.Verify(correct) = false, want true")
	}

	ok, err = pool.Verify(ctx, "wrong", h)
	if err != nil {
		t.Fatalf("pool.Verify: %v", err)
	}
	if ok {
		t.Error("pool.Verify(wrong) = true, want false")
	}
}
