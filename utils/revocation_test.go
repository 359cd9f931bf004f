package utils

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newLocalRevocationList(now *time.Time) *RevocationList {
	r := NewRevocationList(func() *redis.Client { return nil })
	r.now = func() time.Time { return *now }
	return r
}

func TestRevocationListFallsBackToMemory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newLocalRevocationList(&now)

	r.Revoke("tok-1", now.Add(time.Minute))
	if !r.Contains("tok-1") {
		t.Error("revoked token not reported")
	}
	if r.Contains("tok-2") {
		t.Error("unknown token reported")
	}
	r.Revoke("tok-3", now.Add(-time.Second))
	if r.Contains("tok-3") || r.Len() != 1 {
		t.Errorf("expired revocation kept, len = %d", r.Len())
	}

	now = now.Add(2 * time.Minute)
	if r.Contains("tok-1") {
		t.Error("token still revoked after its expiry")
	}
	if r.Len() != 0 {
		t.Errorf("len = %d after expiry, want 0", r.Len())
	}
}

func TestRevocationListPrunesOnRevoke(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newLocalRevocationList(&now)
	for _, tok := range []string{"a", "b", "c"} {
		r.Revoke(tok, now.Add(time.Minute))
	}
	now = now.Add(time.Hour)
	r.Revoke("d", now.Add(time.Minute))
	if r.Len() != 1 {
		t.Fatalf("len = %d, want only the fresh entry", r.Len())
	}
}

func TestRevocationKeysAreDigests(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newLocalRevocationList(&now)
	r.Revoke("header.payload.signature", now.Add(time.Minute))
	for k := range r.local {
		if k == "header.payload.signature" || len(k) != 64 {
			t.Fatalf("stored key %q, want a sha256 hex digest", k)
		}
	}
}

func TestPackageRevocationHelpers(t *testing.T) {
	RevokeToken("pkg-tok", time.Now().Add(time.Minute))
	if !IsTokenRevoked("pkg-tok") {
		t.Error("RevokeToken did not take effect")
	}
}
