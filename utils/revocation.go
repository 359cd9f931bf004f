package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "ledger:jwt:revoked:"

// RevocationList remembers logged out tokens until they would have expired
// anyway. Entries are keyed by the token digest so raw tokens never reach Redis.
type RevocationList struct {
	redis func() *redis.Client
	now   func() time.Time

	mu    sync.Mutex
	local map[string]time.Time
}

// NewRevocationList creates a list backed by Redis when rc returns a client.
func NewRevocationList(rc func() *redis.Client) *RevocationList {
	return &RevocationList{redis: rc, now: time.Now, local: map[string]time.Time{}}
}

var revoked = NewRevocationList(GetRedis)

// RevokeToken rejects token on every instance until expiresAt. The identity
// service calls it through the internal API on logout.
func RevokeToken(token string, expiresAt time.Time) { revoked.Revoke(token, expiresAt) }

// IsTokenRevoked reports whether token was revoked and has not expired yet.
func IsTokenRevoked(token string) bool { return revoked.Contains(token) }

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke records token until expiresAt. Already expired tokens are ignored.
func (r *RevocationList) Revoke(token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return
	}
	key := tokenDigest(token)
	if rc := r.redis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := rc.Set(ctx, revokedKeyPrefix+key, "1", ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("revoke token in redis failed, keeping it locally: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, exp := range r.local {
		if !now.Before(exp) {
			delete(r.local, k)
		}
	}
	r.local[key] = expiresAt
}

// Contains checks Redis first and then the local fallback. Redis errors fail open.
func (r *RevocationList) Contains(token string) bool {
	key := tokenDigest(token)
	if rc := r.redis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, revokedKeyPrefix+key).Result()
		if err == nil && n > 0 {
			return true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.local[key]
	if !ok {
		return false
	}
	if !r.now().Before(exp) {
		delete(r.local, key)
		return false
	}
	return true
}

// Len is the number of entries held locally, expired ones included until pruned.
func (r *RevocationList) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.local)
}
