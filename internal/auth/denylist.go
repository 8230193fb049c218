package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "auth:denylist:"

// Denylist marks revoked session ids in redis until their tokens would
// have expired anyway. A token whose session id is listed is rejected even
// though its signature still verifies.
type Denylist struct {
	rdb *redis.Client
}

// NewDenylist constructs a Denylist.
func NewDenylist(rdb *redis.Client) *Denylist {
	return &Denylist{rdb: rdb}
}

// Revoke lists the session id for ttl. A non-positive ttl is a no-op since
// the token is already expired.
func (d *Denylist) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, denylistPrefix+sessionID, "1", ttl).Err()
}

// IsRevoked reports whether the session id has been listed.
func (d *Denylist) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, denylistPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
