package storage

import (
	"context"
	"time"

	"PPAdmin/tools/errs"

	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:<user>, value is the node id, TTL bounds how
// long a crashed node can leave a user online.
func presenceKey(user string) string { return "im:presence:" + user }

// last seen key: im:last_seen:<user>, RFC3339 timestamp, no TTL.
func lastSeenKey(user string) string { return "im:last_seen:" + user }

// PresenceMirror copies presence transitions into Redis for services that
// do not hold the device sessions.
type PresenceMirror struct {
	rdb    redis.Cmdable
	nodeID string
	ttl    time.Duration
}

func NewPresenceMirror(rdb redis.Cmdable, nodeID string, ttl time.Duration) *PresenceMirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &PresenceMirror{rdb: rdb, nodeID: nodeID, ttl: ttl}
}

// Online sets the user online and renews the TTL.
func (p *PresenceMirror) Online(ctx context.Context, user string) error {
	return errs.Wrap(p.rdb.Set(ctx, presenceKey(user), p.nodeID, p.ttl).Err())
}

// Offline drops the presence key and records lastSeen.
func (p *PresenceMirror) Offline(ctx context.Context, user string, lastSeen time.Time) error {
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKey(user))
		pipe.Set(ctx, lastSeenKey(user), lastSeen.UTC().Format(time.RFC3339), 0)
		return nil
	})
	return errs.Wrap(err)
}
