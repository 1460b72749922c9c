package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupSet tracks notification ids in Redis. SET NX with a TTL gives the
// set its bounded retention and makes MarkSeen atomic across engine replicas.
type RedisDedupSet struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisDedupSet creates a dedup set over the given client.
func NewRedisDedupSet(client *redis.Client, retention time.Duration) *RedisDedupSet {
	return &RedisDedupSet{
		client:    client,
		prefix:    "entitlements:billing:seen:",
		retention: retention,
	}
}

func (s *RedisDedupSet) MarkSeen(ctx context.Context, id string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+id, 1, s.retention).Result()
}
