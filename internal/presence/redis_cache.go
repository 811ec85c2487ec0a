package presence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const onlineSetKey = "presence:online"

// RedisCache keeps the online set in a Redis set shared by all instances.
type RedisCache struct {
	client redis.Cmdable
	key    string
}

// NewRedisCache builds a cache on top of an existing client.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client, key: onlineSetKey}
}

func (c *RedisCache) MarkOnline(ctx context.Context, userID string) error {
	return c.client.SAdd(ctx, c.key, userID).Err()
}

func (c *RedisCache) MarkOffline(ctx context.Context, userID string) error {
	return c.client.SRem(ctx, c.key, userID).Err()
}

func (c *RedisCache) IsOnline(ctx context.Context, userID string) (bool, error) {
	return c.client.SIsMember(ctx, c.key, userID).Result()
}

// OnlineAmong checks every id against the online set in one round trip and
// keeps the input order.
func (c *RedisCache) OnlineAmong(ctx context.Context, userIDs []string) ([]string, error) {
	online := []string{}
	if len(userIDs) == 0 {
		return online, nil
	}
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	flags, err := c.client.SMIsMember(ctx, c.key, members...).Result()
	if err != nil {
		return nil, err
	}
	for i, ok := range flags {
		if ok {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}
