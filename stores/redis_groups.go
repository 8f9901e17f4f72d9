package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisGroupIndex keeps the principal->groups index in Redis sets
// (key: usergroups:{userID}). Plug it into SQLPolicyStore to avoid
// table scans on membership lookups.
type RedisGroupIndex struct {
	client *redis.Client
	keyFmt string
}

func NewRedisGroupIndex(client *redis.Client) *RedisGroupIndex {
	return &RedisGroupIndex{client: client, keyFmt: "usergroups:%s"}
}

func (r *RedisGroupIndex) key(userID string) string {
	return fmt.Sprintf(r.keyFmt, userID)
}

func (r *RedisGroupIndex) Add(ctx context.Context, userID, groupID string) error {
	return r.client.SAdd(ctx, r.key(userID), groupID).Err()
}

func (r *RedisGroupIndex) Remove(ctx context.Context, userID, groupID string) error {
	return r.client.SRem(ctx, r.key(userID), groupID).Err()
}

func (r *RedisGroupIndex) Groups(ctx context.Context, userID string) ([]string, error) {
	return r.client.SMembers(ctx, r.key(userID)).Result()
}
