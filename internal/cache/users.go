package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/redis/go-redis/v9"
)

// Users caches resolved user records by id. Records never carry a
// password hash. Failures degrade to a miss.
type Users interface {
	GetUser(ctx context.Context, id string) (user.User, bool)
	SetUser(ctx context.Context, u user.User)
	DeleteUser(ctx context.Context, id string)
}

type MemoryUsers struct {
	c *Cache[user.User]
}

func NewMemoryUsers(ttl time.Duration) *MemoryUsers {
	return &MemoryUsers{c: New[user.User](ttl)}
}

func (m *MemoryUsers) GetUser(_ context.Context, id string) (user.User, bool) {
	return m.c.Get(id)
}

func (m *MemoryUsers) SetUser(_ context.Context, u user.User) {
	u.PasswordHash = ""
	m.c.Set(u.ID, u)
}

func (m *MemoryUsers) DeleteUser(_ context.Context, id string) {
	m.c.Delete(id)
}

const redisKeyPrefix = "accounthub:user:"

// RedisUsers shares the cache across instances so an admin delete or
// role change on one node is visible on every node.
type RedisUsers struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisUsers(rdb *redis.Client, ttl time.Duration) *RedisUsers {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisUsers{rdb: rdb, ttl: ttl}
}

func (r *RedisUsers) GetUser(ctx context.Context, id string) (user.User, bool) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Default().WarnContext(ctx, "user cache get failed", "err", err)
		}
		return user.User{}, false
	}

	var u user.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return user.User{}, false
	}
	return u, true
}

func (r *RedisUsers) SetUser(ctx context.Context, u user.User) {
	// PasswordHash is tagged json:"-" and never serialized
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}

	if err := r.rdb.Set(ctx, redisKeyPrefix+u.ID, raw, r.ttl).Err(); err != nil {
		slog.Default().WarnContext(ctx, "user cache set failed", "err", err)
	}
}

func (r *RedisUsers) DeleteUser(ctx context.Context, id string) {
	if err := r.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		slog.Default().WarnContext(ctx, "user cache delete failed", "err", err)
	}
}
