package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList remembers access token ids (jti) that were explicitly
// revoked before their natural expiry.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationList stores one key per revoked jti, expiring together
// with the token it blocks. A nil client makes every call a no-op.
type RedisRevocationList struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRevocationList(rdb *redis.Client, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = "revoked-jti"
	}
	return &RedisRevocationList{rdb: rdb, prefix: prefix, now: time.Now}
}

func (l *RedisRevocationList) key(jti string) string { return l.prefix + ":" + jti }

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	if l == nil || l.rdb == nil || jti == "" {
		return nil
	}
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	return l.rdb.Set(ctx, l.key(jti), 1, ttl).Err()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if l == nil || l.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := l.rdb.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
