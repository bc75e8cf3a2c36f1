package caching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "servicehub"

// CacheService holds the short-lived auth state that does not belong in
// Postgres: failed-login counters and one-shot email verification tokens.
type CacheService interface {
	// Login throttling
	LoginFailures(ctx context.Context, email string) (int, time.Duration, error)
	RecordLoginFailure(ctx context.Context, email string, window time.Duration) (int, error)
	ResetLoginFailures(ctx context.Context, email string) error

	// Email verification
	SaveVerificationToken(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string) (uuid.UUID, bool, error)

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisClient accepts either host:port or a redis:// URL.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if password != "" {
			opts.Password = password
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), nil
}

func NewRedisCacheService(client redis.UniversalClient, logger *zap.Logger) CacheService {
	return &redisCacheService{client: client, logger: logger}
}

func loginKey(email string) string {
	return fmt.Sprintf("%s:login_failures:%s", keyPrefix, strings.ToLower(strings.TrimSpace(email)))
}

func verificationKey(tokenHash string) string {
	return fmt.Sprintf("%s:email_verification:%s", keyPrefix, tokenHash)
}

// LoginFailures returns the current failure count and how long until the window resets.
func (r *redisCacheService) LoginFailures(ctx context.Context, email string) (int, time.Duration, error) {
	key := loginKey(email)
	count, err := r.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return count, 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

// RecordLoginFailure bumps the counter. The window starts at the first failure.
func (r *redisCacheService) RecordLoginFailure(ctx context.Context, email string, window time.Duration) (int, error) {
	key := loginKey(email)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := int(incr.Val())
	if count > 1 {
		r.logger.Debug("repeated login failure", zap.Int("count", count))
	}
	return count, nil
}

func (r *redisCacheService) ResetLoginFailures(ctx context.Context, email string) error {
	return r.client.Del(ctx, loginKey(email)).Err()
}

func (r *redisCacheService) SaveVerificationToken(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	return r.client.Set(ctx, verificationKey(tokenHash), userID.String(), ttl).Err()
}

// ConsumeVerificationToken reads and deletes the token in one round trip, so a
// token verifies at most once.
func (r *redisCacheService) ConsumeVerificationToken(ctx context.Context, tokenHash string) (uuid.UUID, bool, error) {
	val, err := r.client.GetDel(ctx, verificationKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		r.logger.Warn("corrupt verification token entry", zap.Error(err))
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
