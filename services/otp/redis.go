package otpsvc

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/newedu/guardian/core"
)

const keyPrefix = "otp:"

type redisStore struct {
	client *redis.Client
}

var _ core.OTPStore = (*redisStore)(nil)

// NewRedisStore returns an OTPStore backed by redis. Expiry is handled by
// the key TTL; a successful check deletes the key so codes are single-use.
func NewRedisStore(conf *core.Config) *redisStore {
	return &redisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		}),
	}
}

func (s redisStore) Store(ctx context.Context, key, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, code, ttl).Err(); err != nil {
		return errors.Wrap(err, "storing verification code")
	}
	return nil
}

func (s redisStore) Check(ctx context.Context, key, code string) (bool, error) {
	stored, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, core.ErrOTPNotFound
		}
		return false, errors.Wrap(err, "checking verification code")
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return false, errors.Wrap(err, "consuming verification code")
	}
	return true, nil
}

func (s redisStore) Close() error {
	return s.client.Close()
}
