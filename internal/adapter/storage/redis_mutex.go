package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

const (
	lockKeyPrefix     = "lock:"
	lockRetryInterval = 20 * time.Millisecond
)

// Only the holder's token may delete the key, so a lease that expired and
// was re-acquired by someone else is never released by the old holder.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisMutex is a lease-based advisory lock. The lease bounds worst-case
// unavailability after a holder crash; a brief two-holder overlap after
// lease expiry is possible and tolerated, since the quantity ledger is the
// correctness gate.
type RedisMutex struct {
	client *redis.Client
}

func NewRedisMutex(client *redis.Client) *RedisMutex {
	return &RedisMutex{client: client}
}

func (m *RedisMutex) Acquire(ctx context.Context, key string, wait, lease time.Duration) (port.Unlocker, error) {
	fullKey := lockKeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := m.client.SetNX(ctx, fullKey, token, lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &redisLockHandle{client: m.client, key: fullKey, token: token}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, domain.ErrLockBusy
		}

		sleep := lockRetryInterval
		if remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

type redisLockHandle struct {
	client *redis.Client
	key    string
	token  string
}

func (h *redisLockHandle) Release(ctx context.Context) error {
	return releaseLockScript.Run(ctx, h.client, []string{h.key}, h.token).Err()
}
