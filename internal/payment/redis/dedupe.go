package redis

import (
	"context"
	"time"

	"ms-payments/internal/logger"

	"github.com/go-redis/redis/v8"
)

const webhookEventKeyPrefix = "webhook_event:"

type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		Client: client,
		TTL:    ttl,
		Logger: log,
	}
}

// FirstDelivery marks a webhook event id as processed and reports whether
// this is the first delivery inside the TTL window. Stripe redelivers events
// on non-2xx responses; a duplicate can be acknowledged without re-running
// the update since the update is idempotent anyway.
func (r *Redis) FirstDelivery(ctx context.Context, eventID string) (bool, error) {
	key := webhookEventKeyPrefix + eventID
	first, err := r.Client.SetNX(ctx, key, "1", r.TTL).Result()
	if err != nil {
		return false, err
	}
	if !first {
		r.Logger.Debug("REDIS", "Event "+eventID+" already marked as processed")
	}
	return first, nil
}
