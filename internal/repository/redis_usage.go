package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// usage hashes outlive their day so a late read still sees the total.
const usageTTL = 48 * time.Hour

// RedisUsageRepo keeps daily risk counters in one hash per address and UTC day.
type RedisUsageRepo struct {
	client *RedisClient
	now    func() time.Time
}

func NewRedisUsageRepo(client *RedisClient) *RedisUsageRepo {
	return &RedisUsageRepo{client: client, now: time.Now}
}

func (r *RedisUsageRepo) makeKey(address string) string {
	return r.client.key("risk", strings.ToLower(address), r.now().UTC().Format(usageDateLayout))
}

func (r *RedisUsageRepo) GetDailyUsage(ctx context.Context, address string) (int, float64, error) {
	vals, err := r.client.Client.HMGet(ctx, r.makeKey(address), "orders", "volume").Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	orders, volume := 0, 0.0
	if s, ok := vals[0].(string); ok {
		if parsed, err := strconv.Atoi(s); err == nil {
			orders = parsed
		}
	}
	if s, ok := vals[1].(string); ok {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			volume = parsed
		}
	}
	return orders, volume, nil
}

func (r *RedisUsageRepo) AddDailyUsage(ctx context.Context, address string, orders int, amount float64) error {
	key := r.makeKey(address)
	_, err := r.client.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if orders != 0 {
			p.HIncrBy(ctx, key, "orders", int64(orders))
		}
		if amount != 0 {
			p.HIncrByFloat(ctx, key, "volume", amount)
		}
		p.Expire(ctx, key, usageTTL)
		return nil
	})
	return err
}
