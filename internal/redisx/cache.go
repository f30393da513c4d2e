package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

// OrderCache keeps read-through copies of orders. Redis is never the source
// of truth. Each entry is a hash of the order JSON and its version
// (UpdatedAt in microseconds); a write with an older version is dropped.
type OrderCache struct{ RDB redis.Cmdable }

// removedVersion outranks every real version (2^53-1 stays exact in Lua).
const removedVersion int64 = 1<<53 - 1

var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (c *OrderCache) Get(ctx context.Context, id string) (orders.Order, bool, error) {
	s, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrder, id), "body").Result()
	if errors.Is(err, redis.Nil) || err == nil && s == "" {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	var o orders.Order
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

// Set stores o unless a newer copy, or a removal marker, is already cached.
func (c *OrderCache) Set(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.store(ctx, o.ID, o.UpdatedAt.UnixMicro(), string(b))
}

// Invalidate leaves a removal marker for TTLOrderCache so reads that started
// before the removal cannot cache the order again.
func (c *OrderCache) Invalidate(ctx context.Context, id string) error {
	return c.store(ctx, id, removedVersion, "")
}

func (c *OrderCache) store(ctx context.Context, id string, version int64, body string) error {
	return setIfNewer.Run(ctx, c.RDB, []string{fmt.Sprintf(KeyOrder, id)},
		version, body, TTLOrderCache.Milliseconds()).Err()
}

// Idempotency maps Idempotency-Key header values to created order ids.
type Idempotency struct{ RDB redis.Cmdable }

func (i *Idempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	id, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Remember keeps the first order id stored for key.
func (i *Idempotency) Remember(ctx context.Context, key, orderID string) error {
	return i.RDB.SetNX(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

// Dedup answers whether an event id is seen for the first time by service.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
}

func (d *Dedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID), "1", TTLDedup).Result()
}
