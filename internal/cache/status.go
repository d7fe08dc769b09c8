// Package cache keeps a short-lived copy of order status for polling
// clients. Mongo stays the source of truth; a miss falls back to the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyOrderStatus = "%s:order_status:%s"

	// TTLStatus bounds how stale a cached status can be.
	TTLStatus = 5 * time.Minute
)

// OrderStatus is the cached view of an order.
type OrderStatus struct {
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StatusCache stores order status views.
type StatusCache interface {
	Put(ctx context.Context, orderID string, view OrderStatus) error
	Get(ctx context.Context, orderID string) (OrderStatus, bool, error)
}

// RedisStatusCache owns its client; Close releases it.
type RedisStatusCache struct {
	client    *redis.Client
	namespace string
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func NewRedisStatusCache(client *redis.Client, namespace string) *RedisStatusCache {
	return &RedisStatusCache{client: client, namespace: namespace}
}

func (c *RedisStatusCache) key(orderID string) string {
	return StatusKey(c.namespace, orderID)
}

// StatusKey is the redis key holding orderID's status.
func StatusKey(namespace, orderID string) string {
	return fmt.Sprintf(keyOrderStatus, namespace, orderID)
}

func (c *RedisStatusCache) Put(ctx context.Context, orderID string, view OrderStatus) error {
	b, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(orderID), b, TTLStatus).Err()
}

func (c *RedisStatusCache) Get(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	raw, err := c.client.Get(ctx, c.key(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, err
	}
	var view OrderStatus
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return OrderStatus{}, false, err
	}
	return view, true, nil
}

func (c *RedisStatusCache) Close() error {
	return c.client.Close()
}

// Nop never caches.
type Nop struct{}

func (Nop) Put(context.Context, string, OrderStatus) error { return nil }

func (Nop) Get(context.Context, string) (OrderStatus, bool, error) {
	return OrderStatus{}, false, nil
}
