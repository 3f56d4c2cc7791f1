package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/restore_stock.lua
var restoreStockScript string

// Cached stock precheck results
const (
	StockUnknown      = -1
	StockInsufficient = 0
	StockReserved     = 1
)

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	restoreScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		restoreScript: redis.NewScript(restoreStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// ReserveStock runs the cached fast-fail precheck. Returns StockReserved,
// StockInsufficient, or StockUnknown when the cache has no entry.
func (c *Client) ReserveStock(ctx context.Context, productID int64, qty int) (int, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(productID)}, qty).Result()
	if err != nil {
		return StockUnknown, fmt.Errorf("reserve stock script failed: %w", err)
	}

	status, ok := result.(int64)
	if !ok {
		return StockUnknown, fmt.Errorf("unexpected script result type %T", result)
	}
	return int(status), nil
}

// RestoreStock increments the cached count if present
func (c *Client) RestoreStock(ctx context.Context, productID int64, qty int) error {
	_, err := c.restoreScript.Run(ctx, c.rdb, []string{stockKey(productID)}, qty).Result()
	if err != nil {
		return fmt.Errorf("restore stock script failed: %w", err)
	}
	return nil
}

// PrimeStock overwrites the cached count with the authoritative level
func (c *Client) PrimeStock(ctx context.Context, productID int64, stock int) error {
	return c.rdb.Set(ctx, stockKey(productID), stock, 0).Err()
}

// GetSession resolves an opaque session token to the stored identity.
// A missing token yields (nil, nil).
func (c *Client) GetSession(ctx context.Context, token string) (*models.SessionUser, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf("session:%s", token)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user models.SessionUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("malformed session payload: %w", err)
	}
	return &user, nil
}

// SetIdempotencyKey stores an idempotency key with TTL. Returns false when the
// key already existed.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}

// DeleteIdempotencyKey removes an idempotency key, used when the guarded
// operation failed and should be retryable
func (c *Client) DeleteIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}

// AcquireLock acquires a distributed lease, used to keep the deadline sweep
// single-flight across instances
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lease
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
