package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/restore_held_order.lua
var restoreHeldOrderScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

const catalogKey = "catalog:items"

// ErrHeldOrdersChanged is returned when the held order list changed between
// reading an entry and restoring it
var ErrHeldOrdersChanged = errors.New("held orders changed during restore")

type Client struct {
	rdb           *redis.Client
	sessionTTL    time.Duration
	restoreScript *redis.Script
	unlockScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded. Session keys
// (cart and held orders) expire after sessionTTL of inactivity.
func NewClient(addr, password string, db int, sessionTTL time.Duration) (*Client, error) {
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

	return NewClientWithRedis(rdb, sessionTTL), nil
}

// NewClientWithRedis wraps an existing go-redis client
func NewClientWithRedis(rdb *redis.Client, sessionTTL time.Duration) *Client {
	return &Client{
		rdb:           rdb,
		sessionTTL:    sessionTTL,
		restoreScript: redis.NewScript(restoreHeldOrderScript),
		unlockScript:  redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("session:%s:cart", sessionID)
}

func heldOrdersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:held_orders", sessionID)
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("lock:session:%s", sessionID)
}

// LoadCart returns the session cart, or a new empty cart
func (c *Client) LoadCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	raw, err := c.rdb.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	crt := cart.New()
	if err := json.Unmarshal(raw, crt); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	if crt.Lines == nil {
		crt.Lines = []cart.Line{}
	}
	return crt, nil
}

// SaveCart stores the session cart and refreshes its TTL
func (c *Client) SaveCart(ctx context.Context, sessionID string, crt *cart.Cart) error {
	raw, err := json.Marshal(crt)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	return c.rdb.Set(ctx, cartKey(sessionID), raw, c.sessionTTL).Err()
}

// HoldOrder pushes a held order at the end of the session list and stores
// active as the session cart in one MULTI/EXEC
func (c *Client) HoldOrder(ctx context.Context, sessionID string, order cart.HeldOrder, active *cart.Cart) error {
	rawOrder, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode held order: %w", err)
	}
	rawCart, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	key := heldOrdersKey(sessionID)
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, rawOrder)
	pipe.Expire(ctx, key, c.sessionTTL)
	pipe.Set(ctx, cartKey(sessionID), rawCart, c.sessionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// ListHeldOrders returns the held orders of a session in hold order
func (c *Client) ListHeldOrders(ctx context.Context, sessionID string) ([]cart.HeldOrder, error) {
	values, err := c.rdb.LRange(ctx, heldOrdersKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	orders := make([]cart.HeldOrder, 0, len(values))
	for _, v := range values {
		var order cart.HeldOrder
		if err := json.Unmarshal([]byte(v), &order); err != nil {
			return nil, fmt.Errorf("failed to decode held order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// RestoreHeldOrder removes the held order at index and stores it as the
// session cart in one script call. It returns nil when there is no entry at
// index.
func (c *Client) RestoreHeldOrder(ctx context.Context, sessionID string, index int) (*cart.HeldOrder, error) {
	if index < 0 {
		return nil, nil
	}

	key := heldOrdersKey(sessionID)
	raw, err := c.rdb.LIndex(ctx, key, int64(index)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read held order: %w", err)
	}

	var order cart.HeldOrder
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, fmt.Errorf("failed to decode held order: %w", err)
	}

	active := cart.New()
	active.Load(order)
	rawCart, err := json.Marshal(active)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart: %w", err)
	}

	keys := []string{key, cartKey(sessionID)}
	restored, err := c.restoreScript.Run(ctx, c.rdb, keys,
		index, raw, rawCart, c.sessionTTL.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("restore held order script failed: %w", err)
	}
	if restored == 0 {
		return nil, ErrHeldOrdersChanged
	}
	return &order, nil
}

// GetCatalog returns the cached catalog view
func (c *Client) GetCatalog(ctx context.Context) ([]models.CatalogItem, bool, error) {
	raw, err := c.rdb.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var items []models.CatalogItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return items, true, nil
}

// SetCatalog caches the catalog view
func (c *Client) SetCatalog(ctx context.Context, items []models.CatalogItem, ttl time.Duration) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return c.rdb.Set(ctx, catalogKey, raw, ttl).Err()
}

// InvalidateCatalog drops the cached catalog view
func (c *Client) InvalidateCatalog(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogKey).Err()
}

// AcquireSessionLock takes the session lock. It returns the owner token to
// pass to ReleaseSessionLock, or "" when the lock is held elsewhere.
func (c *Client) AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(sessionID), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseSessionLock releases the session lock if token still owns it
func (c *Client) ReleaseSessionLock(ctx context.Context, sessionID, token string) error {
	_, err := c.unlockScript.Run(ctx, c.rdb, []string{lockKey(sessionID)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
