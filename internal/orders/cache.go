package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/adamdasovich/goldventure-sub001/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// StatusView is the cached projection of an order's lifecycle position.
type StatusView struct {
	OrderID        string `json:"order_id"`
	Status         Status `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Version        int64  `json:"version"`
}

func viewOf(o *Order) StatusView {
	return StatusView{OrderID: o.ID, Status: o.Status, TrackingNumber: o.TrackingNumber, Version: o.Version}
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (StatusView, bool, error)
	// Set never replaces a cached view of the same or a newer version.
	Set(ctx context.Context, v StatusView) error
	Invalidate(ctx context.Context, orderID string) error
}

type RedisStatusCache struct {
	Redis redis.Cmdable
}

// KEYS[1] view key; ARGV[1] encoded view, ARGV[2] its version, ARGV[3] ttl ms.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, v = pcall(cjson.decode, cur)
	if ok and tonumber(v.version) and tonumber(v.version) >= tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func (c *RedisStatusCache) key(id string) string { return fmt.Sprintf(redisx.KeyOrderStatus, id) }

func (c *RedisStatusCache) Get(ctx context.Context, orderID string) (StatusView, bool, error) {
	b, err := c.Redis.Get(ctx, c.key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusView{}, false, nil
	}
	if err != nil {
		return StatusView{}, false, err
	}
	var v StatusView
	if err := json.Unmarshal(b, &v); err != nil {
		return StatusView{}, false, err
	}
	return v, true, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, v StatusView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return setIfNewer.Run(ctx, c.Redis, []string{c.key(v.OrderID)},
		b, v.Version, redisx.TTLStatusCache.Milliseconds()).Err()
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.Redis.Del(ctx, c.key(orderID)).Err()
}

// MemoryStatusCache is used by tests and single-process runs.
type MemoryStatusCache struct {
	mu    sync.Mutex
	views map[string]StatusView
}

func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{views: make(map[string]StatusView)}
}

func (c *MemoryStatusCache) Get(_ context.Context, orderID string) (StatusView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[orderID]
	return v, ok, nil
}

func (c *MemoryStatusCache) Set(_ context.Context, v StatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.views[v.OrderID]; ok && cur.Version >= v.Version {
		return nil
	}
	c.views[v.OrderID] = v
	return nil
}

func (c *MemoryStatusCache) Invalidate(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, orderID)
	return nil
}
