package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/envutil"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

// InterventionCache is the best-effort fast path for the active
// intervention lookup. The store's unique index stays the source of
// truth; a cache error is always treated as a miss by callers.
type InterventionCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewInterventionCache(log *logger.Logger) (*InterventionCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &InterventionCache{
		log:    log.With("service", "RedisInterventionCache"),
		rdb:    rdb,
		prefix: envutil.String("REDIS_KEY_PREFIX", "coach"),
	}, nil
}

func (c *InterventionCache) key(userID uuid.UUID, interventionType string) string {
	return fmt.Sprintf("%s:iv:%s:%s", c.prefix, userID, interventionType)
}

func (c *InterventionCache) GetActive(ctx context.Context, userID uuid.UUID, interventionType string) (*types.Intervention, error) {
	if c == nil || c.rdb == nil {
		return nil, fmt.Errorf("intervention cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, c.key(userID, interventionType)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var iv types.Intervention
	if err := json.Unmarshal(raw, &iv); err != nil {
		// A corrupt entry is a miss, not an error worth surfacing.
		c.log.Warn("bad cached intervention payload", "error", err)
		return nil, nil
	}
	return &iv, nil
}

func (c *InterventionCache) SetActive(ctx context.Context, iv *types.Intervention, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("intervention cache not initialized")
	}
	if iv == nil || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(iv)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(iv.UserID, iv.InterventionType), raw, ttl).Err()
}

func (c *InterventionCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
