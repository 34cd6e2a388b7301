package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// SeenCache 已同步 trade_id 缓存，使用 go-cache 实现 TTL 自动过期
// watch 模式下避免每轮都全量读取交易表
type SeenCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSeenCache 清理间隔自动设为 2×TTL
func NewSeenCache(ttl time.Duration) *SeenCache {
	return &SeenCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

func (c *SeenCache) IsSeen(tradeID string) bool {
	_, exists := c.cache.Get(tradeID)
	return exists
}

func (c *SeenCache) Mark(tradeID string) {
	c.cache.SetDefault(tradeID, struct{}{})
}

func (c *SeenCache) MarkAll(ids map[string]struct{}) {
	for id := range ids {
		c.Mark(id)
	}
}

func (c *SeenCache) Len() int {
	return c.cache.ItemCount()
}

// LoadFromDB 从交易表加载已同步的 trade_id
func (c *SeenCache) LoadFromDB(ctx context.Context, lister TradeIDLister, table string) error {
	if lister == nil {
		return fmt.Errorf("lister is nil")
	}

	ids, err := lister.ListTradeIDs(ctx, table)
	if err != nil {
		return fmt.Errorf("load trade ids failed: %w", err)
	}
	c.MarkAll(ids)

	logger.Info().
		Str("table", table).
		Int("count", len(ids)).
		Dur("ttl", c.ttl).
		Msg("loaded synced trade ids from database")

	return nil
}

// Stats 获取统计信息
func (c *SeenCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"item_count":  c.cache.ItemCount(),
		"ttl_minutes": c.ttl.Minutes(),
	}
}
