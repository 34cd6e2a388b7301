package cache

import "context"

// SeenCacheInterface 已同步交易缓存接口
type SeenCacheInterface interface {
	IsSeen(tradeID string) bool
	Mark(tradeID string)
	MarkAll(ids map[string]struct{})
	LoadFromDB(ctx context.Context, lister TradeIDLister, table string) error
	Stats() map[string]interface{}
}

// TradeIDLister 读取已持久化的 trade_id
type TradeIDLister interface {
	ListTradeIDs(ctx context.Context, table string) (map[string]struct{}, error)
}
