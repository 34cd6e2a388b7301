package processor

import (
	"github.com/spf13/cast"

	"github.com/utrading/utrading-portfolio/internal/dao"
	"github.com/utrading/utrading-portfolio/internal/models"
)

// TradeRowItem 投影后的交易行
type TradeRowItem struct {
	Table string
	Row   map[string]any
}

func (i TradeRowItem) TableName() string {
	return i.Table
}

func (i TradeRowItem) DedupKey() string {
	return "tr:" + cast.ToString(i.Row["trade_id"])
}

func collect[T any](items []BatchItem) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if v, ok := item.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// DefaultWriters 交易表与各镜像表的写入函数
func DefaultWriters(tradeTable string) map[string]WriteFunc {
	return map[string]WriteFunc{
		tradeTable: func(items []BatchItem) dao.WriteStats {
			rows := make([]map[string]any, 0, len(items))
			for _, it := range collect[TradeRowItem](items) {
				rows = append(rows, it.Row)
			}
			return dao.Trade().InsertIgnore(tradeTable, rows)
		},
		models.HlPosition{}.TableName(): func(items []BatchItem) dao.WriteStats {
			return dao.Mirror().UpsertHlPositions(collect[*models.HlPosition](items))
		},
		models.PolymarketPosition{}.TableName(): func(items []BatchItem) dao.WriteStats {
			return dao.Mirror().UpsertPolymarketPositions(collect[*models.PolymarketPosition](items))
		},
		models.PolymarketClosedPosition{}.TableName(): func(items []BatchItem) dao.WriteStats {
			return dao.Mirror().UpsertPolymarketClosedPositions(collect[*models.PolymarketClosedPosition](items))
		},
		models.PolymarketTrade{}.TableName(): func(items []BatchItem) dao.WriteStats {
			return dao.Mirror().InsertPolymarketTrades(collect[*models.PolymarketTrade](items))
		},
		models.PolymarketActivity{}.TableName(): func(items []BatchItem) dao.WriteStats {
			return dao.Mirror().InsertPolymarketActivity(collect[*models.PolymarketActivity](items))
		},
		models.FantasyHolding{}.TableName(): func(items []BatchItem) dao.WriteStats {
			return dao.Mirror().UpsertFantasyHoldings(collect[*models.FantasyHolding](items))
		},
	}
}
