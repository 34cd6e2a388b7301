package trade

import (
	"github.com/utrading/utrading-portfolio/internal/fill"
)

// Trade 一次平仓对应的完整交易记录，生成后不再修改
type Trade struct {
	Wallet      string
	Coin        string
	Side        fill.Side
	Size        float64  // 本次平仓匹配的数量
	EntryPrice  *float64 // 无匹配开仓时为 nil
	ExitPrice   float64
	RealizedPnl float64 // 来自交易所 closedPnl
	Fees        float64 // 分摊的开仓手续费 + 平仓手续费
	OpenedAt    *int64  // ms
	ClosedAt    int64   // ms
	DurationMs  *int64
	TradeID     string // 平仓成交 id，去重键
}

// Standalone 没有匹配到开仓记录
func (t Trade) Standalone() bool {
	return t.EntryPrice == nil
}
