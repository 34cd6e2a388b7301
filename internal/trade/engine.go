package trade

import (
	"sort"

	"github.com/utrading/utrading-portfolio/internal/fill"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// Aggregate 将成交序列折叠为交易列表
// 先按时间稳定排序（同时间保持输入顺序），每次调用使用独立的 Ledger
func Aggregate(fills []fill.Fill) []Trade {
	trades, _ := fold(fills)
	return trades
}

func fold(fills []fill.Fill) ([]Trade, *Ledger) {
	sorted := make([]fill.Fill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	ledger := NewLedger()
	trades := make([]Trade, 0)
	for _, f := range sorted {
		if t, ok := ledger.Apply(f); ok {
			trades = append(trades, t)
		}
	}
	return trades, ledger
}

// Aggregator 在 Aggregate 之上记录运行结果
type Aggregator struct {
	wallet string
}

func NewAggregator(wallet string) *Aggregator {
	return &Aggregator{wallet: wallet}
}

// Run 聚合并在日志中输出结束时仍未平仓的持仓
func (a *Aggregator) Run(fills []fill.Fill) []Trade {
	trades, ledger := fold(fills)

	standalone := 0
	for _, t := range trades {
		if t.Standalone() {
			standalone++
		}
	}

	for _, acc := range ledger.Positions() {
		logger.Debug().
			Str("wallet", a.wallet).
			Str("coin", acc.Coin).
			Str("side", string(acc.Side)).
			Float64("size", acc.TotalSize).
			Float64("avgPx", acc.AvgPrice()).
			Msg("position still open after aggregation")
	}

	logger.Info().
		Str("wallet", a.wallet).
		Int("fills", len(fills)).
		Int("trades", len(trades)).
		Int("standalone", standalone).
		Int("open", ledger.Len()).
		Msg("fills aggregated")

	return trades
}
