package schema

import (
	"time"

	"github.com/utrading/utrading-portfolio/internal/trade"
)

// ISOTime 毫秒时间戳转为 UTC RFC3339（毫秒精度）
func ISOTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Project 将 Trade 投影为目标表的一行，只包含支持的可选列
// price 为开仓均价（历史字段名），孤立平仓时为 nil
func Project(t trade.Trade, caps Capabilities) map[string]any {
	var entry any
	if t.EntryPrice != nil {
		entry = *t.EntryPrice
	}

	row := map[string]any{
		"wallet":    t.Wallet,
		"coin":      t.Coin,
		"side":      string(t.Side),
		"size":      t.Size,
		"price":     entry,
		"trade_id":  t.TradeID,
		"timestamp": t.ClosedAt,
	}

	if caps.EntryPrice {
		row[ColEntryPrice] = entry
	}
	if caps.ExitPrice {
		row[ColExitPrice] = t.ExitPrice
	}
	if caps.Pnl {
		row[ColPnl] = t.RealizedPnl
	}
	if caps.RealizedPnl {
		row[ColRealizedPnl] = t.RealizedPnl
	}
	if caps.Fees {
		row[ColFees] = t.Fees
	}
	if caps.OpenedAt {
		var openedAt any
		if t.OpenedAt != nil {
			openedAt = ISOTime(*t.OpenedAt)
		}
		row[ColOpenedAt] = openedAt
	}
	if caps.ClosedAt {
		row[ColClosedAt] = ISOTime(t.ClosedAt)
	}
	if caps.DurationMs {
		var duration any
		if t.DurationMs != nil {
			duration = *t.DurationMs
		}
		row[ColDurationMs] = duration
	}
	return row
}

// ProjectAll 批量投影
func ProjectAll(trades []trade.Trade, caps Capabilities) []map[string]any {
	rows := make([]map[string]any, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, Project(t, caps))
	}
	return rows
}
