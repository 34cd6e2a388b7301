package schema

import (
	"github.com/utrading/utrading-portfolio/config"
)

// 可选列
const (
	ColEntryPrice  = "entry_price"
	ColExitPrice   = "exit_price"
	ColPnl         = "pnl"
	ColRealizedPnl = "realized_pnl"
	ColFees        = "fees"
	ColOpenedAt    = "opened_at"
	ColClosedAt    = "closed_at"
	ColDurationMs  = "duration_ms"
)

// OptionalColumns 候选可选列，顺序固定
var OptionalColumns = []string{
	ColEntryPrice,
	ColExitPrice,
	ColPnl,
	ColRealizedPnl,
	ColFees,
	ColOpenedAt,
	ColClosedAt,
	ColDurationMs,
}

// RequiredColumns 目标表必须存在的列
var RequiredColumns = []string{"wallet", "coin", "side", "size", "price", "trade_id", "timestamp"}

// Capabilities 目标表支持的可选列，带版本号
type Capabilities struct {
	Version     int
	EntryPrice  bool
	ExitPrice   bool
	Pnl         bool
	RealizedPnl bool
	Fees        bool
	OpenedAt    bool
	ClosedAt    bool
	DurationMs  bool
}

// Full 所有可选列都支持
func Full(version int) Capabilities {
	return Capabilities{
		Version:     version,
		EntryPrice:  true,
		ExitPrice:   true,
		Pnl:         true,
		RealizedPnl: true,
		Fees:        true,
		OpenedAt:    true,
		ClosedAt:    true,
		DurationMs:  true,
	}
}

// FromConfig 由 [schema] 配置生成静态能力声明
func FromConfig(c config.Schema) Capabilities {
	return Capabilities{
		Version:     c.Version,
		EntryPrice:  c.EntryPrice,
		ExitPrice:   c.ExitPrice,
		Pnl:         c.Pnl,
		RealizedPnl: c.RealizedPnl,
		Fees:        c.Fees,
		OpenedAt:    c.OpenedAt,
		ClosedAt:    c.ClosedAt,
		DurationMs:  c.DurationMs,
	}
}

// FromMap 由列名到布尔的映射生成，缺失的列视为不支持
func FromMap(version int, m map[string]bool) Capabilities {
	return Capabilities{
		Version:     version,
		EntryPrice:  m[ColEntryPrice],
		ExitPrice:   m[ColExitPrice],
		Pnl:         m[ColPnl],
		RealizedPnl: m[ColRealizedPnl],
		Fees:        m[ColFees],
		OpenedAt:    m[ColOpenedAt],
		ClosedAt:    m[ColClosedAt],
		DurationMs:  m[ColDurationMs],
	}
}

// Map 转为列名到布尔的映射
func (c Capabilities) Map() map[string]bool {
	return map[string]bool{
		ColEntryPrice:  c.EntryPrice,
		ColExitPrice:   c.ExitPrice,
		ColPnl:         c.Pnl,
		ColRealizedPnl: c.RealizedPnl,
		ColFees:        c.Fees,
		ColOpenedAt:    c.OpenedAt,
		ColClosedAt:    c.ClosedAt,
		ColDurationMs:  c.DurationMs,
	}
}

// Supports 是否支持某个可选列
func (c Capabilities) Supports(col string) bool {
	return c.Map()[col]
}
