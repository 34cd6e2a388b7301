package models

import "time"

// HlTrade 由成交聚合出的平仓交易
// price 为开仓均价（历史字段名），孤立平仓时为 NULL
type HlTrade struct {
	ID        int64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Wallet    string   `gorm:"column:wallet;type:varchar(66);not null;index:idx_wallet_ts" json:"wallet"`
	Coin      string   `gorm:"column:coin;type:varchar(24);not null" json:"coin"`
	Side      string   `gorm:"column:side;type:varchar(8);not null;comment:Long/Short" json:"side"`
	Size      float64  `gorm:"column:size;type:decimal(28,8);not null" json:"size"`
	Price     *float64 `gorm:"column:price;type:decimal(28,12)" json:"price"`
	TradeID   string   `gorm:"column:trade_id;type:varchar(64);not null;uniqueIndex:uidx_trade_id" json:"trade_id"`
	Timestamp int64    `gorm:"column:timestamp;not null;index:idx_wallet_ts;comment:平仓时间 ms" json:"timestamp"`

	// 可选列，旧表可能不存在
	EntryPrice  *float64 `gorm:"column:entry_price;type:decimal(28,12)" json:"entry_price"`
	ExitPrice   *float64 `gorm:"column:exit_price;type:decimal(28,12)" json:"exit_price"`
	Pnl         *float64 `gorm:"column:pnl;type:decimal(28,8)" json:"pnl"`
	RealizedPnl *float64 `gorm:"column:realized_pnl;type:decimal(28,8)" json:"realized_pnl"`
	Fees        *float64 `gorm:"column:fees;type:decimal(28,8)" json:"fees"`
	OpenedAt    *string  `gorm:"column:opened_at;type:varchar(32);comment:ISO8601" json:"opened_at"`
	ClosedAt    *string  `gorm:"column:closed_at;type:varchar(32);comment:ISO8601" json:"closed_at"`
	DurationMs  *int64   `gorm:"column:duration_ms" json:"duration_ms"`

	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (HlTrade) TableName() string {
	return "hl_trades"
}

// HlPosition Hyperliquid 当前合约持仓快照
type HlPosition struct {
	ID             uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet         string   `gorm:"type:varchar(66);not null;uniqueIndex:uidx_hl_pos_wallet_coin" json:"wallet"`
	Coin           string   `gorm:"type:varchar(24);not null;uniqueIndex:uidx_hl_pos_wallet_coin" json:"coin"`
	Szi            float64  `gorm:"type:decimal(28,8);not null;comment:带符号持仓数量" json:"szi"`
	EntryPx        *float64 `gorm:"type:decimal(28,12)" json:"entry_px"`
	PositionValue  float64  `gorm:"type:decimal(28,8);not null;default:0" json:"position_value"`
	UnrealizedPnl  float64  `gorm:"type:decimal(28,8);not null;default:0" json:"unrealized_pnl"`
	MarginUsed     float64  `gorm:"type:decimal(28,8);not null;default:0" json:"margin_used"`
	Leverage       int      `gorm:"not null;default:0" json:"leverage"`
	LeverageType   string   `gorm:"type:varchar(16)" json:"leverage_type"`
	ReturnOnEquity float64  `gorm:"type:decimal(18,8);not null;default:0" json:"return_on_equity"`

	UpdatedAt time.Time `gorm:"not null;index:idx_hl_pos_updated" json:"updated_at"`
}

func (HlPosition) TableName() string {
	return "hl_positions"
}

func (p *HlPosition) DedupKey() string {
	return "hp:" + p.Wallet + ":" + p.Coin
}
