package models

import "time"

// PolymarketPosition 预测市场当前持仓
type PolymarketPosition struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet       string  `gorm:"type:varchar(66);not null;uniqueIndex:uidx_pm_pos_wallet_asset" json:"wallet"`
	Asset        string  `gorm:"type:varchar(96);not null;uniqueIndex:uidx_pm_pos_wallet_asset;comment:outcome token id" json:"asset"`
	ConditionID  string  `gorm:"type:varchar(80);not null;index" json:"condition_id"`
	Title        string  `gorm:"type:varchar(255)" json:"title"`
	Slug         string  `gorm:"type:varchar(255)" json:"slug"`
	Outcome      string  `gorm:"type:varchar(64)" json:"outcome"`
	Size         float64 `gorm:"type:decimal(28,8);not null;default:0" json:"size"`
	AvgPrice     float64 `gorm:"type:decimal(18,8);not null;default:0" json:"avg_price"`
	CurPrice     float64 `gorm:"type:decimal(18,8);not null;default:0" json:"cur_price"`
	InitialValue float64 `gorm:"type:decimal(28,8);not null;default:0" json:"initial_value"`
	CurrentValue float64 `gorm:"type:decimal(28,8);not null;default:0" json:"current_value"`
	CashPnl      float64 `gorm:"type:decimal(28,8);not null;default:0" json:"cash_pnl"`
	RealizedPnl  float64 `gorm:"type:decimal(28,8);not null;default:0" json:"realized_pnl"`
	EndDate      string  `gorm:"type:varchar(32)" json:"end_date"`

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (PolymarketPosition) TableName() string {
	return "polymarket_positions"
}

func (p *PolymarketPosition) DedupKey() string {
	return "pp:" + p.Wallet + ":" + p.Asset
}

// PolymarketClosedPosition 已结算持仓
type PolymarketClosedPosition struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet      string  `gorm:"type:varchar(66);not null;uniqueIndex:uidx_pm_closed_wallet_asset" json:"wallet"`
	Asset       string  `gorm:"type:varchar(96);not null;uniqueIndex:uidx_pm_closed_wallet_asset" json:"asset"`
	ConditionID string  `gorm:"type:varchar(80);not null;index" json:"condition_id"`
	Title       string  `gorm:"type:varchar(255)" json:"title"`
	Outcome     string  `gorm:"type:varchar(64)" json:"outcome"`
	AvgPrice    float64 `gorm:"type:decimal(18,8);not null;default:0" json:"avg_price"`
	TotalBought float64 `gorm:"type:decimal(28,8);not null;default:0" json:"total_bought"`
	RealizedPnl float64 `gorm:"type:decimal(28,8);not null;default:0" json:"realized_pnl"`
	CurPrice    float64 `gorm:"type:decimal(18,8);not null;default:0" json:"cur_price"`
	Timestamp   int64   `gorm:"not null;default:0;comment:结算时间 s" json:"timestamp"`

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (PolymarketClosedPosition) TableName() string {
	return "polymarket_closed_positions"
}

func (p *PolymarketClosedPosition) DedupKey() string {
	return "pc:" + p.Wallet + ":" + p.Asset
}

// PolymarketTrade 预测市场成交
type PolymarketTrade struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet          string  `gorm:"type:varchar(66);not null;uniqueIndex:uidx_pm_trade" json:"wallet"`
	TransactionHash string  `gorm:"type:varchar(80);not null;uniqueIndex:uidx_pm_trade" json:"transaction_hash"`
	Asset           string  `gorm:"type:varchar(96);not null;uniqueIndex:uidx_pm_trade" json:"asset"`
	Side            string  `gorm:"type:varchar(8);not null;uniqueIndex:uidx_pm_trade;comment:BUY/SELL" json:"side"`
	ConditionID     string  `gorm:"type:varchar(80);not null" json:"condition_id"`
	Title           string  `gorm:"type:varchar(255)" json:"title"`
	Outcome         string  `gorm:"type:varchar(64)" json:"outcome"`
	Size            float64 `gorm:"type:decimal(28,8);not null" json:"size"`
	Price           float64 `gorm:"type:decimal(18,8);not null" json:"price"`
	Timestamp       int64   `gorm:"not null;index;comment:s" json:"timestamp"`
}

func (PolymarketTrade) TableName() string {
	return "polymarket_trades"
}

func (p *PolymarketTrade) DedupKey() string {
	return "pt:" + p.Wallet + ":" + p.TransactionHash + ":" + p.Asset + ":" + p.Side
}

// PolymarketActivity 链上活动（交易、拆分、合并、赎回、奖励）
type PolymarketActivity struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet          string  `gorm:"type:varchar(66);not null;uniqueIndex:uidx_pm_activity" json:"wallet"`
	TransactionHash string  `gorm:"type:varchar(80);not null;uniqueIndex:uidx_pm_activity" json:"transaction_hash"`
	Type            string  `gorm:"type:varchar(16);not null;uniqueIndex:uidx_pm_activity" json:"type"`
	Asset           string  `gorm:"type:varchar(96);not null;default:'';uniqueIndex:uidx_pm_activity" json:"asset"`
	ConditionID     string  `gorm:"type:varchar(80)" json:"condition_id"`
	Title           string  `gorm:"type:varchar(255)" json:"title"`
	Side            string  `gorm:"type:varchar(8)" json:"side"`
	Size            float64 `gorm:"type:decimal(28,8);not null;default:0" json:"size"`
	UsdcSize        float64 `gorm:"type:decimal(28,8);not null;default:0" json:"usdc_size"`
	Price           float64 `gorm:"type:decimal(18,8);not null;default:0" json:"price"`
	Timestamp       int64   `gorm:"not null;index;comment:s" json:"timestamp"`
}

func (PolymarketActivity) TableName() string {
	return "polymarket_activity"
}

func (p *PolymarketActivity) DedupKey() string {
	return "pa:" + p.Wallet + ":" + p.TransactionHash + ":" + p.Type + ":" + p.Asset
}
