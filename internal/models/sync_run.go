package models

import "time"

// SourceCount 单个数据源在一次同步中的计数
type SourceCount struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Fetched  int    `json:"fetched"`
	Dropped  int    `json:"dropped"`
	Written  int    `json:"written"`
	Skipped  int    `json:"skipped"` // 已同步或重复
	Failed   int    `json:"failed"`
	ValueUSD string `json:"value_usd,omitempty"`
}

// SyncRun 同步运行记录
type SyncRun struct {
	ID         uint                   `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID      string                 `gorm:"type:varchar(36);not null;uniqueIndex:uidx_run_id" json:"run_id"`
	Trigger    string                 `gorm:"column:trigger_type;type:varchar(16);not null;comment:startup/interval/ws" json:"trigger"`
	Status     string                 `gorm:"type:varchar(16);not null;comment:ok/partial/failed" json:"status"`
	Counts     map[string]SourceCount `gorm:"type:json;serializer:json" json:"counts"`
	Trades     int                    `gorm:"not null;default:0" json:"trades"`
	NewTrades  int                    `gorm:"not null;default:0" json:"new_trades"`
	Error      string                 `gorm:"type:varchar(512)" json:"error"`
	DurationMs int64                  `gorm:"not null;default:0" json:"duration_ms"`
	StartedAt  time.Time              `gorm:"not null" json:"started_at"`
	CreatedAt  time.Time              `gorm:"autoCreateTime;index:idx_sync_runs_created" json:"created_at"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// PortfolioSnapshot 每次同步后的组合估值，金额以十进制字符串保存
type PortfolioSnapshot struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID          string    `gorm:"type:varchar(36);not null;index" json:"run_id"`
	HyperliquidUSD string    `gorm:"type:varchar(32);not null;default:'0'" json:"hyperliquid_usd"`
	PolymarketUSD  string    `gorm:"type:varchar(32);not null;default:'0'" json:"polymarket_usd"`
	FantasyUSD     string    `gorm:"type:varchar(32);not null;default:'0'" json:"fantasy_usd"`
	TotalUSD       string    `gorm:"type:varchar(32);not null;default:'0'" json:"total_usd"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_snapshots_created" json:"created_at"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
