package nats

import (
	"encoding/json"
	"errors"
)

const (
	SubjectSyncReport = "portfolio.sync.report"
	SubjectNewTrades  = "portfolio.trades.new"
)

var ErrNotConnected = errors.New("nats publisher not connected")

type marshaler interface {
	Marshal() ([]byte, error)
}

// SourceSummary 单个数据源的同步结果
type SourceSummary struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Fetched  int    `json:"fetched"`
	Written  int    `json:"written"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	ValueUSD string `json:"value_usd"`
}

// SyncReport 每次同步结束后发布
type SyncReport struct {
	RunID      string                   `json:"run_id"`
	Trigger    string                   `json:"trigger"` // cron / watch / ws
	Status     string                   `json:"status"`  // ok / partial / failed
	Sources    map[string]SourceSummary `json:"sources"`
	Trades     int                      `json:"trades"`
	NewTrades  int                      `json:"new_trades"`
	TotalUSD   string                   `json:"total_usd"`
	DurationMs int64                    `json:"duration_ms"`
	Timestamp  int64                    `json:"timestamp"`
}

func (r *SyncReport) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// TradeMessage 聚合后的一笔完整交易
type TradeMessage struct {
	Wallet      string   `json:"wallet"`
	Coin        string   `json:"coin"`
	Side        string   `json:"side"`
	Size        float64  `json:"size"`
	EntryPrice  *float64 `json:"entry_price"`
	ExitPrice   float64  `json:"exit_price"`
	RealizedPnl float64  `json:"realized_pnl"`
	Fees        float64  `json:"fees"`
	OpenedAt    *int64   `json:"opened_at"`
	ClosedAt    int64    `json:"closed_at"`
	DurationMs  *int64   `json:"duration_ms"`
	TradeID     string   `json:"trade_id"`
}

// NewTrades 本次同步首次写入的成交
type NewTrades struct {
	RunID  string         `json:"run_id"`
	Trades []TradeMessage `json:"trades"`
}

func (t *NewTrades) Marshal() ([]byte, error) {
	return json.Marshal(t)
}
