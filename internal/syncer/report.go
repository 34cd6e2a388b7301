package syncer

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utrading/utrading-portfolio/internal/models"
	"github.com/utrading/utrading-portfolio/internal/nats"
	"github.com/utrading/utrading-portfolio/internal/trade"
)

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerWS       = "ws"
)

// SourceReport 单个数据源的结果
type SourceReport struct {
	Name     string
	Err      error
	Partial  []error
	Fetched  int
	Dropped  int // 解析失败的成交
	Written  int
	Skipped  int // 已同步或重复
	Failed   int
	ValueUSD decimal.Decimal
}

func (s *SourceReport) OK() bool {
	return s.Err == nil
}

func (s *SourceReport) count() models.SourceCount {
	c := models.SourceCount{
		OK:       s.OK(),
		Fetched:  s.Fetched,
		Dropped:  s.Dropped,
		Written:  s.Written,
		Skipped:  s.Skipped,
		Failed:   s.Failed,
		ValueUSD: s.ValueUSD.String(),
	}
	if s.Err != nil {
		c.Error = s.Err.Error()
	}
	return c
}

// Report 一次同步的结果
type Report struct {
	RunID     string
	Trigger   string
	Status    string
	Sources   map[string]*SourceReport
	Trades    int           // 本次聚合出的交易数
	NewTrades []trade.Trade // 首次提交写入的交易
	TotalUSD  decimal.Decimal
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

func newReport(runID, trigger string, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		Trigger:   trigger,
		Status:    StatusOK,
		Sources:   make(map[string]*SourceReport),
		TotalUSD:  decimal.Zero,
		StartedAt: startedAt,
	}
}

// source 不存在时创建
func (r *Report) source(name string) *SourceReport {
	s, ok := r.Sources[name]
	if !ok {
		s = &SourceReport{Name: name, ValueUSD: decimal.Zero}
		r.Sources[name] = s
	}
	return s
}

func (r *Report) names() []string {
	out := make([]string, 0, len(r.Sources))
	for name := range r.Sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolveStatus 全部失败为 failed，任一数据源或写入出错为 partial
func (r *Report) resolveStatus() {
	if len(r.Sources) == 0 {
		r.Status = StatusOK
		return
	}

	failed, degraded := 0, false
	for _, s := range r.Sources {
		if !s.OK() {
			failed++
			continue
		}
		if len(s.Partial) > 0 || s.Failed > 0 {
			degraded = true
		}
	}

	switch {
	case failed == len(r.Sources):
		r.Status = StatusFailed
	case failed > 0 || degraded:
		r.Status = StatusPartial
	default:
		r.Status = StatusOK
	}
}

func (r *Report) SyncRun() *models.SyncRun {
	run := &models.SyncRun{
		RunID:      r.RunID,
		Trigger:    r.Trigger,
		Status:     r.Status,
		Counts:     make(map[string]models.SourceCount, len(r.Sources)),
		Trades:     r.Trades,
		NewTrades:  len(r.NewTrades),
		DurationMs: r.Duration.Milliseconds(),
		StartedAt:  r.StartedAt,
	}
	for name, s := range r.Sources {
		run.Counts[name] = s.count()
	}
	if r.Err != nil {
		msg := r.Err.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
		run.Error = msg
	}
	return run
}

func (r *Report) Snapshot() *models.PortfolioSnapshot {
	value := func(name string) string {
		if s, ok := r.Sources[name]; ok {
			return s.ValueUSD.String()
		}
		return "0"
	}
	return &models.PortfolioSnapshot{
		RunID:          r.RunID,
		HyperliquidUSD: value("hyperliquid"),
		PolymarketUSD:  value("polymarket"),
		FantasyUSD:     value("fantasy"),
		TotalUSD:       r.TotalUSD.String(),
	}
}

func (r *Report) Message() *nats.SyncReport {
	msg := &nats.SyncReport{
		RunID:      r.RunID,
		Trigger:    r.Trigger,
		Status:     r.Status,
		Sources:    make(map[string]nats.SourceSummary, len(r.Sources)),
		Trades:     r.Trades,
		NewTrades:  len(r.NewTrades),
		TotalUSD:   r.TotalUSD.String(),
		DurationMs: r.Duration.Milliseconds(),
		Timestamp:  r.StartedAt.UnixMilli(),
	}
	for name, s := range r.Sources {
		c := s.count()
		msg.Sources[name] = nats.SourceSummary{
			OK:       c.OK,
			Error:    c.Error,
			Fetched:  c.Fetched,
			Written:  c.Written,
			Skipped:  c.Skipped,
			Failed:   c.Failed,
			ValueUSD: c.ValueUSD,
		}
	}
	return msg
}

func (r *Report) TradesMessage() *nats.NewTrades {
	msg := &nats.NewTrades{
		RunID:  r.RunID,
		Trades: make([]nats.TradeMessage, 0, len(r.NewTrades)),
	}
	for _, t := range r.NewTrades {
		msg.Trades = append(msg.Trades, nats.TradeMessage{
			Wallet:      t.Wallet,
			Coin:        t.Coin,
			Side:        string(t.Side),
			Size:        t.Size,
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			RealizedPnl: t.RealizedPnl,
			Fees:        t.Fees,
			OpenedAt:    t.OpenedAt,
			ClosedAt:    t.ClosedAt,
			DurationMs:  t.DurationMs,
			TradeID:     t.TradeID,
		})
	}
	return msg
}
