package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	hl "github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/cache"
	"github.com/utrading/utrading-portfolio/internal/dal"
	"github.com/utrading/utrading-portfolio/internal/dao"
	"github.com/utrading/utrading-portfolio/internal/models"
	"github.com/utrading/utrading-portfolio/internal/nats"
	"github.com/utrading/utrading-portfolio/internal/processor"
	"github.com/utrading/utrading-portfolio/internal/schema"
	"github.com/utrading/utrading-portfolio/internal/sources"
)

type fakeSource struct {
	name  string
	batch func() *sources.Batch
	err   error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) (*sources.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batch(), nil
}

type countingLister struct {
	calls int
}

func (l *countingLister) ListTradeIDs(ctx context.Context, table string) (map[string]struct{}, error) {
	l.calls++
	return dao.Trade().ListTradeIDs(ctx, table)
}

type captureNotifier struct {
	mu      sync.Mutex
	reports []*nats.SyncReport
	trades  []*nats.NewTrades
}

func (n *captureNotifier) PublishReport(r *nats.SyncReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return nil
}

func (n *captureNotifier) PublishTrades(t *nats.NewTrades) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, t)
	return nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := dal.Open(config.DB{
		Driver:             "sqlite",
		DSN:                fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		MaxIdleConnections: 1,
		MaxOpenConnections: 1,
	})
	require.NoError(t, err)
	require.NoError(t, dal.AutoMigrate(conn))
	dao.InitDAO(conn)
	return conn
}

func hlFill(tid int64, dir, sz, px, pnl string, ts int64) hl.Fill {
	return hl.Fill{
		Coin:      "BTC",
		Dir:       dir,
		Size:      sz,
		Price:     px,
		Fee:       "0.1",
		ClosedPnl: pnl,
		Time:      ts,
		Tid:       tid,
	}
}

func hyperliquidSource() *fakeSource {
	return &fakeSource{name: "hyperliquid", batch: func() *sources.Batch {
		entry := 100.0
		return &sources.Batch{
			Source: "hyperliquid",
			Fills: map[string][]hl.Fill{
				"0xa": {
					hlFill(2, "Close Long", "1", "110", "10", 2000),
					hlFill(1, "Open Long", "1", "100", "0", 1000),
					hlFill(3, "Open Long", "", "100", "0", 3000),
				},
			},
			Items: []processor.BatchItem{
				&models.HlPosition{Wallet: "0xa", Coin: "ETH", Szi: 2, EntryPx: &entry, UpdatedAt: time.Now()},
			},
			ValueUSD: decimal.RequireFromString("1000.5"),
		}
	}}
}

func fantasySource() *fakeSource {
	return &fakeSource{name: "fantasy", batch: func() *sources.Batch {
		return &sources.Batch{
			Source: "fantasy",
			Items: []processor.BatchItem{
				&models.FantasyHolding{Wallet: "0xa", TokenID: "t1", Shares: 2, Price: 2.5, Value: 5, UpdatedAt: time.Now()},
			},
			ValueUSD: decimal.RequireFromString("5"),
		}
	}}
}

func newPipeline(t *testing.T, conn *gorm.DB, srcs ...sources.Source) *Pipeline {
	t.Helper()
	cfg := config.Default().Schema
	w, err := processor.NewBatchWriter(&processor.BatchWriterConfig{FlushInterval: time.Hour}, processor.DefaultWriters(cfg.Table))
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)

	return NewPipeline(Options{FetchConcurrency: 2, FetchTimeout: time.Second, SplitFlips: true},
		conn, srcs, schema.NewResolver(cfg, conn), w)
}

func TestPipeline_RunIsIdempotent(t *testing.T) {
	conn := setupDB(t)
	notifier := &captureNotifier{}
	p := newPipeline(t, conn, hyperliquidSource(), fantasySource()).WithNotifier(notifier)

	report, err := p.Run(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, 1, report.Trades)
	require.Len(t, report.NewTrades, 1)
	assert.Equal(t, "2", report.NewTrades[0].TradeID)
	assert.Equal(t, "1005.5", report.TotalUSD.String())

	hlr := report.Sources["hyperliquid"]
	assert.Equal(t, 4, hlr.Fetched)
	assert.Equal(t, 1, hlr.Dropped)
	assert.Equal(t, 2, hlr.Written) // trade + position
	assert.Equal(t, 1, report.Sources["fantasy"].Written)

	var row models.HlTrade
	require.NoError(t, conn.Where("trade_id = ?", "2").First(&row).Error)
	assert.Equal(t, "Long", row.Side)
	require.NotNil(t, row.Price)
	assert.InDelta(t, 100.0, *row.Price, 1e-9)
	assert.Equal(t, int64(2000), row.Timestamp)

	report, err = p.Run(context.Background(), TriggerInterval)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Trades)
	assert.Empty(t, report.NewTrades)
	assert.Equal(t, 1, report.Sources["hyperliquid"].Skipped)

	n, err := dao.Trade().Count("hl_trades")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var runs, snaps int64
	require.NoError(t, conn.Model(&models.SyncRun{}).Count(&runs).Error)
	require.NoError(t, conn.Model(&models.PortfolioSnapshot{}).Count(&snaps).Error)
	assert.Equal(t, int64(2), runs)
	assert.Equal(t, int64(2), snaps)

	latest, err := dao.SyncRun().Latest()
	require.NoError(t, err)
	assert.Equal(t, TriggerInterval, latest.Trigger)
	assert.Equal(t, 1, latest.Counts["hyperliquid"].Skipped)

	require.Len(t, notifier.reports, 2)
	assert.Equal(t, StatusOK, notifier.reports[0].Status)
	require.Len(t, notifier.trades, 2)
	assert.Len(t, notifier.trades[0].Trades, 1)
	assert.Empty(t, notifier.trades[1].Trades)

	status, at := p.LastRun()
	assert.Equal(t, StatusOK, status)
	assert.False(t, at.IsZero())
}

func TestPipeline_PartialFailure(t *testing.T) {
	conn := setupDB(t)
	broken := &fakeSource{name: "polymarket", err: errors.New("upstream 502")}
	p := newPipeline(t, conn, hyperliquidSource(), broken)

	report, err := p.Run(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, report.Status)
	assert.False(t, report.Sources["polymarket"].OK())
	assert.Len(t, report.NewTrades, 1)

	latest, err := dao.SyncRun().Latest()
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, latest.Status)
	assert.Equal(t, "upstream 502", latest.Counts["polymarket"].Error)
}

func TestPipeline_AllSourcesFailed(t *testing.T) {
	conn := setupDB(t)
	p := newPipeline(t, conn,
		&fakeSource{name: "hyperliquid", err: errors.New("timeout")},
		&fakeSource{name: "polymarket", err: errors.New("timeout")},
	)

	report, err := p.Run(context.Background(), TriggerStartup)
	require.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Equal(t, StatusFailed, report.Status)

	latest, err := dao.SyncRun().Latest()
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, latest.Status)
	assert.Contains(t, latest.Error, "all sources failed")

	var snaps int64
	require.NoError(t, conn.Model(&models.PortfolioSnapshot{}).Count(&snaps).Error)
	assert.Zero(t, snaps)
}

func TestPipeline_StoreUnavailable(t *testing.T) {
	conn := setupDB(t)
	p := newPipeline(t, conn, hyperliquidSource())

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	report, err := p.Run(context.Background(), TriggerStartup)
	require.ErrorIs(t, err, dal.ErrStoreUnavailable)
	assert.Equal(t, StatusFailed, report.Status)
}

func TestPipeline_SeenCacheLoadsOnce(t *testing.T) {
	conn := setupDB(t)
	lister := &countingLister{}
	p := newPipeline(t, conn, hyperliquidSource()).WithSeenCache(cache.NewSeenCache(time.Hour))
	p.lister = lister

	for i := 0; i < 3; i++ {
		_, err := p.Run(context.Background(), TriggerWS)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, lister.calls)
	assert.True(t, p.seen.IsSeen("2"))

	n, err := dao.Trade().Count("hl_trades")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPipeline_NoSources(t *testing.T) {
	conn := setupDB(t)
	report, err := newPipeline(t, conn).Run(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, report.Status)
	assert.Zero(t, report.Trades)
}

type panicSource struct{}

func (panicSource) Name() string { return "fantasy" }

func (panicSource) Fetch(ctx context.Context) (*sources.Batch, error) {
	panic("bad payload")
}

func TestPipeline_SourcePanicIsIsolated(t *testing.T) {
	conn := setupDB(t)
	p := newPipeline(t, conn, hyperliquidSource(), panicSource{})

	report, err := p.Run(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, report.Status)
	assert.ErrorContains(t, report.Sources["fantasy"].Err, "bad payload")
	assert.Len(t, report.NewTrades, 1)
}

func TestPipeline_NewTradesOnlyIncludesWrittenRows(t *testing.T) {
	conn := setupDB(t)
	require.NoError(t, conn.Exec(`CREATE TRIGGER reject_trade BEFORE INSERT ON hl_trades
		WHEN NEW.trade_id = '5' BEGIN SELECT RAISE(ABORT, 'rejected'); END`).Error)

	src := &fakeSource{name: "hyperliquid", batch: func() *sources.Batch {
		return &sources.Batch{
			Source: "hyperliquid",
			Fills: map[string][]hl.Fill{
				"0xa": {
					hlFill(1, "Open Long", "1", "100", "0", 1000),
					hlFill(2, "Close Long", "0.5", "110", "5", 2000),
					hlFill(5, "Close Long", "0.5", "120", "10", 4000),
				},
			},
		}
	}}
	notifier := &captureNotifier{}
	p := newPipeline(t, conn, src).WithNotifier(notifier).WithSeenCache(cache.NewSeenCache(time.Hour))

	report, err := p.Run(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Trades)
	assert.Equal(t, 1, report.Sources["hyperliquid"].Failed)
	require.Len(t, report.NewTrades, 1)
	assert.Equal(t, "2", report.NewTrades[0].TradeID)

	require.Len(t, notifier.trades, 1)
	require.Len(t, notifier.trades[0].Trades, 1)
	assert.True(t, p.seen.IsSeen("2"))
	assert.False(t, p.seen.IsSeen("5"))
}

func TestPipeline_NewTradesEmptyWhenTableMissing(t *testing.T) {
	conn := setupDB(t)
	require.NoError(t, conn.Migrator().DropTable("hl_trades"))
	notifier := &captureNotifier{}
	p := newPipeline(t, conn, hyperliquidSource()).WithNotifier(notifier)

	report, err := p.Run(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, 1, report.Sources["hyperliquid"].Failed)
	assert.Empty(t, report.NewTrades)

	require.Len(t, notifier.trades, 1)
	assert.Empty(t, notifier.trades[0].Trades)
}
