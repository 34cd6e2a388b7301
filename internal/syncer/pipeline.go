package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/utrading/utrading-portfolio/internal/cache"
	"github.com/utrading/utrading-portfolio/internal/dal"
	"github.com/utrading/utrading-portfolio/internal/dao"
	"github.com/utrading/utrading-portfolio/internal/fill"
	"github.com/utrading/utrading-portfolio/internal/monitor"
	"github.com/utrading/utrading-portfolio/internal/nats"
	"github.com/utrading/utrading-portfolio/internal/processor"
	"github.com/utrading/utrading-portfolio/internal/schema"
	"github.com/utrading/utrading-portfolio/internal/sources"
	"github.com/utrading/utrading-portfolio/internal/trade"
	"github.com/utrading/utrading-portfolio/pkg/goplus"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

var ErrAllSourcesFailed = errors.New("all sources failed")

// Notifier 同步结果发布
type Notifier interface {
	PublishReport(r *nats.SyncReport) error
	PublishTrades(t *nats.NewTrades) error
}

type Options struct {
	FetchConcurrency int
	FetchTimeout     time.Duration
	SplitFlips       bool
}

// Pipeline 拉取、聚合、去重、写入；同一时间只有一次 Run
type Pipeline struct {
	opts       Options
	db         *gorm.DB
	sources    []sources.Source
	normalizer *fill.Normalizer
	resolver   *schema.Resolver
	writer     *processor.BatchWriter
	lister     cache.TradeIDLister
	seen       cache.SeenCacheInterface
	seenLoaded bool
	notifier   Notifier
	metrics    *monitor.Metrics

	runMu sync.Mutex

	lastMu     sync.RWMutex
	lastStatus string
	lastAt     time.Time
}

func NewPipeline(opts Options, db *gorm.DB, srcs []sources.Source, resolver *schema.Resolver, writer *processor.BatchWriter) *Pipeline {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Pipeline{
		opts:       opts,
		db:         db,
		sources:    srcs,
		normalizer: fill.NewNormalizer(opts.SplitFlips),
		resolver:   resolver,
		writer:     writer,
		lister:     dao.Trade(),
		metrics:    monitor.GetMetrics(),
	}
}

// WithSeenCache watch 模式下复用已同步 trade_id，只在首次运行时读库
func (p *Pipeline) WithSeenCache(c cache.SeenCacheInterface) *Pipeline {
	p.seen = c
	return p
}

func (p *Pipeline) WithNotifier(n Notifier) *Pipeline {
	p.notifier = n
	return p
}

// LastRun 实现 monitor.RunRef
func (p *Pipeline) LastRun() (string, time.Time) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	return p.lastStatus, p.lastAt
}

// Run 执行一次完整同步
// 存储不可用或所有数据源失败时返回错误；单个数据源或单行失败只记录在报告中
func (p *Pipeline) Run(ctx context.Context, trigger string) (*Report, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	report := newReport(uuid.NewString(), trigger, time.Now())
	err := p.run(ctx, report)
	report.Err = err
	report.Duration = time.Since(report.StartedAt)
	if err != nil {
		report.Status = StatusFailed
	}

	p.finish(ctx, report)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, report *Report) error {
	if err := dal.Ping(ctx, p.db); err != nil {
		return err
	}

	batches := p.fetchAll(ctx, report)
	report.resolveStatus()
	if report.Status == StatusFailed {
		return ErrAllSourcesFailed
	}

	trades := p.aggregate(batches, report)
	report.Trades = len(trades)

	fresh, skipped := p.filterSeen(ctx, trades)
	if hlr, ok := report.Sources["hyperliquid"]; ok {
		hlr.Skipped += skipped
	}

	table := p.resolver.Table()
	rows := schema.ProjectAll(fresh, p.resolver.Capabilities(ctx))

	items := make([]processor.BatchItem, 0, len(rows))
	owner := make(map[string]string)
	if len(rows) > 0 {
		owner[table] = "hyperliquid"
	}
	for _, row := range rows {
		items = append(items, processor.TradeRowItem{Table: table, Row: row})
	}
	for _, b := range batches {
		for _, item := range b.Items {
			owner[item.TableName()] = b.Source
		}
		items = append(items, b.Items...)
	}

	before := p.writer.Stats()
	if err := p.writer.AddAll(items); err != nil {
		return fmt.Errorf("enqueue rows: %w", err)
	}
	p.writer.Flush()
	after := p.writer.Stats()

	var tradeStats dao.WriteStats
	for tbl, src := range owner {
		delta := diff(after[tbl], before[tbl])
		if tbl == table {
			tradeStats = delta
		}
		s := report.source(src)
		s.Written += delta.Written
		s.Skipped += delta.Duplicates
		s.Failed += delta.Failed
		p.metrics.AddRows(tbl, delta.Written, delta.Duplicates, delta.Failed)
	}

	if tradeStats.Failed > 0 {
		fresh = p.persisted(ctx, table, fresh)
	}
	report.NewTrades = fresh
	if p.seen != nil {
		for _, t := range fresh {
			p.seen.Mark(t.TradeID)
		}
	}

	report.resolveStatus()
	return nil
}

type fetchResult struct {
	batch *sources.Batch
	err   error
}

// fetchAll 数据源并发拉取，失败只影响自身
func (p *Pipeline) fetchAll(ctx context.Context, report *Report) []*sources.Batch {
	results := make([]fetchResult, len(p.sources))

	var g errgroup.Group
	g.SetLimit(p.opts.FetchConcurrency)
	for i, src := range p.sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
			defer cancel()

			start := time.Now()
			var batch *sources.Batch
			err := goplus.Safe(func() error {
				var ferr error
				batch, ferr = src.Fetch(fctx)
				return ferr
			})
			results[i] = fetchResult{batch: batch, err: err}

			ev := logger.Info()
			if err != nil {
				ev = logger.Warn().Err(err)
			}
			ev.Str("source", src.Name()).Dur("took", time.Since(start)).Msg("source fetched")
			return nil
		})
	}
	_ = g.Wait()

	batches := make([]*sources.Batch, 0, len(results))
	for i, res := range results {
		s := report.source(p.sources[i].Name())
		p.metrics.IncSourceFetch(s.Name, res.err == nil)
		if res.err != nil {
			s.Err = res.err
			continue
		}
		if res.batch == nil {
			continue
		}

		s.Partial = res.batch.Partial
		s.Fetched = res.batch.Fetched()
		s.ValueUSD = res.batch.ValueUSD
		report.TotalUSD = report.TotalUSD.Add(res.batch.ValueUSD)
		p.metrics.SetSourceRecords(s.Name, s.Fetched)
		p.metrics.SetPortfolioValue(s.Name, s.ValueUSD.InexactFloat64())
		batches = append(batches, res.batch)
	}
	return batches
}

// aggregate 每个钱包单独归一化并聚合
func (p *Pipeline) aggregate(batches []*sources.Batch, report *Report) []trade.Trade {
	var trades []trade.Trade
	for _, b := range batches {
		if len(b.Fills) == 0 {
			continue
		}

		wallets := make([]string, 0, len(b.Fills))
		for w := range b.Fills {
			wallets = append(wallets, w)
		}
		sort.Strings(wallets)

		s := report.source(b.Source)
		for _, wallet := range wallets {
			fills, stats := p.normalizer.Normalize(wallet, b.Fills[wallet])
			s.Dropped += stats.Dropped
			p.metrics.AddFills(stats.Normalized, stats.Skipped, stats.Dropped)

			out := trade.NewAggregator(wallet).Run(fills)
			standalone := 0
			for _, t := range out {
				if t.Standalone() {
					standalone++
				}
			}
			p.metrics.AddTrades(len(out)-standalone, standalone)
			trades = append(trades, out...)
		}
	}
	return trades
}

// filterSeen 过滤已同步和本次重复的 trade_id，返回新交易与跳过数
// 读库失败时不过滤，依赖写入端的唯一键保证幂等
func (p *Pipeline) filterSeen(ctx context.Context, trades []trade.Trade) ([]trade.Trade, int) {
	table := p.resolver.Table()
	var stored map[string]struct{}
	if p.seen == nil {
		ids, err := p.lister.ListTradeIDs(ctx, table)
		if err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("list synced trade ids failed")
		}
		stored = ids
	} else if !p.seenLoaded {
		if err := p.seen.LoadFromDB(ctx, p.lister, table); err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("load seen cache failed")
		} else {
			p.seenLoaded = true
		}
	}

	fresh := make([]trade.Trade, 0, len(trades))
	batch := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if _, ok := stored[t.TradeID]; ok {
			continue
		}
		if p.seen != nil && p.seen.IsSeen(t.TradeID) {
			continue
		}
		if _, ok := batch[t.TradeID]; ok {
			continue
		}
		batch[t.TradeID] = struct{}{}
		fresh = append(fresh, t)
	}
	return fresh, len(trades) - len(fresh)
}

// persisted 写入有失败时回读目标表，只保留确实落库的交易
// 回读失败时无法确认，全部视为未写入
func (p *Pipeline) persisted(ctx context.Context, table string, trades []trade.Trade) []trade.Trade {
	ids, err := p.lister.ListTradeIDs(ctx, table)
	if err != nil {
		logger.Warn().Err(err).Str("table", table).Msg("reconcile written trades failed")
		return nil
	}

	out := make([]trade.Trade, 0, len(trades))
	for _, t := range trades {
		if _, ok := ids[t.TradeID]; ok {
			out = append(out, t)
		}
	}
	return out
}

// finish 记录运行结果、更新指标并发布
func (p *Pipeline) finish(ctx context.Context, report *Report) {
	p.lastMu.Lock()
	p.lastStatus = report.Status
	p.lastAt = time.Now()
	p.lastMu.Unlock()

	p.metrics.ObserveRun(report.Status, report.Duration.Seconds(), time.Now().Unix())

	if !errors.Is(report.Err, dal.ErrStoreUnavailable) {
		if err := dao.SyncRun().Create(report.SyncRun()); err != nil {
			logger.Error().Err(err).Str("runID", report.RunID).Msg("save sync run failed")
		}
		if report.Err == nil {
			if err := dao.Snapshot().Create(report.Snapshot()); err != nil {
				logger.Error().Err(err).Str("runID", report.RunID).Msg("save portfolio snapshot failed")
			}
		}
	}

	if p.notifier != nil {
		if err := p.notifier.PublishReport(report.Message()); err != nil {
			logger.Warn().Err(err).Msg("publish sync report failed")
		}
		if err := p.notifier.PublishTrades(report.TradesMessage()); err != nil {
			logger.Warn().Err(err).Msg("publish new trades failed")
		}
	}

	p.log(report)
}

func (p *Pipeline) log(report *Report) {
	for _, name := range report.names() {
		s := report.Sources[name]
		ev := logger.Info()
		if !s.OK() {
			ev = logger.Warn().Err(s.Err)
		} else if len(s.Partial) > 0 {
			ev = logger.Warn().Errs("partial", s.Partial)
		}
		ev.Str("runID", report.RunID).
			Str("source", name).
			Int("fetched", s.Fetched).
			Int("dropped", s.Dropped).
			Int("written", s.Written).
			Int("skipped", s.Skipped).
			Int("failed", s.Failed).
			Str("valueUSD", s.ValueUSD.String()).
			Msg("source synced")
	}

	ev := logger.Info()
	if report.Err != nil {
		ev = logger.Error().Err(report.Err)
	}
	ev.Str("runID", report.RunID).
		Str("trigger", report.Trigger).
		Str("status", report.Status).
		Int("trades", report.Trades).
		Int("newTrades", len(report.NewTrades)).
		Str("totalUSD", report.TotalUSD.String()).
		Dur("took", report.Duration).
		Msg("sync finished")
}

func diff(after, before dao.WriteStats) dao.WriteStats {
	return dao.WriteStats{
		Written:    after.Written - before.Written,
		Duplicates: after.Duplicates - before.Duplicates,
		Failed:     after.Failed - before.Failed,
	}
}
