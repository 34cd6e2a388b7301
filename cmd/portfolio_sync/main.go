package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/cache"
	"github.com/utrading/utrading-portfolio/internal/cleaner"
	"github.com/utrading/utrading-portfolio/internal/dal"
	"github.com/utrading/utrading-portfolio/internal/dao"
	"github.com/utrading/utrading-portfolio/internal/monitor"
	"github.com/utrading/utrading-portfolio/internal/nats"
	"github.com/utrading/utrading-portfolio/internal/processor"
	"github.com/utrading/utrading-portfolio/internal/schema"
	"github.com/utrading/utrading-portfolio/internal/sources"
	"github.com/utrading/utrading-portfolio/internal/syncer"
	"github.com/utrading/utrading-portfolio/internal/ws"
	"github.com/utrading/utrading-portfolio/pkg/goplus"
	"github.com/utrading/utrading-portfolio/pkg/logger"
	"github.com/utrading/utrading-portfolio/pkg/sigproc"
)

func main() {
	var configFile, envFile string
	var watch bool
	flag.StringVar(&configFile, "config", "", "config file path, defaults + env when empty")
	flag.StringVar(&envFile, "env", ".env", "env file path")
	flag.BoolVar(&watch, "watch", false, "keep running and sync on interval and new fills")
	flag.Parse()

	// 加载配置
	if err := config.LoadEnv(envFile); err != nil {
		panic("load env failed: " + err.Error())
	}
	if err := config.Load(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}

	logger.Info().Bool("watch", watch).Msg("portfolio_sync starting...")

	var err error
	if watch {
		err = runWatch(cfg)
	} else {
		err = runOnce(cfg)
	}
	if err != nil {
		logger.Error().Err(err).Msg("portfolio_sync failed")
		logger.Close()
		os.Exit(1)
	}

	logger.Info().Msg("portfolio_sync stopped")
	logger.Close()
}

// app 两种模式共用的组件
type app struct {
	pipeline  *syncer.Pipeline
	writer    *processor.BatchWriter
	publisher *nats.Publisher
}

func setup(cfg *config.Config) (*app, error) {
	// 初始化指标
	monitor.GetMetrics()

	// 初始化数据库
	if err := dal.InitDB(cfg.DB); err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := dal.AutoMigrate(dal.DB()); err != nil {
			logger.Error().Err(err).Msg("auto migrate incomplete")
		}
	}
	dao.InitDAO(dal.DB())

	// 创建批量写入器
	writer, err := processor.NewBatchWriter(&processor.BatchWriterConfig{
		BatchSize:     cfg.Sync.BatchSize,
		FlushInterval: cfg.Sync.FlushInterval,
		MaxQueueSize:  cfg.Sync.QueueSize,
	}, processor.DefaultWriters(cfg.Schema.Table))
	if err != nil {
		return nil, err
	}
	writer.Start()

	pipeline := syncer.NewPipeline(syncer.Options{
		FetchConcurrency: cfg.Sync.FetchConcurrency,
		FetchTimeout:     cfg.Sync.FetchTimeout,
		SplitFlips:       cfg.Sync.SplitFlips,
	}, dal.DB(), buildSources(cfg), schema.NewResolver(cfg.Schema, dal.DB()), writer)

	a := &app{pipeline: pipeline, writer: writer}

	// NATS 可选，连接失败不影响同步
	if cfg.NATS.Endpoint != "" {
		a.publisher, err = nats.NewPublisher(cfg.NATS.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Str("endpoint", cfg.NATS.Endpoint).Msg("init nats publisher failed, reports will not be published")
		} else {
			pipeline.WithNotifier(a.publisher)
		}
	}

	return a, nil
}

func (a *app) close() {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if err := a.writer.GracefulShutdown(10 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("batch writer shutdown")
	}
	dal.Close()
}

func buildSources(cfg *config.Config) []sources.Source {
	var srcs []sources.Source
	if cfg.Hyperliquid.Enabled && len(cfg.Hyperliquid.Wallets) > 0 {
		srcs = append(srcs, sources.NewHyperliquid(cfg.Hyperliquid, cfg.Sync.Lookback))
	}
	if cfg.Polymarket.Enabled && len(cfg.Polymarket.Wallets) > 0 {
		srcs = append(srcs, sources.NewPolymarket(cfg.Polymarket, cfg.Sync.FetchTimeout))
	}
	if cfg.Fantasy.Enabled && len(cfg.Fantasy.Wallets) > 0 {
		srcs = append(srcs, sources.NewFantasy(cfg.Fantasy, cfg.Sync.FetchTimeout))
	}
	if len(srcs) == 0 {
		logger.Warn().Msg("no source enabled with wallets")
	}
	return srcs
}

// runOnce 同步一次，结束后推送指标
func runOnce(cfg *config.Config) error {
	a, err := setup(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	_, err = a.pipeline.Run(context.Background(), syncer.TriggerStartup)

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if pushErr := monitor.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); pushErr != nil {
		logger.Warn().Err(pushErr).Msg("push metrics failed")
	}

	return err
}

// runWatch 启动时同步一次，之后按间隔或 ws 新成交触发
func runWatch(cfg *config.Config) error {
	a, err := setup(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 回看窗口之外的成交不会再出现，缓存保留略长于窗口
	a.pipeline.WithSeenCache(cache.NewSeenCache(cfg.Sync.Lookback + time.Hour))

	triggers := make(chan string, 1)
	request := func(trigger string) {
		select {
		case triggers <- trigger:
		default: // 已有待执行的同步
		}
	}

	watcher := ws.NewWatcher(cfg.Hyperliquid.WSURL, cfg.Hyperliquid.Wallets, cfg.Sync.Debounce, func() {
		request(syncer.TriggerWS)
	})
	if cfg.Hyperliquid.Enabled && cfg.Hyperliquid.WSURL != "" && len(cfg.Hyperliquid.Wallets) > 0 {
		watcher.Start(ctx)
	}

	var publisher monitor.ConnRef
	if a.publisher != nil {
		publisher = a.publisher
	}

	// 初始化健康检查服务器
	healthServer := monitor.NewHealthServer(cfg.Metrics.HealthServerAddr, watcher, publisher, a.pipeline, 3*cfg.Sync.Interval)
	healthServer.Start()

	// 创建数据清理器
	dataCleaner := cleaner.NewCleaner(cfg.Sync.Retention)
	dataCleaner.Start()

	config.Watch(30 * time.Second)

	loopDone := make(chan struct{})
	goplus.Go(func() {
		defer close(loopDone)
		syncLoop(ctx, a.pipeline, cfg.Sync.Interval, triggers)
	})
	request(syncer.TriggerStartup)

	logger.Info().
		Str("wsURL", cfg.Hyperliquid.WSURL).
		Str("healthAddr", cfg.Metrics.HealthServerAddr).
		Dur("interval", cfg.Sync.Interval).
		Msg("portfolio_sync watching")

	// 优雅关闭
	stopped := make(chan struct{})
	sigproc.GracefulShutdown(30*time.Second, func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止触发并等待进行中的同步
		cancel()
		<-loopDone

		watcher.Stop()
		dataCleaner.Stop()
		config.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Stop(shutdownCtx)

		close(stopped)
	})

	<-stopped
	return nil
}

// syncLoop 串行执行同步；配置重载后间隔变化时重置 ticker
func syncLoop(ctx context.Context, pipeline *syncer.Pipeline, interval time.Duration, triggers <-chan string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func(trigger string) {
		if _, err := pipeline.Run(ctx, trigger); err != nil {
			logger.Error().Err(err).Str("trigger", trigger).Msg("sync run failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-triggers:
			run(trigger)
		case <-ticker.C:
			run(syncer.TriggerInterval)
			if c := config.Get(); c != nil && c.Sync.Interval > 0 && c.Sync.Interval != interval {
				interval = c.Sync.Interval
				ticker.Reset(interval)
				logger.Info().Dur("interval", interval).Msg("sync interval updated")
			}
		}
	}
}

func initLogger(cfg *config.Config) error {
	b := logger.NewBuilder().
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		EnableJSON(cfg.Logger.JSON)
	if cfg.Logger.InfoFile != "" {
		b.AddLevelFile(logger.INFO, cfg.Logger.InfoFile)
	}
	if cfg.Logger.ErrorFile != "" {
		b.AddLevelFile(logger.ERROR, cfg.Logger.ErrorFile)
	}
	return b.Build()
}
