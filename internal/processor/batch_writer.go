package processor

import (
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-portfolio/internal/dao"
	"github.com/utrading/utrading-portfolio/pkg/goplus"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// BatchItem 批量写入项接口
type BatchItem interface {
	TableName() string
	DedupKey() string // 返回去重键
}

// WriteFunc 写入同一张表的一批数据
type WriteFunc func(items []BatchItem) dao.WriteStats

// BatchWriterConfig 批量写入配置
type BatchWriterConfig struct {
	BatchSize     int           // 批量大小（默认 100）
	FlushInterval time.Duration // 刷新间隔（默认 2s）
	MaxQueueSize  int           // 最大队列大小（默认 10000）
	PoolSize      int           // 并发写表数（默认 8）
}

// BatchWriter 批量写入器
// 同一张表的写入串行，不同表在协程池中并发
type BatchWriter struct {
	config  *BatchWriterConfig
	writers map[string]WriteFunc
	pool    *ants.Pool

	queue    chan BatchItem
	flushReq chan chan struct{}
	buffers  map[string]map[string]BatchItem // table -> dedupKey -> item，仅 loop 协程访问
	pending  int

	statsMu sync.Mutex
	stats   map[string]dao.WriteStats

	flushTick *time.Ticker
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewBatchWriter 创建批量写入器，writers 按表名注册
func NewBatchWriter(config *BatchWriterConfig, writers map[string]WriteFunc) (*BatchWriter, error) {
	if config == nil {
		config = &BatchWriterConfig{}
	}

	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 2 * time.Second
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = 10000
	}
	if config.PoolSize <= 0 {
		config.PoolSize = 8
	}

	pool, err := ants.NewPool(config.PoolSize, ants.WithPanicHandler(func(p any) {
		logger.Error().Interface("panic", p).Msg("batch writer task panic")
	}))
	if err != nil {
		return nil, err
	}

	return &BatchWriter{
		config:   config,
		writers:  writers,
		pool:     pool,
		queue:    make(chan BatchItem, config.MaxQueueSize),
		flushReq: make(chan chan struct{}),
		buffers:  make(map[string]map[string]BatchItem),
		stats:    make(map[string]dao.WriteStats),
		done:     make(chan struct{}),
	}, nil
}

// Start 启动批量写入器
func (w *BatchWriter) Start() {
	w.flushTick = time.NewTicker(w.config.FlushInterval)

	w.wg.Add(1)
	goplus.Go(w.loop)
}

func (w *BatchWriter) loop() {
	defer w.wg.Done()
	for {
		select {
		case item := <-w.queue:
			w.buffer(item)
			if w.pending >= w.config.BatchSize {
				w.flushAll()
			}
		case <-w.flushTick.C:
			w.flushAll()
		case ack := <-w.flushReq:
			w.drain()
			w.flushAll()
			close(ack)
		case <-w.done:
			// 处理队列中剩余的数据
			w.drain()
			w.flushAll()
			return
		}
	}
}

func (w *BatchWriter) buffer(item BatchItem) {
	table := item.TableName()
	buf, ok := w.buffers[table]
	if !ok {
		buf = make(map[string]BatchItem)
		w.buffers[table] = buf
	}
	if _, exists := buf[item.DedupKey()]; !exists {
		w.pending++
	}
	buf[item.DedupKey()] = item // 直接覆盖，保留最新值
}

func (w *BatchWriter) drain() {
	for {
		select {
		case item := <-w.queue:
			w.buffer(item)
		default:
			return
		}
	}
}

// flushAll 每张表一个任务，等待全部完成
func (w *BatchWriter) flushAll() {
	if w.pending == 0 {
		return
	}

	var wg sync.WaitGroup
	for table, buf := range w.buffers {
		if len(buf) == 0 {
			continue
		}

		items := make([]BatchItem, 0, len(buf))
		for _, item := range buf {
			items = append(items, item)
		}

		fn, ok := w.writers[table]
		if !ok {
			logger.Warn().Str("table", table).Int("count", len(items)).Msg("unsupported table for batch write")
			continue
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			w.write(table, fn, items)
		}
		if err := w.pool.Submit(task); err != nil {
			// 池不可用时同步写入
			logger.Warn().Err(err).Str("table", table).Msg("submit flush task failed, writing inline")
			task()
		}
	}
	wg.Wait()

	w.buffers = make(map[string]map[string]BatchItem)
	w.pending = 0
}

func (w *BatchWriter) write(table string, fn WriteFunc, items []BatchItem) {
	start := time.Now()
	s := fn(items)

	w.statsMu.Lock()
	total := w.stats[table]
	total.Merge(s)
	w.stats[table] = total
	w.statsMu.Unlock()

	ev := logger.Debug()
	if s.Failed > 0 {
		ev = logger.Warn()
	}
	ev.Str("table", table).
		Int("count", len(items)).
		Int("written", s.Written).
		Int("duplicates", s.Duplicates).
		Int("failed", s.Failed).
		Dur("took", time.Since(start)).
		Msg("batch write done")
}

// Add 添加写入项，队列满时返回 ErrQueueFull
func (w *BatchWriter) Add(item BatchItem) error {
	select {
	case w.queue <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// AddAll 依次添加，队列满时先同步刷新再重试
func (w *BatchWriter) AddAll(items []BatchItem) error {
	for _, item := range items {
		if err := w.Add(item); err == nil {
			continue
		}
		w.Flush()
		if err := w.Add(item); err != nil {
			return err
		}
	}
	return nil
}

// Flush 同步刷新：返回时此前 Add 的数据都已写入
func (w *BatchWriter) Flush() {
	ack := make(chan struct{})
	select {
	case w.flushReq <- ack:
		<-ack
	case <-w.done:
	}
}

// Stats 每张表的累计写入结果
func (w *BatchWriter) Stats() map[string]dao.WriteStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	out := make(map[string]dao.WriteStats, len(w.stats))
	for k, v := range w.stats {
		out[k] = v
	}
	return out
}

// Stop 停止写入器，刷新所有缓冲数据
func (w *BatchWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()

		if w.flushTick != nil {
			w.flushTick.Stop()
		}
		w.pool.Release()
	})
}

// GracefulShutdown 优雅关闭，带超时控制
func (w *BatchWriter) GracefulShutdown(timeout time.Duration) error {
	done := make(chan struct{})
	goplus.Go(func() {
		w.Stop()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		logger.Warn().Dur("timeout", timeout).Msg("batch writer shutdown timeout")
		return ErrShutdownTimeout
	}
}

// ErrQueueFull 队列满错误
var ErrQueueFull = errors.New("write queue full")

// ErrShutdownTimeout 关闭超时错误
var ErrShutdownTimeout = errors.New("shutdown timeout")
