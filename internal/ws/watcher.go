package ws

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-portfolio/internal/monitor"
	"github.com/utrading/utrading-portfolio/pkg/goplus"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = time.Minute

	// 持续成交时，首条成交后最多等待 maxWaitFactor 个防抖窗口
	maxWaitFactor = 4
)

// Watcher 订阅钱包的 userFills，收到新成交后防抖触发同步
// 快照消息（isSnapshot=true）只在订阅时下发历史成交，忽略
type Watcher struct {
	url      string
	wallets  []string
	debounce time.Duration
	maxWait  time.Duration
	onFills  func()

	minDelay time.Duration
	maxDelay time.Duration

	mu      sync.Mutex
	client  *Client
	timer   *time.Timer
	pending time.Time // 本轮首条成交时间，触发后清零

	done     chan struct{}
	stopOnce sync.Once
}

func NewWatcher(url string, wallets []string, debounce time.Duration, onFills func()) *Watcher {
	return &Watcher{
		url:      url,
		wallets:  wallets,
		debounce: debounce,
		maxWait:  debounce * maxWaitFactor,
		onFills:  onFills,
		minDelay: minReconnectDelay,
		maxDelay: maxReconnectDelay,
		done:     make(chan struct{}),
	}
}

// Start 后台连接，断线后指数退避重连
func (w *Watcher) Start(ctx context.Context) {
	goplus.Go(func() {
		w.run(ctx)
	})
}

func (w *Watcher) run(ctx context.Context) {
	delay := w.minDelay
	for {
		disconnected, err := w.connect(ctx)
		if err != nil {
			logger.Warn().Err(err).Dur("retryIn", delay).Msg("ws connect failed")
		} else {
			delay = w.minDelay
			select {
			case <-disconnected:
				logger.Warn().Dur("retryIn", delay).Msg("ws disconnected")
			case <-ctx.Done():
				w.closeClient()
				return
			case <-w.done:
				w.closeClient()
				return
			}
			w.closeClient()
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
		delay = min(delay*2, w.maxDelay)
	}
}

func (w *Watcher) connect(ctx context.Context) (<-chan struct{}, error) {
	disconnected := make(chan struct{})
	var once sync.Once

	c := NewClient(w.url, w.handle, func() {
		monitor.GetMetrics().SetWebSocketConnected(false)
		once.Do(func() { close(disconnected) })
	})

	subs := make([]Subscription, 0, len(w.wallets))
	for _, wallet := range w.wallets {
		subs = append(subs, Subscription{Channel: ChannelUserFills, User: wallet})
	}
	if err := c.Dial(ctx, subs...); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.client = c
	w.mu.Unlock()

	monitor.GetMetrics().SetWebSocketConnected(true)
	logger.Info().Str("url", w.url).Int("wallets", len(w.wallets)).Msg("ws connected")
	return disconnected, nil
}

func (w *Watcher) closeClient() {
	w.mu.Lock()
	c := w.client
	w.client = nil
	w.mu.Unlock()

	if c != nil {
		_ = c.Close()
	}
}

func (w *Watcher) handle(msg Message) error {
	switch msg.Channel {
	case ChannelUserFills:
		user := gjson.GetBytes(msg.Data, "user").String()
		if gjson.GetBytes(msg.Data, "isSnapshot").Bool() {
			logger.Debug().Str("user", user).Msg("skip userFills snapshot")
			return nil
		}
		n := gjson.GetBytes(msg.Data, "fills.#").Int()
		if n == 0 {
			return nil
		}
		logger.Info().Str("user", user).Int64("fills", n).Msg("new fills received")
		w.schedule()
	case ChannelError:
		logger.Warn().Str("data", string(msg.Data)).Msg("ws error message")
	}
	return nil
}

// schedule 防抖窗口内的多次成交只触发一次
// 连续成交不断推迟触发，但距本轮首条成交不超过 maxWait
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if w.pending.IsZero() {
		w.pending = now
	}
	wait := min(w.debounce, w.pending.Add(w.maxWait).Sub(now))
	wait = max(wait, 0)

	if w.timer == nil {
		w.timer = time.AfterFunc(wait, w.fire)
		return
	}
	w.timer.Reset(wait)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.pending = time.Time{}
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}
	monitor.GetMetrics().IncWSTriggers()
	w.onFills()
}

func (w *Watcher) IsConnected() bool {
	w.mu.Lock()
	c := w.client
	w.mu.Unlock()
	return c != nil && c.IsConnected()
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		w.closeClient()
	})
}
