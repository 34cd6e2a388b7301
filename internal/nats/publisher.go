package nats

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-portfolio/internal/monitor"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// Publisher NATS 发布器
type Publisher struct {
	*nats.Conn
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("portfolio_sync"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitor.GetMetrics().SetNATSConnected(false)
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			monitor.GetMetrics().SetNATSConnected(true)
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		Conn: conn,
	}

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(true)

	return p, nil
}

// PublishReport 发布同步报告
func (p *Publisher) PublishReport(r *SyncReport) error {
	return p.publish(SubjectSyncReport, r)
}

// PublishTrades 发布本次新写入的成交，空列表不发送
func (p *Publisher) PublishTrades(t *NewTrades) error {
	if len(t.Trades) == 0 {
		return nil
	}
	return p.publish(SubjectNewTrades, t)
}

func (p *Publisher) publish(subject string, msg marshaler) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := msg.Marshal()
	if err != nil {
		logger.Error().Err(err).Str("subject", subject).Msg("marshal message failed")
		return err
	}

	return p.Publish(subject, data)
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && !p.Conn.IsClosed()
}

// Close 关闭连接，先 flush 已发布的消息
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(false)

	if p.Conn != nil {
		if err := p.Conn.FlushTimeout(2 * time.Second); err != nil {
			logger.Warn().Err(err).Msg("nats flush on close failed")
		}
		p.Conn.Close()
	}
	return nil
}
