package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-portfolio/pkg/goplus"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second // 服务端 60s 无消息会断开
	pingInterval     = 50 * time.Second
	maxFrameSize     = 2 << 20
)

var errNotConnected = errors.New("ws: not connected")

type subscribeRequest struct {
	Method       string       `json:"method"`
	Subscription Subscription `json:"subscription"`
}

// Client 单条连接，不负责重连；断线后由 Watcher 新建
type Client struct {
	url          string
	handler      Handler
	onDisconnect func()
	pingEvery    time.Duration

	conn      *websocket.Conn
	connected atomic.Bool
	writeMu   sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(url string, handler Handler, onDisconnect func()) *Client {
	if url == "" {
		panic("ws: URL cannot be empty")
	}
	return &Client{
		url:          url,
		handler:      handler,
		onDisconnect: onDisconnect,
		pingEvery:    pingInterval,
		done:         make(chan struct{}),
	}
}

// Dial 建立连接并发送订阅，成功后启动读循环与心跳
// ctx 取消时连接随之关闭
func (c *Client) Dial(ctx context.Context, subs ...Subscription) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(maxFrameSize)
	c.conn = conn
	c.connected.Store(true)

	for _, sub := range subs {
		if err = c.send(subscribeRequest{Method: "subscribe", Subscription: sub}); err != nil {
			_ = c.Close()
			return fmt.Errorf("subscribe %s: %w", sub.Key(), err)
		}
	}

	goplus.Go(func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	})
	goplus.Go(c.readLoop)
	goplus.Go(c.keepalive)
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.connected.Store(false)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.connected.Store(false)
		_ = c.conn.Close()
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
	}()

	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing() {
				logger.Warn().Err(err).Str("url", c.url).Msg("ws read failed")
			}
			return
		}

		msg, ok := decode(frame)
		if !ok {
			logger.Warn().Str("raw", truncate(frame, 200)).Msg("ws message without channel")
			continue
		}
		if msg.Channel == ChannelPong || c.handler == nil {
			continue
		}
		if err = c.handler(msg); err != nil {
			logger.Error().Err(err).Str("channel", string(msg.Channel)).Msg("ws handler failed")
		}
	}
}

// keepalive 应用层心跳，服务端回复 pong 频道
func (c *Client) keepalive() {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(map[string]string{"method": "ping"}); err != nil {
				logger.Debug().Err(err).Msg("ws ping failed")
				return
			}
		}
	}
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.connected.Load() {
		return errNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// decode 只取 channel 与 data，data 保持原始 JSON
func decode(frame []byte) (Message, bool) {
	channel := gjson.GetBytes(frame, "channel")
	if !channel.Exists() {
		return Message{}, false
	}
	return Message{
		Channel: Channel(channel.String()),
		Data:    json.RawMessage(gjson.GetBytes(frame, "data").Raw),
	}, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
