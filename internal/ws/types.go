package ws

import "encoding/json"

// Channel Hyperliquid WebSocket 频道
type Channel string

const (
	ChannelUserFills            Channel = "userFills"
	ChannelPong                 Channel = "pong"
	ChannelSubscriptionResponse Channel = "subscriptionResponse"
	ChannelError                Channel = "error"
)

// Subscription 订阅请求
type Subscription struct {
	Channel Channel `json:"type"`
	User    string  `json:"user,omitempty"`
}

// Key 返回订阅的唯一键
func (s Subscription) Key() string {
	if s.User != "" {
		return string(s.Channel) + ":" + s.User
	}
	return string(s.Channel)
}

// Message WebSocket 消息，Data 为原始 JSON
type Message struct {
	Channel Channel
	Data    json.RawMessage
}

// Handler 消息回调函数
type Handler func(msg Message) error
