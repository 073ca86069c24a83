package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans push events out to the subscribers of each channel.
type Hub struct {
	channels map[string]map[*Subscription]struct{}
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is one connection's membership in one channel. It is released
// exactly once, however many times Close is called.
type Subscription struct {
	hub     *Hub
	channel string
	conn    Conn
	info    ConnInfo

	writeMu sync.Mutex
	once    sync.Once
}

// Subscribe registers conn on channel. The caller owns the returned
// subscription and must Close it on every exit path.
func (h *Hub) Subscribe(channel string, conn Conn, info ConnInfo) *Subscription {
	sub := &Subscription{hub: h, channel: channel, conn: conn, info: info}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Subscription]struct{})
	}
	h.channels[channel][sub] = struct{}{}
	return sub
}

// Channel returns the channel the subscription listens on.
func (s *Subscription) Channel() string {
	return s.channel
}

// Close removes the subscription from its hub. The connection itself is left
// to its owner.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

func (s *Subscription) write(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.channels[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.channels, sub.channel)
		}
	}
}

// Subscribers returns the number of live subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Trigger delivers event on channel to the local subscribers.
func (h *Hub) Trigger(ctx context.Context, channel, event string, payload any) error {
	push, err := models.NewPushEvent(channel, event, payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	h.Deliver(push)
	return nil
}

// Deliver writes an already-encoded event to every subscriber of its channel.
// A subscriber whose write fails is dropped.
func (h *Hub) Deliver(event models.PushEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("encode push frame", zap.String("channel", event.Channel), zap.Error(err))
		return
	}

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.channels[event.Channel]))
	for sub := range h.channels[event.Channel] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.write(payload); err != nil {
			zap.L().Warn("websocket write error",
				zap.String("channel", event.Channel),
				zap.String("conn_id", sub.info.ConnID),
				zap.Error(err),
			)
			sub.conn.Close()
			sub.Close()
			publishWSError(sub, err)
		}
	}
}

func publishWSError(sub *Subscription, err error) {
	publishLifecycle(context.Background(), sub, "ws_error", err.Error())
	observability.IncWSEvent(channelKind(sub.channel), "ws_error")
}
