package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dm-service/internal/models"
)

// Handler receives push events from a client subscription.
type Handler func(models.PushEvent)

// ClientSubscription is the client side of a channel subscription. The
// handler is bound when Dial returns and unbound by Close; no event reaches
// it after Close returns, apart from one already being handled.
type ClientSubscription struct {
	conn    *websocket.Conn
	handler Handler
	closed  atomic.Bool
	once    sync.Once
	done    chan struct{}
	err     error
}

// Dial subscribes to channel on the service at wsURL (the /ws endpoint).
func Dial(ctx context.Context, wsURL, channel, token string, handler Handler) (*ClientSubscription, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("channel", channel)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: status %d: %w", channel, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s := &ClientSubscription{conn: conn, handler: handler, done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

func (s *ClientSubscription) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var event models.PushEvent
		if err := json.Unmarshal(data, &event); err != nil {
			zap.L().Warn("drop malformed push frame", zap.Error(err))
			continue
		}
		if s.closed.Load() {
			return
		}
		s.handler(event)
	}
}

// Done is closed once the subscription stops reading.
func (s *ClientSubscription) Done() <-chan struct{} {
	return s.done
}

// Close unbinds the handler and closes the connection. Calling it again, or
// from inside the handler, is safe.
func (s *ClientSubscription) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.err = s.conn.Close()
	})
	return s.err
}
