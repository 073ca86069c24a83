package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) events(t *testing.T) []models.PushEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.PushEvent, 0, len(c.frames))
	for _, f := range c.frames {
		var ev models.PushEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func TestHubSubscribeAndClose(t *testing.T) {
	hub := NewHub()

	sub := hub.Subscribe("chat:a--b", &fakeConn{}, ConnInfo{ConnID: "c1"})
	assert.Equal(t, "chat:a--b", sub.Channel())
	assert.Equal(t, 1, hub.Subscribers("chat:a--b"))

	sub.Close()
	assert.Equal(t, 0, hub.Subscribers("chat:a--b"))
	assert.Empty(t, hub.channels)
}

func TestSubscriptionCloseTwiceIsNoop(t *testing.T) {
	hub := NewHub()
	first := hub.Subscribe("chat:a--b", &fakeConn{}, ConnInfo{})
	second := hub.Subscribe("chat:a--b", &fakeConn{}, ConnInfo{})

	first.Close()
	first.Close()

	assert.Equal(t, 1, hub.Subscribers("chat:a--b"))
	second.Close()
	assert.Equal(t, 0, hub.Subscribers("chat:a--b"))
}

func TestHubRapidSubscribeCloseCycles(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe("chat:a--b", &fakeConn{}, ConnInfo{})
			_ = hub.Trigger(context.Background(), "chat:a--b", models.EventIncomingMessage, "x")
			sub.Close()
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers("chat:a--b"))
}

func TestHubTriggerOnlyReachesChannel(t *testing.T) {
	hub := NewHub()
	inChat := &fakeConn{}
	otherChat := &fakeConn{}
	defer hub.Subscribe("chat:a--b", inChat, ConnInfo{}).Close()
	defer hub.Subscribe("chat:a--c", otherChat, ConnInfo{}).Close()

	msg := models.Message{ID: "m1", SenderID: "a", Text: "hi", Timestamp: 10}
	require.NoError(t, hub.Trigger(context.Background(), "chat:a--b", models.EventIncomingMessage, msg))

	events := inChat.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "chat:a--b", events[0].Channel)
	assert.Equal(t, models.EventIncomingMessage, events[0].Event)

	var got models.Message
	require.NoError(t, json.Unmarshal(events[0].Data, &got))
	assert.Equal(t, msg, got)
	assert.Empty(t, otherChat.events(t))
}

func TestHubDropsFailedSubscriber(t *testing.T) {
	hub := NewHub()
	broken := &fakeConn{writeErr: errors.New("broken pipe")}
	healthy := &fakeConn{}
	hub.Subscribe("user:b:chats", broken, ConnInfo{ConnID: "broken"})
	defer hub.Subscribe("user:b:chats", healthy, ConnInfo{ConnID: "healthy"}).Close()

	require.NoError(t, hub.Trigger(context.Background(), "user:b:chats", models.EventNewMessage, map[string]string{"id": "m1"}))

	assert.True(t, broken.closed)
	assert.Equal(t, 1, hub.Subscribers("user:b:chats"))
	assert.Len(t, healthy.events(t), 1)
}

func TestHubTriggerRejectsUnencodablePayload(t *testing.T) {
	hub := NewHub()
	err := hub.Trigger(context.Background(), "chat:a--b", models.EventIncomingLike, make(chan int))
	assert.Error(t, err)
}

func TestChannelKind(t *testing.T) {
	assert.Equal(t, "user", channelKind("user:42:chats"))
	assert.Equal(t, "chat", channelKind("chat:a--b"))
	assert.Equal(t, "ws_events.users", wsRoutingKey("user"))
	assert.Equal(t, "ws_events.chats", wsRoutingKey("chat"))
}
