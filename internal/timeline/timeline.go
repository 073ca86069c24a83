// Package timeline keeps a client's view of one chat in step with the push
// events broadcast on the chat channel.
package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dm-service/internal/models"
)

var ErrUnknownMessage = errors.New("message not in timeline")

// Timeline is a newest-first list of messages plus the pending reply context.
type Timeline struct {
	mu       sync.Mutex
	messages []models.Message
	replyTo  *models.Message
}

// New seeds a timeline from a newest-first history.
func New(initial []models.Message) *Timeline {
	msgs := make([]models.Message, len(initial))
	copy(msgs, initial)
	return &Timeline{messages: msgs}
}

// Messages returns a copy of the current list, newest first.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// SetReplyTo marks the message the next send replies to. Nil clears it.
func (t *Timeline) SetReplyTo(msg *models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if msg == nil {
		t.replyTo = nil
		return
	}
	m := *msg
	t.replyTo = &m
}

// ReplyTo returns the pending reply context, if any.
func (t *Timeline) ReplyTo() (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.replyTo == nil {
		return models.Message{}, false
	}
	return *t.replyTo, true
}

// ReplyingToID is the id to send as replyingTo, or nil.
func (t *Timeline) ReplyingToID() *string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.replyTo == nil {
		return nil
	}
	id := t.replyTo.ID
	return &id
}

// ToggleLike flips isLiked locally ahead of the server round trip and returns
// the previous state. The next incoming-like broadcast is authoritative.
func (t *Timeline) ToggleLike(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].ID == id {
			prev := t.messages[i].IsLiked
			t.messages[i].IsLiked = !prev
			return prev, nil
		}
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
}

// Apply folds a chat channel event into the timeline. Events it does not
// understand are ignored.
func (t *Timeline) Apply(event models.PushEvent) error {
	switch event.Event {
	case models.EventIncomingMessage:
		var msg models.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", event.Event, err)
		}
		t.prepend(msg)
		return nil
	case models.EventIncomingLike:
		return t.applyLike(event.Data)
	default:
		return nil
	}
}

func (t *Timeline) prepend(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append([]models.Message{msg}, t.messages...)
	t.replyTo = nil
}

func (t *Timeline) applyLike(data json.RawMessage) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		var msgs []models.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return fmt.Errorf("decode %s list: %w", models.EventIncomingLike, err)
		}
		t.mu.Lock()
		t.messages = msgs
		t.mu.Unlock()
		return nil
	}

	var delta models.LikeEvent
	if err := json.Unmarshal(data, &delta); err != nil {
		return fmt.Errorf("decode %s: %w", models.EventIncomingLike, err)
	}
	ref := models.MessageRef{ID: delta.ID, Timestamp: delta.Timestamp}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if ref.Matches(t.messages[i]) {
			t.messages[i].IsLiked = delta.IsLiked
			return nil
		}
	}
	zap.L().Debug("like for message outside timeline", zap.String("message_id", delta.ID))
	return nil
}
