package models

import "encoding/json"

// Push event names.
const (
	EventIncomingMessage = "incoming-message"
	EventIncomingLike    = "incoming-like"
	EventNewMessage      = "new_message"
)

// PushEvent is the frame delivered to channel subscribers.
type PushEvent struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// NewPushEvent encodes payload into a PushEvent.
func NewPushEvent(channel, event string, payload any) (PushEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return PushEvent{}, err
	}
	return PushEvent{Channel: channel, Event: event, Data: data}, nil
}
