package models

import (
	"github.com/go-playground/validator/v10"
)

// MaxTextLength bounds a message body, counted in runes.
const MaxTextLength = 2000

// Message is a single entry of a chat log. It is stored as JSON in the
// chat's sorted set with its Timestamp as score.
type Message struct {
	ID         string  `json:"id" validate:"required"`
	SenderID   string  `json:"senderId" validate:"required"`
	Text       string  `json:"text" validate:"required,max=2000"`
	Timestamp  int64   `json:"timestamp" validate:"gt=0"`
	IsLiked    bool    `json:"isLiked"`
	ReplyingTo *string `json:"replyingTo"`
}

var validate = validator.New()

// Validate checks the shape of a message before it is published or stored.
func (m Message) Validate() error {
	return validate.Struct(m)
}

// NewMessageEvent is pushed on the counterpart's personal channel so a chat
// list can update without subscribing to every chat.
type NewMessageEvent struct {
	Message
	SenderImg  string `json:"senderImg"`
	SenderName string `json:"senderName"`
}

// LikeEvent is the delta broadcast after a like toggle.
type LikeEvent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	IsLiked   bool   `json:"isLiked"`
}
