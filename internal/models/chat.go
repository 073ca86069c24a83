package models

import (
	"errors"
	"strings"
)

// ChatIDSeparator joins the two participant ids of a chat identifier.
const ChatIDSeparator = "--"

var ErrInvalidChatID = errors.New("invalid chat id")

// ChatID names a two-party conversation as "userA--userB".
type ChatID struct {
	Raw     string
	UserAID string
	UserBID string
}

// ParseChatID splits a chat identifier into its participants.
func ParseChatID(raw string) (ChatID, error) {
	parts := strings.Split(raw, ChatIDSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ChatID{}, ErrInvalidChatID
	}
	return ChatID{Raw: raw, UserAID: parts[0], UserBID: parts[1]}, nil
}

// BuildChatID returns the identifier for two users with ids in sorted order.
func BuildChatID(userID, friendID string) string {
	if userID > friendID {
		userID, friendID = friendID, userID
	}
	return userID + ChatIDSeparator + friendID
}

// HasParticipant reports whether userID is one of the two chat members.
func (c ChatID) HasParticipant(userID string) bool {
	return userID != "" && (c.UserAID == userID || c.UserBID == userID)
}

// Counterpart returns the other member of the chat.
func (c ChatID) Counterpart(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

func (c ChatID) String() string {
	return c.Raw
}

// MessagesKey is the sorted set holding the chat log.
func (c ChatID) MessagesKey() string {
	return "chat:" + c.Raw + ":messages"
}

// Channel is the push channel for events inside this chat.
func (c ChatID) Channel() string {
	return "chat:" + c.Raw
}

// UserChatsChannel is the personal push channel of a user.
func UserChatsChannel(userID string) string {
	return "user:" + userID + ":chats"
}

// ChannelKind classifies a push channel name.
type ChannelKind int

const (
	ChannelUnknown ChannelKind = iota
	ChannelChat
	ChannelUserChats
)

// ParseChannel resolves a push channel to its kind and the chat or user it
// belongs to.
func ParseChannel(channel string) (ChannelKind, string) {
	if rest, ok := strings.CutPrefix(channel, "chat:"); ok && rest != "" {
		return ChannelChat, rest
	}
	if rest, ok := strings.CutPrefix(channel, "user:"); ok {
		if id, ok := strings.CutSuffix(rest, ":chats"); ok && id != "" {
			return ChannelUserChats, id
		}
	}
	return ChannelUnknown, ""
}
