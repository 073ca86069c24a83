package ws

import (
	"github.com/google/uuid"

	"dm-service/internal/models"
)

func newConnID() string {
	return uuid.NewString()
}

func channelKind(channel string) string {
	kind, _ := models.ParseChannel(channel)
	if kind == models.ChannelUserChats {
		return "user"
	}
	return "chat"
}

func wsRoutingKey(kind string) string {
	if kind == "user" {
		return "ws_events.users"
	}
	return "ws_events.chats"
}
