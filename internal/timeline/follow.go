package timeline

import (
	"context"

	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/ws"
)

// Follow subscribes tl to the chat channel of chatID. The returned
// subscription must be closed when the chat view goes away.
func Follow(ctx context.Context, wsURL, chatID, token string, tl *Timeline) (*ws.ClientSubscription, error) {
	parsed, err := models.ParseChatID(chatID)
	if err != nil {
		return nil, err
	}
	return ws.Dial(ctx, wsURL, parsed.Channel(), token, func(event models.PushEvent) {
		if err := tl.Apply(event); err != nil {
			zap.L().Warn("apply push event", zap.String("event", event.Event), zap.Error(err))
		}
	})
}
