package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"dm-service/internal/auth"
	"dm-service/internal/observability"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
	maxFrame   = 4096
)

// ChannelAuthorizer decides whether a user may listen on a push channel.
type ChannelAuthorizer interface {
	AuthorizeChannel(ctx context.Context, userID, channel string) error
}

// TokenValidator resolves a session token to a user id.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// SubscribeHandler upgrades authorized requests to websocket subscriptions.
type SubscribeHandler struct {
	hub        *Hub
	authorizer ChannelAuthorizer
	tokens     TokenValidator
}

// NewSubscribeHandler constructs a SubscribeHandler.
func NewSubscribeHandler(hub *Hub, authorizer ChannelAuthorizer, tokens TokenValidator) *SubscribeHandler {
	return &SubscribeHandler{hub: hub, authorizer: authorizer, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, authorizes the requested channel and
// keeps the subscription open until the client goes away.
func (h *SubscribeHandler) Handle(c *gin.Context) {
	channel := c.Query("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing channel"})
		return
	}

	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	userID, ok := h.authorize(ctx, c, channel)
	span.End()
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	info := ConnInfo{
		Identity:    observability.IdentityFromRequest(c.Request),
		ConnID:      newConnID(),
		UserID:      userID,
		TraceID:     observability.TraceIDFromContext(ctx),
		ConnectedAt: time.Now(),
	}
	sub := h.hub.Subscribe(channel, conn, info)
	defer sub.Close()

	kind := channelKind(channel)
	observability.IncWSActive(kind)
	defer observability.DecWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	publishLifecycle(ctx, sub, "ws_connect", "")

	stop := make(chan struct{})
	defer close(stop)
	go keepAlive(conn, stop)

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			reason := err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(kind, "ws_error")
				publishLifecycle(ctx, sub, "ws_error", reason)
			}
			observability.IncWSEvent(kind, "ws_disconnect")
			publishLifecycle(ctx, sub, "ws_disconnect", reason)
			return
		}
	}
}

// authorize resolves the caller and checks the channel, writing the refusal
// itself when it fails.
func (h *SubscribeHandler) authorize(ctx context.Context, c *gin.Context, channel string) (string, bool) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return "", false
	}

	if err := h.authorizer.AuthorizeChannel(ctx, userID, channel); err != nil {
		zap.L().Info("subscription refused",
			zap.String("channel", channel),
			zap.String("user_id", userID),
			zap.String("trace_id", observability.TraceIDFromContext(ctx)),
			zap.Error(err),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for channel"})
		return "", false
	}
	return userID, true
}

func keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func publishLifecycle(ctx context.Context, sub *Subscription, event, reason string) {
	info := sub.info
	_ = observability.PublishEvent(ctx, wsRoutingKey(channelKind(sub.channel)), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   info.lifecyclePayload(sub.channel, event, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
