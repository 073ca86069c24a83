package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/mediocregopher/radix/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/chat"
	"dm-service/internal/middleware"
	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

type messageServiceMock struct {
	mock.Mock
}

func (m *messageServiceMock) Send(ctx context.Context, req chat.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *messageServiceMock) ToggleLike(ctx context.Context, req chat.LikeRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *messageServiceMock) History(ctx context.Context, rawChatID, callerID string) ([]models.Message, error) {
	args := m.Called(ctx, rawChatID, callerID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func setupMessageRouter(handler *MessageHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	})
	r.POST("/api/message/send", handler.Send)
	r.PUT("/api/message/like", handler.Like)
	r.GET("/api/chats/:chat_id/messages", handler.History)
	return r
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendSuccess(t *testing.T) {
	svc := new(messageServiceMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "dm-service", "test")
	router := setupMessageRouter(NewMessageHandler(svc, audit), "a")

	reply := "m0"
	svc.On("Send", mock.Anything, chat.SendRequest{ChatID: "a--b", SenderID: "a", Text: "hi", ReplyingTo: &reply}).
		Return(models.Message{ID: "m1"}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Attributes["message_id"] == "m1" && env.UserID != nil && *env.UserID == "a"
	})).Return(nil).Once()

	rec := do(router, http.MethodPost, "/api/message/send", `{"text":"hi","chatId":"a--b","replyingTo":"m0"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	svc.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSendBadPayload(t *testing.T) {
	svc := new(messageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil), "a")

	rec := do(router, http.MethodPost, "/api/message/send", `{"text":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthorized", chat.ErrUnauthorized, http.StatusUnauthorized},
		{"validation", fmt.Errorf("%w: text too long", chat.ErrValidation), http.StatusBadRequest},
		{"not found", chat.ErrMessageNotFound, http.StatusNotFound},
		{"conflict", chat.ErrConflict, http.StatusConflict},
		{"store", fmt.Errorf("store message: %w", assert.AnError), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(messageServiceMock)
			router := setupMessageRouter(NewMessageHandler(svc, nil), "a")
			svc.On("ToggleLike", mock.Anything, mock.Anything).Return(models.Message{}, tc.err).Once()

			rec := do(router, http.MethodPut, "/api/message/like", `{"chatId":"a--b","messageId":"m1"}`)

			assert.Equal(t, tc.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
		})
	}
}

func TestLikeAcceptsLegacyTimestamp(t *testing.T) {
	svc := new(messageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil), "b")

	svc.On("ToggleLike", mock.Anything, chat.LikeRequest{ChatID: "a--b", CallerID: "b", Target: models.MessageRef{Timestamp: 1700}}).
		Return(models.Message{ID: "m1", IsLiked: true}, nil).Once()

	rec := do(router, http.MethodPut, "/api/message/like", `{"chatId":"a--b","timestamp":1700}`)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestHistoryEmpty(t *testing.T) {
	svc := new(messageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil), "a")
	svc.On("History", mock.Anything, "a--b", "a").Return(nil, nil).Once()

	rec := do(router, http.MethodGet, "/api/chats/a--b/messages", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

type redisRouter struct {
	router *gin.Engine
	srv    *miniredis.Miniredis
	hub    *ws.Hub
}

func newRedisRouter(t *testing.T, userID string) *redisRouter {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := radix.NewPool("tcp", srv.Addr(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = srv.SAdd("user:a:friends", "b")
	require.NoError(t, err)
	_, err = srv.SAdd("user:b:friends", "a")
	require.NoError(t, err)
	require.NoError(t, srv.Set("user:a", `{"id":"a","name":"Ann","email":"a@x.io","image":"a.png"}`))

	hub := ws.NewHub()
	service := chat.NewService(
		repositories.NewMessageRepo(client),
		repositories.NewFriendRepo(client),
		repositories.NewUserRepo(client),
		hub,
	)
	return &redisRouter{router: setupMessageRouter(NewMessageHandler(service, nil), userID), srv: srv, hub: hub}
}

func TestSendThenLikeAgainstRedis(t *testing.T) {
	rr := newRedisRouter(t, "a")

	rec := do(rr.router, http.MethodPost, "/api/message/send", `{"text":"hello","chatId":"a--b"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	members, err := rr.srv.ZMembers("chat:a--b:messages")
	require.NoError(t, err)
	require.Len(t, members, 1)
	var stored models.Message
	require.NoError(t, json.Unmarshal([]byte(members[0]), &stored))
	assert.Equal(t, "hello", stored.Text)
	assert.False(t, stored.IsLiked)
	assert.Nil(t, stored.ReplyingTo)

	rec = do(rr.router, http.MethodPut, "/api/message/like", `{"chatId":"a--b","messageId":"`+stored.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(rr.router, http.MethodGet, "/api/chats/a--b/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.True(t, resp.Messages[0].IsLiked)
}

func TestSendRejectsNonFriendAgainstRedis(t *testing.T) {
	rr := newRedisRouter(t, "a")

	rec := do(rr.router, http.MethodPost, "/api/message/send", `{"text":"hello","chatId":"a--c"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, rr.srv.Exists("chat:a--c:messages"))
}

func TestSendRejectsOverlongTextAgainstRedis(t *testing.T) {
	rr := newRedisRouter(t, "a")
	body, err := json.Marshal(map[string]string{"text": string(bytes.Repeat([]byte("x"), models.MaxTextLength+1)), "chatId": "a--b"})
	require.NoError(t, err)

	rec := do(rr.router, http.MethodPost, "/api/message/send", string(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, rr.srv.Exists("chat:a--b:messages"))
}

func TestLikeUnknownMessageAgainstRedis(t *testing.T) {
	rr := newRedisRouter(t, "b")

	rec := do(rr.router, http.MethodPut, "/api/message/like", `{"chatId":"a--b","messageId":"missing"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
