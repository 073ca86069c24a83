package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/repositories"
)

var tracer = otel.Tracer("dm-service/chat")

// Notifier broadcasts named events on push channels.
type Notifier interface {
	Trigger(ctx context.Context, channel, event string, payload any) error
}

// Service implements the direct-message protocol: the chat authorization
// guard, sending, like toggling and history reads.
type Service struct {
	messages repositories.MessageRepository
	friends  repositories.FriendRepository
	users    repositories.UserRepository
	notifier Notifier

	fullLikeBroadcast bool
	now               func() time.Time
	newID             func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithFullLikeBroadcast makes like toggles broadcast the whole chat log
// instead of a single-message delta.
func WithFullLikeBroadcast() Option {
	return func(s *Service) { s.fullLikeBroadcast = true }
}

// WithClock overrides the wall clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService builds a Service.
func NewService(messages repositories.MessageRepository, friends repositories.FriendRepository, users repositories.UserRepository, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		messages: messages,
		friends:  friends,
		users:    users,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize checks that callerID is a member of the chat and is friends with
// the other member. It returns the parsed chat id and the counterpart.
func (s *Service) Authorize(ctx context.Context, rawChatID, callerID string) (models.ChatID, string, error) {
	chatID, err := models.ParseChatID(rawChatID)
	if err != nil {
		return models.ChatID{}, "", ErrUnauthorized
	}
	if !chatID.HasParticipant(callerID) {
		return models.ChatID{}, "", ErrUnauthorized
	}

	friendID := chatID.Counterpart(callerID)
	isFriend, err := s.friends.IsFriend(ctx, callerID, friendID)
	if err != nil {
		return models.ChatID{}, "", fmt.Errorf("check friendship: %w", err)
	}
	if !isFriend {
		return models.ChatID{}, "", ErrUnauthorized
	}
	return chatID, friendID, nil
}

// AuthorizeChannel decides whether userID may subscribe to a push channel.
func (s *Service) AuthorizeChannel(ctx context.Context, userID, channel string) error {
	kind, id := models.ParseChannel(channel)
	switch kind {
	case models.ChannelChat:
		_, _, err := s.Authorize(ctx, id, userID)
		return err
	case models.ChannelUserChats:
		if id != userID {
			return ErrUnauthorized
		}
		return nil
	default:
		return ErrUnauthorized
	}
}

// SendRequest describes a message to send.
type SendRequest struct {
	ChatID     string
	SenderID   string
	Text       string
	ReplyingTo *string
}

// Send validates, broadcasts and stores a new message. The broadcast happens
// before the write, so a failed write can leave a published but unstored
// message.
func (s *Service) Send(ctx context.Context, req SendRequest) (msg models.Message, err error) {
	ctx, span := tracer.Start(ctx, "chat.Send", trace.WithAttributes(attribute.String("chat.id", req.ChatID)))
	defer func() { endSpan(span, err) }()

	chatID, friendID, err := s.Authorize(ctx, req.ChatID, req.SenderID)
	if err != nil {
		return models.Message{}, err
	}

	sender, err := s.users.GetUser(ctx, req.SenderID)
	if err != nil {
		return models.Message{}, fmt.Errorf("load sender: %w", err)
	}

	replyingTo := req.ReplyingTo
	if replyingTo != nil && *replyingTo == "" {
		replyingTo = nil
	}
	msg = models.Message{
		ID:         s.newID(),
		SenderID:   req.SenderID,
		Text:       req.Text,
		Timestamp:  s.now().UnixMilli(),
		IsLiked:    false,
		ReplyingTo: replyingTo,
	}
	if err := msg.Validate(); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	span.SetAttributes(attribute.String("message.id", msg.ID))

	if err := s.trigger(ctx, chatID.Channel(), models.EventIncomingMessage, msg); err != nil {
		return models.Message{}, err
	}
	if err := s.trigger(ctx, models.UserChatsChannel(friendID), models.EventNewMessage, models.NewMessageEvent{
		Message:    msg,
		SenderImg:  sender.Image,
		SenderName: sender.Name,
	}); err != nil {
		return models.Message{}, err
	}

	if err := s.messages.AddMessage(ctx, chatID, msg); err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}

	observability.IncMessageSent()
	zap.L().Debug("message sent",
		zap.String("chat_id", chatID.String()),
		zap.String("user_id", req.SenderID),
		zap.String("message_id", msg.ID),
	)
	return msg, nil
}

// LikeRequest identifies the message whose like state should flip.
type LikeRequest struct {
	ChatID   string
	CallerID string
	Target   models.MessageRef
}

// ToggleLike flips isLiked on the target message and broadcasts the change
// once the store has committed it.
func (s *Service) ToggleLike(ctx context.Context, req LikeRequest) (msg models.Message, err error) {
	ctx, span := tracer.Start(ctx, "chat.ToggleLike", trace.WithAttributes(attribute.String("chat.id", req.ChatID)))
	defer func() { endSpan(span, err) }()

	chatID, _, err := s.Authorize(ctx, req.ChatID, req.CallerID)
	if err != nil {
		return models.Message{}, err
	}
	if req.Target.IsZero() {
		return models.Message{}, fmt.Errorf("%w: message id or timestamp is required", ErrValidation)
	}

	res, err := s.messages.ToggleLike(ctx, chatID, req.Target)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			observability.IncLikeConflict()
		}
		return models.Message{}, err
	}
	observability.IncLikeToggle(res.Message.IsLiked)
	span.SetAttributes(attribute.String("message.id", res.Message.ID), attribute.Bool("message.liked", res.Message.IsLiked))

	var payload any = models.LikeEvent{
		ID:        res.Message.ID,
		Timestamp: res.Message.Timestamp,
		IsLiked:   res.Message.IsLiked,
	}
	if s.fullLikeBroadcast {
		payload = res.Messages
	}
	if err := s.trigger(ctx, chatID.Channel(), models.EventIncomingLike, payload); err != nil {
		return models.Message{}, err
	}

	zap.L().Debug("like toggled",
		zap.String("chat_id", chatID.String()),
		zap.String("user_id", req.CallerID),
		zap.String("message_id", res.Message.ID),
		zap.Bool("liked", res.Message.IsLiked),
	)
	return res.Message, nil
}

// History returns the chat log newest first.
func (s *Service) History(ctx context.Context, rawChatID, callerID string) ([]models.Message, error) {
	chatID, _, err := s.Authorize(ctx, rawChatID, callerID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

func (s *Service) trigger(ctx context.Context, channel, event string, payload any) error {
	if err := s.notifier.Trigger(ctx, channel, event, payload); err != nil {
		return fmt.Errorf("trigger %s on %s: %w", event, channel, err)
	}
	observability.IncPushEvent(event)
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
