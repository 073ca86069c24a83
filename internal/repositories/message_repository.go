package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"dm-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrConflict        = errors.New("chat log modified concurrently")
)

// maxToggleAttempts bounds optimistic transaction retries for a like toggle.
const maxToggleAttempts = 3

// MessageRepository persists chat logs as Redis sorted sets.
type MessageRepository interface {
	AddMessage(ctx context.Context, chatID models.ChatID, msg models.Message) error
	ListMessages(ctx context.Context, chatID models.ChatID) ([]models.Message, error)
	ToggleLike(ctx context.Context, chatID models.ChatID, ref models.MessageRef) (ToggleResult, error)
}

// ToggleResult carries the toggled message and the log as it looked after
// the toggle, newest first.
type ToggleResult struct {
	Message  models.Message
	Messages []models.Message
}

// MessageRepo is a radix-backed MessageRepository.
type MessageRepo struct {
	client radix.Client

	// afterRead runs between the WATCHed read and MULTI; tests use it to
	// interleave a concurrent writer.
	afterRead func()
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(client radix.Client) *MessageRepo {
	return &MessageRepo{client: client}
}

// AddMessage stores msg in the chat log with its timestamp as score.
func (r *MessageRepo) AddMessage(ctx context.Context, chatID models.ChatID, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.Do(radix.FlatCmd(nil, "ZADD", chatID.MessagesKey(), msg.Timestamp, body)); err != nil {
		return fmt.Errorf("zadd %s: %w", chatID.MessagesKey(), err)
	}
	return nil
}

// ListMessages returns the full chat log, newest first.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID models.ChatID) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raws []string
	if err := r.client.Do(radix.Cmd(&raws, "ZREVRANGE", chatID.MessagesKey(), "0", "-1")); err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", chatID.MessagesKey(), err)
	}
	return decodeMessages(raws)
}

// ToggleLike flips isLiked on the referenced message inside an optimistic
// transaction: the log key is WATCHed while it is read, and the stored member
// is replaced by the flipped one in a single MULTI/EXEC. An aborted EXEC is
// retried from the read.
func (r *MessageRepo) ToggleLike(ctx context.Context, chatID models.ChatID, ref models.MessageRef) (ToggleResult, error) {
	key := chatID.MessagesKey()
	for attempt := 1; attempt <= maxToggleAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ToggleResult{}, err
		}

		var (
			result    ToggleResult
			committed bool
		)
		err := r.client.Do(radix.WithConn(key, func(conn radix.Conn) error {
			var err error
			result, committed, err = r.toggleOnce(conn, key, ref)
			return err
		}))
		if err != nil {
			return ToggleResult{}, err
		}
		if committed {
			return result, nil
		}
		zap.L().Debug("like toggle aborted by concurrent write",
			zap.String("chat_id", chatID.String()),
			zap.Int("attempt", attempt),
		)
	}
	return ToggleResult{}, ErrConflict
}

func (r *MessageRepo) toggleOnce(conn radix.Conn, key string, ref models.MessageRef) (ToggleResult, bool, error) {
	if err := conn.Do(radix.Cmd(nil, "WATCH", key)); err != nil {
		return ToggleResult{}, false, fmt.Errorf("watch %s: %w", key, err)
	}

	var raws []string
	if err := conn.Do(radix.Cmd(&raws, "ZREVRANGE", key, "0", "-1")); err != nil {
		_ = conn.Do(radix.Cmd(nil, "UNWATCH"))
		return ToggleResult{}, false, fmt.Errorf("zrevrange %s: %w", key, err)
	}
	msgs, err := decodeMessages(raws)
	if err != nil {
		_ = conn.Do(radix.Cmd(nil, "UNWATCH"))
		return ToggleResult{}, false, err
	}

	idx := -1
	for i, m := range msgs {
		if ref.Matches(m) {
			idx = i
			break
		}
	}
	if idx < 0 {
		_ = conn.Do(radix.Cmd(nil, "UNWATCH"))
		return ToggleResult{}, false, ErrMessageNotFound
	}

	if r.afterRead != nil {
		r.afterRead()
	}

	updated := msgs[idx]
	updated.IsLiked = !updated.IsLiked
	body, err := json.Marshal(updated)
	if err != nil {
		_ = conn.Do(radix.Cmd(nil, "UNWATCH"))
		return ToggleResult{}, false, fmt.Errorf("encode message: %w", err)
	}

	if err := conn.Do(radix.Cmd(nil, "MULTI")); err != nil {
		return ToggleResult{}, false, fmt.Errorf("multi: %w", err)
	}
	if err := conn.Do(radix.Cmd(nil, "ZREM", key, raws[idx])); err != nil {
		_ = conn.Do(radix.Cmd(nil, "DISCARD"))
		return ToggleResult{}, false, fmt.Errorf("zrem %s: %w", key, err)
	}
	if err := conn.Do(radix.FlatCmd(nil, "ZADD", key, updated.Timestamp, body)); err != nil {
		_ = conn.Do(radix.Cmd(nil, "DISCARD"))
		return ToggleResult{}, false, fmt.Errorf("zadd %s: %w", key, err)
	}

	var replies []int64
	exec := radix.MaybeNil{Rcv: &replies}
	if err := conn.Do(radix.Cmd(&exec, "EXEC")); err != nil {
		return ToggleResult{}, false, fmt.Errorf("exec: %w", err)
	}
	if exec.Nil {
		return ToggleResult{}, false, nil
	}

	msgs[idx] = updated
	return ToggleResult{Message: updated, Messages: msgs}, true, nil
}

func decodeMessages(raws []string) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(raws))
	for _, raw := range raws {
		var m models.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
