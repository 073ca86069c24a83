package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mediocregopher/radix/v3"

	"dm-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository resolves user profiles.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// UserRepo reads JSON profiles stored at user:{id}.
type UserRepo struct {
	client radix.Client
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(client radix.Client) *UserRepo {
	return &UserRepo{client: client}
}

// GetUser fetches a single profile.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	key := "user:" + userID
	var raw string
	mn := radix.MaybeNil{Rcv: &raw}
	if err := r.client.Do(radix.Cmd(&mn, "GET", key)); err != nil {
		return models.User{}, fmt.Errorf("get %s: %w", key, err)
	}
	if mn.Nil {
		return models.User{}, ErrUserNotFound
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return models.User{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return user, nil
}
