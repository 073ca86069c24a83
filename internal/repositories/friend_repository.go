package repositories

import (
	"context"
	"fmt"

	"github.com/mediocregopher/radix/v3"
)

// FriendRepository answers friend-graph membership questions.
type FriendRepository interface {
	IsFriend(ctx context.Context, userID, friendID string) (bool, error)
}

// FriendRepo reads the user:{id}:friends sets.
type FriendRepo struct {
	client radix.Client
}

// NewFriendRepo constructs FriendRepo.
func NewFriendRepo(client radix.Client) *FriendRepo {
	return &FriendRepo{client: client}
}

// IsFriend reports whether friendID is in userID's friend set. The relation
// is only checked in that direction.
func (r *FriendRepo) IsFriend(ctx context.Context, userID, friendID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := friendsKey(userID)
	var member int
	if err := r.client.Do(radix.Cmd(&member, "SISMEMBER", key, friendID)); err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return member == 1, nil
}

func friendsKey(userID string) string {
	return "user:" + userID + ":friends"
}
