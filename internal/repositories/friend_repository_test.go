package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFriendIsDirectional(t *testing.T) {
	srv, client := newTestClient(t)
	_, err := srv.SAdd("user:a:friends", "b")
	require.NoError(t, err)

	repo := NewFriendRepo(client)

	ok, err := repo.IsFriend(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsFriend(context.Background(), "b", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
