package db

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mediocregopher/radix/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := Connect(srv.Addr(), 2)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Do(radix.Cmd(nil, "SET", "k", "v")))
	got, err := srv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConnectUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := Connect(addr, 1)
	require.Error(t, err)
}
