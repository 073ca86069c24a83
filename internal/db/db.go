package db

import (
	"fmt"

	"github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"
)

// Connect opens a Redis connection pool and verifies it with PING.
func Connect(addr string, size int) (radix.Client, error) {
	pool, err := radix.NewPool("tcp", addr, size)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	var pong string
	if err := pool.Do(radix.Cmd(&pong, "PING")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	zap.L().Info("redis connected", zap.String("addr", addr), zap.Int("pool_size", size))
	return pool, nil
}
