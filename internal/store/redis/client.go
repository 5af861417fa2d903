package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection with a PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.NewClient: ping: %w", err)
	}

	return client, nil
}

// ContextKey returns the Redis key holding a session's conversational context.
func ContextKey(sessionID uuid.UUID) string {
	return "session:" + sessionID.String() + ":context"
}
