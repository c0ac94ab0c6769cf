package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// NewClient builds a client without checking the server.
func NewClient(config Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr(),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     20,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})
}

// Connect builds a client and pings the server.
func Connect(ctx context.Context, config Config) (*redis.Client, error) {
	client := NewClient(config)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	stats, err := GetStats(ctx, client)
	if err != nil {
		slog.Warn("Failed to get Redis info", "error", err)
	} else {
		slog.Info("Redis connected", "addr", config.Addr(), "version", stats["redis_version"])
	}

	return client, nil
}

var statKeys = map[string]bool{
	"redis_version":              true,
	"connected_clients":          true,
	"used_memory_human":          true,
	"used_memory_peak_human":     true,
	"total_connections_received": true,
	"total_commands_processed":   true,
	"keyspace_hits":              true,
	"keyspace_misses":            true,
	"uptime_in_seconds":          true,
}

// GetStats returns a selection of INFO fields.
func GetStats(ctx context.Context, client *redis.Client) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	info, err := client.Info(ctx).Result()
	if err != nil {
		return nil, err
	}
	return ParseInfo(info), nil
}

// ParseInfo extracts the tracked fields from an INFO reply.
func ParseInfo(info string) map[string]string {
	stats := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if found && statKeys[key] {
			stats[key] = value
		}
	}
	return stats
}
