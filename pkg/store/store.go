package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
	"github.com/redis/go-redis/v9"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ErrNotFound is returned by Get when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Store is implemented by every backend.
type Store interface {
	UpsertBatch(ctx context.Context, records []catalog.Record) error
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id int) (*catalog.Record, error)
	List(ctx context.Context) ([]catalog.Record, error)
	Close() error
}

// StorageError reports a failed store operation.
type StorageError struct {
	Op      string
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	Backend string

	// SQLitePath is the database file; ".db" is appended when missing.
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return OpenSQLite(ctx, cfg.SQLitePath)

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// normalizeAliases keeps an absent alias list encoded as [] rather than null.
func normalizeAliases(aliases []string) []string {
	if aliases == nil {
		return []string{}
	}
	return aliases
}
