// Package store abstracts the shared mutable game state behind a small
// key-value contract. The production implementation is Redis; the in-memory
// implementation mirrors its semantics closely enough that the rest of the
// server cannot tell them apart, including failure behavior.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key or hash field does not exist.
	ErrNotFound = errors.New("store: key not found")
	// ErrTypeMismatch is returned when an operation targets a key holding a
	// value of the wrong kind, matching Redis WRONGTYPE behavior.
	ErrTypeMismatch = errors.New("store: type mismatch")
	// ErrUnavailable is returned when the backend cannot be reached. Callers
	// must treat the operation as not applied.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// ScoredMember is a leaderboard entry returned by ZRevRange.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the shared-state contract. All mutating operations on a single key
// are linearizable with respect to concurrent callers.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set writes a string value. A ttl of zero means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only when the key is absent and reports whether it wrote.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr atomically adjusts an integer value, creating it at zero.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HIncr atomically adjusts an integer hash field, creating it at zero.
	HIncr(ctx context.Context, key, field string, delta int64) (int64, error)

	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	Publish(ctx context.Context, channel, payload string) error
	// Subscribe returns a receive channel for the named channel plus a cancel
	// function that releases the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)

	Close() error
}
