// Package cache defines the shared state cache every monitor reads and
// writes. A single Store interface backs both single-instance deployments
// (in-memory) and multi-instance ones (DynamoDB, see internal/cloud).
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store is a key-value cache with per-key TTL plus capped-list operations.
// All writes are last-write-wins; there are no cross-key transactions.
type Store interface {
	// Get returns the value for key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites key with value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent writes only when the key is missing or expired; reports
	// whether the write happened.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// ListPush prepends value to the list at key.
	ListPush(ctx context.Context, key string, value []byte) error
	// ListTrim keeps only elements in [start, stop] (inclusive, 0-based).
	ListTrim(ctx context.Context, key string, start, stop int) error
	// ListRange returns elements in [start, stop]; stop=-1 means end of list.
	ListRange(ctx context.Context, key string, start, stop int) ([][]byte, error)
}

// GetJSON loads key and unmarshals it into out. ok=false when the key is
// absent or expired.
func GetJSON(ctx context.Context, s Store, key string, out interface{}) (bool, error) {
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, b, ttl)
}

// PushJSON marshals v and prepends it to the list at key, trimming the list
// to at most max elements.
func PushJSON(ctx context.Context, s Store, key string, v interface{}, max int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.ListPush(ctx, key, b); err != nil {
		return err
	}
	return s.ListTrim(ctx, key, 0, max-1)
}

// RangeJSON reads list elements [start, stop] and unmarshals each into a T.
func RangeJSON[T any](ctx context.Context, s Store, key string, start, stop int) ([]T, error) {
	raw, err := s.ListRange(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, b := range raw {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			continue // skip malformed entries, keep the rest
		}
		out = append(out, v)
	}
	return out, nil
}
