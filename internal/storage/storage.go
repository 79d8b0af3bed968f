// Package storage is the attached storage every actor persists through.
//
// Each actor opens its own namespace and treats it as a private key/value
// collection ordered by key. Nothing is shared between namespaces, so one
// actor can never see or touch another actor's records.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is one actor's private collection.
type Store interface {
	// Put inserts or replaces the JSON encoding of value under key.
	Put(ctx context.Context, key string, value any) error
	// Get decodes the record under key into dst. A missing key is (false, nil).
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Delete removes key and reports whether it existed. A missing key is
	// (false, nil), never an error.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns raw records ordered by key.
	List(ctx context.Context, opts ListOptions) ([]json.RawMessage, error)
}

// ListOptions controls List. A Limit of zero or less means no limit.
type ListOptions struct {
	Reverse bool
	Limit   int
}

// Backend hands out namespaced stores over one physical connection.
type Backend interface {
	Namespace(name string) Store
	Ping(ctx context.Context) error
	Close() error
}

// Decode unmarshals every raw record returned by List.
func Decode[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// TimeKey renders a Unix millisecond timestamp as an ISO-8601 UTC string with
// millisecond precision. Lexical order of the result is chronological order.
func TimeKey(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
