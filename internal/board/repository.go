package board

import (
	"context"
	"fmt"

	"go-board/internal/storage"
)

const (
	// LatestLimit caps the message history served by /latest.
	LatestLimit = 100

	lastTimestampKey = "lastTimestamp"
)

// Repository is the hub's own append-only message log plus its scalar
// counters. Only the hub goroutine uses it.
type Repository struct {
	messages storage.Store
	meta     storage.Store
}

func NewRepository(backend storage.Backend, boardID string) *Repository {
	return &Repository{
		messages: backend.Namespace("messages/" + boardID),
		meta:     backend.Namespace("meta/" + boardID),
	}
}

// SaveMessage appends msg and records its timestamp as the newest assigned.
func (r *Repository) SaveMessage(ctx context.Context, msg Message) error {
	if err := r.messages.Put(ctx, msg.ID, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	if err := r.meta.Put(ctx, lastTimestampKey, msg.Timestamp); err != nil {
		return fmt.Errorf("save last timestamp: %w", err)
	}
	return nil
}

// GetRecentMessages returns up to limit messages, newest first.
func (r *Repository) GetRecentMessages(ctx context.Context, limit int) ([]Message, error) {
	raws, err := r.messages.List(ctx, storage.ListOptions{Reverse: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return storage.Decode[Message](raws)
}

// LastTimestamp returns the newest timestamp ever assigned, or 0.
func (r *Repository) LastTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	if _, err := r.meta.Get(ctx, lastTimestampKey, &ts); err != nil {
		return 0, fmt.Errorf("load last timestamp: %w", err)
	}
	return ts, nil
}
