package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go-board/internal/actor"
	"go-board/internal/storage"
)

// Store is the presence actor for one board. It owns its storage namespace
// and an in-memory copy of the entries loaded when it starts.
type Store struct {
	loop    *actor.Loop
	storage storage.Store
	logger  *slog.Logger
	now     func() time.Time

	// owned by loop
	users map[string]UserState
}

// Open loads the board's entries and starts the actor.
func Open(ctx context.Context, st storage.Store, logger *slog.Logger) (*Store, error) {
	raws, err := st.List(ctx, storage.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("presence: load entries: %w", err)
	}
	entries, err := storage.Decode[UserState](raws)
	if err != nil {
		return nil, fmt.Errorf("presence: load entries: %w", err)
	}

	s := &Store{
		loop:    actor.NewLoop(64),
		storage: st,
		logger:  logger,
		now:     time.Now,
		users:   make(map[string]UserState, len(entries)),
	}
	for _, u := range entries {
		s.users[u.Name] = u
	}
	return s, nil
}

// Add upserts u under its name and returns the stored entry.
func (s *Store) Add(ctx context.Context, u UserState) (UserState, error) {
	var (
		out    UserState
		putErr error
	)
	err := s.loop.Call(ctx, func() {
		if u.Name == "" {
			u.Name = DefaultName
		}
		if u.ID == "" {
			u.ID = storage.TimeKey(s.now().UnixMilli())
		}
		if putErr = s.storage.Put(ctx, u.Name, u); putErr != nil {
			return
		}
		s.users[u.Name] = u
		out = u
	})
	if err != nil {
		return UserState{}, err
	}
	if putErr != nil {
		return UserState{}, fmt.Errorf("presence: add %q: %w", u.Name, putErr)
	}
	return out, nil
}

// Delete removes name and reports whether it was present. Removing a name
// that is already gone is (false, nil).
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	var (
		existed bool
		delErr  error
	)
	err := s.loop.Call(ctx, func() {
		existed, delErr = s.storage.Delete(ctx, name)
		if delErr == nil {
			delete(s.users, name)
		}
	})
	if err != nil {
		return false, err
	}
	if delErr != nil {
		return false, fmt.Errorf("presence: delete %q: %w", name, delErr)
	}
	if !existed {
		s.logger.Debug("presence entry already gone", "name", name)
	}
	return existed, nil
}

// Latest returns the entries, most recently touched first, capped at
// LatestLimit.
func (s *Store) Latest(ctx context.Context) ([]UserState, error) {
	var out []UserState
	err := s.loop.Call(ctx, func() {
		out = make([]UserState, 0, len(s.users))
		for _, u := range s.users {
			out = append(out, u)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID > out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > LatestLimit {
		out = out[:LatestLimit]
	}
	return out, nil
}

// Close stops the actor.
func (s *Store) Close() {
	s.loop.Stop()
}
