package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-board/internal/actor"
	"go-board/internal/storage"
)

// Store is the task actor for one board and the authority for task ids and
// timestamps.
type Store struct {
	loop    *actor.Loop
	storage storage.Store
	logger  *slog.Logger
	now     func() time.Time

	// owned by loop
	lastStamp int64
}

// Open starts the actor. The most recent stored task seeds the id clock, so
// ids handed out after a restart never collide with earlier ones.
func Open(ctx context.Context, st storage.Store, logger *slog.Logger) (*Store, error) {
	raws, err := st.List(ctx, storage.ListOptions{Reverse: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("task: load latest: %w", err)
	}
	latest, err := storage.Decode[Task](raws)
	if err != nil {
		return nil, fmt.Errorf("task: load latest: %w", err)
	}

	s := &Store{
		loop:    actor.NewLoop(64),
		storage: st,
		logger:  logger,
		now:     time.Now,
	}
	if len(latest) == 1 {
		s.lastStamp = latest[0].Timestamp
	}
	return s, nil
}

// Add fills the defaults of a partial task, persists it and returns the
// canonical record.
func (s *Store) Add(ctx context.Context, t Task) (Task, error) {
	var (
		out    Task
		putErr error
	)
	err := s.loop.Call(ctx, func() {
		stamp := s.nextStamp()
		if t.ID == "" {
			t.ID = storage.TimeKey(stamp)
		}
		if t.Timestamp == 0 {
			t.Timestamp = stamp
		}
		if t.Title == "" {
			t.Title = DefaultTitle
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		if t.Owner == "" {
			t.Owner = DefaultPerson
		}
		if t.Assignee == "" {
			t.Assignee = DefaultPerson
		}
		if putErr = s.storage.Put(ctx, t.ID, t); putErr == nil {
			out = t
		}
	})
	if err != nil {
		return Task{}, err
	}
	if putErr != nil {
		return Task{}, fmt.Errorf("task: add: %w", putErr)
	}
	s.logger.Debug("task added", "id", out.ID, "assignee", out.Assignee)
	return out, nil
}

func (s *Store) nextStamp() int64 {
	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

// Delete removes the task with id and reports whether it existed. Deleting a
// task that is already gone is (false, nil).
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var (
		existed bool
		delErr  error
	)
	err := s.loop.Call(ctx, func() {
		existed, delErr = s.storage.Delete(ctx, id)
	})
	if err != nil {
		return false, err
	}
	if delErr != nil {
		return false, fmt.Errorf("task: delete %q: %w", id, delErr)
	}
	return existed, nil
}

// Latest returns up to LatestLimit tasks, newest first.
func (s *Store) Latest(ctx context.Context) ([]Task, error) {
	var (
		out     []Task
		listErr error
	)
	err := s.loop.Call(ctx, func() {
		raws, err := s.storage.List(ctx, storage.ListOptions{Reverse: true, Limit: LatestLimit})
		if err != nil {
			listErr = err
			return
		}
		out, listErr = storage.Decode[Task](raws)
	})
	if err != nil {
		return nil, err
	}
	if listErr != nil {
		return nil, fmt.Errorf("task: latest: %w", listErr)
	}
	return out, nil
}

func (s *Store) Close() {
	s.loop.Stop()
}
