package board

import (
	"context"
	"log/slog"
	"time"

	"go-board/internal/actor"
	"go-board/internal/presence"
	"go-board/internal/storage"
	"go-board/internal/task"
)

// Dependencies are shared by every hub the registry builds. Publisher may be
// nil.
type Dependencies struct {
	Backend   storage.Backend
	Tasks     *task.Registry
	Presence  *presence.Registry
	Gates     GateFactory
	Publisher EventPublisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Registry hands out the single running hub of each board, starting it on
// first use.
type Registry struct {
	hubs *actor.Registry[string, *Hub]
}

func NewRegistry(deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{
		hubs: actor.NewRegistry(func(boardID string) (*Hub, error) {
			tasks, err := deps.Tasks.Get(boardID)
			if err != nil {
				return nil, err
			}
			users, err := deps.Presence.Get(boardID)
			if err != nil {
				return nil, err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			h, err := NewHub(ctx, HubConfig{
				ID:        boardID,
				Repo:      NewRepository(deps.Backend, boardID),
				Tasks:     tasks,
				Presence:  users,
				Gates:     deps.Gates,
				Publisher: deps.Publisher,
				Logger:    deps.Logger.With("actor", "hub", "board", boardID),
				Now:       deps.Now,
			})
			if err != nil {
				return nil, err
			}
			go h.Run()
			return h, nil
		}),
	}
}

func (r *Registry) Get(boardID string) (*Hub, error) {
	return r.hubs.Get(boardID)
}

// Close stops every hub. Later Gets fail with actor.ErrStopped.
func (r *Registry) Close() {
	r.hubs.Shutdown(func(_ string, h *Hub) { h.Stop() })
}
