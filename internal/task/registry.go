package task

import (
	"context"
	"log/slog"

	"go-board/internal/actor"
	"go-board/internal/storage"
)

// Registry hands out the single task store of each board.
type Registry struct {
	stores *actor.Registry[string, *Store]
}

func NewRegistry(backend storage.Backend, logger *slog.Logger) *Registry {
	return &Registry{
		stores: actor.NewRegistry(func(boardID string) (*Store, error) {
			return Open(context.Background(), backend.Namespace(Namespace(boardID)), logger.With("actor", "tasks", "board", boardID))
		}),
	}
}

// Namespace is the storage namespace of a board's tasks.
func Namespace(boardID string) string {
	return "tasks/" + boardID
}

func (r *Registry) Get(boardID string) (*Store, error) {
	return r.stores.Get(boardID)
}

func (r *Registry) Close() {
	r.stores.Shutdown(func(_ string, s *Store) { s.Close() })
}
