package board

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"go-board/internal/boardid"
	myMiddleware "go-board/internal/middleware"
	"go-board/internal/presence"
	"go-board/internal/task"
)

// Loader is the board page's initial state.
type Loader struct {
	BoardID        string               `json:"boardId"`
	Username       string               `json:"username"`
	LatestMessages []Message            `json:"latestMessages"`
	LatestTasks    []task.Task          `json:"latestTasks"`
	UsersState     []presence.UserState `json:"usersState"`
}

type Handler struct {
	hubs   *Registry
	logger *slog.Logger
}

func NewHandler(hubs *Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hubs: hubs, logger: logger}
}

// Mount registers the /board/{boardID} routes. auth guards the loader; rename
// serves POST on the board page itself.
func (h *Handler) Mount(r chi.Router, auth func(http.Handler) http.Handler, rename http.HandlerFunc) {
	r.Route("/board/{boardID}", func(r chi.Router) {
		r.Use(requireBoardID)
		r.With(auth).Get("/", h.Load)
		if rename != nil {
			r.Post("/", rename)
		}
		r.Get("/latest", h.Latest)
		r.Get("/tasks", h.Tasks)
		r.Get("/usersState", h.UsersState)
		r.Get("/websocket", h.ServeWs)
	})
}

func requireBoardID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !boardid.Valid(chi.URLParam(r, "boardID")) {
			http.Error(w, "invalid board id", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) hub(w http.ResponseWriter, r *http.Request) (*Hub, bool) {
	hub, err := h.hubs.Get(chi.URLParam(r, "boardID"))
	if err != nil {
		h.logger.Error("open board failed", "board", chi.URLParam(r, "boardID"), "error", err)
		http.Error(w, "board unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return hub, true
}

func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	hub, ok := h.hub(w, r)
	if !ok {
		return
	}
	username, _ := r.Context().Value(myMiddleware.UsernameKey).(string)

	msgs, err := hub.Latest(r.Context())
	if err != nil {
		h.internalError(w, "load messages", err)
		return
	}
	tasks, err := hub.Tasks(r.Context())
	if err != nil {
		h.internalError(w, "load tasks", err)
		return
	}
	users, err := hub.UsersState(r.Context())
	if err != nil {
		h.internalError(w, "load users", err)
		return
	}

	writeJSON(w, Loader{
		BoardID:        hub.id,
		Username:       username,
		LatestMessages: msgs,
		LatestTasks:    tasks,
		UsersState:     users,
	})
}

func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	hub, ok := h.hub(w, r)
	if !ok {
		return
	}
	msgs, err := hub.Latest(r.Context())
	if err != nil {
		h.internalError(w, "load messages", err)
		return
	}
	writeJSON(w, msgs)
}

func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	hub, ok := h.hub(w, r)
	if !ok {
		return
	}
	tasks, err := hub.Tasks(r.Context())
	if err != nil {
		h.internalError(w, "load tasks", err)
		return
	}
	writeJSON(w, tasks)
}

func (h *Handler) UsersState(w http.ResponseWriter, r *http.Request) {
	hub, ok := h.hub(w, r)
	if !ok {
		return
	}
	users, err := hub.UsersState(r.Context())
	if err != nil {
		h.internalError(w, "load users", err)
		return
	}
	writeJSON(w, users)
}

// ServeWs upgrades the request and hands the connection to the board's hub.
// The client IP comes from RemoteAddr. Forwarding headers are never read
// here; the server installs chi's RealIP only when proxies are trusted.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected websocket", http.StatusBadRequest)
		return
	}
	ip := clientIP(r)
	if ip == "" {
		http.Error(w, "no client address", http.StatusBadRequest)
		return
	}
	hub, ok := h.hub(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	hub.serveSession(conn, ip)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
