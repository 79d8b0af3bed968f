package user

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-board/internal/boardid"
)

type Handler struct {
	Service *Service
	logger  *slog.Logger
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: s, logger: logger}
}

// Join sends the visitor to the board named by the form, remembering their
// display name. Bad input goes back to the front page.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	board := r.PostFormValue("board")
	name, err := CleanName(r.PostFormValue("username"))
	if err != nil || boardid.Normalize(board) == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.startSession(w, r, name, h.Service.BoardIDFromName(board))
}

// New opens a fresh board.
func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	name, err := CleanName(r.PostFormValue("username"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.startSession(w, r, name, h.Service.NewBoardID())
}

// Rename changes the display name and reloads the board.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	name, err := CleanName(r.PostFormValue("username"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.startSession(w, r, name, chi.URLParam(r, "boardID"))
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, name, boardID string) {
	if err := h.Service.SetSession(w, name); err != nil {
		h.logger.Error("issue session failed", "error", err)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/board/"+boardID, http.StatusSeeOther)
}
