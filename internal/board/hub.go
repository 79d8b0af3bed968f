package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"go-board/internal/actor"
	"go-board/internal/presence"
	"go-board/internal/ratelimit"
	"go-board/internal/storage"
	"go-board/internal/task"
)

const (
	maxNameLength    = 32
	maxMessageLength = 256
	maxBlocked       = 256

	errSomethingWrong = "Something went wrong"
	errRateLimited    = "rate-limited"
	errNameTooLong    = "Name too long."
	errMessageTooLong = "Message too long."
)

// TaskStore is what the hub needs from its board's task actor.
type TaskStore interface {
	Add(ctx context.Context, t task.Task) (task.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	Latest(ctx context.Context) ([]task.Task, error)
}

// PresenceStore is what the hub needs from its board's presence actor.
type PresenceStore interface {
	Add(ctx context.Context, u presence.UserState) (presence.UserState, error)
	Delete(ctx context.Context, name string) (bool, error)
	Latest(ctx context.Context) ([]presence.UserState, error)
}

// GateFactory hands each new session its rate-limit gate.
type GateFactory interface {
	Gate(ip string, onError func(error)) *ratelimit.Gate
}

// EventPublisher mirrors every broadcast frame to an external feed.
type EventPublisher interface {
	Publish(ctx context.Context, boardID string, payload []byte) error
}

// HubConfig carries a hub's collaborators. Publisher and Now are optional.
type HubConfig struct {
	ID        string
	Repo      *Repository
	Tasks     TaskStore
	Presence  PresenceStore
	Gates     GateFactory
	Publisher EventPublisher
	Logger    *slog.Logger
	Now       func() time.Time
}

type inboundFrame struct {
	session *Session
	data    []byte
}

// Hub is the coordinator of one board. It owns the board's sessions and its
// message log, and processes frames one at a time in arrival order.
type Hub struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	sessions      []*Session
	lastTimestamp int64

	register   chan *Session
	unregister chan *Session
	inbound    chan inboundFrame
	calls      chan func()
	done       chan struct{}
	stopped    chan struct{}

	repo      *Repository
	tasks     TaskStore
	presence  PresenceStore
	gates     GateFactory
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewHub restores the board's timestamp counter. The caller starts Run.
func NewHub(ctx context.Context, cfg HubConfig) (*Hub, error) {
	if cfg.Repo == nil || cfg.Tasks == nil || cfg.Presence == nil || cfg.Gates == nil {
		return nil, errors.New("board: hub needs a repository, task store, presence store and gate factory")
	}
	last, err := cfg.Repo.LastTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	hctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		id:            cfg.ID,
		ctx:           hctx,
		cancel:        cancel,
		lastTimestamp: last,
		register:      make(chan *Session),
		unregister:    make(chan *Session),
		inbound:       make(chan inboundFrame, 256),
		calls:         make(chan func()),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
		repo:          cfg.Repo,
		tasks:         cfg.Tasks,
		presence:      cfg.Presence,
		gates:         cfg.Gates,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}, nil
}

func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case s := <-h.register:
			h.accept(s)

		case s := <-h.unregister:
			h.depart(s)

		case in := <-h.inbound:
			h.handleFrame(in.session, in.data)

		case fn := <-h.calls:
			fn()

		case <-h.done:
			h.shutdown()
			return
		}
	}
}

// Stop closes every session and waits for the run loop to exit.
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	<-h.stopped
}

// ---------------------------------------------
// 🔎 Queries
// ---------------------------------------------

// Latest returns up to LatestLimit messages, newest first.
func (h *Hub) Latest(ctx context.Context) ([]Message, error) {
	var msgs []Message
	var err error
	if cerr := h.call(ctx, func() { msgs, err = h.repo.GetRecentMessages(h.ctx, LatestLimit) }); cerr != nil {
		return nil, cerr
	}
	return msgs, err
}

func (h *Hub) Tasks(ctx context.Context) ([]task.Task, error) {
	return h.tasks.Latest(ctx)
}

func (h *Hub) UsersState(ctx context.Context) ([]presence.UserState, error) {
	return h.presence.Latest(ctx)
}

// SessionCount reports how many sessions the hub currently holds.
func (h *Hub) SessionCount(ctx context.Context) (int, error) {
	var n int
	err := h.call(ctx, func() { n = len(h.sessions) })
	return n, err
}

func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case h.calls <- wrapped:
	case <-h.done:
		return actor.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// ---------------------------------------------
// 🔌 Session lifecycle
// ---------------------------------------------

func (h *Hub) submit(s *Session, data []byte) bool {
	select {
	case h.inbound <- inboundFrame{session: s, data: data}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (h *Hub) accept(s *Session) {
	s.state = stateAwaitingIdentity
	s.gate = h.gates.Gate(s.ip, func(err error) {
		h.logger.Error("rate limiter unavailable", "board", h.id, "ip", s.ip, "error", err)
		h.closeSession(s, websocket.CloseInternalServerErr, errSomethingWrong)
	})
	h.sessions = append(h.sessions, s)
}

// depart removes s from the board. Sessions that had identified leave the
// presence list and everyone is told they quit. Calling it twice is a no-op.
func (h *Hub) depart(s *Session) {
	if s.departed {
		return
	}
	s.departed = true
	s.quit = true
	h.removeSession(s)
	h.closeSend(s)

	identified := s.state == stateActive
	s.state = stateClosed
	s.blocked = nil
	if !identified {
		return
	}

	if _, err := h.presence.Delete(h.ctx, s.name); err != nil {
		h.logger.Error("presence delete failed", "board", h.id, "name", s.name, "error", err)
	}
	users, err := h.presence.Latest(h.ctx)
	if err != nil {
		h.logger.Error("presence list failed", "board", h.id, "error", err)
		users = []presence.UserState{}
	}
	h.broadcast(quitEvent{Quit: s.name, UsersState: users})
}

func (h *Hub) removeSession(s *Session) {
	for i, other := range h.sessions {
		if other == s {
			h.sessions = append(h.sessions[:i], h.sessions[i+1:]...)
			return
		}
	}
}

func (h *Hub) closeSend(s *Session) {
	if s.sendClosed {
		return
	}
	s.sendClosed = true
	close(s.send)
}

// closeSession queues a close frame behind whatever s already has pending.
func (h *Hub) closeSession(s *Session, code int, text string) {
	if s.closing || s.sendClosed {
		return
	}
	s.closing = true
	select {
	case s.send <- outbound{close: true, code: code, text: text}:
	default:
		h.closeSend(s)
	}
}

func (h *Hub) shutdown() {
	for _, s := range h.sessions {
		h.closeSend(s)
	}
	h.sessions = nil
	h.cancel()
}

// ---------------------------------------------
// 📨 Frame handling
// ---------------------------------------------

func (h *Hub) handleFrame(s *Session, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling frame", "board", h.id, "panic", r)
			h.reply(s, errorEvent{Error: errSomethingWrong})
		}
	}()

	if s.quit || s.closing {
		return
	}

	frame, err := DecodeFrame(data)
	heartbeat := err == nil && s.state == stateActive && frame.Kind == KindPing
	if !heartbeat && !s.gate.Allow(h.ctx) {
		if !s.closing {
			h.reply(s, errorEvent{Error: errRateLimited})
		}
		return
	}
	if err != nil {
		h.fail(s, "decode", err)
		return
	}

	if s.state == stateAwaitingIdentity {
		err = h.identify(s, frame)
	} else {
		switch frame.Kind {
		case KindMessage:
			err = h.postMessage(s, frame)
		case KindTask:
			err = h.createTask(s, frame)
		case KindCompleteTask:
			err = h.completeTask(frame)
		case KindPing:
			h.reply(s, pongEvent{Ping: "pong"})
		}
	}
	if err != nil {
		h.fail(s, frame.Kind.String(), err)
	}
}

func (h *Hub) fail(s *Session, op string, err error) {
	h.logger.Warn("frame failed", "board", h.id, "op", op, "name", s.name, "error", err)
	h.reply(s, errorEvent{Error: errSomethingWrong})
}

func (h *Hub) identify(s *Session, f Frame) error {
	name := f.Name
	if name == "" {
		name = presence.DefaultName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		h.reply(s, errorEvent{Error: errNameTooLong})
		h.closeSession(s, websocket.CloseMessageTooBig, errNameTooLong)
		return nil
	}

	// A failed join leaves the session waiting, its queue intact.
	if _, err := h.presence.Add(h.ctx, presence.UserState{
		ID:     storage.TimeKey(h.now().UnixMilli()),
		Name:   name,
		Online: true,
	}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	s.name = name
	s.state = stateActive
	queued := s.blocked
	s.blocked = nil
	for _, data := range queued {
		if !h.deliver(s, data) {
			h.depart(s)
			return nil
		}
	}

	users, err := h.presence.Latest(h.ctx)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	h.broadcast(joinedEvent{Joined: name, UsersState: users})
	h.reply(s, readyEvent{Ready: true})
	return nil
}

func (h *Hub) postMessage(s *Session, f Frame) error {
	if utf8.RuneCountInString(f.Message) > maxMessageLength {
		h.reply(s, errorEvent{Error: errMessageTooLong})
		return nil
	}
	ts := h.nextTimestamp()
	msg := Message{ID: storage.TimeKey(ts), Name: s.name, Message: f.Message, Timestamp: ts}
	if err := h.repo.SaveMessage(h.ctx, msg); err != nil {
		return err
	}
	h.broadcast(messageEvent{Message: msg})
	return nil
}

// nextTimestamp is now in ms, bumped past the last one handed out.
func (h *Hub) nextTimestamp() int64 {
	ts := h.now().UnixMilli()
	if ts <= h.lastTimestamp {
		ts = h.lastTimestamp + 1
	}
	h.lastTimestamp = ts
	return ts
}

func (h *Hub) createTask(s *Session, f Frame) error {
	stored, err := h.tasks.Add(h.ctx, task.Task{
		Title:    f.Task.Message,
		Status:   task.StatusAssigned,
		Owner:    s.name,
		Assignee: f.Task.Assignee,
	})
	if err != nil {
		return err
	}
	h.broadcast(taskEvent{Task: stored})
	return nil
}

func (h *Hub) completeTask(f Frame) error {
	ok, err := h.tasks.Delete(h.ctx, f.CompleteTaskID)
	if err != nil {
		return err
	}
	h.broadcast(completeTaskEvent{CompleteTask: f.CompleteTaskID, Response: resultOf(ok)})
	return nil
}

// ---------------------------------------------
// 📣 Delivery
// ---------------------------------------------

func (h *Hub) deliver(s *Session, data []byte) bool {
	if s.sendClosed || s.closing {
		return false
	}
	select {
	case s.send <- outbound{data: data}:
		return true
	default:
		return false
	}
}

func (h *Hub) reply(s *Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal reply failed", "board", h.id, "error", err)
		return
	}
	if !h.deliver(s, data) && !s.closing {
		h.depart(s)
	}
}

// broadcast sends v to every identified session and queues it for sessions
// still waiting to identify. Sessions that cannot keep up are removed after
// the loop, each with a full departure.
func (h *Hub) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal broadcast failed", "board", h.id, "error", err)
		return
	}

	var stragglers []*Session
	for _, s := range h.sessions {
		if s.closing {
			continue
		}
		switch s.state {
		case stateActive:
			if !h.deliver(s, data) {
				s.quit = true
				stragglers = append(stragglers, s)
			}
		case stateAwaitingIdentity:
			if len(s.blocked) >= maxBlocked {
				s.quit = true
				stragglers = append(stragglers, s)
				continue
			}
			s.blocked = append(s.blocked, data)
		}
	}

	h.publish(data)
	for _, s := range stragglers {
		h.depart(s)
	}
}

func (h *Hub) publish(data []byte) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(h.ctx, h.id, data); err != nil {
		h.logger.Warn("publish event failed", "board", h.id, "error", err)
	}
}
