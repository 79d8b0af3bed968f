// Package boardclient is a Go client for a board's WebSocket. It identifies,
// keeps an application-level heartbeat and reconnects with backoff.
package boardclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"go-board/internal/board"
)

var ErrHeartbeat = errors.New("boardclient: no pong within timeout")

type Options struct {
	// BaseURL is the server root, http(s) or ws(s).
	BaseURL string
	BoardID string
	Name    string

	PingInterval time.Duration // default 30s
	PongTimeout  time.Duration // default 1s

	Dialer     *websocket.Dialer
	NewBackoff func() backoff.BackOff
	Logger     *slog.Logger
}

type Client struct {
	opts   Options
	url    string
	events chan board.Event
	outbox chan []byte
}

func New(opts Options) (*Client, error) {
	if opts.BoardID == "" {
		return nil, errors.New("boardclient: board id is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("boardclient: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("boardclient: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/board/" + opts.BoardID + "/websocket"

	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.NewBackoff == nil {
		opts.NewBackoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		opts:   opts,
		url:    u.String(),
		events: make(chan board.Event, 256),
		outbox: make(chan []byte, 64),
	}, nil
}

// Events delivers every frame the server sends, across reconnects.
func (c *Client) Events() <-chan board.Event {
	return c.events
}

func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.enqueue(ctx, map[string]string{"message": text})
}

func (c *Client) SendTask(ctx context.Context, assignee, title string) error {
	return c.enqueue(ctx, map[string]board.TaskRequest{
		"task": {Name: c.opts.Name, Assignee: assignee, Message: title},
	})
}

func (c *Client) CompleteTask(ctx context.Context, id string) error {
	return c.enqueue(ctx, map[string]string{"completeTaskId": id})
}

func (c *Client) enqueue(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.outbox <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run keeps a connection open until ctx is done, reconnecting after every
// failure. It only returns ctx's error or the backoff giving up.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.WithContext(c.opts.NewBackoff(), ctx)
	for {
		ready, err := c.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ready {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("boardclient: giving up: %w", err)
		}
		c.opts.Logger.Warn("board connection lost, reconnecting", "board", c.opts.BoardID, "in", wait, "error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

// connect runs one connection. ready reports whether the server accepted the
// identify frame before the connection ended.
func (c *Client) connect(ctx context.Context) (ready bool, err error) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"name": c.opts.Name}); err != nil {
		return false, err
	}

	frames := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			select {
			case frames <- readResult{data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	var pongDue <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ready, ctx.Err()

		case r := <-frames:
			if r.err != nil {
				return ready, r.err
			}
			var ev board.Event
			if err := json.Unmarshal(r.data, &ev); err != nil {
				c.opts.Logger.Debug("skipping undecodable frame", "error", err)
				continue
			}
			if ev.Ping == "pong" {
				pongDue = nil
			}
			if ev.Ready {
				ready = true
			}
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return ready, ctx.Err()
			}

		case data := <-c.outbox:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return ready, err
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":"ping"}`)); err != nil {
				return ready, err
			}
			if pongDue == nil {
				pongDue = time.After(c.opts.PongTimeout)
			}

		case <-pongDue:
			return ready, ErrHeartbeat
		}
	}
}
