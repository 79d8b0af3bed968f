package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"go-board/internal/boardclient"
)

var (
	baseURL   = flag.String("url", "http://localhost:8080", "server base url")
	boardName = flag.String("board", "loadtest", "board name to join")
	userCount = flag.Int("users", 50, "concurrent users") // ⚠️ Start small: every user shares one board actor.
	msgCount  = flag.Int("messages", 20, "messages per user")
	interval  = flag.Duration("interval", 10*time.Millisecond, "pause between messages")
	timeout   = flag.Duration("timeout", 30*time.Second, "overall deadline")
)

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	errors   atomic.Int64
}

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d users, %d messages each...", *userCount, *msgCount)
	log.Printf("⚠️  All users share one IP; raise the server's ratelimit.allowance first")

	boardID, err := joinBoard(*boardName, "loadtest-probe")
	if err != nil {
		log.Fatalf("❌ Join failed: %v", err)
	}
	log.Printf("✅ Board %s", boardID)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var st stats
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *userCount; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runUser(ctx, boardID, fmt.Sprintf("u_%d", n), &st)
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	expected := int64(*userCount) * int64(*userCount) * int64(*msgCount)
	summary := color.New(color.FgGreen, color.Bold)
	if st.errors.Load() > 0 || st.received.Load() < expected {
		summary = color.New(color.FgYellow, color.Bold)
	}
	summary.Printf("sent %d, received %d/%d broadcasts, %d errors in %s\n",
		st.sent.Load(), st.received.Load(), expected, st.errors.Load(), elapsed.Round(time.Millisecond))
	log.Println("✅ LOAD TEST COMPLETE")
}

// joinBoard posts the join form and reads the board id off the redirect.
func joinBoard(board, username string) (string, error) {
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.PostForm(*baseURL+"/join", url.Values{"board": {board}, "username": {username}})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	loc, err := resp.Location()
	if err != nil {
		return "", fmt.Errorf("no redirect (status %d): %w", resp.StatusCode, err)
	}
	var id string
	if _, err := fmt.Sscanf(loc.Path, "/board/%s", &id); err != nil || id == "" {
		return "", fmt.Errorf("unexpected redirect %q", loc.Path)
	}
	return id, nil
}

func runUser(ctx context.Context, boardID, name string, st *stats) {
	c, err := boardclient.New(boardclient.Options{
		BaseURL: *baseURL,
		BoardID: boardID,
		Name:    name,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		log.Printf("❌ Client [%s]: %v", name, err)
		st.errors.Add(1)
		return
	}

	userCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.Run(userCtx)

	ready := false
	for !ready {
		select {
		case ev := <-c.Events():
			ready = ev.Ready
		case <-userCtx.Done():
			log.Printf("❌ WS Connect Fail [%s]: %v", name, userCtx.Err())
			st.errors.Add(1)
			return
		}
	}

	go func() {
		for i := 0; i < *msgCount; i++ {
			if err := c.SendMessage(userCtx, fmt.Sprintf("LoadTest Msg %d from %s", i, name)); err != nil {
				return
			}
			st.sent.Add(1)
			time.Sleep(*interval)
		}
	}()

	// Each user sees every message of every user, its own included.
	want := *userCount * *msgCount
	for got := 0; got < want; {
		select {
		case ev := <-c.Events():
			switch {
			case ev.Message != nil:
				got++
				st.received.Add(1)
			case ev.Error != "":
				st.errors.Add(1)
			}
		case <-userCtx.Done():
			return
		}
	}
}
