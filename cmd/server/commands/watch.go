package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"go-board/internal/board"
	"go-board/internal/boardclient"
	"go-board/internal/boardid"
	"go-board/internal/events"
)

var (
	watchRedisAddr string
	watchServer    string
	watchName      string
	watchOutput    string
)

var watchCmd = &cobra.Command{
	Use:   "watch <board id>",
	Short: "Stream a board's activity",
	Long: `Stream joins, quits, messages and tasks of one board as they happen.

By default the board's Redis event feed is followed, which needs the server
to run with events.enabled. With --server the command joins the board over
its WebSocket instead, and shows up in the presence list under --name.

Output Formats:
  default - Human-readable colored lines
  json    - The raw frames, one per line

Examples:
  server watch 3f2a...e9
  server watch 3f2a...e9 --server http://localhost:8080 --name watcher
  server watch 3f2a...e9 --output=json > events.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRedisAddr, "redis", envOrDefault("REDIS_ADDR", "localhost:6379"), "Redis address of the event feed")
	watchCmd.Flags().StringVar(&watchServer, "server", "", "join through this server's WebSocket instead of Redis")
	watchCmd.Flags().StringVar(&watchName, "name", "watcher", "display name used with --server")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "default", "output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func runWatch(cmd *cobra.Command, args []string) error {
	boardID := args[0]
	if !boardid.Valid(boardID) {
		return fmt.Errorf("%q is not a board id", boardID)
	}
	if watchOutput != "default" && watchOutput != "json" {
		return fmt.Errorf("unknown output format %q (valid: default, json)", watchOutput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if watchServer != "" {
		return watchWebSocket(ctx, out, boardID)
	}
	return watchRedis(ctx, out, boardID)
}

func watchRedis(ctx context.Context, out io.Writer, boardID string) error {
	rdb := redis.NewClient(&redis.Options{Addr: watchRedisAddr})
	defer rdb.Close()

	ready := func() { color.New(color.FgGreen).Fprintf(out, "✅ Watching %s via Redis\n", shortID(boardID)) }
	return events.Subscribe(ctx, rdb, boardID, ready, func(payload []byte) {
		printFrame(out, payload)
	})
}

func watchWebSocket(ctx context.Context, out io.Writer, boardID string) error {
	client, err := boardclient.New(boardclient.Options{
		BaseURL: watchServer,
		BoardID: boardID,
		Name:    watchName,
		Logger:  newLogger("warn"),
	})
	if err != nil {
		return err
	}
	stopped := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, client.Events(), stopped)
	}()

	err = client.Run(ctx)
	close(stopped)
	<-printed
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printEvents prints events until stopped is closed. The client never closes
// its events channel.
func printEvents(out io.Writer, events <-chan board.Event, stopped <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			printFrame(out, data)
		case <-stopped:
			return
		}
	}
}

func printFrame(out io.Writer, payload []byte) {
	if watchOutput == "json" {
		fmt.Fprintln(out, string(payload))
		return
	}
	var ev board.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	if line := formatEvent(ev, time.Now()); line != "" {
		fmt.Fprintln(out, line)
	}
}

var (
	joinColor    = color.New(color.FgGreen)
	quitColor    = color.New(color.FgYellow)
	messageColor = color.New(color.FgCyan)
	taskColor    = color.New(color.FgMagenta)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// formatEvent renders one board frame as a single line, or "" for frames
// not worth showing.
func formatEvent(ev board.Event, at time.Time) string {
	stamp := at.Format("15:04:05")
	switch {
	case ev.Joined != "":
		return fmt.Sprintf("%s %s %s joined (%s)", stamp, joinColor.Sprint("→"), ev.Joined, onlineNames(ev))
	case ev.Quit != "":
		return fmt.Sprintf("%s %s %s left (%s)", stamp, quitColor.Sprint("←"), ev.Quit, onlineNames(ev))
	case ev.Message != nil:
		return fmt.Sprintf("%s %s %s", stamp, messageColor.Sprintf("<%s>", ev.Message.Name), ev.Message.Message)
	case ev.Task != nil:
		return fmt.Sprintf("%s %s %q from %s to %s", stamp, taskColor.Sprint("📌 task"), ev.Task.Title, ev.Task.Owner, ev.Task.Assignee)
	case ev.CompleteTask != "":
		result := ""
		if ev.Response != nil {
			result = ev.Response.Message
		}
		return fmt.Sprintf("%s %s %s (%s)", stamp, taskColor.Sprint("✔ done"), ev.CompleteTask, result)
	case ev.Error != "":
		return fmt.Sprintf("%s %s", stamp, errorColor.Sprint(ev.Error))
	}
	return ""
}

func onlineNames(ev board.Event) string {
	names := make([]string, 0, len(ev.UsersState))
	for _, u := range ev.UsersState {
		names = append(names, u.Name)
	}
	if len(names) == 0 {
		return "nobody online"
	}
	return strings.Join(names, ", ")
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}
