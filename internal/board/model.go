package board

import (
	"encoding/json"
	"errors"
	"strings"

	"go-board/internal/presence"
	"go-board/internal/task"
)

// ---------------------------------------------
// 🗄️ Stored & API Models
// ---------------------------------------------

// Message is one chat line. ID is the ISO rendering of Timestamp, so ids are
// unique per board and sort by time.
type Message struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// StoreResult is what a store delete answers on the wire.
type StoreResult struct {
	Message string `json:"message"`
}

func resultOf(ok bool) StoreResult {
	if ok {
		return StoreResult{Message: "ok"}
	}
	return StoreResult{Message: "failed"}
}

// ---------------------------------------------
// ⚡ Server -> Client Events
// ---------------------------------------------

type readyEvent struct {
	Ready bool `json:"ready"`
}

type errorEvent struct {
	Error string `json:"error"`
}

type joinedEvent struct {
	Joined     string               `json:"joined"`
	UsersState []presence.UserState `json:"usersState"`
}

type quitEvent struct {
	Quit       string               `json:"quit"`
	UsersState []presence.UserState `json:"usersState"`
}

type messageEvent struct {
	Message Message `json:"message"`
}

type taskEvent struct {
	Task task.Task `json:"task"`
}

type completeTaskEvent struct {
	CompleteTask string      `json:"completeTask"`
	Response     StoreResult `json:"response"`
}

type pongEvent struct {
	Ping string `json:"ping"`
}

// Event is the union of every frame the server sends. Clients decode into it
// and switch on whichever field is set.
type Event struct {
	Ready        bool                 `json:"ready,omitempty"`
	Error        string               `json:"error,omitempty"`
	Joined       string               `json:"joined,omitempty"`
	Quit         string               `json:"quit,omitempty"`
	UsersState   []presence.UserState `json:"usersState,omitempty"`
	Message      *Message             `json:"message,omitempty"`
	Task         *task.Task           `json:"task,omitempty"`
	CompleteTask string               `json:"completeTask,omitempty"`
	Response     *StoreResult         `json:"response,omitempty"`
	Ping         string               `json:"ping,omitempty"`
}

// ---------------------------------------------
// 📨 Client -> Server Frames
// ---------------------------------------------

// FrameKind says which sequence a frame triggers.
type FrameKind int

const (
	KindUnknown FrameKind = iota
	KindMessage
	KindTask
	KindCompleteTask
	KindPing
)

func (k FrameKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindTask:
		return "task"
	case KindCompleteTask:
		return "completeTaskId"
	case KindPing:
		return "ping"
	default:
		return "unknown"
	}
}

// TaskRequest is the body of a task frame.
type TaskRequest struct {
	Name     string `json:"name"`
	Assignee string `json:"assignee"`
	Message  string `json:"message"`
}

// Frame is a decoded client frame. Kind follows key presence with the fixed
// precedence message > task > completeTaskId > ping, whatever other keys the
// frame also carries. Name is only meaningful for the identify frame.
type Frame struct {
	Kind           FrameKind
	Name           string
	Message        string
	Task           TaskRequest
	CompleteTaskID string
}

var errNotObject = errors.New("frame is not a JSON object")

// DecodeFrame parses one inbound WebSocket frame.
func DecodeFrame(data []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Frame{}, err
	}
	if fields == nil {
		return Frame{}, errNotObject
	}

	f := Frame{Name: textOf(fields["name"])}
	if raw, ok := fields["message"]; ok {
		f.Kind = KindMessage
		f.Message = stringOf(raw)
		return f, nil
	}
	if raw, ok := fields["task"]; ok {
		f.Kind = KindTask
		if err := json.Unmarshal(raw, &f.Task); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
	if raw, ok := fields["completeTaskId"]; ok {
		f.Kind = KindCompleteTask
		f.CompleteTaskID = textOf(raw)
		return f, nil
	}
	if _, ok := fields["ping"]; ok {
		f.Kind = KindPing
	}
	return f, nil
}

// stringOf unquotes a JSON string and keeps any other value as its raw JSON
// text.
func stringOf(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// textOf is stringOf with false, null, 0 and a missing key all read as "".
func textOf(raw json.RawMessage) string {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", "0":
		return ""
	}
	return stringOf(raw)
}
