package presence

// UserState is one entry of a board's presence list. Entries are keyed by
// Name, so a board never lists the same name twice.
type UserState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

const (
	// DefaultName is used when a caller leaves Name empty.
	DefaultName = "anonymous"
	// LatestLimit caps Latest.
	LatestLimit = 100
)
