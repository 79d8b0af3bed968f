package task

// Status of a sticky note.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAssigned Status = "assigned"
	StatusDone     Status = "done"
)

// Task is a sticky note. The store assigns ID and Timestamp when a caller
// leaves them empty.
type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"`
	Status    Status `json:"status"`
	Owner     string `json:"owner"`
	Assignee  string `json:"assignee"`
}

const (
	DefaultTitle  = "no title"
	DefaultPerson = "anonymous"
	// LatestLimit caps Latest.
	LatestLimit = 100
)
