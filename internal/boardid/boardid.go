// Package boardid turns human-readable board names into stable board ids.
package boardid

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var (
	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	idPattern    = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Normalize strips everything but letters, digits, '-' and '_', turns '_'
// into '-' and lowercases the rest.
func Normalize(name string) string {
	name = invalidChars.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "_", "-")
	return strings.ToLower(name)
}

// Valid reports whether id has the shape of a board id.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// Namer derives ids with a keyed BLAKE2b-256, so ids cannot be guessed from a
// board name without the key.
type Namer struct {
	key []byte
}

func NewNamer(key []byte) (*Namer, error) {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	// Fail early on a key blake2b rejects.
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("boardid: invalid key: %w", err)
	}
	return &Namer{key: key}, nil
}

// IDFromName returns the id of the board called name. Names that normalize to
// the same string share a board.
func (n *Namer) IDFromName(name string) string {
	return n.sum([]byte("name:" + Normalize(name)))
}

// NewUniqueID returns the id of a fresh, unnamed board.
func (n *Namer) NewUniqueID() string {
	u := uuid.New()
	return n.sum(append([]byte("unique:"), u[:]...))
}

func (n *Namer) sum(data []byte) string {
	h, _ := blake2b.New256(n.key)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
