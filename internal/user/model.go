package user

import "github.com/golang-jwt/jwt/v5"

const (
	// CookieName holds the signed session token.
	CookieName = "board-session"
	// MaxNameLength matches the longest name a board accepts on identify.
	MaxNameLength = 32
)

// SessionClaims is the payload of a session token. A session only carries the
// display name a visitor chose; there are no accounts.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}
