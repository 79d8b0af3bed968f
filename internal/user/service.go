package user

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"go-board/internal/boardid"
)

var (
	ErrMissingName  = errors.New("username is required")
	ErrNameTooLong  = errors.New("username is too long")
	ErrInvalidToken = errors.New("invalid session token")
)

const issuer = "go-board"

type Service struct {
	secret []byte
	ttl    time.Duration
	secure bool
	namer  *boardid.Namer
	now    func() time.Time
}

// NewService signs sessions with secret and derives board ids with namer.
// secure marks the cookie Secure, for deployments behind TLS.
func NewService(secret string, ttl time.Duration, secure bool, namer *boardid.Namer) (*Service, error) {
	if secret == "" {
		return nil, errors.New("user: session secret is not set")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl, secure: secure, namer: namer, now: time.Now}, nil
}

// CleanName trims name and checks it is usable as a display name.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrMissingName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

func (s *Service) IssueToken(username string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// ValidateToken returns the display name carried by a valid token.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Username == "" {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}

// SetSession writes the session cookie for username.
func (s *Service) SetSession(w http.ResponseWriter, username string) error {
	token, err := s.IssueToken(username)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		Expires:  s.now().Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// BoardIDFromName is the id of the board a visitor joins by name.
func (s *Service) BoardIDFromName(name string) string {
	return s.namer.IDFromName(name)
}

func (s *Service) NewBoardID() string {
	return s.namer.NewUniqueID()
}
