package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// UsernameKey holds the display name of the session making the request.
const UsernameKey contextKey = "username"

// TokenValidator decouples the middleware from the user package.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

type AuthMiddleware struct {
	validator  TokenValidator
	cookieName string
}

func NewAuthMiddleware(v TokenValidator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{validator: v, cookieName: cookieName}
}

// Handle looks for the session token in the cookie, then the Authorization
// header, then the token query parameter.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		if c, err := r.Cookie(am.cookieName); err == nil {
			tokenString = c.Value
		}

		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
				tokenString = strings.TrimSpace(token)
			}
		}

		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing session", http.StatusUnauthorized)
			return
		}

		username, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
