package myMiddleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubValidator map[string]string

func (s stubValidator) ValidateToken(token string) (string, error) {
	if name, ok := s[token]; ok {
		return name, nil
	}
	return "", errors.New("bad token")
}

func serve(req *http.Request) (*httptest.ResponseRecorder, string) {
	var seen string
	am := NewAuthMiddleware(stubValidator{"good": "alice"}, "session")
	h := am.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(UsernameKey).(string)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthMiddleware_TokenSources(t *testing.T) {
	cookie := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie.AddCookie(&http.Cookie{Name: "session", Value: "good"})

	header := httptest.NewRequest(http.MethodGet, "/", nil)
	header.Header.Set("Authorization", "Bearer good")

	query := httptest.NewRequest(http.MethodGet, "/?token=good", nil)

	for name, req := range map[string]*http.Request{"cookie": cookie, "header": header, "query": query} {
		rec, seen := serve(req)
		assert.Equal(t, http.StatusOK, rec.Code, name)
		assert.Equal(t, "alice", seen, name)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	rec, _ := serve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, seen := serve(httptest.NewRequest(http.MethodGet, "/?token=forged", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, seen)
}
