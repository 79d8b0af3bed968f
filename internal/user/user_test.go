package user

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-board/internal/boardid"
)

func newService(t *testing.T) *Service {
	t.Helper()
	namer, err := boardid.NewNamer([]byte("test-key"))
	require.NoError(t, err)
	s, err := NewService("test-secret", time.Hour, false, namer)
	require.NoError(t, err)
	return s
}

func TestService_TokenRoundTrip(t *testing.T) {
	s := newService(t)

	token, err := s.IssueToken("alice")
	require.NoError(t, err)
	name, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestService_RejectsForeignAndExpiredTokens(t *testing.T) {
	s := newService(t)
	token, err := s.IssueToken("alice")
	require.NoError(t, err)

	other, err := NewService("other-secret", time.Hour, false, s.namer)
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService("", time.Hour, false, nil)
	assert.Error(t, err)
}

func TestCleanName(t *testing.T) {
	name, err := CleanName("  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	_, err = CleanName("   ")
	assert.ErrorIs(t, err, ErrMissingName)
	_, err = CleanName(strings.Repeat("n", MaxNameLength+1))
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func postForm(h http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/join", h)
	r.Post("/new", h)
	r.Post("/board/{boardID}", h)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

func TestHandler_Join(t *testing.T) {
	h := NewHandler(newService(t), nil)

	rec := postForm(h.Join, "/join", url.Values{"board": {"Team_Board"}, "username": {"alice"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/board/"+h.Service.BoardIDFromName("team-board"), rec.Header().Get("Location"))

	c := sessionCookie(t, rec)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, 3600, c.MaxAge)
	name, err := h.Service.ValidateToken(c.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestHandler_JoinWithoutNameGoesHome(t *testing.T) {
	h := NewHandler(newService(t), nil)

	for _, form := range []url.Values{
		{"board": {"team"}},
		{"username": {"alice"}},
		{"board": {"!!!"}, "username": {"alice"}},
	} {
		rec := postForm(h.Join, "/join", form)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		assert.Empty(t, rec.Result().Cookies())
	}
}

func TestHandler_NewOpensUniqueBoards(t *testing.T) {
	h := NewHandler(newService(t), nil)

	a := postForm(h.New, "/new", url.Values{"username": {"alice"}}).Header().Get("Location")
	b := postForm(h.New, "/new", url.Values{"username": {"alice"}}).Header().Get("Location")
	assert.True(t, boardid.Valid(strings.TrimPrefix(a, "/board/")))
	assert.NotEqual(t, a, b)
}

func TestHandler_Rename(t *testing.T) {
	h := NewHandler(newService(t), nil)
	id := strings.Repeat("a", 64)

	rec := postForm(h.Rename, "/board/"+id, url.Values{"username": {"bob"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/board/"+id, rec.Header().Get("Location"))
	name, err := h.Service.ValidateToken(sessionCookie(t, rec).Value)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	rec = postForm(h.Rename, "/board/"+id, url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
