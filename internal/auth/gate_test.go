package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) (*SessionGate, *TokenAuthority) {
	t.Helper()
	cfg := Config{Secret: []byte("gate-secret"), AdminAPIToken: "admin-token"}
	ta := NewTokenAuthority(cfg)
	return NewSessionGate(ta, NewAdminSecret(cfg), nil), ta
}

func sessionEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(s.ProviderID))
	})
}

func TestRequireProviderAcceptsCookieAndBearer(t *testing.T) {
	gate, ta := newTestGate(t)
	cred, err := ta.EncodeSession(Session{ProviderID: "p42"})
	require.NoError(t, err)
	h := gate.RequireProvider(sessionEcho())

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: cred})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p42", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+cred)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireProviderRejects(t *testing.T) {
	gate, _ := newTestGate(t)
	h := gate.RequireProvider(sessionEcho())

	expired := NewTokenAuthority(Config{Secret: []byte("gate-secret")}).
		WithClock(func() time.Time { return time.Now().Add(-31 * 24 * time.Hour) })
	old, err := expired.EncodeSession(Session{ProviderID: "p1"})
	require.NoError(t, err)

	for name, cookie := range map[string]string{"missing": "", "garbage": "abc.def.ghi", "expired": old} {
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.NotContains(t, rec.Body.String(), "p1", name)
	}
}

func TestRequireAdmin(t *testing.T) {
	gate, ta := newTestGate(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := gate.RequireAdmin(ok)

	adminCred, err := ta.EncodeAdminSession()
	require.NoError(t, err)
	providerCred, err := ta.EncodeSession(Session{ProviderID: "p1"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"header token", func(r *http.Request) { r.Header.Set("X-Admin-Token", "admin-token") }, http.StatusOK},
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer admin-token") }, http.StatusOK},
		{"admin cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AdminSessionCookie, Value: adminCred}) }, http.StatusOK},
		{"wrong header", func(r *http.Request) { r.Header.Set("X-Admin-Token", "admin-tokem") }, http.StatusUnauthorized},
		{"wrong header with cookie", func(r *http.Request) {
			r.Header.Set("X-Admin-Token", "nope")
			r.AddCookie(&http.Cookie{Name: AdminSessionCookie, Value: adminCred})
		}, http.StatusUnauthorized},
		{"provider session as admin", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AdminSessionCookie, Value: providerCred}) }, http.StatusUnauthorized},
		{"nothing", func(r *http.Request) {}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
