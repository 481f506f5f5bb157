package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const sessionContextKey = contextKey("provider_session")

// SessionFromContext returns the session stored by RequireProvider.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(Session)
	return s, ok
}

// WithSession stores s on ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionGate authenticates requests before protected handlers run.
type SessionGate struct {
	tokens *TokenAuthority
	admin  *AdminSecret
	logger *zap.SugaredLogger
}

func NewSessionGate(tokens *TokenAuthority, admin *AdminSecret, logger *zap.SugaredLogger) *SessionGate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionGate{tokens: tokens, admin: admin, logger: logger}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// ProviderCredential returns the bearer token when present, else the auth_token cookie.
func ProviderCredential(r *http.Request) string {
	if t := bearer(r); t != "" {
		return t
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Authenticate decodes the provider credential on r.
func (g *SessionGate) Authenticate(r *http.Request) (Session, SessionStatus) {
	raw := ProviderCredential(r)
	if raw == "" {
		return Session{}, SessionInvalid
	}
	return g.tokens.DecodeSession(raw)
}

// AuthenticateAdmin accepts X-Admin-Token or a bearer ADMIN_API_TOKEN, or a
// valid admin_session cookie.
func (g *SessionGate) AuthenticateAdmin(r *http.Request) bool {
	if t := r.Header.Get("X-Admin-Token"); t != "" {
		return g.admin.VerifyAPIToken(t)
	}
	if t := bearer(r); t != "" && g.admin.VerifyAPIToken(t) {
		return true
	}
	c, err := r.Cookie(AdminSessionCookie)
	if err != nil || c.Value == "" {
		return false
	}
	return g.tokens.DecodeAdminSession(c.Value) == SessionValid
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RequireProvider rejects requests without a valid provider session and
// stores the decoded session on the request context.
func (g *SessionGate) RequireProvider(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, status := g.Authenticate(r)
		if status != SessionValid {
			recordVerification("session", status.String())
			g.logger.Debugw("session rejected", "path", r.URL.Path, "status", status.String())
			unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireAdmin rejects requests that do not carry an admin credential.
func (g *SessionGate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.AuthenticateAdmin(r) {
			recordVerification("admin", "invalid")
			g.logger.Debugw("admin rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
