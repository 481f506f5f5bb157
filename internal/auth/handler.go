package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Handler exposes claim, login, session and admin login endpoints.
type Handler struct {
	svc        *Service
	tokens     *TokenAuthority
	production bool
	siteURL    string
	logger     *zap.SugaredLogger
}

func NewHandler(cfg Config, svc *Service, tokens *TokenAuthority, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, tokens: tokens, production: cfg.Production, siteURL: cfg.PublicSiteURL, logger: logger}
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

const loginAck = "If that email belongs to a verified listing, a sign-in link is on its way."

// RequestClaim handles POST /providers/{id}/claim.
func (h *Handler) RequestClaim(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	err := h.svc.RequestClaim(r.Context(), r.PathValue("id"), req.Email)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "verification_sent"})
	case errors.Is(err, ErrInvalidEmail):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email"})
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ErrAlreadyVerified):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "listing already claimed"})
	case errors.Is(err, ErrDelivery):
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not send verification email"})
	default:
		h.logger.Errorw("claim request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "claim request failed"})
	}
}

// VerifyClaim handles GET /providers/verify?token=.
func (h *Handler) VerifyClaim(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.VerifyClaim(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "invalid or expired token"})
			return
		}
		h.logger.Errorw("claim verification failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "verification failed"})
		return
	}
	if h.siteURL != "" && wantsRedirect(r) {
		http.Redirect(w, r, h.siteURL+"/provider/"+url.PathEscape(res.Slug)+"?verified=1", http.StatusSeeOther)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"provider_id": res.ID, "slug": res.Slug, "status": "verified"})
}

// RequestLogin handles POST /auth/login. The response never reveals whether
// the address is known.
func (h *Handler) RequestLogin(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.RequestLogin(r.Context(), req.Email); err != nil {
		if errors.Is(err, ErrInvalidEmail) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email"})
			return
		}
		h.logger.Errorw("login request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": loginAck})
}

// VerifyLogin handles GET /auth/verify?token= and sets the session cookie.
func (h *Handler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	sess, cred, err := h.svc.CompleteLogin(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid or expired link"})
			return
		}
		h.logger.Errorw("login verification failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	http.SetCookie(w, h.cookie(SessionCookie, cred, h.tokens.SessionTTL(), http.SameSiteLaxMode))
	if h.siteURL != "" && wantsRedirect(r) {
		http.Redirect(w, r, h.siteURL+"/dashboard", http.StatusSeeOther)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

// Session handles GET /auth/session behind RequireProvider.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie(SessionCookie, "", -1, http.SameSiteLaxMode))
	w.WriteHeader(http.StatusNoContent)
}

// AdminLogin handles POST /admin/login.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	cred, err := h.svc.AdminLogin(req.Password)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			h.logger.Warnw("admin login rejected", "remote", r.RemoteAddr)
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		h.logger.Errorw("admin login failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	http.SetCookie(w, h.cookie(AdminSessionCookie, cred, h.tokens.AdminSessionTTL(), http.SameSiteStrictMode))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie(AdminSessionCookie, "", -1, http.SameSiteStrictMode))
	w.WriteHeader(http.StatusNoContent)
}

// ReissueClaim handles POST /admin/providers/{id}/claim-token behind RequireAdmin.
func (h *Handler) ReissueClaim(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.ReissueClaim(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.logger.Errorw("claim reissue failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reissue failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"verification_link": link})
}

// cookie builds an HttpOnly cookie; a negative ttl deletes it.
func (h *Handler) cookie(name, value string, ttl time.Duration, sameSite http.SameSite) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.production,
		SameSite: sameSite,
	}
	if ttl < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.MaxAge = int(ttl.Seconds())
		c.Expires = time.Now().Add(ttl)
	}
	return c
}

// wantsRedirect is true for browser navigations (HTML accepted) and false for API clients.
func wantsRedirect(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/html")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
