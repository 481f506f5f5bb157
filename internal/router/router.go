package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/lead"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/provider"
)

const Prefix = "/directory-api"

// Config holds HTTP surface settings.
type Config struct {
	Addr               string
	AllowedOrigins     []string
	RateLimitPerMinute int
	TrustProxy         bool
}

// ConfigFromEnv reads HTTP_ADDR, CORS_ALLOWED_ORIGINS, RATE_LIMIT_PER_MINUTE
// and TRUST_PROXY_HEADERS.
func ConfigFromEnv() Config {
	cfg := Config{Addr: "0.0.0.0:8431", RateLimitPerMinute: 20}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}
	if n, err := strconv.Atoi(os.Getenv("RATE_LIMIT_PER_MINUTE")); err == nil && n > 0 {
		cfg.RateLimitPerMinute = n
	}
	cfg.TrustProxy = os.Getenv("TRUST_PROXY_HEADERS") == "1" || strings.EqualFold(os.Getenv("TRUST_PROXY_HEADERS"), "true")
	return cfg
}

// Deps are the handlers mounted by RegisterRoutes.
type Deps struct {
	Auth      *auth.Handler
	Gate      *auth.SessionGate
	Leads     *lead.Handler
	Providers *provider.Handler

	// Ready reports store health for the health endpoint; nil means always ready.
	Ready func(r *http.Request) error
}

// RegisterRoutes mounts every endpoint on a standard library ServeMux and
// wraps it with CORS, security headers, metrics and access logging.
func RegisterRoutes(cfg Config, d Deps, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()
	limit := NewRateLimiter(cfg.RateLimitPerMinute, cfg.TrustProxy)
	providerOnly := func(h http.HandlerFunc) http.Handler { return d.Gate.RequireProvider(h) }
	adminOnly := func(h http.HandlerFunc) http.Handler { return d.Gate.RequireAdmin(h) }

	mux.HandleFunc("GET "+Prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r); err != nil {
				logger.Warnw("health check failed", "err", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST "+Prefix+"/leads", limit.Wrap(d.Leads.Submit))

	mux.HandleFunc("POST "+Prefix+"/providers/{id}/claim", limit.Wrap(d.Auth.RequestClaim))
	mux.HandleFunc("GET "+Prefix+"/providers/verify", d.Auth.VerifyClaim)

	mux.HandleFunc("POST "+Prefix+"/auth/login", limit.Wrap(d.Auth.RequestLogin))
	mux.HandleFunc("GET "+Prefix+"/auth/verify", d.Auth.VerifyLogin)
	mux.Handle("GET "+Prefix+"/auth/session", providerOnly(d.Auth.Session))
	mux.HandleFunc("POST "+Prefix+"/auth/logout", d.Auth.Logout)
	mux.Handle("GET "+Prefix+"/dashboard", providerOnly(d.Providers.Dashboard))

	mux.HandleFunc("POST "+Prefix+"/admin/login", limit.Wrap(d.Auth.AdminLogin))
	mux.HandleFunc("POST "+Prefix+"/admin/logout", d.Auth.AdminLogout)
	mux.Handle("GET "+Prefix+"/admin/leads", adminOnly(d.Leads.List))
	mux.Handle("POST "+Prefix+"/admin/leads/{id}/route", adminOnly(d.Leads.Route))
	mux.Handle("POST "+Prefix+"/admin/providers/{id}/claim-token", adminOnly(d.Auth.ReissueClaim))

	var handler http.Handler = mux
	handler = SecurityHeadersMiddleware()(handler)
	if len(cfg.AllowedOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	handler = MetricsMiddleware(handler)
	return LoggingMiddleware(logger)(handler)
}
