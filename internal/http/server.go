// Package http expone la superficie del servicio: magic links, login social,
// ingesta de webhooks de billing, sesión (/me, logout) y operabilidad
// (healthz, metrics). Los handlers son finitos a propósito: toda la lógica
// vive en los packages del core y acá sólo se traduce HTTP ⇄ dominio.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sssemil/dokustatus-sub002/internal/email"
	"github.com/sssemil/dokustatus-sub002/internal/kv"
	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
	"github.com/sssemil/dokustatus-sub002/internal/rate"
	"github.com/sssemil/dokustatus-sub002/internal/session"
	"github.com/sssemil/dokustatus-sub002/internal/social"
	"github.com/sssemil/dokustatus-sub002/internal/store"
	"github.com/sssemil/dokustatus-sub002/internal/webhook"
)

// Deps agrupa todo lo que los handlers necesitan. Wiring en cmd/.
type Deps struct {
	Store     store.Store
	KV        kv.Client
	Facade    *session.Facade
	Machine   *social.Machine
	Providers map[string]social.Provider
	Mailer    *email.MagicLinkMailer
	Verifier  *webhook.Verifier

	LimitMagicLink rate.Limiter
	LimitSocial    rate.Limiter

	Cookie             CookieConfig
	Metrics            prometheus.Registerer
	CORSAllowedOrigins []string

	// DebugEchoLinks devuelve el link de login en la respuesta del request
	// de magic link. SOLO dev: en prod rompe el single-use-por-email.
	DebugEchoLinks bool
}

type Server struct {
	deps   Deps
	router chi.Router
}

func New(deps Deps) (*Server, error) {
	s := &Server{deps: deps}

	metricsHandler, err := RegisterMetrics(deps.Metrics)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithRecover)
	r.Use(WithSecurityHeaders)
	if len(deps.CORSAllowedOrigins) > 0 {
		r.Use(WithCORS(deps.CORSAllowedOrigins))
	}
	r.Use(WithLogging)

	r.Method(http.MethodGet, "/healthz", http.HandlerFunc(s.handleHealthz))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Method(http.MethodPost, "/magic-link/request",
			WithHTTPMetrics("/v1/auth/magic-link/request", http.HandlerFunc(s.handleMagicLinkRequest)))
		r.Method(http.MethodGet, "/magic-link/confirm",
			WithHTTPMetrics("/v1/auth/magic-link/confirm", http.HandlerFunc(s.handleMagicLinkConfirm)))

		r.Method(http.MethodGet, "/social/{provider}/start",
			WithHTTPMetrics("/v1/auth/social/start", http.HandlerFunc(s.handleSocialStart)))
		r.Method(http.MethodGet, "/social/{provider}/callback",
			WithHTTPMetrics("/v1/auth/social/callback", http.HandlerFunc(s.handleSocialCallback)))

		r.Method(http.MethodGet, "/me",
			WithHTTPMetrics("/v1/auth/me", http.HandlerFunc(s.handleMe)))
		r.Method(http.MethodPost, "/logout",
			WithHTTPMetrics("/v1/auth/logout", http.HandlerFunc(s.handleLogout)))
	})

	r.Method(http.MethodPost, "/v1/webhooks/billing",
		WithHTTPMetrics("/v1/webhooks/billing", http.HandlerFunc(s.handleBillingWebhook)))

	s.router = r
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Run levanta el listener y apaga limpio cuando el ctx se cancela.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("http server listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// resolveTenant saca el hostname del tenant del request: query "tenant"
// primero, header X-Tenant-Host después. El core re-chequea el host contra
// los claims verificados, así que un header trucho no emite nada.
func (s *Server) resolveTenant(r *http.Request) (*store.Tenant, error) {
	host := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if host == "" {
		host = strings.TrimSpace(r.Header.Get("X-Tenant-Host"))
	}
	if host == "" {
		return nil, store.ErrNotFound
	}
	return s.deps.Store.GetTenantByHost(r.Context(), host)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type check struct {
		Storage string `json:"storage"`
		KV      string `json:"kv"`
	}
	st := check{Storage: "ok", KV: "ok"}
	code := http.StatusOK

	if err := s.deps.Store.Ping(r.Context()); err != nil {
		st.Storage = "down"
		code = http.StatusServiceUnavailable
	}
	if err := s.deps.KV.Ping(r.Context()); err != nil {
		st.KV = "down"
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, st)
}
