package http

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
	"github.com/sssemil/dokustatus-sub002/internal/session"
	"github.com/sssemil/dokustatus-sub002/internal/social"
)

func (s *Server) provider(r *http.Request) (social.Provider, bool) {
	name := strings.ToLower(chi.URLParam(r, "provider"))
	p, ok := s.deps.Providers[name]
	return p, ok
}

// handleSocialStart arranca el handshake: registra el state pending y
// redirige al provider.
func (s *Server) handleSocialStart(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(r)
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_provider", "")
		return
	}
	tenant, err := s.resolveTenant(r)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if !allowOrReject(w, r, s.deps.LimitSocial, "social:"+clientIP(r)) {
		return
	}

	nonce, err := randomToken()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	state, err := s.deps.Machine.Begin(r.Context(), social.Record{
		TenantID: tenant.ID,
		Provider: p.Name(),
		Redirect: sanitizeRedirect(r.URL.Query().Get("redirect")),
		Nonce:    nonce,
	})
	if err != nil {
		logger.From(r.Context()).Error("social begin failed", logger.Provider(p.Name()), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	authURL, err := p.AuthURL(r.Context(), state, nonce)
	if err != nil {
		_ = s.deps.Machine.Abort(r.Context(), state)
		logger.From(r.Context()).Error("social auth url failed", logger.Provider(p.Name()), logger.Err(err))
		WriteError(w, http.StatusBadGateway, "upstream_exchange_failed", "")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleSocialCallback procesa el retorno del provider. El record se marca
// in_use ANTES del exchange (ninguna espera de red con el state todavía
// reclamable) y el delete-once de Complete garantiza una sola sesión por
// flow aunque el callback llegue duplicado.
func (s *Server) handleSocialCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(r)
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_provider", "")
		return
	}
	q := r.URL.Query()
	state := q.Get("state")
	if state == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "state requerido")
		return
	}
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Provider(p.Name()))

	rec, err := s.deps.Machine.MarkCallback(ctx, state)
	if err != nil {
		countSocialCallback(p.Name(), "terminal")
		WriteDomainError(w, err)
		return
	}

	// el usuario canceló en el provider
	if upstreamErr := q.Get("error"); upstreamErr != "" {
		_ = s.deps.Machine.Abort(ctx, state)
		countSocialCallback(p.Name(), "abort")
		log.Info("social flow denied upstream", logger.String("upstream_error", upstreamErr))
		WriteError(w, http.StatusUnauthorized, "provider_denied", "")
		return
	}

	identity, err := p.Exchange(ctx, q.Get("code"), rec.Nonce)
	if err != nil {
		// Retry deja el record in_use para que el duplicado dentro de la
		// ventana pueda reintentar; abort lo borra ya.
		if social.ClassifyPostExchange(err) == social.DispositionRetry {
			countSocialCallback(p.Name(), "retry")
			log.Warn("social exchange transient failure", logger.Err(err))
			w.Header().Set("Retry-After", "5")
			WriteError(w, http.StatusBadGateway, "upstream_exchange_failed", "")
			return
		}
		_ = s.deps.Machine.Abort(ctx, state)
		countSocialCallback(p.Name(), "abort")
		log.Warn("social exchange failed", logger.Err(err))
		WriteError(w, http.StatusBadGateway, "upstream_exchange_failed", "")
		return
	}

	tenant, err := s.deps.Store.GetTenantByID(ctx, rec.TenantID)
	if err != nil {
		_ = s.deps.Machine.Abort(ctx, state)
		countSocialCallback(p.Name(), "abort")
		WriteDomainError(w, err)
		return
	}

	sess, err := s.deps.Facade.CompleteSocial(ctx, tenant, p.Name(), identity)
	if err != nil {
		_ = s.deps.Machine.Abort(ctx, state)
		countSocialCallback(p.Name(), "abort")
		countLogin(p.Name(), loginOutcome(err))
		WriteDomainError(w, err)
		return
	}

	// delete-once: si un callback duplicado completó primero, este caller
	// NO emite sesión.
	if err := s.deps.Machine.Complete(ctx, state); err != nil {
		countSocialCallback(p.Name(), "terminal")
		WriteDomainError(w, err)
		return
	}
	countSocialCallback(p.Name(), "ok")

	// redirect sólo cuando hay sesión real; waitlisted responde JSON
	if rec.Redirect != "" && sess.Status == session.StatusIssued {
		http.SetCookie(w, s.deps.Cookie.SessionCookie(sess.Token))
		countLogin(p.Name(), "issued")
		http.Redirect(w, r, rec.Redirect, http.StatusFound)
		return
	}
	s.writeSession(w, r, p.Name(), sess)
}

// sanitizeRedirect acota el redirect post-login a paths relativos: nada de
// open redirect hacia hosts arbitrarios.
func sanitizeRedirect(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return ""
	}
	return u.String()
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
