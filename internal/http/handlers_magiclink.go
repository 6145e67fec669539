package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
	"github.com/sssemil/dokustatus-sub002/internal/session"
	"github.com/sssemil/dokustatus-sub002/internal/store"
	"github.com/sssemil/dokustatus-sub002/internal/util"
)

type magicLinkRequest struct {
	Tenant string `json:"tenant"`
	Email  string `json:"email"`
}

// handleMagicLinkRequest pide un magic link por email.
//
// Anti-enumeration: la respuesta es 204 tanto si la cuenta existe como si
// no, si está frozen o si no pasa la whitelist. El único corte visible es el
// rate limit (429) y el tenant inexistente (404: el hostname del tenant es
// público de todos modos).
func (s *Server) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Tenant == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "tenant y email son requeridos")
		return
	}

	tenant, err := s.deps.Store.GetTenantByHost(r.Context(), req.Tenant)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "")
			return
		}
		WriteDomainError(w, err)
		return
	}

	if !allowOrReject(w, r, s.deps.LimitMagicLink, "ml:"+clientIP(r)+":"+req.Email) {
		return
	}

	log := logger.From(r.Context()).With(
		logger.TenantHost(tenant.Host),
		logger.String("email", util.MaskEmail(req.Email)),
	)

	raw, acct, err := s.deps.Facade.BeginMagicLink(r.Context(), tenant, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAccountNotFound),
			errors.Is(err, session.ErrAccountFrozen),
			errors.Is(err, session.ErrNotWhitelisted):
			// misma respuesta que el happy path
			log.Debug("magic link suppressed", logger.Err(err))
			w.WriteHeader(http.StatusNoContent)
		default:
			log.Error("magic link begin failed", logger.Err(err))
			WriteDomainError(w, err)
		}
		return
	}

	if err := s.deps.Mailer.SendLogin(acct.Email, tenant.Host, raw); err != nil {
		log.Error("magic link email failed", logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "email_delivery_failed", "")
		return
	}
	countMagicLinkIssued()
	log.Info("magic link sent")

	if s.deps.DebugEchoLinks {
		WriteJSON(w, http.StatusOK, map[string]string{
			"login_url": s.deps.Mailer.LoginURL(tenant.Host, raw),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMagicLinkConfirm quema el token del link y emite la sesión.
func (s *Server) handleMagicLinkConfirm(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")
	tenant, err := s.resolveTenant(r)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	sess, err := s.deps.Facade.CompleteMagicLink(r.Context(), tenant, rawToken)
	if err != nil {
		countLogin("magic_link", loginOutcome(err))
		WriteDomainError(w, err)
		return
	}
	s.writeSession(w, r, "magic_link", sess)
}

// writeSession responde un login que pasó los gates: cookie + body, o el
// resultado waitlisted sin token.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, method string, sess *session.Session) {
	w.Header().Set("Cache-Control", "no-store")

	if sess.Status == session.StatusWaitlisted {
		countLogin(method, "waitlisted")
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":            "waitlisted",
			"waitlist_position": sess.WaitlistPosition,
		})
		return
	}

	countLogin(method, "issued")
	http.SetCookie(w, s.deps.Cookie.SessionCookie(sess.Token))
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"access_token": sess.Token,
		"token_type":   "Bearer",
	})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, session.ErrAccountFrozen), errors.Is(err, session.ErrNotWhitelisted):
		return "denied"
	default:
		return "invalid"
	}
}
