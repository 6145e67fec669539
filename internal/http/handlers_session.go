package http

import (
	"net/http"

	"github.com/sssemil/dokustatus-sub002/internal/token"
)

// handleMe devuelve los claims verificados del token del request. Sin
// round-trip a storage en el camino de verificación: todo sale del token
// salvo la api key del tenant.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	tenant, err := s.resolveTenant(r)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	raw, ok := token.FromRequest(r, s.deps.Cookie.Name)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "")
		return
	}

	claims, err := s.deps.Facade.Authenticate(r.Context(), tenant, raw)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, map[string]any{
		"sub":          claims.Subject,
		"tenant":       claims.TenantHost,
		"roles":        claims.Roles,
		"subscription": claims.Subscription,
		"expires_at":   claims.ExpiresAt.Unix(),
	})
}

// handleLogout limpia la cookie. El token sigue siendo válido hasta su exp
// (verificación stateless); el logout es un asunto del browser.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.deps.Cookie.DeletionCookie())
	w.WriteHeader(http.StatusNoContent)
}
