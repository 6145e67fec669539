package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sssemil/dokustatus-sub002/internal/magiclink"
	"github.com/sssemil/dokustatus-sub002/internal/session"
	"github.com/sssemil/dokustatus-sub002/internal/social"
	"github.com/sssemil/dokustatus-sub002/internal/store"
	"github.com/sssemil/dokustatus-sub002/internal/token"
	"github.com/sssemil/dokustatus-sub002/internal/webhook"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON: decodifica JSON de forma tolerante (NO falla por campos
// desconocidos). Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido")
		return false
	}
	return true
}

// WriteDomainError mapea los errores tipados del core a (status, code)
// estables. El texto nunca distingue miss de expiry donde el core tampoco.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrDomainMismatch):
		WriteError(w, http.StatusUnauthorized, "domain_mismatch", "")
	case errors.Is(err, token.ErrTokenExpired):
		WriteError(w, http.StatusUnauthorized, "token_expired", "")
	case errors.Is(err, token.ErrSignatureInvalid):
		WriteError(w, http.StatusUnauthorized, "signature_invalid", "")
	case errors.Is(err, token.ErrTokenMalformed):
		WriteError(w, http.StatusBadRequest, "token_malformed", "")

	case errors.Is(err, magiclink.ErrLinkInvalidOrExpired):
		WriteError(w, http.StatusUnauthorized, "link_invalid_or_expired", "")

	case errors.Is(err, social.ErrStateNotFound):
		WriteError(w, http.StatusBadRequest, "state_not_found", "")
	case errors.Is(err, social.ErrRetryWindowExpired):
		WriteError(w, http.StatusConflict, "retry_window_expired", "")
	case errors.Is(err, social.ErrStateAlreadyTerminal):
		WriteError(w, http.StatusConflict, "state_already_terminal", "")
	case errors.Is(err, social.ErrUpstreamExchangeFailed):
		WriteError(w, http.StatusBadGateway, "upstream_exchange_failed", "")

	case errors.Is(err, webhook.ErrHeaderMalformed):
		WriteError(w, http.StatusBadRequest, "signature_header_malformed", "")
	case errors.Is(err, webhook.ErrTimestampOutOfTolerance):
		WriteError(w, http.StatusBadRequest, "timestamp_out_of_tolerance", "")
	case errors.Is(err, webhook.ErrSignatureVerificationFailed):
		WriteError(w, http.StatusUnauthorized, "signature_verification_failed", "")
	case errors.Is(err, webhook.ErrPayloadMalformed):
		WriteError(w, http.StatusBadRequest, "payload_malformed", "")

	case errors.Is(err, session.ErrAccountFrozen):
		WriteError(w, http.StatusForbidden, "account_frozen", "")
	case errors.Is(err, session.ErrNotWhitelisted):
		WriteError(w, http.StatusForbidden, "not_whitelisted", "")
	case errors.Is(err, session.ErrAccountNotFound), errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "")

	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
