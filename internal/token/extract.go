package token

import (
	"net/http"
	"strings"
)

// FromRequest extrae el session token crudo de un request.
// Fuentes, en orden: header Authorization Bearer, cookie con nombre dado.
// Ninguna otra (query params quedan en access logs).
func FromRequest(r *http.Request, cookieName string) (string, bool) {
	if ah := r.Header.Get("Authorization"); ah != "" {
		parts := strings.SplitN(ah, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if tk := strings.TrimSpace(parts[1]); tk != "" {
				return tk, true
			}
		}
	}
	if cookieName != "" {
		if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
			return ck.Value, true
		}
	}
	return "", false
}
