package http

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig es la política de la session cookie que setea el confirm de
// login y limpia el logout.
type CookieConfig struct {
	Name     string
	Domain   string
	SameSite string
	Secure   bool
	TTL      time.Duration
}

func ParseSameSite(s string) http.SameSite {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SessionCookie arma la cookie con el token de sesión.
func (c CookieConfig) SessionCookie(value string) *http.Cookie {
	ck := &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: ParseSameSite(c.SameSite),
	}
	if strings.TrimSpace(c.Domain) != "" {
		ck.Domain = c.Domain
	}
	if c.TTL > 0 {
		ck.Expires = time.Now().Add(c.TTL).UTC()
		ck.MaxAge = int(c.TTL.Seconds())
	}
	return ck
}

// DeletionCookie expira la session cookie del lado del browser.
func (c CookieConfig) DeletionCookie() *http.Cookie {
	ck := &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: ParseSameSite(c.SameSite),
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
	}
	if strings.TrimSpace(c.Domain) != "" {
		ck.Domain = c.Domain
	}
	return ck
}
