// Package google implementa el provider OIDC de Google: discovery cacheado,
// JWKS con ETag, exchange del code y verificación del id_token (firma, iss,
// aud, nonce, exp).
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/sssemil/dokustatus-sub002/internal/social"
)

const (
	discoveryURL = "https://accounts.google.com/.well-known/openid-configuration"
	discoveryTTL = 24 * time.Hour
	jwksTTL      = time.Hour
)

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	AuthEndpoint  string `json:"authorization_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// Provider implementa social.Provider contra Google.
type Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	http *http.Client

	mu     sync.RWMutex
	disc   *discoveryDoc
	discAt time.Time

	jwks     *jwkSet
	jwksAt   time.Time
	jwksETag string
}

func New(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) AuthURL(ctx context.Context, state, nonce string) (string, error) {
	disc, err := p.discovery(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(disc.AuthEndpoint)
	if err != nil {
		return "", fmt.Errorf("google: bad auth endpoint: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("scope", strings.Join(p.Scopes, " "))
	q.Set("state", state)
	q.Set("nonce", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange canjea el code y verifica el id_token resultante contra el nonce.
func (p *Provider) Exchange(ctx context.Context, code, nonce string) (social.Identity, error) {
	disc, err := p.discovery(ctx)
	if err != nil {
		return social.Identity{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("redirect_uri", p.RedirectURL)

	req, _ := http.NewRequestWithContext(ctx, "POST", disc.TokenEndpoint, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.http.Do(req)
	if err != nil {
		return social.Identity{}, fmt.Errorf("google: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var b struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return social.Identity{}, fmt.Errorf("google: token http %d: %s %s", resp.StatusCode, b.Error, b.ErrorDescription)
	}

	var tr struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return social.Identity{}, fmt.Errorf("google: decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return social.Identity{}, errors.New("google: no id_token in response")
	}
	return p.verifyIDToken(ctx, tr.IDToken, nonce)
}

// verifyIDToken valida firma, iss, aud, nonce y exp.
func (p *Provider) verifyIDToken(ctx context.Context, idToken, expectedNonce string) (social.Identity, error) {
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return social.Identity{}, errors.New("google: bad jwt format")
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return social.Identity{}, err
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return social.Identity{}, err
	}
	if header.Alg != "RS256" {
		return social.Identity{}, fmt.Errorf("google: unexpected alg %s", header.Alg)
	}

	key, err := p.rsaKeyForKid(ctx, header.Kid)
	if err != nil {
		return social.Identity{}, err
	}
	tok, err := jwtv5.Parse(idToken,
		func(*jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil || !tok.Valid {
		return social.Identity{}, errors.New("google: invalid id_token")
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return social.Identity{}, errors.New("google: claims type")
	}

	iss, _ := claims["iss"].(string)
	if iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return social.Identity{}, fmt.Errorf("google: bad iss %q", iss)
	}
	if !audMatches(claims["aud"], p.ClientID) {
		return social.Identity{}, errors.New("google: bad aud")
	}
	if expectedNonce != "" {
		if got, _ := claims["nonce"].(string); got != expectedNonce {
			return social.Identity{}, errors.New("google: bad nonce")
		}
	}

	return social.Identity{
		Subject:       strClaim(claims, "sub"),
		Email:         strClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          strClaim(claims, "name"),
	}, nil
}

func (p *Provider) discovery(ctx context.Context) (*discoveryDoc, error) {
	p.mu.RLock()
	disc := p.disc
	fresh := time.Since(p.discAt) < discoveryTTL
	p.mu.RUnlock()
	if disc != nil && fresh {
		return disc, nil
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", discoveryURL, nil)
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: discovery: %w", err)
	}
	defer resp.Body.Close()
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, fmt.Errorf("google: decode discovery: %w", err)
	}

	p.mu.Lock()
	p.disc = &dd
	p.discAt = time.Now()
	p.mu.Unlock()
	return &dd, nil
}

func (p *Provider) getJWKS(ctx context.Context, uri string) (*jwkSet, error) {
	p.mu.RLock()
	set := p.jwks
	fresh := time.Since(p.jwksAt) < jwksTTL
	p.mu.RUnlock()
	if set != nil && fresh {
		return set, nil
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if p.jwksETag != "" {
		req.Header.Set("If-None-Match", p.jwksETag)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		p.mu.Lock()
		out := p.jwks
		p.jwksAt = time.Now()
		p.mu.Unlock()
		return out, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("google: jwks http %d", resp.StatusCode)
	}
	var jj jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, fmt.Errorf("google: decode jwks: %w", err)
	}

	p.mu.Lock()
	p.jwks = &jj
	p.jwksAt = time.Now()
	p.jwksETag = resp.Header.Get("ETag")
	p.mu.Unlock()
	return &jj, nil
}

func (p *Provider) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	disc, err := p.discovery(ctx)
	if err != nil {
		return nil, err
	}
	set, err := p.getJWKS(ctx, disc.JWKSURI)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nb, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		e := 65537
		if len(eb) > 0 {
			e = 0
			for _, b := range eb {
				e = (e << 8) | int(b)
			}
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
	}
	return nil, errors.New("google: kid not found")
}

func audMatches(aud any, clientID string) bool {
	switch a := aud.(type) {
	case string:
		return a == clientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == clientID {
				return true
			}
		}
	}
	return false
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}

func boolClaim(m jwtv5.MapClaims, k string) bool {
	b, _ := m[k].(bool)
	return b
}
