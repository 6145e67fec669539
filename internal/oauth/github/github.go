// Package github implementa el provider OAuth 2.0 de GitHub. A diferencia de
// Google no hay id_token: el exchange devuelve un access token y la identidad
// sale de la API de usuario. GitHub ignora nonce; el binding replay-safe lo
// da el state record del lado nuestro.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sssemil/dokustatus-sub002/internal/social"
)

const (
	authEndpoint  = "https://github.com/login/oauth/authorize"
	tokenEndpoint = "https://github.com/login/oauth/access_token"
	userEndpoint  = "https://api.github.com/user"
	emailEndpoint = "https://api.github.com/user/emails"
)

// Provider implementa social.Provider contra GitHub.
type Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	http *http.Client
}

func New(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"user:email", "read:user"},
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Provider) Name() string { return "github" }

func (p *Provider) AuthURL(_ context.Context, state, _ string) (string, error) {
	u, err := url.Parse(authEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("scope", strings.Join(p.Scopes, " "))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange canjea el code y resuelve la identidad vía API. El email puede
// venir vacío en /user (perfiles privados): fallback a /user/emails.
func (p *Provider) Exchange(ctx context.Context, code, _ string) (social.Identity, error) {
	accessToken, err := p.exchangeCode(ctx, code)
	if err != nil {
		return social.Identity{}, err
	}

	user, err := p.fetchUser(ctx, accessToken)
	if err != nil {
		return social.Identity{}, err
	}

	email, verified := user.Email, false
	if email == "" {
		email, verified, err = p.fetchPrimaryEmail(ctx, accessToken)
		if err != nil {
			return social.Identity{}, err
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return social.Identity{
		Subject:       strconv.FormatInt(user.ID, 10),
		Email:         email,
		EmailVerified: verified,
		Name:          name,
	}, nil
}

func (p *Provider) exchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", p.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, "POST", tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("github: token request: %w", err)
	}
	defer resp.Body.Close()

	var tr struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("github: decode token response: %w", err)
	}
	if tr.Error != "" {
		return "", fmt.Errorf("github: oauth error: %s - %s", tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return "", errors.New("github: no access_token in response")
	}
	return tr.AccessToken, nil
}

type userInfo struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (p *Provider) fetchUser(ctx context.Context, accessToken string) (*userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", userEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: user request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: user api http %d", resp.StatusCode)
	}
	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("github: decode user: %w", err)
	}
	return &info, nil
}

// fetchPrimaryEmail prefiere primary+verified, después cualquier verified,
// después el primero que haya.
func (p *Provider) fetchPrimaryEmail(ctx context.Context, accessToken string) (email string, verified bool, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", emailEndpoint, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("github: emails request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("github: emails api http %d", resp.StatusCode)
	}
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", false, fmt.Errorf("github: decode emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, emails[0].Verified, nil
	}
	return "", false, errors.New("github: no email found")
}
