package email

import (
	"bytes"
	"fmt"
	htemplate "html/template"
	"net/url"
	"strings"
	ttemplate "text/template"
	"time"
)

const defaultLoginHTML = `<!doctype html>
<html>
  <body style="font-family: sans-serif; color: #222;">
    <h2>Ingresá a {{.Tenant}}</h2>
    <p>Hacé click en el botón para iniciar sesión. El link vence en {{.TTL}} y sirve una sola vez.</p>
    <p><a href="{{.Link}}" style="display:inline-block;padding:10px 18px;background:#18181b;color:#fff;text-decoration:none;border-radius:6px;">Iniciar sesión</a></p>
    <p style="color:#666;font-size:13px;">Si no pediste este mail, ignoralo.</p>
  </body>
</html>`

const defaultLoginText = `Ingresá a {{.Tenant}}

Abrí este link para iniciar sesión (vence en {{.TTL}}, sirve una sola vez):

{{.Link}}

Si no pediste este mail, ignoralo.`

// loginVars son las variables del template de login.
type loginVars struct {
	Tenant string
	Link   string
	TTL    string
}

// MagicLinkMailer arma la URL de confirmación y despacha el mail.
type MagicLinkMailer struct {
	Sender  Sender
	BaseURL string // ej: https://auth.dokustatus.io
	TTL     time.Duration

	htmlTmpl *htemplate.Template
	textTmpl *ttemplate.Template
}

func NewMagicLinkMailer(sender Sender, baseURL string, ttl time.Duration) (*MagicLinkMailer, error) {
	ht, err := htemplate.New("login_html").Parse(defaultLoginHTML)
	if err != nil {
		return nil, fmt.Errorf("email: parse html template: %w", err)
	}
	tt, err := ttemplate.New("login_text").Parse(defaultLoginText)
	if err != nil {
		return nil, fmt.Errorf("email: parse text template: %w", err)
	}
	return &MagicLinkMailer{
		Sender:   sender,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		TTL:      ttl,
		htmlTmpl: ht,
		textTmpl: tt,
	}, nil
}

// LoginURL arma la URL de confirmación que viaja en el mail.
func (m *MagicLinkMailer) LoginURL(tenantHost, rawToken string) string {
	q := url.Values{}
	q.Set("token", rawToken)
	q.Set("tenant", tenantHost)
	return m.BaseURL + "/v1/auth/magic-link/confirm?" + q.Encode()
}

// SendLogin renderiza y manda el mail de login para el tenant dado.
func (m *MagicLinkMailer) SendLogin(to, tenantHost, rawToken string) error {
	vars := loginVars{
		Tenant: tenantHost,
		Link:   m.LoginURL(tenantHost, rawToken),
		TTL:    formatTTL(m.TTL),
	}

	var html, text bytes.Buffer
	if err := m.htmlTmpl.Execute(&html, vars); err != nil {
		return fmt.Errorf("email: render html: %w", err)
	}
	if err := m.textTmpl.Execute(&text, vars); err != nil {
		return fmt.Errorf("email: render text: %w", err)
	}

	subject := "Tu link de ingreso a " + tenantHost
	return m.Sender.Send(to, subject, html.String(), text.String())
}

func formatTTL(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%d minutos", int(d.Minutes()))
}
