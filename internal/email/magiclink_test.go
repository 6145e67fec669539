package email

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

type captureSender struct {
	to, subject, html, text string
}

func (c *captureSender) Send(to, subject, htmlBody, textBody string) error {
	c.to, c.subject, c.html, c.text = to, subject, htmlBody, textBody
	return nil
}

func TestLoginURL(t *testing.T) {
	m, err := NewMagicLinkMailer(&captureSender{}, "https://auth.example.com/", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewMagicLinkMailer err: %v", err)
	}

	u := m.LoginURL("app.acme.test", "tok+con/espacios raros")
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("URL inválida: %v", err)
	}
	if parsed.Path != "/v1/auth/magic-link/confirm" {
		t.Fatalf("path: %q", parsed.Path)
	}
	// el token vuelve intacto después del encoding
	if got := parsed.Query().Get("token"); got != "tok+con/espacios raros" {
		t.Fatalf("token roundtrip: %q", got)
	}
	if got := parsed.Query().Get("tenant"); got != "app.acme.test" {
		t.Fatalf("tenant: %q", got)
	}
}

func TestSendLogin_RendersBothBodies(t *testing.T) {
	cap := &captureSender{}
	m, _ := NewMagicLinkMailer(cap, "https://auth.example.com", 15*time.Minute)

	if err := m.SendLogin("ana@acme.test", "app.acme.test", "rawtok123"); err != nil {
		t.Fatalf("SendLogin err: %v", err)
	}
	if cap.to != "ana@acme.test" {
		t.Fatalf("to: %q", cap.to)
	}
	if !strings.Contains(cap.subject, "app.acme.test") {
		t.Fatalf("subject: %q", cap.subject)
	}
	link := m.LoginURL("app.acme.test", "rawtok123")
	if !strings.Contains(cap.text, link) {
		t.Fatalf("texto sin link: %q", cap.text)
	}
	if !strings.Contains(cap.html, "rawtok123") {
		t.Fatal("html sin token")
	}
	if !strings.Contains(cap.text, "15 minutos") {
		t.Fatalf("TTL no renderizado: %q", cap.text)
	}
}
