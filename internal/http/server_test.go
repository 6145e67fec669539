package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sssemil/dokustatus-sub002/internal/email"
	"github.com/sssemil/dokustatus-sub002/internal/kv"
	"github.com/sssemil/dokustatus-sub002/internal/magiclink"
	"github.com/sssemil/dokustatus-sub002/internal/rate"
	"github.com/sssemil/dokustatus-sub002/internal/session"
	"github.com/sssemil/dokustatus-sub002/internal/social"
	"github.com/sssemil/dokustatus-sub002/internal/store"
	"github.com/sssemil/dokustatus-sub002/internal/token"
	"github.com/sssemil/dokustatus-sub002/internal/webhook"
)

var (
	fxTenantID = uuid.MustParse("11111111-0000-0000-0000-00000000aaaa")
	fxTenant   = "app.acme.test"
	fxSecret   = "whsec_test_secret"
)

type fakeSender struct{ last struct{ to, html string } }

func (f *fakeSender) Send(to, _, htmlBody, _ string) error {
	f.last.to, f.last.html = to, htmlBody
	return nil
}

type fakeProvider struct {
	name     string
	identity social.Identity
	err      error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) AuthURL(_ context.Context, state, nonce string) (string, error) {
	return "https://idp.test/authorize?state=" + url.QueryEscape(state), nil
}
func (f *fakeProvider) Exchange(_ context.Context, code, _ string) (social.Identity, error) {
	if f.err != nil {
		return social.Identity{}, f.err
	}
	return f.identity, nil
}

type fixture struct {
	srv    *Server
	mem    *store.Memory
	sender *fakeSender
	idp    *fakeProvider
}

func newServerFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemory()
	mem.PutTenant(store.Tenant{
		ID:     fxTenantID,
		Host:   fxTenant,
		APIKey: []byte("sk_live_fixture"),
	})
	mem.PutAccount(store.Account{
		ID:       uuid.MustParse("22222222-0000-0000-0000-00000000bbbb"),
		TenantID: fxTenantID,
		Email:    "ana@acme.test",
		Roles:    []string{"member"},
	})

	kvc := kv.NewMemory("t")
	links := magiclink.NewStore(kvc, 15*time.Minute)
	codec := token.NewCodec(15 * time.Minute)
	facade := session.New(mem, links, codec)
	machine := social.NewMachine(social.NewMemoryStateStore(), 10*time.Minute, 30*time.Second)

	sender := &fakeSender{}
	mailer, err := email.NewMagicLinkMailer(sender, "https://auth.dokustatus.test", 15*time.Minute)
	require.NoError(t, err)

	idp := &fakeProvider{
		name:     "google",
		identity: social.Identity{Subject: "g-1", Email: "ana@acme.test", EmailVerified: true},
	}

	srv, err := New(Deps{
		Store:          mem,
		KV:             kvc,
		Facade:         facade,
		Machine:        machine,
		Providers:      map[string]social.Provider{"google": idp},
		Mailer:         mailer,
		Verifier:       &webhook.Verifier{Secret: []byte(fxSecret)},
		LimitMagicLink: rate.NewMemoryLimiter(100, time.Minute),
		LimitSocial:    rate.NewMemoryLimiter(100, time.Minute),
		Cookie:         CookieConfig{Name: "dk_session", SameSite: "lax", TTL: 15 * time.Minute},
		DebugEchoLinks: true,
	})
	require.NoError(t, err)

	return &fixture{srv: srv, mem: mem, sender: sender, idp: idp}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestMagicLink_RequestAndConfirm(t *testing.T) {
	fx := newServerFixture(t)

	rr := fx.do(t, postJSON(t, "/v1/auth/magic-link/request", map[string]string{
		"tenant": fxTenant, "email": "ana@acme.test",
	}))
	require.Equal(t, http.StatusOK, rr.Code) // DebugEchoLinks

	var body struct {
		LoginURL string `json:"login_url"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ana@acme.test", fx.sender.last.to)

	u, err := url.Parse(body.LoginURL)
	require.NoError(t, err)
	raw := u.Query().Get("token")
	require.NotEmpty(t, raw)

	confirm := httptest.NewRequest(http.MethodGet,
		"/v1/auth/magic-link/confirm?tenant="+fxTenant+"&token="+url.QueryEscape(raw), nil)
	rr = fx.do(t, confirm)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		Status      string `json:"status"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "ok", out.Status)
	require.NotEmpty(t, out.AccessToken)

	// cookie de sesión seteada
	found := false
	for _, ck := range rr.Result().Cookies() {
		if ck.Name == "dk_session" && ck.Value == out.AccessToken {
			found = true
		}
	}
	require.True(t, found, "falta la cookie dk_session")

	// replay del mismo link
	rr = fx.do(t, httptest.NewRequest(http.MethodGet,
		"/v1/auth/magic-link/confirm?tenant="+fxTenant+"&token="+url.QueryEscape(raw), nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMagicLink_AntiEnumeration(t *testing.T) {
	fx := newServerFixture(t)

	// cuenta inexistente responde igual que el happy path sin echo
	fx.srv.deps.DebugEchoLinks = false
	rr := fx.do(t, postJSON(t, "/v1/auth/magic-link/request", map[string]string{
		"tenant": fxTenant, "email": "nadie@acme.test",
	}))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = fx.do(t, postJSON(t, "/v1/auth/magic-link/request", map[string]string{
		"tenant": fxTenant, "email": "ana@acme.test",
	}))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMagicLink_RateLimited(t *testing.T) {
	fx := newServerFixture(t)
	fx.srv.deps.LimitMagicLink = rate.NewMemoryLimiter(1, time.Hour)

	req := func() *http.Request {
		return postJSON(t, "/v1/auth/magic-link/request", map[string]string{
			"tenant": fxTenant, "email": "ana@acme.test",
		})
	}
	require.Equal(t, http.StatusOK, fx.do(t, req()).Code)

	rr := fx.do(t, req())
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestSocial_StartAndCallback(t *testing.T) {
	fx := newServerFixture(t)

	rr := fx.do(t, httptest.NewRequest(http.MethodGet,
		"/v1/auth/social/google/start?tenant="+fxTenant, nil))
	require.Equal(t, http.StatusFound, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	cb := "/v1/auth/social/google/callback?state=" + url.QueryEscape(state) + "&code=authcode"
	rr = fx.do(t, httptest.NewRequest(http.MethodGet, cb, nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		Status      string `json:"status"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "ok", out.Status)
	require.NotEmpty(t, out.AccessToken)

	// el state murió con el Complete: replay del callback no re-emite
	rr = fx.do(t, httptest.NewRequest(http.MethodGet, cb, nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSocial_UnknownProvider(t *testing.T) {
	fx := newServerFixture(t)
	rr := fx.do(t, httptest.NewRequest(http.MethodGet,
		"/v1/auth/social/facebook/start?tenant="+fxTenant, nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSocial_ExchangeAbort(t *testing.T) {
	fx := newServerFixture(t)
	fx.idp.err = fmt.Errorf("idp dijo que no")

	rr := fx.do(t, httptest.NewRequest(http.MethodGet,
		"/v1/auth/social/google/start?tenant="+fxTenant, nil))
	loc, _ := url.Parse(rr.Header().Get("Location"))
	state := loc.Query().Get("state")

	cb := "/v1/auth/social/google/callback?state=" + url.QueryEscape(state) + "&code=authcode"
	rr = fx.do(t, httptest.NewRequest(http.MethodGet, cb, nil))
	require.Equal(t, http.StatusBadGateway, rr.Code)

	// abort borró el record: el retry arranca de cero
	rr = fx.do(t, httptest.NewRequest(http.MethodGet, cb, nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func signWebhook(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhook_UpdatesSubscription(t *testing.T) {
	fx := newServerFixture(t)

	payload := []byte(`{"id":"evt_1","type":"subscription.updated","created":` +
		fmt.Sprint(time.Now().Unix()) +
		`,"data":{"tenant_id":"` + fxTenantID.String() + `","status":"active","plan":"pro"}}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/billing", bytes.NewReader(payload))
	req.Header.Set(SignatureHeader, signWebhook(fxSecret, time.Now().Unix(), payload))
	rr := fx.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	sub, err := fx.mem.GetSubscription(context.Background(), fxTenantID)
	require.NoError(t, err)
	require.Equal(t, "active", sub.Status)
	require.Equal(t, "pro", sub.Plan)
}

func TestWebhook_BadSignature(t *testing.T) {
	fx := newServerFixture(t)

	payload := []byte(`{"id":"evt_2","type":"subscription.updated","data":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/billing", bytes.NewReader(payload))
	req.Header.Set(SignatureHeader, signWebhook("otro_secreto", time.Now().Unix(), payload))

	rr := fx.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// el payload nunca se aplicó
	_, err := fx.mem.GetSubscription(context.Background(), fxTenantID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMe_BearerAndCookie(t *testing.T) {
	fx := newServerFixture(t)

	// emitir una sesión por el camino normal
	rr := fx.do(t, postJSON(t, "/v1/auth/magic-link/request", map[string]string{
		"tenant": fxTenant, "email": "ana@acme.test",
	}))
	var body struct {
		LoginURL string `json:"login_url"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	u, _ := url.Parse(body.LoginURL)
	rr = fx.do(t, httptest.NewRequest(http.MethodGet,
		"/v1/auth/magic-link/confirm?tenant="+fxTenant+"&token="+url.QueryEscape(u.Query().Get("token")), nil))
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))

	// Bearer
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me?tenant="+fxTenant, nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	rr = fx.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, strings.Contains(rr.Body.String(), fxTenant))

	// Cookie
	req = httptest.NewRequest(http.MethodGet, "/v1/auth/me?tenant="+fxTenant, nil)
	req.AddCookie(&http.Cookie{Name: "dk_session", Value: out.AccessToken})
	rr = fx.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code)

	// sin token
	rr = fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/auth/me?tenant="+fxTenant, nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	fx := newServerFixture(t)

	rr := fx.do(t, httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	cks := rr.Result().Cookies()
	require.NotEmpty(t, cks)
	require.Equal(t, "dk_session", cks[0].Name)
	require.Equal(t, -1, cks[0].MaxAge)
}

func TestHealthz(t *testing.T) {
	fx := newServerFixture(t)
	rr := fx.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
