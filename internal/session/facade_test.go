package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sssemil/dokustatus-sub002/internal/kv"
	"github.com/sssemil/dokustatus-sub002/internal/magiclink"
	"github.com/sssemil/dokustatus-sub002/internal/social"
	"github.com/sssemil/dokustatus-sub002/internal/store"
	"github.com/sssemil/dokustatus-sub002/internal/token"
)

var testTenantID = uuid.MustParse("11111111-0000-0000-0000-000000000001")

func newFixture(t *testing.T) (*Facade, *store.Memory, *store.Tenant) {
	t.Helper()
	mem := store.NewMemory()
	tenant := store.Tenant{
		ID:     testTenantID,
		Host:   "app.acme.test",
		APIKey: []byte("sk_test_fixture_key"),
	}
	mem.PutTenant(tenant)
	f := New(mem, magiclink.NewStore(kv.NewMemory("t"), 15*time.Minute), token.NewCodec(15*time.Minute))
	return f, mem, &tenant
}

func seedAccount(mem *store.Memory, mut func(*store.Account)) store.Account {
	a := store.Account{
		ID:       uuid.New(),
		TenantID: testTenantID,
		Email:    "ana@acme.test",
		Roles:    []string{"member"},
	}
	if mut != nil {
		mut(&a)
	}
	mem.PutAccount(a)
	return a
}

func TestMagicLink_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f, mem, tenant := newFixture(t)
	acct := seedAccount(mem, nil)
	mem.PutSubscription(tenant.ID, store.Subscription{
		Status:    "active",
		Plan:      "pro",
		PeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	})

	raw, got, err := f.BeginMagicLink(ctx, tenant, "ana@acme.test")
	if err != nil {
		t.Fatalf("BeginMagicLink err: %v", err)
	}
	if got.ID != acct.ID {
		t.Fatalf("cuenta equivocada: %s", got.ID)
	}

	sess, err := f.CompleteMagicLink(ctx, tenant, raw)
	if err != nil {
		t.Fatalf("CompleteMagicLink err: %v", err)
	}
	if sess.Status != StatusIssued || sess.Token == "" {
		t.Fatalf("sesión: %+v", sess)
	}

	claims, err := f.Authenticate(ctx, tenant, sess.Token)
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}
	if claims.Subject != acct.ID.String() {
		t.Fatalf("subject: got %q want %q", claims.Subject, acct.ID)
	}
	if claims.Subscription.Status != "active" || claims.Subscription.Plan != "pro" {
		t.Fatalf("snapshot: %+v", claims.Subscription)
	}

	// el link es single-use
	if _, err := f.CompleteMagicLink(ctx, tenant, raw); !errors.Is(err, magiclink.ErrLinkInvalidOrExpired) {
		t.Fatalf("replay: want ErrLinkInvalidOrExpired, got %v", err)
	}
}

func TestBeginMagicLink_UnknownEmail(t *testing.T) {
	ctx := context.Background()
	f, _, tenant := newFixture(t)

	if _, _, err := f.BeginMagicLink(ctx, tenant, "nadie@acme.test"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestGate_Frozen(t *testing.T) {
	ctx := context.Background()
	f, mem, tenant := newFixture(t)
	seedAccount(mem, func(a *store.Account) { a.Frozen = true })

	if _, _, err := f.BeginMagicLink(ctx, tenant, "ana@acme.test"); !errors.Is(err, ErrAccountFrozen) {
		t.Fatalf("begin: want ErrAccountFrozen, got %v", err)
	}
	// la rama social tampoco emite
	if _, err := f.CompleteSocial(ctx, tenant, "google", social.Identity{
		Subject: "g-123", Email: "ana@acme.test",
	}); !errors.Is(err, ErrAccountFrozen) {
		t.Fatalf("social: want ErrAccountFrozen, got %v", err)
	}
}

func TestGate_WhitelistOnly(t *testing.T) {
	ctx := context.Background()
	f, mem, tenant := newFixture(t)
	tenant.WhitelistEnabled = true
	mem.PutTenant(*tenant)
	seedAccount(mem, nil) // no whitelisteada

	if _, _, err := f.BeginMagicLink(ctx, tenant, "ana@acme.test"); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("want ErrNotWhitelisted, got %v", err)
	}

	// whitelisteada sí pasa
	mem.PutAccount(store.Account{
		ID: uuid.New(), TenantID: tenant.ID,
		Email: "beto@acme.test", Whitelisted: true, Roles: []string{"member"},
	})
	raw, _, err := f.BeginMagicLink(ctx, tenant, "beto@acme.test")
	if err != nil {
		t.Fatalf("begin whitelisteada err: %v", err)
	}
	sess, err := f.CompleteMagicLink(ctx, tenant, raw)
	if err != nil || sess.Status != StatusIssued {
		t.Fatalf("complete whitelisteada: sess=%+v err=%v", sess, err)
	}
}

func TestGate_Waitlisted(t *testing.T) {
	ctx := context.Background()
	f, mem, tenant := newFixture(t)
	pos := 42
	seedAccount(mem, func(a *store.Account) { a.WaitlistPosition = &pos })

	raw, _, err := f.BeginMagicLink(ctx, tenant, "ana@acme.test")
	if err != nil {
		t.Fatalf("begin err: %v", err)
	}
	sess, err := f.CompleteMagicLink(ctx, tenant, raw)
	if err != nil {
		t.Fatalf("complete err: %v", err)
	}
	if sess.Status != StatusWaitlisted {
		t.Fatalf("status: got %q want waitlisted", sess.Status)
	}
	if sess.Token != "" {
		t.Fatal("waitlisted no debe llevar token")
	}
	if sess.WaitlistPosition != 42 {
		t.Fatalf("posición: got %d want 42", sess.WaitlistPosition)
	}
}

func TestCompleteSocial_ProvisionsAccount(t *testing.T) {
	ctx := context.Background()
	f, mem, tenant := newFixture(t)

	sess, err := f.CompleteSocial(ctx, tenant, "github", social.Identity{
		Subject: "gh-777", Email: "Carla@Acme.Test",
	})
	if err != nil {
		t.Fatalf("CompleteSocial err: %v", err)
	}
	if sess.Status != StatusIssued || sess.Token == "" {
		t.Fatalf("sesión: %+v", sess)
	}

	// segunda pasada reusa la misma cuenta (idempotente)
	again, err := f.CompleteSocial(ctx, tenant, "github", social.Identity{
		Subject: "gh-777", Email: "carla@acme.test",
	})
	if err != nil {
		t.Fatalf("segunda pasada err: %v", err)
	}
	if again.Account.ID != sess.Account.ID {
		t.Fatalf("cuentas distintas: %s vs %s", again.Account.ID, sess.Account.ID)
	}

	if _, err := mem.GetAccountByEmail(ctx, tenant.ID, "carla@acme.test"); err != nil {
		t.Fatalf("cuenta provisionada no encontrada: %v", err)
	}
}

func TestSnapshot_NoBillingRecord(t *testing.T) {
	ctx := context.Background()
	f, mem, tenant := newFixture(t)
	seedAccount(mem, nil)

	raw, _, _ := f.BeginMagicLink(ctx, tenant, "ana@acme.test")
	sess, err := f.CompleteMagicLink(ctx, tenant, raw)
	if err != nil {
		t.Fatalf("complete err: %v", err)
	}
	claims, err := f.Authenticate(ctx, tenant, sess.Token)
	if err != nil {
		t.Fatalf("authenticate err: %v", err)
	}
	if claims.Subscription.Status != "none" {
		t.Fatalf("snapshot sin billing: %+v", claims.Subscription)
	}
}
