// Package session es el punto de composición que llama la capa HTTP: aplica
// los policy gates de cuenta (frozen / whitelist / waitlist) y delega en el
// magic link o el flujo social para terminar emitiendo el token de sesión.
//
// El orden es fijo: gate primero, emitir después. Ninguna rama emite claims
// para una cuenta frozen, ni para una cuenta no whitelisteada cuando el
// tenant tiene whitelist-only activo; una cuenta en waitlist produce un
// resultado "waitlisted" distinguible, nunca un token.
package session

import (
	"context"
	"errors"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/sssemil/dokustatus-sub002/internal/magiclink"
	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
	"github.com/sssemil/dokustatus-sub002/internal/social"
	"github.com/sssemil/dokustatus-sub002/internal/store"
	"github.com/sssemil/dokustatus-sub002/internal/token"
)

var (
	// ErrAccountFrozen bloquea toda sesión nueva para la cuenta.
	ErrAccountFrozen = errors.New("session: account frozen")

	// ErrNotWhitelisted aplica sólo con whitelist-only activo en el tenant.
	ErrNotWhitelisted = errors.New("session: account not whitelisted")

	// ErrAccountNotFound enmascara miss de cuenta; la capa HTTP decide si lo
	// expone o responde genérico (anti-enumeration en magic link request).
	ErrAccountNotFound = errors.New("session: account not found")
)

// Status del resultado de un login.
type Status string

const (
	StatusIssued     Status = "issued"
	StatusWaitlisted Status = "waitlisted"
)

// Session es el resultado de un login que pasó los gates. Token queda vacío
// cuando Status es waitlisted.
type Session struct {
	Status           Status
	Token            string
	Account          *store.Account
	WaitlistPosition int
}

// Facade compone store + magic link + codec. No tiene estado propio.
type Facade struct {
	Store store.Store
	Links *magiclink.Store
	Codec *token.Codec
}

func New(st store.Store, links *magiclink.Store, codec *token.Codec) *Facade {
	return &Facade{Store: st, Links: links, Codec: codec}
}

// BeginMagicLink busca la cuenta y genera el token crudo del link. El caller
// (HTTP + email) arma la URL; acá nunca se vuelve a leer.
//
// Frozen y whitelist cortan acá mismo: no tiene sentido mandar un mail cuyo
// confirm va a fallar. Waitlist NO corta: el confirm devuelve el resultado
// waitlisted.
func (f *Facade) BeginMagicLink(ctx context.Context, tenant *store.Tenant, email string) (string, *store.Account, error) {
	acct, err := f.Store.GetAccountByEmail(ctx, tenant.ID, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrAccountNotFound
		}
		return "", nil, fmt.Errorf("session: lookup account: %w", err)
	}
	if err := f.gate(tenant, acct); err != nil {
		return "", nil, err
	}

	raw, err := f.Links.Generate(ctx, magiclink.Grant{
		TenantID:  tenant.ID,
		AccountID: acct.ID,
		Email:     acct.Email,
	})
	if err != nil {
		return "", nil, err
	}
	return raw, acct, nil
}

// CompleteMagicLink quema el token y, si los gates pasan, emite la sesión.
func (f *Facade) CompleteMagicLink(ctx context.Context, tenant *store.Tenant, raw string) (*Session, error) {
	grant, err := f.Links.Consume(ctx, raw, tenant.ID)
	if err != nil {
		return nil, err
	}
	acct, err := f.Store.GetAccountByID(ctx, tenant.ID, grant.AccountID)
	if err != nil {
		// la cuenta desapareció entre generate y consume; mismo genérico
		if errors.Is(err, store.ErrNotFound) {
			return nil, magiclink.ErrLinkInvalidOrExpired
		}
		return nil, fmt.Errorf("session: lookup account: %w", err)
	}
	return f.issue(ctx, tenant, acct)
}

// CompleteSocial provisiona (o linkea) la cuenta para la identidad ya
// verificada contra el provider y emite la sesión.
func (f *Facade) CompleteSocial(ctx context.Context, tenant *store.Tenant, provider string, id social.Identity) (*Session, error) {
	acct, err := f.Store.EnsureAccountByIdentity(ctx, tenant.ID, provider, id.Subject, id.Email)
	if err != nil {
		return nil, fmt.Errorf("session: ensure account: %w", err)
	}
	return f.issue(ctx, tenant, acct)
}

// Authenticate valida un token entrante contra el tenant del request.
func (f *Facade) Authenticate(ctx context.Context, tenant *store.Tenant, raw string) (*token.Claims, error) {
	return f.Codec.Verify(raw, tenant.Host, tenant.APIKey)
}

// gate aplica frozen y whitelist. Waitlist se resuelve en issue porque no es
// un error: es un resultado.
func (f *Facade) gate(tenant *store.Tenant, acct *store.Account) error {
	if acct.Frozen {
		return ErrAccountFrozen
	}
	if tenant.WhitelistEnabled && !acct.Whitelisted {
		return ErrNotWhitelisted
	}
	return nil
}

func (f *Facade) issue(ctx context.Context, tenant *store.Tenant, acct *store.Account) (*Session, error) {
	if err := f.gate(tenant, acct); err != nil {
		return nil, err
	}
	if acct.WaitlistPosition != nil {
		return &Session{
			Status:           StatusWaitlisted,
			Account:          acct,
			WaitlistPosition: *acct.WaitlistPosition,
		}, nil
	}

	signed, err := f.Codec.Issue(tenant.APIKey, tenant.ID, token.Claims{
		TenantHost:   tenant.Host,
		Roles:        acct.Roles,
		Subscription: f.snapshot(ctx, tenant),
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject: acct.ID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: issue token: %w", err)
	}
	return &Session{Status: StatusIssued, Token: signed, Account: acct}, nil
}

// snapshot arma la foto de suscripción para embebir en los claims. Sin
// registro de billing el tenant queda en "none": emitir igual, el downstream
// decide qué features habilita.
func (f *Facade) snapshot(ctx context.Context, tenant *store.Tenant) token.SubscriptionSnapshot {
	sub, err := f.Store.GetSubscription(ctx, tenant.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.From(ctx).Warn("subscription lookup failed",
				logger.TenantID(tenant.ID.String()), logger.Err(err))
		}
		return token.SubscriptionSnapshot{Status: "none"}
	}
	snap := token.SubscriptionSnapshot{
		Status:            sub.Status,
		Plan:              sub.Plan,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if !sub.PeriodEnd.IsZero() {
		snap.PeriodEnd = sub.PeriodEnd.Unix()
	}
	if !sub.TrialEnd.IsZero() {
		snap.TrialEnd = sub.TrialEnd.Unix()
	}
	return snap
}
