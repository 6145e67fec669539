// Package store define el acceso a datos de tenants y cuentas.
//
// El core lo consume casi todo en modo lectura: tenant por hostname, api key
// cruda al momento de derivar, flags de cuenta para los policy gates. La única
// escritura que entra por acá desde el camino de auth es el snapshot de
// suscripción que actualiza la ingesta de webhooks.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indica que el registro no existe.
var ErrNotFound = errors.New("store: not found")

// Tenant es un customer con hostname verificado y su configuración aislada.
type Tenant struct {
	ID               uuid.UUID
	Host             string
	WhitelistEnabled bool

	// APIKey son los bytes crudos del secreto tenant-scoped. Sólo se usan en
	// derivación/verificación; jamás se loguean.
	APIKey []byte

	CreatedAt time.Time
}

// Subscription es el estado de facturación del tenant.
type Subscription struct {
	Status            string
	Plan              string
	PeriodEnd         time.Time
	TrialEnd          time.Time
	CancelAtPeriodEnd bool
}

// Account es un end-user de un tenant. Los flags los LEE el core; los
// escriben el dashboard y los flujos admin (colaboradores externos).
type Account struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Email    string
	Roles    []string

	Frozen           bool
	Whitelisted      bool
	WaitlistPosition *int // nil = no está en waitlist

	CreatedAt time.Time
}

type TenantStore interface {
	GetTenantByHost(ctx context.Context, host string) (*Tenant, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// UpdateSubscription la invoca la ingesta de webhooks después de
	// verificar la firma del evento.
	UpdateSubscription(ctx context.Context, tenantID uuid.UUID, sub Subscription) error
}

type AccountStore interface {
	GetAccountByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Account, error)
	GetAccountByID(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)

	// EnsureAccountByIdentity provisiona (o linkea) la cuenta para una
	// identidad social (provider, subject). Idempotente.
	EnsureAccountByIdentity(ctx context.Context, tenantID uuid.UUID, provider, subject, email string) (*Account, error)
}

// Store agrupa los repositorios que el servicio necesita.
type Store interface {
	TenantStore
	AccountStore

	Ping(ctx context.Context) error
	Close()
}
