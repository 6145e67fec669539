package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory es una implementación in-process de Store para dev y tests.
type Memory struct {
	mu            sync.RWMutex
	tenants       map[uuid.UUID]*Tenant
	subscriptions map[uuid.UUID]*Subscription
	accounts      map[uuid.UUID]*Account
	identities    map[string]uuid.UUID // tenant|provider|subject -> account
}

func NewMemory() *Memory {
	return &Memory{
		tenants:       make(map[uuid.UUID]*Tenant),
		subscriptions: make(map[uuid.UUID]*Subscription),
		accounts:      make(map[uuid.UUID]*Account),
		identities:    make(map[string]uuid.UUID),
	}
}

// Seed helpers (tests y dev bootstrap).

func (m *Memory) PutTenant(t Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Host = strings.ToLower(t.Host)
	m.tenants[t.ID] = &t
}

func (m *Memory) PutSubscription(tenantID uuid.UUID, s Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[tenantID] = &s
}

func (m *Memory) PutAccount(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Email = strings.ToLower(a.Email)
	m.accounts[a.ID] = &a
}

func (m *Memory) GetTenantByHost(ctx context.Context, host string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	host = strings.ToLower(strings.TrimSpace(host))
	for _, t := range m.tenants {
		if t.Host == host {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.subscriptions[tenantID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateSubscription(ctx context.Context, tenantID uuid.UUID, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[tenantID] = &sub
	return nil
}

func (m *Memory) GetAccountByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range m.accounts {
		if a.TenantID == tenantID && a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetAccountByID(ctx context.Context, tenantID, id uuid.UUID) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[id]; ok && a.TenantID == tenantID {
		cp := *a
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) EnsureAccountByIdentity(ctx context.Context, tenantID uuid.UUID, provider, subject, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantID.String() + "|" + provider + "|" + subject
	if id, ok := m.identities[key]; ok {
		cp := *m.accounts[id]
		return &cp, nil
	}

	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range m.accounts {
		if a.TenantID == tenantID && a.Email == email {
			m.identities[key] = a.ID
			cp := *a
			return &cp, nil
		}
	}

	a := &Account{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Email:     email,
		Roles:     []string{"member"},
		CreatedAt: time.Now().UTC(),
	}
	m.accounts[a.ID] = a
	m.identities[key] = a.ID
	cp := *a
	return &cp, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close()                         {}
