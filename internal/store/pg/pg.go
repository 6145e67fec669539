// Package pg implementa store.Store sobre PostgreSQL con pgxpool.
package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sssemil/dokustatus-sub002/internal/store"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// Config del pool.
type Config struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// New abre el pool y verifica la conexión.
func New(ctx context.Context, cfg Config) (store.Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *pgStore) Close()                         { s.pool.Close() }

// ── tenants ──────────────────────────────────────────────────────────

const tenantCols = `id, host, whitelist_enabled, api_key, created_at`

func scanTenant(row pgx.Row) (*store.Tenant, error) {
	var t store.Tenant
	err := row.Scan(&t.ID, &t.Host, &t.WhitelistEnabled, &t.APIKey, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *pgStore) GetTenantByHost(ctx context.Context, host string) (*store.Tenant, error) {
	const q = `SELECT ` + tenantCols + ` FROM tenant WHERE host = $1`
	return scanTenant(s.pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(host))))
}

func (s *pgStore) GetTenantByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	const q = `SELECT ` + tenantCols + ` FROM tenant WHERE id = $1`
	return scanTenant(s.pool.QueryRow(ctx, q, id))
}

func (s *pgStore) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*store.Subscription, error) {
	const q = `
		SELECT status, plan, period_end, trial_end, cancel_at_period_end
		FROM tenant_subscription WHERE tenant_id = $1
	`
	var sub store.Subscription
	err := s.pool.QueryRow(ctx, q, tenantID).Scan(
		&sub.Status, &sub.Plan, &sub.PeriodEnd, &sub.TrialEnd, &sub.CancelAtPeriodEnd,
	)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *pgStore) UpdateSubscription(ctx context.Context, tenantID uuid.UUID, sub store.Subscription) error {
	const q = `
		INSERT INTO tenant_subscription (tenant_id, status, plan, period_end, trial_end, cancel_at_period_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			status = EXCLUDED.status,
			plan = EXCLUDED.plan,
			period_end = EXCLUDED.period_end,
			trial_end = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, q, tenantID, sub.Status, sub.Plan, sub.PeriodEnd, sub.TrialEnd, sub.CancelAtPeriodEnd)
	return err
}

// ── accounts ─────────────────────────────────────────────────────────

const accountCols = `id, tenant_id, email, roles, frozen, whitelisted, waitlist_position, created_at`

func scanAccount(row pgx.Row) (*store.Account, error) {
	var a store.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Email, &a.Roles,
		&a.Frozen, &a.Whitelisted, &a.WaitlistPosition, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *pgStore) GetAccountByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*store.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM account WHERE tenant_id = $1 AND lower(email) = lower($2)`
	return scanAccount(s.pool.QueryRow(ctx, q, tenantID, email))
}

func (s *pgStore) GetAccountByID(ctx context.Context, tenantID, id uuid.UUID) (*store.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM account WHERE tenant_id = $1 AND id = $2`
	return scanAccount(s.pool.QueryRow(ctx, q, tenantID, id))
}

func (s *pgStore) EnsureAccountByIdentity(ctx context.Context, tenantID uuid.UUID, provider, subject, email string) (*store.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// identidad ya linkeada?
	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT account_id FROM social_identity
		WHERE tenant_id = $1 AND provider = $2 AND subject = $3
	`, tenantID, provider, subject).Scan(&accountID)

	switch err {
	case nil:
		// nada que provisionar
	case pgx.ErrNoRows:
		// cuenta existente por email, o cuenta nueva
		err = tx.QueryRow(ctx, `
			SELECT id FROM account WHERE tenant_id = $1 AND lower(email) = lower($2)
		`, tenantID, email).Scan(&accountID)
		if err == pgx.ErrNoRows {
			accountID = uuid.New()
			_, err = tx.Exec(ctx, `
				INSERT INTO account (id, tenant_id, email, roles, created_at)
				VALUES ($1, $2, lower($3), $4, NOW())
			`, accountID, tenantID, email, []string{"member"})
		}
		if err != nil {
			return nil, err
		}
		if _, err = tx.Exec(ctx, `
			INSERT INTO social_identity (tenant_id, provider, subject, account_id, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (tenant_id, provider, subject) DO NOTHING
		`, tenantID, provider, subject, accountID); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	acc, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountCols+` FROM account WHERE tenant_id = $1 AND id = $2`, tenantID, accountID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acc, nil
}
