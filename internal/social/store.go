package social

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status del record de un login flow.
const (
	StatusPending = "pending"
	StatusInUse   = "in_use"
)

// Record es el estado server-side de un handshake con un identity provider,
// keyed por el state token opaco. Las transiciones son las únicas mutaciones;
// se borra al completar o abortar (o lo limpia el TTL).
type Record struct {
	Status    string    `json:"status"`
	CreatedAt int64     `json:"created_at"` // unix seconds
	InUseAt   int64     `json:"in_use_at,omitempty"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Provider  string    `json:"provider"`
	Redirect  string    `json:"redirect,omitempty"`
	Nonce     string    `json:"nonce,omitempty"`
}

// Transition es el resultado estructurado de la transición pending→in_use.
// Reemplaza los sentinels por string que tenía el diseño original: el adapter
// de storage lo produce una sola vez y nadie vuelve a mirar texto.
type Transition int

const (
	TransitionOK Transition = iota // pending→in_use realizado por este caller
	TransitionRetry                // ya in_use, dentro de la ventana: retry idempotente
	TransitionNotFound
	TransitionWindowExpired
	TransitionTerminal
)

// StateStore es el contrato atómico que la máquina necesita del coordination
// store: set-if-absent, check-and-set en un round trip, delete-once y get.
// Implementaciones: Redis (Lua, producción multi-instancia) y memoria (tests).
type StateStore interface {
	// Create registra el record pending. false si el token ya existía.
	Create(ctx context.Context, token string, rec Record, ttl time.Duration) (bool, error)

	// MarkInUse ejecuta pending→in_use de forma atómica. now en unix seconds.
	MarkInUse(ctx context.Context, token string, now int64, window time.Duration) (Transition, Record, error)

	// Delete borra y reporta si ESTE caller hizo el borrado (delete-once).
	Delete(ctx context.Context, token string) (bool, error)

	// Get lee el record. Transition-free, sólo lectura.
	Get(ctx context.Context, token string) (Record, bool, error)
}
