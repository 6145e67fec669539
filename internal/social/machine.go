// Package social implementa la máquina de estados anti-replay de los login
// flows con identity providers externos (Google, GitHub).
//
// Ciclo de vida de un state token:
//
//	pending ──callback──▶ in_use ──exchange ok──▶ complete (record borrado)
//	                        │
//	                        ├─ callback duplicado dentro de la retry window:
//	                        │  retry idempotente (browser back/refresh)
//	                        └─ fallo de validación: abort (record borrado)
//
// Todas las transiciones son atómicas contra el coordination store; ningún
// lock se sostiene durante llamadas de red al provider.
package social

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const stateTokenBytes = 32

// Machine coordina las transiciones. Stateless por fuera del StateStore:
// seguro para usar desde N instancias concurrentes.
type Machine struct {
	Store StateStore

	// StateTTL limpia flows abandonados (el caller original puede no volver).
	StateTTL time.Duration

	// RetryWindow tolera la entrega duplicada del callback sin tratarla como
	// replay. Pasada la ventana, el flow debe reiniciarse desde pending.
	RetryWindow time.Duration

	// Now inyectable para tests. Nil => time.Now.
	Now func() time.Time
}

func NewMachine(store StateStore, stateTTL, retryWindow time.Duration) *Machine {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	if retryWindow <= 0 {
		retryWindow = 30 * time.Second
	}
	return &Machine{Store: store, StateTTL: stateTTL, RetryWindow: retryWindow}
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Begin emite un state token opaco y registra el record pending.
func (m *Machine) Begin(ctx context.Context, rec Record) (string, error) {
	rec.Status = StatusPending
	rec.CreatedAt = m.now().Unix()
	rec.InUseAt = 0

	// colisión de 256 bits: no pasa; el loop es por prolijidad del SetNX
	for i := 0; i < 3; i++ {
		b := make([]byte, stateTokenBytes)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("social: rand: %w", err)
		}
		tok := base64.RawURLEncoding.EncodeToString(b)
		ok, err := m.Store.Create(ctx, tok, rec, m.StateTTL)
		if err != nil {
			return "", fmt.Errorf("social: create state: %w", err)
		}
		if ok {
			return tok, nil
		}
	}
	return "", errors.New("social: could not allocate state token")
}

// MarkCallback ejecuta pending→in_use al recibir el callback del provider.
// Un callback duplicado dentro de la retry window obtiene el mismo record y
// puede proceder (retry idempotente); fuera de la ventana el flow murió.
func (m *Machine) MarkCallback(ctx context.Context, stateToken string) (Record, error) {
	tr, rec, err := m.Store.MarkInUse(ctx, stateToken, m.now().Unix(), m.RetryWindow)
	if err != nil {
		return Record{}, err
	}
	switch tr {
	case TransitionOK, TransitionRetry:
		return rec, nil
	case TransitionNotFound:
		return Record{}, ErrStateNotFound
	case TransitionWindowExpired:
		return Record{}, ErrRetryWindowExpired
	case TransitionTerminal:
		return Record{}, ErrStateAlreadyTerminal
	default:
		return Record{}, fmt.Errorf("social: unhandled transition %d", tr)
	}
}

// Complete cierra el flow borrando el record. Delete-once: si otro caller
// (callback duplicado) completó primero, retorna ErrStateAlreadyTerminal y
// este caller NO debe emitir sesión.
func (m *Machine) Complete(ctx context.Context, stateToken string) error {
	deleted, err := m.Store.Delete(ctx, stateToken)
	if err != nil {
		return fmt.Errorf("social: complete: %w", err)
	}
	if !deleted {
		return ErrStateAlreadyTerminal
	}
	return nil
}

// Abort descarta el flow (respuesta inválida del provider, fallo de
// resolución de cuenta). Idempotente; el cliente reinicia desde cero.
func (m *Machine) Abort(ctx context.Context, stateToken string) error {
	if _, err := m.Store.Delete(ctx, stateToken); err != nil {
		return fmt.Errorf("social: abort: %w", err)
	}
	return nil
}
