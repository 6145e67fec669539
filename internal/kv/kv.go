// Package kv provee el coordination store compartido del core.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción multi-instancia)
//
// El contrato importante es GetDel: un único paso atómico de lectura+borrado.
// Es lo que hace single-use a los magic links bajo concurrencia ("el primer
// delete exitoso gana, el resto observa miss").
package kv

import (
	"context"
	"time"
)

// Client define las operaciones del coordination store.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX guarda un valor sólo si la key no existe. Retorna true si escribió.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// GetDel obtiene y borra en un solo paso atómico.
	// Retorna ErrNotFound si no existe (o si otro caller ganó la carrera).
	GetDel(ctx context.Context, key string) (string, error)

	// Delete elimina una key. No es error si no existe.
	Delete(ctx context.Context, key string) error

	// Exists verifica si una key existe.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente.
type Config struct {
	Kind     string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string // prefijo para todas las keys
}

// ErrNotFound indica que la key no existe.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "kv: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un cliente según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return NewMemory(cfg.Prefix), nil
	}
}
