// Package magiclink implementa login tokens single-use atados a un tenant.
//
// El token crudo viaja una sola vez en el link del email; el store guarda
// únicamente sha256(len(token)||token||len(tenant)||tenant) -> grant, con TTL
// acotado. Consumir es un get-and-delete atómico contra el coordination store:
// dos requests concurrentes con el mismo link no pueden ganar los dos.
package magiclink

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sssemil/dokustatus-sub002/internal/kv"
	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
)

// ErrLinkInvalidOrExpired es el ÚNICO error de consumo. Miss, expiry y tenant
// equivocado son indistinguibles a propósito (anti tenant-enumeration).
var ErrLinkInvalidOrExpired = errors.New("magiclink: invalid or expired link")

const (
	keyPrefix  = "ml:"
	tokenBytes = 32
)

// Grant es lo que queda atado al link al generarse: a quién loguea el token
// si alguien lo consume dentro del TTL.
type Grant struct {
	TenantID  uuid.UUID `json:"tid"`
	AccountID uuid.UUID `json:"sub"`
	Email     string    `json:"email"`
}

// Store genera y consume magic links contra el coordination store.
type Store struct {
	KV  kv.Client
	TTL time.Duration
}

func NewStore(client kv.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{KV: client, TTL: ttl}
}

// Generate crea un token crudo de alta entropía y persiste su hash -> grant.
// El token crudo se retorna una sola vez (para armar el link) y no se guarda.
func (s *Store) Generate(ctx context.Context, grant Grant) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("magiclink: rand: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(b)

	val, err := json.Marshal(grant)
	if err != nil {
		return "", fmt.Errorf("magiclink: marshal grant: %w", err)
	}
	key := keyPrefix + HashKey(raw, grant.TenantID)
	if err := s.KV.Set(ctx, key, string(val), s.TTL); err != nil {
		return "", fmt.Errorf("magiclink: persist: %w", err)
	}
	return raw, nil
}

// Consume valida y quema un token en un solo paso atómico, devolviendo el
// grant que quedó atado al link. Primer delete exitoso gana; el resto
// observa miss.
func (s *Store) Consume(ctx context.Context, raw string, tenantID uuid.UUID) (*Grant, error) {
	if raw == "" {
		return nil, ErrLinkInvalidOrExpired
	}
	key := keyPrefix + HashKey(raw, tenantID)
	stored, err := s.KV.GetDel(ctx, key)
	if err != nil {
		if !kv.IsNotFound(err) {
			logger.From(ctx).Warn("magiclink consume: kv error", logger.Err(err))
		}
		return nil, ErrLinkInvalidOrExpired
	}
	var grant Grant
	if err := json.Unmarshal([]byte(stored), &grant); err != nil {
		return nil, ErrLinkInvalidOrExpired
	}
	// El tenant participa del hash, así que un mismatch acá implica colisión o
	// corrupción. Defensa en profundidad, misma respuesta genérica.
	if grant.TenantID != tenantID {
		return nil, ErrLinkInvalidOrExpired
	}
	return &grant, nil
}

// HashKey calcula la lookup key de (token, tenant).
func HashKey(raw string, tenantID uuid.UUID) string {
	return hex.EncodeToString(hashFields([]byte(raw), tenantID[:]))
}

// hashFields hashea campos con length-prefix (uvarint) por campo: la
// concatenación naive de campos variables admite colisiones entre pares
// distintos que concatenan a los mismos bytes ("ab"+"c" == "a"+"bc").
func hashFields(fields ...[]byte) []byte {
	h := sha256.New()
	var buf [binary.MaxVarintLen64]byte
	for _, f := range fields {
		n := binary.PutUvarint(buf[:], uint64(len(f)))
		h.Write(buf[:n])
		h.Write(f)
	}
	return h.Sum(nil)
}
