package token

import (
	"errors"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Leeway de reloj aplicado sólo al chequeo de expiración.
const expiryLeeway = 60 * time.Second

// Codec emite y verifica session tokens firmados con la clave derivada por
// tenant. Es puro y stateless: sin red ni storage en el camino de
// verificación, seguro para llamar concurrentemente.
type Codec struct {
	AccessTTL time.Duration

	// Now permite inyectar el reloj en tests. Nil => time.Now.
	Now func() time.Time
}

func NewCodec(accessTTL time.Duration) *Codec {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &Codec{AccessTTL: accessTTL}
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Issue firma los claims con la clave derivada de (apiKey, tenantID) y
// devuelve el token compacto header.payload.signature. Setea iat/exp; el
// resto de los claims viene armado por el caller (facade).
func (c *Codec) Issue(apiKey []byte, tenantID uuid.UUID, claims Claims) (string, error) {
	now := c.now().UTC()
	claims.TenantID = tenantID.String()
	claims.IssuedAt = jwtv5.NewNumericDate(now)
	claims.ExpiresAt = jwtv5.NewNumericDate(now.Add(c.AccessTTL))

	key, err := DeriveSigningKey(apiKey, tenantID)
	if err != nil {
		return "", err
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return tk.SignedString(key)
}

// Verify valida un token contra el hostname esperado del caller.
//
// El orden importa y es un requisito de seguridad:
//  1. decode SIN verificar firma para leer tid/dom declarados
//  2. rechazar domain mismatch ANTES de derivar ningún secreto (si no, un
//     atacante fuerza derivaciones para tenant IDs arbitrarios)
//  3. derivar y verificar firma + expiración (leeway sólo en exp)
//  4. re-chequear hostname sobre los claims ya verificados
func (c *Codec) Verify(raw, expectedHost string, apiKey []byte) (*Claims, error) {
	var peek Claims
	if _, _, err := jwtv5.NewParser().ParseUnverified(raw, &peek); err != nil {
		return nil, ErrTokenMalformed
	}
	if !hostEqual(peek.TenantHost, expectedHost) {
		return nil, ErrDomainMismatch
	}
	tid, err := uuid.Parse(peek.TenantID)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	key, err := DeriveSigningKey(apiKey, tid)
	if err != nil {
		return nil, err
	}

	var claims Claims
	_, err = jwtv5.ParseWithClaims(raw, &claims,
		func(*jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithLeeway(expiryLeeway),
		jwtv5.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwtv5.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
			return nil, ErrSignatureInvalid
		default:
			return nil, ErrTokenMalformed
		}
	}

	// defensa en profundidad: el peek no estaba verificado
	if !hostEqual(claims.TenantHost, expectedHost) {
		return nil, ErrDomainMismatch
	}
	return &claims, nil
}

func hostEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
