package token

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// deriveInfo es el context string versionado del HKDF. Cambiarlo invalida
// TODOS los tokens emitidos; si alguna vez hace falta, va con una migración
// versionada, no con un edit.
const deriveInfo = "dokustatus/session-signing/v1"

const derivedSecretLen = 32

// DeriveSigningKey deriva la clave de firma HMAC-SHA256 de un tenant.
//
// Contrato bit-exacto (lo replican verificadores en otros lenguajes):
//
//	secret = HKDF-SHA256(ikm=apiKey, salt=tenantID[16 bytes], info=deriveInfo)[:32]
//	key    = ASCII(hex_lowercase(secret))   // 64 bytes
//
// La clave HMAC NO son los 32 bytes crudos sino su encoding hex en minúsculas.
// La indirección es deliberada y hay que preservarla exacta: cualquier parte
// que la omita falla silenciosamente en toda verificación.
func DeriveSigningKey(apiKey []byte, tenantID uuid.UUID) ([]byte, error) {
	r := hkdf.New(sha256.New, apiKey, tenantID[:], []byte(deriveInfo))
	secret := make([]byte, derivedSecretLen)
	if _, err := io.ReadFull(r, secret); err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(secret)), nil
}
