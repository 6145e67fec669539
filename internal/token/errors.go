package token

import "errors"

// Errores de verificación. Los handlers mapean cada uno a un error code
// estable; nunca se hace string-matching sobre el mensaje.
var (
	// ErrDomainMismatch indica que el hostname declarado en el token no
	// coincide con el tenant esperado. Se chequea ANTES de derivar secretos.
	ErrDomainMismatch = errors.New("token: domain mismatch")

	// ErrSignatureInvalid indica firma HMAC inválida.
	ErrSignatureInvalid = errors.New("token: signature invalid")

	// ErrTokenExpired indica token vencido (fuera del leeway).
	ErrTokenExpired = errors.New("token: expired")

	// ErrTokenMalformed indica un token que no se pudo decodificar.
	ErrTokenMalformed = errors.New("token: malformed")
)
