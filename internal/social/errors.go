package social

import "errors"

// Errores tipados de la máquina de estados. Los handlers mapean cada uno a un
// error code documentado de cara al cliente; nada inspecciona mensajes.
var (
	// ErrStateNotFound: el state token no existe (nunca emitido, o TTL vencido).
	ErrStateNotFound = errors.New("social: state not found")

	// ErrRetryWindowExpired: el record estaba in_use y la ventana de retry ya
	// pasó. Accionable por el cliente: reiniciar el flow desde pending, no
	// reintentar.
	ErrRetryWindowExpired = errors.New("social: retry window expired")

	// ErrStateAlreadyTerminal: el flow ya completó (o otro caller ganó la
	// carrera del complete).
	ErrStateAlreadyTerminal = errors.New("social: state already terminal")

	// ErrUpstreamExchangeFailed: el intercambio con el identity provider falló.
	ErrUpstreamExchangeFailed = errors.New("social: upstream exchange failed")
)
