package social

import (
	"context"
	"errors"
)

// Disposition decide qué hacer cuando el exchange con el provider YA salió
// bien pero un side-effect local falló (ej: crear la cuenta). El default
// seguro es abortar: nunca dejar un record in_use para siempre. Sólo fallas
// transitorias de infraestructura marcadas explícitamente ameritan dejar el
// record in_use y que el cliente reintente dentro de la ventana.
type Disposition int

const (
	// DispositionAbort: borrar el record; el cliente reinicia el flow.
	DispositionAbort Disposition = iota

	// DispositionRetry: dejar el record in_use; el callback duplicado del
	// cliente puede reintentar dentro de la retry window.
	DispositionRetry
)

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable marca una falla como transitoria de infraestructura (store caído,
// timeout). La marca se pone en el call site que conoce la causa; la
// clasificación nunca se infiere del texto del error.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// ClassifyPostExchange mapea causa→disposición de forma explícita:
//   - marcado Retryable, o deadline/cancel de contexto  => Retry
//   - todo lo demás (respuesta malformada, cuenta irresoluble) => Abort
func ClassifyPostExchange(err error) Disposition {
	var re retryableError
	if errors.As(err, &re) {
		return DispositionRetry
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return DispositionRetry
	}
	return DispositionAbort
}
