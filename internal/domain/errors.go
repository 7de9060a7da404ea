package domain

import (
	"errors"
	"fmt"
)

// Taxonomía de errores. Los adapters envuelven con fmt.Errorf("...: %w") y los
// consumidores deciden con errors.Is.
var (
	// ErrTransient: feed o RPC inalcanzable. Se salta el ciclo y se reintenta en el siguiente.
	ErrTransient = errors.New("transient network error")
	// ErrRateLimited: la API respondió 429. Envuelve ErrTransient.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrTransient)
	// ErrNotFound: mercado o instrumento inexistente. No fatal.
	ErrNotFound = errors.New("not found")
	// ErrDataIntegrityGap: evento de trade sin condition id. Se descarta con warning.
	ErrDataIntegrityGap = errors.New("data integrity gap")
	// ErrExecutionFailure: trade o redención rechazados. Se alerta, nunca se reintenta.
	ErrExecutionFailure = errors.New("execution failure")
	// ErrFatalConfig: faltan credenciales o direcciones al arrancar.
	ErrFatalConfig = errors.New("fatal configuration error")
)
