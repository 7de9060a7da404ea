package ports

import "context"

// Alerter envía mensajes al operador. Es best effort: los errores se loguean
// y nunca interrumpen el pipeline.
type Alerter interface {
	Alert(ctx context.Context, msg string) error
}
