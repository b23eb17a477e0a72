package mail

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// sendTimeout bounds one background send.
const sendTimeout = 20 * time.Second

// Async wraps a Dispatcher so sends run in the background on a context detached from the request.
// Errors are logged and dropped.
type Async struct {
	next Dispatcher
}

var _ Dispatcher = (*Async)(nil)

// NewAsync returns next wrapped for fire-and-forget delivery.
func NewAsync(next Dispatcher) *Async {
	return &Async{next: next}
}

func (a *Async) SendConfirmationCode(ctx context.Context, email, code string) error {
	a.run(ctx, "confirmation", func(ctx context.Context) error {
		return a.next.SendConfirmationCode(ctx, email, code)
	})
	return nil
}

func (a *Async) SendRecoveryCode(ctx context.Context, email, code string) error {
	a.run(ctx, "recovery", func(ctx context.Context) error {
		return a.next.SendRecoveryCode(ctx, email, code)
	})
	return nil
}

func (a *Async) run(ctx context.Context, kind string, fn func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(detached, sendTimeout)
		defer cancel()
		if err := fn(sendCtx); err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("mail: async send failed")
		}
	}()
}
