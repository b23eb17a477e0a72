package mail

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogDispatcher writes codes to the log instead of sending them. Development only.
type LogDispatcher struct{}

var _ Dispatcher = LogDispatcher{}

func (LogDispatcher) SendConfirmationCode(ctx context.Context, email, code string) error {
	log.Info().Str("email", email).Str("code", code).Msg("mail: confirmation code (not sent)")
	return nil
}

func (LogDispatcher) SendRecoveryCode(ctx context.Context, email, code string) error {
	log.Info().Str("email", email).Str("code", code).Msg("mail: recovery code (not sent)")
	return nil
}
