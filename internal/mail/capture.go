package mail

import (
	"context"

	"bloggers-platform/backend/internal/devcodes"
)

// CaptureDispatcher records every code in a dev code store and then hands off to next (if any).
type CaptureDispatcher struct {
	store devcodes.Store
	next  Dispatcher
}

var _ Dispatcher = (*CaptureDispatcher)(nil)

// NewCaptureDispatcher returns a dispatcher that records codes in store. next may be nil.
func NewCaptureDispatcher(store devcodes.Store, next Dispatcher) *CaptureDispatcher {
	return &CaptureDispatcher{store: store, next: next}
}

func (d *CaptureDispatcher) SendConfirmationCode(ctx context.Context, email, code string) error {
	d.store.Put(ctx, devcodes.KindConfirmation, email, code)
	if d.next == nil {
		return nil
	}
	return d.next.SendConfirmationCode(ctx, email, code)
}

func (d *CaptureDispatcher) SendRecoveryCode(ctx context.Context, email, code string) error {
	d.store.Put(ctx, devcodes.KindRecovery, email, code)
	if d.next == nil {
		return nil
	}
	return d.next.SendRecoveryCode(ctx, email, code)
}
