package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Session event types.
const (
	EventLogin          = "session.login"
	EventRefresh        = "session.refresh"
	EventLogout         = "session.logout"
	EventDeviceRevoked  = "session.device_revoked"
	EventDevicesRevoked = "session.devices_revoked"
)

// SessionEvent is one device-session lifecycle change. It is serialized as JSON on the wire.
type SessionEvent struct {
	EventType string          `json:"eventType"`
	UserID    string          `json:"userId,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	IP        string          `json:"ip,omitempty"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventEmitter emits session events (e.g. to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *SessionEvent) error
}

// Fanout sends each event to every emitter and joins their errors.
type Fanout []EventEmitter

func (f Fanout) Emit(ctx context.Context, event *SessionEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
