package domain

import "time"

// Session is one logged-in device. DeviceID never changes for the lifetime of the session and is
// embedded in every refresh token minted for it.
type Session struct {
	DeviceID      string
	UserID        string
	IP            string
	Title         string
	IssuedAt      time.Time
	LastActiveAt  time.Time
	WindowSeconds int64
	// LastTokenID is the jti of the most recently issued refresh token; empty when not tracked.
	LastTokenID string
}

// Window returns the session window as a duration.
func (s *Session) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

// ExpiresAt is the end of the window counted from the last activity.
func (s *Session) ExpiresAt() time.Time {
	return s.LastActiveAt.Add(s.Window())
}

// Expired reports whether the window has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return s.WindowSeconds > 0 && !now.Before(s.ExpiresAt())
}

// View is the client-facing shape of a device session.
type View struct {
	IP             string    `json:"ip"`
	Title          string    `json:"title"`
	LastActiveDate time.Time `json:"lastActiveDate"`
	DeviceID       string    `json:"deviceId"`
}

// ToView maps the session to its client-facing shape.
func (s *Session) ToView() View {
	return View{IP: s.IP, Title: s.Title, LastActiveDate: s.LastActiveAt, DeviceID: s.DeviceID}
}
