package domain

import "time"

// AuditLog is one security-relevant event: who, what, from where.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
