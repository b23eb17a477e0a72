// Package devcodes keeps the last confirmation and recovery code sent to each address, so local and
// test environments can finish the flows without a mail server. Never enabled in production.
package devcodes

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Kind tells confirmation codes from recovery codes.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindRecovery     Kind = "recovery"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindConfirmation || k == KindRecovery
}

// Store holds codes by (kind, email).
type Store interface {
	// Put records code as the latest one of kind sent to email.
	Put(ctx context.Context, kind Kind, email, code string)
	// Get returns the latest code of kind for email. ok is false if none or it aged out.
	Get(ctx context.Context, kind Kind, email string) (code string, ok bool)
}

type entry struct {
	code     string
	storedAt time.Time
}

// MemoryStore is an in-memory Store; entries age out after retention.
type MemoryStore struct {
	mu        sync.RWMutex
	m         map[string]entry
	retention time.Duration
	nowF      func() time.Time
}

// NewMemoryStore returns a store that forgets codes after retention (24h if retention <= 0).
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryStore{
		m:         make(map[string]entry),
		retention: retention,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

func key(kind Kind, email string) string {
	return string(kind) + ":" + strings.ToLower(strings.TrimSpace(email))
}

func (s *MemoryStore) Put(ctx context.Context, kind Kind, email, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(kind, email)] = entry{code: code, storedAt: s.nowF()}
}

func (s *MemoryStore) Get(ctx context.Context, kind Kind, email string) (string, bool) {
	k := key(kind, email)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if s.nowF().Sub(e.storedAt) >= s.retention {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
