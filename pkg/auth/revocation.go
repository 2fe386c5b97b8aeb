package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore is the server-side revocation list consulted on every
// verification
type RevocationStore interface {
	// RevokeSession marks one session id as revoked until expiresAt, after
	// which the credential is rejected on expiry anyway
	RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error

	// IsSessionRevoked reports whether the session id has been revoked
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)

	// RevokeSubject invalidates every credential of subjectID issued at or
	// before at
	RevokeSubject(ctx context.Context, subjectID string, at time.Time) error

	// SubjectRevokedAt returns the latest revoke-all time for subjectID, or
	// the zero time when there is none
	SubjectRevokedAt(ctx context.Context, subjectID string) (time.Time, error)
}

// MemoryRevocationStore keeps revocations in process memory. It suits tests
// and single-instance development servers.
type MemoryRevocationStore struct {
	mu       sync.RWMutex
	sessions map[string]time.Time
	subjects map[string]time.Time
	now      func() time.Time
}

// NewMemoryRevocationStore creates an empty in-memory revocation list
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		sessions: make(map[string]time.Time),
		subjects: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryRevocationStore) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = expiresAt
	return nil
}

func (m *MemoryRevocationStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	m.mu.RLock()
	expiresAt, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if m.now().After(expiresAt) {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
	}
	return true, nil
}

func (m *MemoryRevocationStore) RevokeSubject(ctx context.Context, subjectID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.subjects[subjectID]; !ok || at.After(current) {
		m.subjects[subjectID] = at
	}
	return nil
}

func (m *MemoryRevocationStore) SubjectRevokedAt(ctx context.Context, subjectID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subjects[subjectID], nil
}
