// Package memory provides in-process adapters for local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

// SessionRepository keeps serialized sessions in a map. Sessions are stored
// as JSON so callers never share pointers with the store.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates an empty repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string][]byte)}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.PurchaseSession) error {
	data, err := json.Marshal(s.Record())
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "marshal session", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return domain.NewDomainError(domain.ErrorCodeSessionAlreadyExists, "purchase session already exists").
			WithDetail("session_id", s.ID())
	}
	r.sessions[s.ID()] = data
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.PurchaseSession, error) {
	r.mu.RLock()
	data, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeSessionNotFound, "purchase session not found").
			WithDetail("session_id", sessionID)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "unmarshal session", err)
	}
	return domain.RestoreSession(rec)
}

func (r *SessionRepository) Update(ctx context.Context, s *domain.PurchaseSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.ID()]
	if !ok {
		return domain.NewDomainError(domain.ErrorCodeSessionNotFound, "purchase session not found").
			WithDetail("session_id", s.ID())
	}
	var stored struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(current, &stored); err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "unmarshal session", err)
	}
	if stored.Version != s.Version() {
		return domain.NewDomainError(domain.ErrorCodeSessionConflict, "purchase session was modified concurrently").
			WithDetail("session_id", s.ID())
	}

	s.SetVersion(stored.Version + 1)
	data, err := json.Marshal(s.Record())
	if err != nil {
		s.SetVersion(stored.Version)
		return domain.WrapError(domain.ErrorCodeInternalError, "marshal session", err)
	}
	r.sessions[s.ID()] = data
	return nil
}

// Locker serializes work per session id with a channel per key
type Locker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

var _ ports.SessionLocker = (*Locker)(nil)

// NewLocker creates an empty locker
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]chan struct{})}
}

func (l *Locker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[sessionID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[sessionID] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, domain.WrapError(domain.ErrorCodeSessionConflict, "timed out waiting for session lock", ctx.Err()).
			WithDetail("session_id", sessionID)
	}
}

type identityEntry struct {
	identities map[string]string
	expiresAt  time.Time
}

// ChargeIdentityStore keeps charge identity maps until they expire
type ChargeIdentityStore struct {
	mu      sync.Mutex
	entries map[string]identityEntry
	now     func() time.Time
}

var _ ports.ChargeIdentityStore = (*ChargeIdentityStore)(nil)

// NewChargeIdentityStore creates an empty store
func NewChargeIdentityStore() *ChargeIdentityStore {
	return &ChargeIdentityStore{entries: make(map[string]identityEntry), now: time.Now}
}

func (s *ChargeIdentityStore) Save(ctx context.Context, sessionID string, identities map[string]string, ttl time.Duration) error {
	cp := make(map[string]string, len(identities))
	for k, v := range identities {
		cp[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = identityEntry{identities: cp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *ChargeIdentityStore) Load(ctx context.Context, sessionID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.entries, sessionID)
		return nil, domain.NewDomainError(domain.ErrorCodeSessionNotFound, "charge identities not found").
			WithDetail("session_id", sessionID)
	}
	cp := make(map[string]string, len(e.identities))
	for k, v := range e.identities {
		cp[k] = v
	}
	return cp, nil
}
