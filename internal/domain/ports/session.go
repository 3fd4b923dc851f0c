package ports

import (
	"context"
	"time"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// SessionRepository persists purchase sessions
type SessionRepository interface {
	// Create stores a new session; SESSION_ALREADY_EXISTS if the id is taken
	Create(ctx context.Context, s *domain.PurchaseSession) error

	// Get loads a session; SESSION_NOT_FOUND if absent
	Get(ctx context.Context, sessionID string) (*domain.PurchaseSession, error)

	// Update saves a session if its version still matches the stored one and
	// advances the version. SESSION_CONFLICT otherwise.
	Update(ctx context.Context, s *domain.PurchaseSession) error
}

// SessionLocker serializes work on a single session id
type SessionLocker interface {
	// Lock blocks until the lock is held or ctx is done. The returned
	// function releases it.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// ChargeIdentityStore keeps the charge identity map between init and process
type ChargeIdentityStore interface {
	Save(ctx context.Context, sessionID string, identities map[string]string, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (map[string]string, error)
}

// EventPublisher emits BI snapshots. Implementations must not block callers
// on broker failures.
type EventPublisher interface {
	Publish(ctx context.Context, snapshot domain.PurchaseSnapshot) error
}
