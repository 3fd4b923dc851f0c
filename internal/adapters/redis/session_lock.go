package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
)

const (
	lockKeyPrefix     = "purchase:lock:"
	identityKeyPrefix = "purchase:charges:"
)

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DefaultLockRetry is how often a contended session lock is polled
const DefaultLockRetry = 50 * time.Millisecond

// SessionLocker is a per-session lock built on SET NX PX
type SessionLocker struct {
	client goredis.UniversalClient
	ttl    time.Duration
	retry  resilience.BackoffStrategy
	logger *zap.Logger
}

var _ ports.SessionLocker = (*SessionLocker)(nil)

// NewSessionLocker creates a locker. ttl bounds how long a crashed holder
// can block a session.
func NewSessionLocker(client goredis.UniversalClient, ttl time.Duration, logger *zap.Logger) *SessionLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SessionLocker{
		client: client,
		ttl:    ttl,
		retry:  &resilience.FixedBackoff{Delay: DefaultLockRetry},
		logger: logger,
	}
}

// WithRetry replaces the polling schedule used while a lock is held elsewhere
func (l *SessionLocker) WithRetry(retry resilience.BackoffStrategy) *SessionLocker {
	l.retry = retry
	return l
}

// Lock acquires the session lock, polling until ctx is done
func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := lockKeyPrefix + sessionID
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "acquire session lock", err).
				WithDetail("session_id", sessionID)
		}
		if ok {
			return func() {
				// Release on a fresh context so a cancelled request still unlocks
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
					l.logger.Warn("Failed to release session lock",
						zap.String("session_id", sessionID),
						zap.Error(err),
					)
				}
			}, nil
		}

		timer := time.NewTimer(l.retry.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, domain.WrapError(domain.ErrorCodeSessionConflict, "timed out waiting for session lock", ctx.Err()).
				WithDetail("session_id", sessionID)
		case <-timer.C:
		}
	}
}

// ChargeIdentityStore keeps charge identity maps in Redis with a TTL
type ChargeIdentityStore struct {
	client goredis.UniversalClient
}

var _ ports.ChargeIdentityStore = (*ChargeIdentityStore)(nil)

// NewChargeIdentityStore creates a store
func NewChargeIdentityStore(client goredis.UniversalClient) *ChargeIdentityStore {
	return &ChargeIdentityStore{client: client}
}

func (s *ChargeIdentityStore) Save(ctx context.Context, sessionID string, identities map[string]string, ttl time.Duration) error {
	data, err := json.Marshal(identities)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "marshal charge identities", err)
	}
	if err := s.client.Set(ctx, identityKeyPrefix+sessionID, data, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "store charge identities", err).
			WithDetail("session_id", sessionID)
	}
	return nil
}

func (s *ChargeIdentityStore) Load(ctx context.Context, sessionID string) (map[string]string, error) {
	data, err := s.client.Get(ctx, identityKeyPrefix+sessionID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.NewDomainError(domain.ErrorCodeSessionNotFound, "charge identities not found").
			WithDetail("session_id", sessionID)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "load charge identities", err).
			WithDetail("session_id", sessionID)
	}
	var identities map[string]string
	if err := json.Unmarshal(data, &identities); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "unmarshal charge identities", err)
	}
	return identities, nil
}
