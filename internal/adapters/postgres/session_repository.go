package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/purchase-gateway/internal/adapters/database"
	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"go.uber.org/zap"
)

// SessionRepository implements ports.SessionRepository on PostgreSQL
type SessionRepository struct {
	db     *database.PostgreSQLAdapter
	logger *zap.Logger
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.PostgreSQLAdapter, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

// Create inserts a new session. An existing id is reported, never overwritten.
func (r *SessionRepository) Create(ctx context.Context, s *domain.PurchaseSession) error {
	ctx, cancel := r.db.WriteQueryContext(ctx)
	defer cancel()

	payload, err := json.Marshal(s.Record())
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "marshal session", err)
	}

	const insertSQL = `
		INSERT INTO purchase_sessions (
			id, state, version, site_id, member_id, payload, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Pool().Exec(ctx, insertSQL,
		s.ID(),
		string(s.State()),
		s.Version(),
		s.SiteID(),
		nullText(s.MemberID()),
		payload,
		s.ExpiresAt(),
		s.CreatedAt(),
		s.UpdatedAt(),
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "insert session", err).
			WithDetail("session_id", s.ID())
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrorCodeSessionAlreadyExists, "purchase session already exists").
			WithDetail("session_id", s.ID())
	}
	return nil
}

// Get loads a session by id
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.PurchaseSession, error) {
	ctx, cancel := r.db.SimpleQueryContext(ctx)
	defer cancel()

	return getSession(ctx, r.db.Pool(), sessionID)
}

func getSession(ctx context.Context, db ports.DBTX, sessionID string) (*domain.PurchaseSession, error) {
	const selectSQL = `SELECT version, payload FROM purchase_sessions WHERE id = $1`

	var (
		version int
		payload []byte
	)
	if err := db.QueryRow(ctx, selectSQL, sessionID).Scan(&version, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewDomainError(domain.ErrorCodeSessionNotFound, "purchase session not found").
				WithDetail("session_id", sessionID)
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "select session", err).
			WithDetail("session_id", sessionID)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "unmarshal session", err).
			WithDetail("session_id", sessionID)
	}
	rec.Version = version
	return domain.RestoreSession(rec)
}

// Update saves the session if nobody else saved it since it was loaded. The
// row is locked while its version is compared so a missing session and a
// concurrent save are told apart.
func (r *SessionRepository) Update(ctx context.Context, s *domain.PurchaseSession) error {
	ctx, cancel := r.db.WriteQueryContext(ctx)
	defer cancel()

	expected := s.Version()
	s.SetVersion(expected + 1)
	payload, err := json.Marshal(s.Record())
	if err != nil {
		s.SetVersion(expected)
		return domain.WrapError(domain.ErrorCodeInternalError, "marshal session", err)
	}

	const lockSQL = `SELECT version FROM purchase_sessions WHERE id = $1 FOR UPDATE`
	const updateSQL = `
		UPDATE purchase_sessions
		SET state = $2, version = $3, member_id = $4, payload = $5, updated_at = $6
		WHERE id = $1
	`
	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var stored int
		if err := tx.QueryRow(ctx, lockSQL, s.ID()).Scan(&stored); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NewDomainError(domain.ErrorCodeSessionNotFound, "purchase session not found").
					WithDetail("session_id", s.ID())
			}
			return domain.WrapError(domain.ErrorCodeDatabaseError, "lock session", err).
				WithDetail("session_id", s.ID())
		}
		if stored != expected {
			r.logger.Warn("Session version conflict",
				zap.String("session_id", s.ID()),
				zap.Int("expected_version", expected),
				zap.Int("stored_version", stored),
			)
			return domain.NewDomainError(domain.ErrorCodeSessionConflict, "purchase session was modified concurrently").
				WithDetail("session_id", s.ID())
		}

		if _, err := tx.Exec(ctx, updateSQL,
			s.ID(),
			string(s.State()),
			expected+1,
			nullText(s.MemberID()),
			payload,
			s.UpdatedAt(),
		); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "update session", err).
				WithDetail("session_id", s.ID())
		}
		return nil
	})
	if err != nil {
		s.SetVersion(expected)
		if domain.GetErrorCode(err) == "" {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "update session", err).
				WithDetail("session_id", s.ID())
		}
		return err
	}
	return nil
}
