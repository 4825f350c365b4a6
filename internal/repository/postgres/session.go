package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bizboard/auth-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session model.Session) error {
	const query = `
        INSERT INTO user_sessions (
            id, session_id, user_id, refresh_secret_enc, refresh_expires_at, revoked, device_info, created_at, last_used_at
        ) VALUES ($1,$2,$3,$4,$5,FALSE,$6,NOW(),NOW())
    `

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	deviceInfo, err := json.Marshal(model.NormalizeDeviceInfo(session.DeviceInfo))
	if err != nil {
		return fmt.Errorf("failed to marshal device info: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		session.ID, session.SessionID, session.UserID, session.RefreshSecretEnc,
		session.RefreshExpiresAt, deviceInfo,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetBySessionID returns only non-revoked sessions. Expiry is the caller's
// concern.
func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (model.Session, error) {
	const query = `
        SELECT id, session_id, user_id, refresh_secret_enc, refresh_expires_at, revoked, device_info, created_at, last_used_at
        FROM user_sessions WHERE session_id = $1 AND revoked = FALSE
    `

	var (
		session    model.Session
		deviceInfo []byte
	)
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&session.ID, &session.SessionID, &session.UserID, &session.RefreshSecretEnc,
		&session.RefreshExpiresAt, &session.Revoked, &deviceInfo, &session.CreatedAt, &session.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to get session by id: %w", err)
	}

	if err := json.Unmarshal(deviceInfo, &session.DeviceInfo); err != nil {
		return model.Session{}, fmt.Errorf("failed to unmarshal device info: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) UpdateRefresh(ctx context.Context, sessionID string, secretEnc string, expiresAt time.Time) error {
	const query = `
        UPDATE user_sessions SET refresh_secret_enc = $2, refresh_expires_at = $3, last_used_at = NOW()
        WHERE session_id = $1 AND revoked = FALSE
    `
	if _, err := r.db.Exec(ctx, query, sessionID, secretEnc, expiresAt); err != nil {
		return fmt.Errorf("failed to update session refresh material: %w", err)
	}
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, sessionID string) error {
	const query = `
        UPDATE user_sessions SET last_used_at = NOW()
        WHERE session_id = $1 AND revoked = FALSE
    `
	if _, err := r.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Revoke is idempotent: revoking an already-revoked session is a no-op
// success.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string) error {
	const query = `
        UPDATE user_sessions SET revoked = TRUE
        WHERE session_id = $1 AND revoked = FALSE
    `
	if _, err := r.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAllByUser(ctx context.Context, userID uuid.UUID) error {
	const query = `
        UPDATE user_sessions SET revoked = TRUE
        WHERE user_id = $1 AND revoked = FALSE
    `
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions by user: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]model.Session, error) {
	query := `
        SELECT id, session_id, user_id, refresh_secret_enc, refresh_expires_at, revoked, device_info, created_at, last_used_at
        FROM user_sessions WHERE user_id = $1
    `
	if activeOnly {
		query += ` AND revoked = FALSE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions by user: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var (
			session    model.Session
			deviceInfo []byte
		)
		err := rows.Scan(
			&session.ID, &session.SessionID, &session.UserID, &session.RefreshSecretEnc,
			&session.RefreshExpiresAt, &session.Revoked, &deviceInfo, &session.CreatedAt, &session.LastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := json.Unmarshal(deviceInfo, &session.DeviceInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal device info: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}
