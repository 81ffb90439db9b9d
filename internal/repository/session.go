package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openloop/accounts/internal/model"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(session *model.Session) error
	ByRefreshToken(refreshToken string) (*model.Session, error)
	Rotate(id, refreshToken string, expiresAt time.Time) error
	Revoke(id string) error
}

type sessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(session *model.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO sessions (id, user_id, refresh_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(query,
		session.ID,
		session.UserID,
		session.RefreshToken,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

func (r *sessionRepository) ByRefreshToken(refreshToken string) (*model.Session, error) {
	session := &model.Session{}
	query := `SELECT * FROM sessions WHERE refresh_token = $1`

	err := r.db.Get(session, query, refreshToken)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}

	return session, err
}

func (r *sessionRepository) Rotate(id, refreshToken string, expiresAt time.Time) error {
	query := `UPDATE sessions SET refresh_token = $1, expires_at = $2 WHERE id = $3 AND revoked_at IS NULL`

	result, err := r.db.Exec(query, refreshToken, expiresAt, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// Revoke marks a session unusable. Revoking an already revoked or
// unknown session is not an error, logout is idempotent.
func (r *sessionRepository) Revoke(id string) error {
	query := `UPDATE sessions SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`

	_, err := r.db.Exec(query, time.Now(), id)
	return err
}
