package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leofleet/fleet-console/internal/platform/db"
)

// Repository persists the login audit trail.
type Repository interface {
	RecordLogin(ctx context.Context, rec LoginRecord) error
	RecordLogout(ctx context.Context, sessionID string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS auth_sessions (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	email       TEXT NOT NULL,
	degraded    BOOLEAN NOT NULL DEFAULT FALSE,
	ip          TEXT,
	user_agent  TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ
)`

const indexSQL = `CREATE INDEX IF NOT EXISTS auth_sessions_open_idx ON auth_sessions (user_id) WHERE ended_at IS NULL`

// EnsureSchema creates the audit table when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("auth: create auth_sessions: %w", err)
		}
		if _, err := tx.Exec(ctx, indexSQL); err != nil {
			return fmt.Errorf("auth: index auth_sessions: %w", err)
		}
		return nil
	})
}

// RecordLogin inserts an audit row for a successful sign-in.
func (r *PGRepository) RecordLogin(ctx context.Context, rec LoginRecord) error {
	const q = `INSERT INTO auth_sessions (id, user_id, email, degraded, ip, user_agent, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, q,
		pgtype.UUID{Bytes: rec.ID, Valid: true},
		rec.UserID,
		rec.Email,
		rec.Degraded,
		pgtype.Text{String: rec.IP, Valid: rec.IP != ""},
		pgtype.Text{String: rec.UserAgent, Valid: rec.UserAgent != ""},
		pgtype.Timestamptz{Time: rec.CreatedAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: rec.ExpiresAt.UTC(), Valid: true},
	)
	if err != nil {
		return fmt.Errorf("auth: record login: %w", err)
	}
	return nil
}

// RecordLogout closes the audit row of the session that signed out.
func (r *PGRepository) RecordLogout(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("auth: record logout: session id: %w", err)
	}
	const q = `UPDATE auth_sessions SET ended_at = now() WHERE id = $1 AND ended_at IS NULL`
	if _, err := r.pool.Exec(ctx, q, pgtype.UUID{Bytes: id, Valid: true}); err != nil {
		return fmt.Errorf("auth: record logout: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)

// NopRepository discards audit records; used when no database is configured.
type NopRepository struct{}

// RecordLogin implements Repository.
func (NopRepository) RecordLogin(context.Context, LoginRecord) error { return nil }

// RecordLogout implements Repository.
func (NopRepository) RecordLogout(context.Context, string) error { return nil }
