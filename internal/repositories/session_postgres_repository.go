package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"airdropbot/internal/models"
)

const sessionsSchema = `
	CREATE TABLE IF NOT EXISTS airdrop_sessions (
		user_id        BIGINT PRIMARY KEY,
		chat_id        BIGINT NOT NULL DEFAULT 0,
		state          TEXT NOT NULL,
		social_handle  TEXT NOT NULL DEFAULT '',
		wallet_address TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS airdrop_sessions_updated_at_idx ON airdrop_sessions (updated_at);
`

type postgresSessionRepository struct {
	DB *sql.DB
}

// NewPostgresSessionRepository: сессии в таблице airdrop_sessions (lib/pq).
func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{DB: db}
}

// EnsureSessionSchema создаёт таблицу, если её ещё нет.
func EnsureSessionSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sessionsSchema); err != nil {
		return fmt.Errorf("session schema: %w", err)
	}
	return nil
}

const sessionColumns = `user_id, chat_id, state, social_handle, wallet_address, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var s models.Session
	var state string
	if err := row.Scan(&s.UserID, &s.ChatID, &state, &s.SocialHandle, &s.WalletAddress, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.State = models.SessionState(state)
	if !s.State.Valid() {
		return nil, fmt.Errorf("session %d: %w: state %q", s.UserID, ErrInvalidSession, state)
	}
	return &s, nil
}

func (r *postgresSessionRepository) GetOrCreate(ctx context.Context, userID int64) (*models.Session, bool, error) {
	now := time.Now()
	// ON CONFLICT DO NOTHING: RETURNING вернёт строку только для новой записи.
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO airdrop_sessions (user_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING `+sessionColumns,
		userID, string(models.StateAwaitingVerification), now)
	s, err := scanSession(row)
	if err == nil {
		return s, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("session create: %w", err)
	}
	s, err = r.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, fmt.Errorf("session create: user %d vanished", userID)
	}
	return s, false, nil
}

func (r *postgresSessionRepository) Get(ctx context.Context, userID int64) (*models.Session, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM airdrop_sessions WHERE user_id = $1`, userID)
	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("session get: %w", err)
	}
	return s, nil
}

func (r *postgresSessionRepository) Save(ctx context.Context, s *models.Session) error {
	if err := validateSession(s); err != nil {
		return err
	}
	const q = `
		INSERT INTO airdrop_sessions (user_id, chat_id, state, social_handle, wallet_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			chat_id        = EXCLUDED.chat_id,
			state          = EXCLUDED.state,
			social_handle  = EXCLUDED.social_handle,
			wallet_address = EXCLUDED.wallet_address,
			created_at     = EXCLUDED.created_at,
			updated_at     = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, q, s.UserID, s.ChatID, string(s.State), s.SocialHandle, s.WalletAddress, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

func (r *postgresSessionRepository) Remove(ctx context.Context, userID int64) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM airdrop_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("session remove: %w", err)
	}
	return nil
}

func (r *postgresSessionRepository) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	return r.deleteWhere(ctx, `state NOT IN ($1, $2)`, before)
}

func (r *postgresSessionRepository) DeleteTerminal(ctx context.Context, before time.Time) (int, error) {
	return r.deleteWhere(ctx, `state IN ($1, $2)`, before)
}

func (r *postgresSessionRepository) deleteWhere(ctx context.Context, cond string, before time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM airdrop_sessions WHERE `+cond+` AND updated_at < $3`,
		string(models.StateCompleted), string(models.StateCancelled), before)
	if err != nil {
		return 0, fmt.Errorf("session sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session sweep: %w", err)
	}
	return int(n), nil
}

func (r *postgresSessionRepository) CountByState(ctx context.Context) (map[models.SessionState]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT state, COUNT(*) FROM airdrop_sessions GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("session count: %w", err)
	}
	defer rows.Close()

	out := make(map[models.SessionState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[models.SessionState(state)] = n
	}
	return out, rows.Err()
}
