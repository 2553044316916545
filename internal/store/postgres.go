package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/conductores/onboarding-engine/internal/db"
	"github.com/conductores/onboarding-engine/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to connString and returns a store on the new pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS flow_sessions (
	session_key TEXT PRIMARY KEY,
	payload     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tanda_validations (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	validation_id    TEXT NOT NULL,
	client_id        TEXT NOT NULL DEFAULT '',
	market           TEXT NOT NULL,
	client_type      TEXT NOT NULL,
	members          INTEGER NOT NULL,
	status           TEXT NOT NULL,
	fallback_used    BOOLEAN NOT NULL DEFAULT false,
	warnings         INTEGER NOT NULL DEFAULT 0,
	schedule_rounds  INTEGER NOT NULL DEFAULT 0,
	roster_upload_id TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tanda_validations_created_at ON tanda_validations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tanda_validations_client_id ON tanda_validations(client_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadSession(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM flow_sessions WHERE session_key = $1`, key,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load session %s", key)
	}
	return payload, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, key string, payload []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO flow_sessions (session_key, payload, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		key, payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save session %s", key)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM flow_sessions WHERE session_key = $1`, key)
	return eris.Wrapf(err, "postgres: delete session %s", key)
}

func (s *PostgresStore) RecordValidation(ctx context.Context, rec *model.ValidationRecord) error {
	prepareRecord(rec, time.Now(), uuid.NewString)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tanda_validations (`+validationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.ValidationID, rec.ClientID, rec.Market, rec.ClientType, rec.Members,
		string(rec.Status), rec.FallbackUsed, rec.Warnings, rec.ScheduleRounds, rec.RosterUploadID, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert validation")
}

func (s *PostgresStore) GetValidation(ctx context.Context, id string) (*model.ValidationRecord, error) {
	rec, err := scanValidation(s.pool.QueryRow(ctx,
		`SELECT `+validationColumns+` FROM tanda_validations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "validation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get validation %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRecord, error) {
	query := `SELECT ` + validationColumns + ` FROM tanda_validations WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ClientID != "" {
		query += fmt.Sprintf(` AND client_id = $%d`, argIdx)
		args = append(args, filter.ClientID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list validations")
	}
	defer rows.Close()

	var out []model.ValidationRecord
	for rows.Next() {
		rec, err := scanValidation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list validations iterate")
}
