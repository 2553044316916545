package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/conductores/onboarding-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS flow_sessions (
	session_key TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tanda_validations (
	id               TEXT PRIMARY KEY,
	validation_id    TEXT NOT NULL,
	client_id        TEXT NOT NULL DEFAULT '',
	market           TEXT NOT NULL,
	client_type      TEXT NOT NULL,
	members          INTEGER NOT NULL,
	status           TEXT NOT NULL,
	fallback_used    INTEGER NOT NULL DEFAULT 0,
	warnings         INTEGER NOT NULL DEFAULT 0,
	schedule_rounds  INTEGER NOT NULL DEFAULT 0,
	roster_upload_id TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tanda_validations_created_at ON tanda_validations(created_at);
CREATE INDEX IF NOT EXISTS idx_tanda_validations_client_id ON tanda_validations(client_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadSession(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM flow_sessions WHERE session_key = ?`, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load session %s", key)
	}
	return []byte(payload), nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flow_sessions (session_key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save session %s", key)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM flow_sessions WHERE session_key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete session %s", key)
}

func (s *SQLiteStore) RecordValidation(ctx context.Context, rec *model.ValidationRecord) error {
	prepareRecord(rec, time.Now(), uuid.NewString)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tanda_validations
		 (id, validation_id, client_id, market, client_type, members, status, fallback_used, warnings, schedule_rounds, roster_upload_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ValidationID, rec.ClientID, rec.Market, rec.ClientType, rec.Members,
		string(rec.Status), rec.FallbackUsed, rec.Warnings, rec.ScheduleRounds, rec.RosterUploadID, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert validation")
}

const validationColumns = `id, validation_id, client_id, market, client_type, members, status, fallback_used, warnings, schedule_rounds, roster_upload_id, created_at`

func (s *SQLiteStore) GetValidation(ctx context.Context, id string) (*model.ValidationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+validationColumns+` FROM tanda_validations WHERE id = ?`, id)
	rec, err := scanValidation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "validation %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get validation")
	}
	return rec, nil
}

func (s *SQLiteStore) ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRecord, error) {
	query := `SELECT ` + validationColumns + ` FROM tanda_validations WHERE 1=1`
	var args []any

	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list validations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ValidationRecord
	for rows.Next() {
		rec, err := scanValidation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list validations iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanValidation(row scannable) (*model.ValidationRecord, error) {
	var r model.ValidationRecord
	var status string
	err := row.Scan(&r.ID, &r.ValidationID, &r.ClientID, &r.Market, &r.ClientType, &r.Members,
		&status, &r.FallbackUsed, &r.Warnings, &r.ScheduleRounds, &r.RosterUploadID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.ValidationStatus(status)
	return &r, nil
}
