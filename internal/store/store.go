// Package store persists the flow context session and the tanda validation
// history.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/conductores/onboarding-engine/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// ValidationFilter narrows ListValidations. Zero values match everything.
type ValidationFilter struct {
	ClientID     string                 `json:"client_id,omitempty"`
	Status       model.ValidationStatus `json:"status,omitempty"`
	CreatedAfter time.Time              `json:"created_after,omitempty"`
	Limit        int                    `json:"limit,omitempty"`
}

const defaultListLimit = 100

func (f ValidationFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f ValidationFilter) matches(r *model.ValidationRecord) bool {
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return f.CreatedAfter.IsZero() || r.CreatedAt.After(f.CreatedAfter)
}

// SessionStore keeps one serialized flow context per session key. It
// satisfies flowctx.Persister.
type SessionStore interface {
	// LoadSession returns nil, nil when key has never been saved.
	LoadSession(ctx context.Context, key string) ([]byte, error)
	SaveSession(ctx context.Context, key string, payload []byte) error
	DeleteSession(ctx context.Context, key string) error
}

// ValidationHistory records tanda validation outcomes for monitoring.
type ValidationHistory interface {
	// RecordValidation assigns ID and CreatedAt when they are empty.
	RecordValidation(ctx context.Context, rec *model.ValidationRecord) error
	GetValidation(ctx context.Context, id string) (*model.ValidationRecord, error)
	// ListValidations returns newest first.
	ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRecord, error)
}

// Store is a complete persistence backend.
type Store interface {
	SessionStore
	ValidationHistory

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func prepareRecord(rec *model.ValidationRecord, now time.Time, newID func() string) {
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}
}
