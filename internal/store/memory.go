package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/conductores/onboarding-engine/internal/model"
)

// MemoryStore is a process-local Store for tests and single-shot CLI runs.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string][]byte
	validations []model.ValidationRecord
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Ping(context.Context) error    { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) LoadSession(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sessions[key]), nil
}

func (s *MemoryStore) SaveSession(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = slices.Clone(payload)
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

func (s *MemoryStore) RecordValidation(_ context.Context, rec *model.ValidationRecord) error {
	prepareRecord(rec, time.Now(), uuid.NewString)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations = append(s.validations, *rec)
	return nil
}

func (s *MemoryStore) GetValidation(_ context.Context, id string) (*model.ValidationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.validations {
		if s.validations[i].ID == id {
			rec := s.validations[i]
			return &rec, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "validation %s", id)
}

func (s *MemoryStore) ListValidations(_ context.Context, filter ValidationFilter) ([]model.ValidationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ValidationRecord
	for i := len(s.validations) - 1; i >= 0; i-- {
		rec := s.validations[i]
		if filter.matches(&rec) {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b model.ValidationRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}
