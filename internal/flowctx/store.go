// Package flowctx holds short-lived workflow snapshots shared across
// onboarding stages. Entries are stored and returned by value, expire lazily
// on read, and the full entry set is written to a durable session slot after
// every mutation.
package flowctx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultSessionKey is the durable slot the serialized entry set lives under.
const DefaultSessionKey = "__flow_context_state__"

const defaultPersistTimeout = 2 * time.Second

// Entry is one named slot in the store.
type Entry struct {
	Key         string     `json:"key"`
	Data        any        `json:"data"`
	Breadcrumbs []string   `json:"breadcrumbs,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the entry is no longer visible at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Persister stores the serialized entry set. LoadSession returns nil, nil
// when nothing has been saved under key.
type Persister interface {
	LoadSession(ctx context.Context, key string) ([]byte, error)
	SaveSession(ctx context.Context, key string, payload []byte) error
}

type saveOptions struct {
	ttl         time.Duration
	breadcrumbs []string
	skipPersist bool
}

// Option adjusts a single Save or Update call.
type Option func(*saveOptions)

// WithTTL expires the entry ttl after the write.
func WithTTL(ttl time.Duration) Option {
	return func(o *saveOptions) { o.ttl = ttl }
}

// WithBreadcrumbs replaces the entry's breadcrumb trail.
func WithBreadcrumbs(crumbs ...string) Option {
	return func(o *saveOptions) { o.breadcrumbs = append([]string{}, crumbs...) }
}

// WithoutPersist keeps the write in memory only.
func WithoutPersist() Option {
	return func(o *saveOptions) { o.skipPersist = true }
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPersister sets the durable backend. Without one the store is memory only.
func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persister = p }
}

// WithSessionKey overrides DefaultSessionKey.
func WithSessionKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.sessionKey = key
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.nowFunc = now }
}

// WithPersistTimeout bounds each write to the persister.
func WithPersistTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithDefaultTTL applies ttl to entries that are created without one.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.defaultTTL = ttl }
}

// Store is a process-wide context map. Readers always get independent copies.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*Entry
	order       []string
	breadcrumbs []string
	subs        map[int]chan []Entry
	nextSub     int
	gen         uint64

	flushMu sync.Mutex
	flushed uint64

	persister      Persister
	sessionKey     string
	persistTimeout time.Duration
	defaultTTL     time.Duration
	nowFunc        func() time.Time
	log            *zap.Logger
}

// New creates an empty store. Call Restore to load a persisted session.
func New(opts ...StoreOption) *Store {
	s := &Store{
		entries:        make(map[string]*Entry),
		breadcrumbs:    []string{"Dashboard"},
		subs:           make(map[int]chan []Entry),
		sessionKey:     DefaultSessionKey,
		persistTimeout: defaultPersistTimeout,
		nowFunc:        time.Now,
		log:            zap.L().With(zap.String("component", "flowctx")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Restore replaces the in-memory entries with the persisted session,
// skipping entries that have already expired. A payload that cannot be
// parsed leaves the store empty.
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	raw, err := s.persister.LoadSession(ctx, s.sessionKey)
	if err != nil {
		return eris.Wrap(err, "flowctx: load session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	s.order = nil

	if len(raw) > 0 {
		var stored []struct {
			Key         string          `json:"key"`
			Data        json.RawMessage `json:"data"`
			Breadcrumbs []string        `json:"breadcrumbs,omitempty"`
			Timestamp   time.Time       `json:"timestamp"`
			ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			s.log.Warn("flowctx: discarding unreadable session", zap.Error(err))
			s.notifyLocked()
			return nil
		}

		now := s.nowFunc()
		for _, st := range stored {
			e := &Entry{
				Key:         st.Key,
				Breadcrumbs: st.Breadcrumbs,
				Timestamp:   st.Timestamp,
				ExpiresAt:   st.ExpiresAt,
			}
			if len(st.Data) > 0 && string(st.Data) != "null" {
				e.Data = st.Data
			}
			if e.Expired(now) {
				continue
			}
			s.putLocked(e)
		}
	}

	s.notifyLocked()
	return nil
}

// Save stores a copy of data under key and returns a copy of the new entry.
//
// Without WithTTL the previous expiry is kept. Without WithBreadcrumbs the
// previous trail is kept.
func (s *Store) Save(key string, data any, opts ...Option) Entry {
	var o saveOptions
	for _, fn := range opts {
		fn(&o)
	}

	s.mu.Lock()
	now := s.nowFunc()
	prev := s.entries[key]
	if prev != nil && prev.Expired(now) {
		prev = nil
	}

	e := &Entry{
		Key:       key,
		Data:      Clone(data),
		Timestamp: now,
	}

	switch {
	case o.breadcrumbs != nil:
		e.Breadcrumbs = o.breadcrumbs
	case prev != nil && prev.Breadcrumbs != nil:
		e.Breadcrumbs = append([]string{}, prev.Breadcrumbs...)
	}

	switch {
	case o.ttl > 0:
		exp := now.Add(o.ttl)
		e.ExpiresAt = &exp
	case prev != nil && prev.ExpiresAt != nil:
		exp := *prev.ExpiresAt
		e.ExpiresAt = &exp
	case prev == nil && s.defaultTTL > 0:
		exp := now.Add(s.defaultTTL)
		e.ExpiresAt = &exp
	}

	s.putLocked(e)
	if len(e.Breadcrumbs) > 0 {
		s.breadcrumbs = append([]string{}, e.Breadcrumbs...)
	}

	out := copyEntry(e)
	payload, gen := s.serializeLocked(!o.skipPersist)
	s.notifyLocked()
	s.mu.Unlock()

	s.flush(payload, gen)
	return out
}

// Get returns a copy of the entry under key. Expired entries are evicted
// and the eviction is persisted.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return Entry{}, false
	}
	if e.Expired(s.nowFunc()) {
		s.removeLocked(key)
		payload, gen := s.serializeLocked(true)
		s.notifyLocked()
		s.mu.Unlock()
		s.flush(payload, gen)
		return Entry{}, false
	}
	out := copyEntry(e)
	s.mu.Unlock()
	return out, true
}

// Data returns a copy of the payload under key.
func (s *Store) Data(key string) (any, bool) {
	e, ok := s.Get(key)
	if !ok {
		return nil, false
	}
	return e.Data, true
}

// Clear removes key.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	removed := s.removeLocked(key)
	payload, gen := s.serializeLocked(removed)
	s.notifyLocked()
	s.mu.Unlock()
	s.flush(payload, gen)
}

// ClearAll removes every entry.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.order = nil
	payload, gen := s.serializeLocked(true)
	s.notifyLocked()
	s.mu.Unlock()
	s.flush(payload, gen)
}

// Entries returns copies of all live entries in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	out := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		if e := s.entries[k]; !e.Expired(now) {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// Breadcrumbs returns the shared breadcrumb trail.
func (s *Store) Breadcrumbs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.breadcrumbs...)
}

// SetBreadcrumbs replaces the shared trail. An empty trail resets it to the
// dashboard root.
func (s *Store) SetBreadcrumbs(crumbs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(crumbs) == 0 {
		s.breadcrumbs = []string{"Dashboard"}
		return
	}
	s.breadcrumbs = append([]string{}, crumbs...)
}

// Subscribe returns a channel that receives the full entry list after every
// mutation. Only the latest snapshot is buffered; slow readers skip
// intermediate ones. The current snapshot is delivered immediately. The
// returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan []Entry, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []Entry, 1)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Store) putLocked(e *Entry) {
	if _, exists := s.entries[e.Key]; !exists {
		s.order = append(s.order, e.Key)
	}
	s.entries[e.Key] = e
}

func (s *Store) removeLocked(key string) bool {
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, copyEntry(s.entries[k]))
	}
	return out
}

func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	for _, ch := range s.subs {
		snap := s.snapshotLocked()
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// serializeLocked encodes the entry set for persistence. It returns a nil
// payload when nothing should be written.
func (s *Store) serializeLocked(persist bool) ([]byte, uint64) {
	if !persist || s.persister == nil {
		return nil, 0
	}
	list := make([]*Entry, 0, len(s.order))
	for _, k := range s.order {
		list = append(list, s.entries[k])
	}
	payload, err := json.Marshal(list)
	if err != nil {
		s.log.Warn("flowctx: serialize session", zap.Error(err))
		return nil, 0
	}
	s.gen++
	return payload, s.gen
}

// flush writes payload unless a newer generation has already been written.
// Failures are logged; persistence is best effort.
func (s *Store) flush(payload []byte, gen uint64) {
	if payload == nil {
		return
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if gen <= s.flushed {
		return
	}
	s.flushed = gen

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.persister.SaveSession(ctx, s.sessionKey, payload); err != nil {
		s.log.Warn("flowctx: persist session", zap.String("session_key", s.sessionKey), zap.Error(err))
	}
}

func copyEntry(e *Entry) Entry {
	out := Entry{
		Key:       e.Key,
		Data:      Clone(e.Data),
		Timestamp: e.Timestamp,
	}
	if e.Breadcrumbs != nil {
		out.Breadcrumbs = append([]string{}, e.Breadcrumbs...)
	}
	if e.ExpiresAt != nil {
		exp := *e.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}
