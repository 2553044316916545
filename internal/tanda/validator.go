package tanda

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conductores/onboarding-engine/internal/flowctx"
	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/resilience"
	tandaapi "github.com/conductores/onboarding-engine/pkg/tanda"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 6 * time.Second

const recordTimeout = 2 * time.Second

// Recorder keeps a history of validation outcomes.
type Recorder interface {
	RecordValidation(ctx context.Context, rec *model.ValidationRecord) error
}

// Observer receives validation metrics.
type Observer interface {
	ObserveTandaValidation(status string, fallback bool)
	ObserveTandaRemote(call string, elapsed time.Duration, err error)
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithRetry retries transient failures inside the timeout.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(v *Validator) { v.retry = cfg }
}

// WithBreaker routes remote calls through cb. An open breaker sends calls
// straight to the local fallback.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(v *Validator) { v.breaker = cb }
}

// WithRecorder records every persisted state.
func WithRecorder(r Recorder) Option {
	return func(v *Validator) { v.recorder = r }
}

// WithObserver reports metrics.
func WithObserver(o Observer) Option {
	return func(v *Validator) { v.observer = o }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.nowFunc = now }
}

// Validator runs tanda validations. It is safe for concurrent use; when
// validations overlap only the most recently started one is kept.
type Validator struct {
	client   tandaapi.Client
	flow     *flowctx.Store
	timeout  time.Duration
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	recorder Recorder
	observer Observer
	nowFunc  func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	current *State
	issued  uint64
}

// NewValidator creates a validator and restores the state persisted in flow.
// client may be nil, in which case every call uses the local rules. flow may
// be nil for a validator that keeps state in memory only.
func NewValidator(client tandaapi.Client, flow *flowctx.Store, opts ...Option) *Validator {
	v := &Validator{
		client:  client,
		flow:    flow,
		timeout: DefaultTimeout,
		retry:   resilience.RetryConfig{MaxAttempts: 1},
		nowFunc: time.Now,
		log:     zap.L().With(zap.String("component", "tanda")),
	}
	for _, o := range opts {
		o(v)
	}

	if flow != nil {
		if st, ok := flowctx.Load[State](flow, ContextKey); ok && st.ValidationID != "" {
			v.current = &st
		}
	}
	return v
}

// Current returns a copy of the latest state, or nil.
func (v *Validator) Current() *State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current.clone()
}

// Validate validates cfg remotely, or locally when the remote call fails,
// and builds the payout schedule. It never returns an error: failures are
// reported through State.FallbackUsed.
func (v *Validator) Validate(ctx context.Context, cfg Config) *State {
	v.mu.Lock()
	v.issued++
	seq := v.issued
	v.mu.Unlock()

	started := v.nowFunc()
	norm := normalize(cfg, started)

	resp, err := v.remoteValidate(ctx, norm)
	fallback := err != nil
	if fallback {
		resp = localValidation(norm, v.nowFunc())
		v.log.Warn("tanda: validation fell back to local rules",
			zap.String("validation_id", resp.ValidationID),
			zap.Int("members", norm.Members),
			zap.Duration("timeout", v.timeout),
			zap.String("failure", resilience.Classify(err)),
			zap.Error(err),
		)
	}

	warnings := resp.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	state := &State{
		ValidationID: resp.ValidationID,
		Status:       model.ValidationStatus(resp.Status),
		ValidatedAt:  v.nowFunc().UTC(),
		Config:       norm,
		Warnings:     warnings,
		Schedule:     v.schedule(ctx, resp.ValidationID, norm, fallback),
		FallbackUsed: fallback,
		Metadata:     resp.Metrics,
	}

	if v.observer != nil {
		v.observer.ObserveTandaValidation(resp.Status, fallback)
	}

	v.mu.Lock()
	if seq != v.issued {
		v.mu.Unlock()
		v.log.Info("tanda: discarding superseded validation",
			zap.String("validation_id", state.ValidationID),
		)
		return state.clone()
	}
	v.applyLocked(state)
	v.mu.Unlock()

	v.record(ctx, state, "")
	v.log.Info("tanda: validated",
		zap.String("validation_id", state.ValidationID),
		zap.String("status", string(state.Status)),
		zap.Bool("fallback", fallback),
		zap.Int("rounds", len(state.Schedule)),
		zap.Duration("elapsed", v.nowFunc().Sub(started)),
	)
	return state.clone()
}

// SyncRoster uploads the approved member documents for the current
// validation. Without a current validation, or with any member missing an
// approved INE or RFC, the current state is returned unchanged. A failed
// upload still marks the roster synced under a local upload id.
func (v *Validator) SyncRoster(ctx context.Context, docs []model.Document, clientID string) *State {
	cur := v.Current()
	if cur == nil || cur.ValidationID == "" {
		return cur
	}

	roster, ok := buildRoster(cur.Config.Members, docs)
	if !ok {
		return cur
	}

	req := tandaapi.RosterUploadRequest{
		ValidationID: cur.ValidationID,
		Roster:       roster.members,
		Consent:      roster.consent,
	}
	if clientID != "" {
		req.ClientID = &clientID
	}

	uploadID := fmt.Sprintf(mockRosterUploadIDFmt, v.nowFunc().UnixMilli())
	fallback := false
	resp, err := remoteCall(ctx, v, "roster", func(ctx context.Context, c tandaapi.Client) (*tandaapi.RosterUploadResponse, error) {
		return c.UploadRoster(ctx, req)
	})
	switch {
	case err != nil:
		fallback = true
		v.log.Warn("tanda: roster upload failed, keeping local id",
			zap.String("validation_id", cur.ValidationID),
			zap.String("upload_id", uploadID),
			zap.Error(err),
		)
	case resp.UploadID != "":
		uploadID = resp.UploadID
	}

	v.mu.Lock()
	if v.current == nil || v.current.ValidationID != cur.ValidationID {
		latest := v.current.clone()
		v.mu.Unlock()
		v.log.Info("tanda: discarding roster for superseded validation",
			zap.String("validation_id", cur.ValidationID),
		)
		return latest
	}

	updated := v.current.clone()
	synced := v.nowFunc().UTC()
	updated.LastRosterUploadID = uploadID
	updated.LastRosterSyncedAt = &synced
	meta := maps.Clone(updated.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["rosterUploadId"] = uploadID
	meta["rosterFallbackUsed"] = fallback
	updated.Metadata = meta
	v.applyLocked(updated)
	v.mu.Unlock()

	v.record(ctx, updated, clientID)
	return updated.clone()
}

func (v *Validator) remoteValidate(ctx context.Context, cfg StateConfig) (*tandaapi.ValidateResponse, error) {
	req := tandaapi.ValidateRequest{
		Market:       cfg.Market,
		ClientType:   cfg.ClientType,
		Members:      cfg.Members,
		Contribution: cfg.Contribution,
		Rounds:       cfg.Rounds,
		Rotation:     cfg.RotationOrder,
		StartDate:    cfg.StartDate,
		AdvisorID:    cfg.AdvisorID,
		GroupName:    cfg.GroupName,
	}
	return remoteCall(ctx, v, "validate", func(ctx context.Context, c tandaapi.Client) (*tandaapi.ValidateResponse, error) {
		return c.Validate(ctx, req)
	})
}

// schedule prefers the remote schedule for remotely validated groups and
// generates one locally otherwise.
func (v *Validator) schedule(ctx context.Context, validationID string, cfg StateConfig, fallback bool) []ScheduleEntry {
	if !fallback {
		resp, err := remoteCall(ctx, v, "schedule", func(ctx context.Context, c tandaapi.Client) (*tandaapi.ScheduleResponse, error) {
			return c.Schedule(ctx, tandaapi.ScheduleRequest{
				ValidationID: validationID,
				Members:      cfg.Members,
				Contribution: cfg.Contribution,
				Rounds:       cfg.Rounds,
				StartDate:    cfg.StartDate,
			})
		})
		if err == nil && len(resp.Schedule) > 0 {
			return resp.Schedule
		}
		if err != nil {
			v.log.Warn("tanda: schedule fell back to local generation",
				zap.String("validation_id", validationID),
				zap.Error(err),
			)
		}
	}
	return localSchedule(cfg)
}

// applyLocked replaces the current state and persists it. Callers hold v.mu
// so the in-memory and persisted copies never diverge.
func (v *Validator) applyLocked(s *State) {
	v.current = s.clone()
	if v.flow != nil {
		v.flow.Save(ContextKey, s.clone(), flowctx.WithBreadcrumbs(Breadcrumbs...))
	}
}

func (v *Validator) record(ctx context.Context, s *State, clientID string) {
	if v.recorder == nil {
		return
	}
	rec := &model.ValidationRecord{
		ValidationID:   s.ValidationID,
		ClientID:       clientID,
		Market:         s.Config.Market,
		ClientType:     s.Config.ClientType,
		Members:        s.Config.Members,
		Status:         s.Status,
		FallbackUsed:   s.FallbackUsed,
		Warnings:       len(s.Warnings),
		ScheduleRounds: len(s.Schedule),
		RosterUploadID: s.LastRosterUploadID,
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := v.recorder.RecordValidation(recCtx, rec); err != nil {
		v.log.Warn("tanda: record validation", zap.String("validation_id", s.ValidationID), zap.Error(err))
	}
}

// remoteCall runs fn through the breaker, the timeout and the retry policy,
// in that order.
func remoteCall[T any](ctx context.Context, v *Validator, call string, fn func(context.Context, tandaapi.Client) (T, error)) (T, error) {
	var zero T
	if v.client == nil {
		return zero, errNoClient
	}

	started := time.Now()
	attempt := func(ctx context.Context) (T, error) {
		return resilience.WithTimeout(ctx, v.timeout, func(ctx context.Context) (T, error) {
			return resilience.DoVal(ctx, v.retryConfig(call), func(ctx context.Context) (T, error) {
				return fn(ctx, v.client)
			})
		})
	}

	var (
		val T
		err error
	)
	if v.breaker != nil {
		val, err = resilience.ExecuteVal(ctx, v.breaker, attempt)
	} else {
		val, err = attempt(ctx)
	}

	if v.observer != nil {
		v.observer.ObserveTandaRemote(call, time.Since(started), err)
	}
	return val, err
}

func (v *Validator) retryConfig(call string) resilience.RetryConfig {
	cfg := v.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("tanda", call)
	}
	return cfg
}
