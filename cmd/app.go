package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/conductores/onboarding-engine/internal/config"
	"github.com/conductores/onboarding-engine/internal/flowctx"
	"github.com/conductores/onboarding-engine/internal/guard"
	"github.com/conductores/onboarding-engine/internal/metrics"
	"github.com/conductores/onboarding-engine/internal/policy"
	"github.com/conductores/onboarding-engine/internal/resilience"
	"github.com/conductores/onboarding-engine/internal/store"
	"github.com/conductores/onboarding-engine/internal/tanda"
	"github.com/conductores/onboarding-engine/pkg/configsvc"
	tandaapi "github.com/conductores/onboarding-engine/pkg/tanda"
)

// appEnv holds everything the commands share: persistence, the flow
// context, the policy repository and the tanda validator.
type appEnv struct {
	Store     store.Store
	Flow      *flowctx.Store
	Policies  *policy.Repository
	Validator *tanda.Validator
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Guards    guard.Env
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp opens the store, restores the flow context session and builds
// the policy repository and tanda validator. Callers should defer
// env.Close().
func initApp(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return buildApp(ctx, c, st)
}

// buildApp wires an already opened store. Split out so tests can run the
// full stack on a MemoryStore.
func buildApp(ctx context.Context, c *config.Config, st store.Store) (*appEnv, error) {
	log := zap.L().With(zap.String("component", "app"))

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	flowOpts := []flowctx.StoreOption{
		flowctx.WithPersister(st),
		flowctx.WithSessionKey(c.Store.SessionKey),
		flowctx.WithPersistTimeout(time.Duration(c.Context.PersistTimeoutMs) * time.Millisecond),
	}
	if c.Context.DefaultTTLMins > 0 {
		flowOpts = append(flowOpts, flowctx.WithDefaultTTL(time.Duration(c.Context.DefaultTTLMins)*time.Minute))
	}
	flow := flowctx.New(flowOpts...)
	if err := flow.Restore(ctx); err != nil {
		log.Warn("flow context session not restored", zap.Error(err))
	}

	policyOpts := []policy.Option{
		policy.WithNamespace(c.Policy.RemoteNamespace),
		policy.WithSavePath(c.Policy.RemotePath),
		policy.WithObserver(m),
	}
	if c.ConfigSvc.BaseURL != "" {
		svc := configsvc.NewClient(
			configsvc.WithBaseURL(c.ConfigSvc.BaseURL),
			configsvc.WithToken(c.ConfigSvc.Token),
		)
		policyOpts = append(policyOpts, policy.WithLoader(svc), policy.WithSaver(svc))
	}
	repo := policy.NewRepository(policyOpts...)

	if c.Policy.File != "" {
		if err := repo.RegisterFile(c.Policy.File); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load policy file")
		}
	}
	if c.ConfigSvc.BaseURL != "" {
		if err := repo.Reload(ctx); err != nil {
			log.Warn("remote policies not loaded, using local rules", zap.Error(err))
		}
	}

	validator := tanda.NewValidator(newTandaClient(c.Tanda), flow,
		tanda.WithTimeout(c.Tanda.Timeout()),
		tanda.WithRetry(resilience.RetryFromSettings(c.Tanda.MaxAttempts, 0, 0)),
		tanda.WithBreaker(resilience.NewCircuitBreaker(
			resilience.BreakerFromSettings(c.Tanda.BreakerThreshold, c.Tanda.BreakerResetSecs),
		)),
		tanda.WithRecorder(st),
		tanda.WithObserver(m),
	)

	return &appEnv{
		Store:     st,
		Flow:      flow,
		Policies:  repo,
		Validator: validator,
		Metrics:   m,
		Registry:  reg,
		Guards: guard.Env{
			Flow:       flow,
			Policies:   repo,
			StaleAfter: time.Duration(c.Guard.StaleAfterHours) * time.Hour,
			Observer:   m,
		},
	}, nil
}

// newTandaClient returns nil when no service is configured; the validator
// then answers from local rules.
func newTandaClient(c config.TandaConfig) tandaapi.Client {
	if c.BaseURL == "" {
		return nil
	}
	return tandaapi.NewClient(
		tandaapi.WithBaseURL(c.BaseURL),
		tandaapi.WithToken(c.Token),
		tandaapi.WithRateLimit(c.RatePerSec),
		tandaapi.WithHTTPClient(&http.Client{Timeout: c.Timeout() + 2*time.Second}),
	)
}
