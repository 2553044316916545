package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conductores/onboarding-engine/internal/flowctx"
	"github.com/conductores/onboarding-engine/internal/guard"
	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/monitoring"
	"github.com/conductores/onboarding-engine/internal/policy"
	"github.com/conductores/onboarding-engine/internal/store"
	"github.com/conductores/onboarding-engine/internal/tanda"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the eligibility API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Policy.Watch {
			w := policy.NewWatcher(env.Policies, cfg.Policy.File, 0)
			go func() {
				if err := w.Run(ctx); err != nil {
					zap.L().Error("policy watcher stopped", zap.Error(err))
				}
			}()
		}

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves the operational HTTP surface over an appEnv.
type api struct {
	env *appEnv
	log *zap.Logger
}

func newRouter(env *appEnv) http.Handler {
	a := &api{env: env, log: zap.L().With(zap.String("component", "api"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/policies", a.getPolicy)
		r.Get("/policies/remote", a.getRemotePolicies)
		r.Put("/policies/remote", a.putRemotePolicies)
		r.Post("/policies/diff", a.diffPolicies)

		r.Get("/guards/{stage}", a.checkStage)

		r.Get("/context", a.listContext)
		r.Delete("/context", a.clearContext)
		r.Get("/context/{key}", a.getContext)
		r.Put("/context/{key}", a.putContext)
		r.Delete("/context/{key}", a.deleteContext)

		r.Get("/tanda", a.currentTanda)
		r.Post("/tanda/validate", a.validateTanda)
		r.Post("/tanda/roster", a.syncRoster)
		r.Get("/validations", a.listValidations)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.env.Store.Ping(r.Context()); err != nil {
		a.log.Warn("health: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// policyContextFromQuery reads market, clientType, saleType and
// collectiveSize. A market alias without clientType is resolved through
// the alias table.
func policyContextFromQuery(r *http.Request) (policy.Context, error) {
	q := r.URL.Query()
	pc := policy.Context{
		Market:     policy.NormalizeAlias(q.Get("market")),
		ClientType: policy.NormalizeAlias(q.Get("clientType")),
		SaleType:   q.Get("saleType"),
	}
	if pc.ClientType == "" {
		k := policy.ResolveKey(q.Get("market"))
		pc.Market, pc.ClientType = k.Market, k.ClientType
	}
	if pc.SaleType == "" {
		pc.SaleType = policy.SaleFinanciero
	}
	if raw := q.Get("collectiveSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return pc, eris.Errorf("collectiveSize %q is not a number", raw)
		}
		pc.CollectiveSize = &n
	}
	return pc, nil
}

func (a *api) getPolicy(w http.ResponseWriter, r *http.Request) {
	pc, err := policyContextFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.env.Policies.Documents(pc))
}

func (a *api) getRemotePolicies(w http.ResponseWriter, _ *http.Request) {
	rc, updatedAt, ok := a.env.Policies.RemoteSnapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no remote policies registered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": rc, "updatedAt": updatedAt})
}

func (a *api) putRemotePolicies(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	rc, err := policy.ParseRemoteConfig(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "policies must be a JSON object keyed by market")
		return
	}
	err = a.env.Policies.SaveToRemote(r.Context(), rc)
	switch {
	case errors.Is(err, policy.ErrConfigMalformed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, policy.ErrNoRemote):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		a.log.Error("save remote policies", zap.Error(err))
		writeError(w, http.StatusBadGateway, "remote config store rejected the update")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type diffItem struct {
	policy.DiffItem
	Message string `json:"message"`
}

func (a *api) diffPolicies(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Base policy.RemoteConfig `json:"base"`
		Next policy.RemoteConfig `json:"next"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	items := policy.Diff(req.Base, req.Next)
	out := make([]diffItem, 0, len(items))
	for _, it := range items {
		out = append(out, diffItem{DiffItem: it, Message: it.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) checkStage(w http.ResponseWriter, r *http.Request) {
	chain, err := guard.StageChain(chi.URLParam(r, "stage"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, guard.NewEnforcer(a.env.Guards, nil, nil).EnforceChain(r.Context(), chain, r.URL.Query().Get("target")))
}

func (a *api) listContext(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":     a.env.Flow.Entries(),
		"breadcrumbs": a.env.Flow.Breadcrumbs(),
	})
}

func (a *api) clearContext(w http.ResponseWriter, _ *http.Request) {
	a.env.Flow.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getContext(w http.ResponseWriter, r *http.Request) {
	e, ok := a.env.Flow.Get(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "context key not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// putContext stores the raw JSON body. An optional ttl query parameter
// takes a Go duration.
func (a *api) putContext(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if !decodeBody(w, r, &data) {
		return
	}
	var opts []flowctx.Option
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			writeError(w, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		opts = append(opts, flowctx.WithTTL(ttl))
	}
	writeJSON(w, http.StatusOK, a.env.Flow.Save(chi.URLParam(r, "key"), data, opts...))
}

func (a *api) deleteContext(w http.ResponseWriter, r *http.Request) {
	a.env.Flow.Clear(chi.URLParam(r, "key"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) currentTanda(w http.ResponseWriter, _ *http.Request) {
	st := a.env.Validator.Current()
	if st == nil {
		writeError(w, http.StatusNotFound, "no tanda validation yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) validateTanda(w http.ResponseWriter, r *http.Request) {
	var req tanda.Config
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Members <= 0 {
		writeError(w, http.StatusBadRequest, "members must be > 0")
		return
	}
	writeJSON(w, http.StatusOK, a.env.Validator.Validate(r.Context(), req))
}

func (a *api) syncRoster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID  string           `json:"clientId"`
		Documents []model.Document `json:"documents"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	st := a.env.Validator.SyncRoster(r.Context(), req.Documents, req.ClientID)
	if st == nil {
		writeError(w, http.StatusConflict, "validate the tanda before syncing the roster")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) listValidations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ValidationFilter{
		ClientID: q.Get("clientId"),
		Status:   model.ValidationStatus(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		filter.Limit = n
	}
	recs, err := a.env.Store.ListValidations(r.Context(), filter)
	if err != nil {
		a.log.Error("list validations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list validations")
		return
	}
	if recs == nil {
		recs = []model.ValidationRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
