// Package policy derives required documents and thresholds for an onboarding
// case from its market, client type and sale type. Built-in rule sets can be
// overridden at runtime from a local file or a remote configuration service.
package policy

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/conductores/onboarding-engine/internal/model"
)

const (
	// DefaultNamespace is the remote config namespace policies are read from.
	DefaultNamespace = "markets/market-policies"
	// DefaultSavePath is where SaveToRemote writes.
	DefaultSavePath = "config/market-policies"
)

// Loader fetches a raw JSON document for a config namespace.
type Loader interface {
	LoadNamespace(ctx context.Context, namespace string) ([]byte, error)
}

// Saver writes a JSON document to a config path.
type Saver interface {
	Put(ctx context.Context, path string, body []byte) error
}

// ReloadObserver is notified of every registration attempt.
type ReloadObserver interface {
	ObservePolicyReload(source, result string)
}

// Option configures a Repository.
type Option func(*Repository)

// WithLoader enables Reload.
func WithLoader(l Loader) Option {
	return func(r *Repository) { r.loader = l }
}

// WithSaver enables SaveToRemote.
func WithSaver(s Saver) Option {
	return func(r *Repository) { r.saver = s }
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(r *Repository) {
		if ns != "" {
			r.namespace = ns
		}
	}
}

// WithSavePath overrides DefaultSavePath.
func WithSavePath(p string) Option {
	return func(r *Repository) {
		if p != "" {
			r.savePath = p
		}
	}
}

// WithClock injects the time source used to stamp remote snapshots.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.nowFunc = now }
}

// WithObserver reports reloads, typically to metrics.
func WithObserver(o ReloadObserver) Option {
	return func(r *Repository) { r.observer = o }
}

// Repository owns the rule table. It is safe for concurrent use.
type Repository struct {
	mu              sync.RWMutex
	builders        map[Key]Builder
	remote          RemoteConfig
	remoteUpdatedAt time.Time

	loader    Loader
	saver     Saver
	namespace string
	savePath  string
	observer  ReloadObserver
	nowFunc   func() time.Time
	reloads   singleflight.Group
	log       *zap.Logger
}

// NewRepository returns a repository seeded with the built-in rule sets.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		builders:  builtinBuilders(),
		namespace: DefaultNamespace,
		savePath:  DefaultSavePath,
		nowFunc:   time.Now,
		log:       zap.L().With(zap.String("component", "policy")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Documents derives the rule set for c. Unknown (market, client type) pairs
// get the conservative fallback policy.
func (r *Repository) Documents(c Context) Result {
	r.mu.RLock()
	b, ok := r.builders[c.Key()]
	r.mu.RUnlock()

	if !ok {
		return buildFallback(c)
	}
	if c.BusinessFlow == "" {
		c.BusinessFlow = model.FlowVentaPlazo
	}
	return b(c)
}

// RequiredDocs returns the non-optional documents for c.
func (r *Repository) RequiredDocs(c Context) []Document {
	return filterDocs(r.Documents(c).Documents, false)
}

// ConditionalDocs returns the optional documents for c.
func (r *Repository) ConditionalDocs(c Context) []Document {
	return filterDocs(r.Documents(c).Documents, true)
}

func filterDocs(docs []Document, optional bool) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.Optional == optional {
			out = append(out, d)
		}
	}
	return out
}

// Metadata returns a copy of the rule set's metadata.
func (r *Repository) Metadata(c Context) Metadata {
	return r.Documents(c).Metadata.Clone()
}

// IsRequiredDocument reports whether docID is listed and not optional in res.
func IsRequiredDocument(docID string, res Result) bool {
	for _, d := range res.Documents {
		if d.ID == docID {
			return !d.Optional
		}
	}
	return false
}

// ToDocuments converts a rule set into pending client documents.
func ToDocuments(res Result) []model.Document {
	out := make([]model.Document, 0, len(res.Documents))
	for _, d := range res.Documents {
		out = append(out, model.Document{
			ID:         d.ID,
			Name:       d.Label,
			Tooltip:    d.Tooltip,
			IsOptional: d.Optional,
			Group:      d.Group,
			Status:     model.DocumentPending,
		})
	}
	return out
}

// AvailablePolicies lists registered rule sets ordered by market then client type.
func (r *Repository) AvailablePolicies() []Key {
	r.mu.RLock()
	keys := slices.Collect(maps.Keys(r.builders))
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Market == keys[j].Market {
			return keys[i].ClientType < keys[j].ClientType
		}
		return keys[i].Market < keys[j].Market
	})
	return keys
}

// AvailableMarkets lists markets with at least one rule set, sorted.
func (r *Repository) AvailableMarkets() []string {
	var out []string
	for _, k := range r.AvailablePolicies() {
		if len(out) == 0 || out[len(out)-1] != k.Market {
			out = append(out, k.Market)
		}
	}
	return out
}

// ClientTypesForMarket lists the client types registered for market, sorted.
func (r *Repository) ClientTypesForMarket(market string) []string {
	var out []string
	for _, k := range r.AvailablePolicies() {
		if k.Market == market {
			out = append(out, k.ClientType)
		}
	}
	return out
}

// OCRThreshold is the minimum OCR confidence for c's documents.
func (r *Repository) OCRThreshold(c Context) float64 {
	return r.Documents(c).Metadata.OCRThreshold
}

// ExpiryRules maps document ids to their validity rule. The map is a copy.
func (r *Repository) ExpiryRules(c Context) map[string]string {
	return maps.Clone(r.Documents(c).Metadata.ExpiryRules)
}

// DocumentByID finds a document of c's rule set.
func (r *Repository) DocumentByID(c Context, id string) (Document, bool) {
	for _, d := range r.Documents(c).Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// RequiresProtection reports whether c's rule set mandates protection.
func (r *Repository) RequiresProtection(c Context) bool {
	p := r.Documents(c).Metadata.Protection
	return p != nil && p.Required
}

// ProtectionCoverageOptions lists the coverages offered for c, never nil.
func (r *Repository) ProtectionCoverageOptions(c Context) []CoverageType {
	p := r.Documents(c).Metadata.Protection
	if p == nil {
		return []CoverageType{}
	}
	return slices.Clone(p.CoverageOptions)
}

// ProtectionMetadata returns c's protection policy, or nil when it has none.
func (r *Repository) ProtectionMetadata(c Context) *ProtectionPolicy {
	return r.Metadata(c).Protection
}

// TandaRules returns the collective-savings bounds, or nil when the rule set
// has none.
func (r *Repository) TandaRules(c Context) *TandaRules {
	return r.Metadata(c).Tanda
}

// IncomeThreshold returns the rule set's payment-to-income ratio.
func (r *Repository) IncomeThreshold(c Context) (float64, bool) {
	inc := r.Documents(c).Metadata.Income
	if inc == nil {
		return 0, false
	}
	return inc.Threshold, true
}

// IncomeDocumentID returns the document that proves income, if configured.
func (r *Repository) IncomeDocumentID(c Context) (string, bool) {
	inc := r.Documents(c).Metadata.Income
	if inc == nil || inc.DocumentID == "" {
		return "", false
	}
	return inc.DocumentID, true
}

// RegisterFromConfig installs or replaces the rule set for one pair.
func (r *Repository) RegisterFromConfig(e ConfigEntry) {
	key := Key{Market: e.Market, ClientType: e.ClientType}
	b := staticBuilder(e.Documents, e.Metadata)

	r.mu.Lock()
	r.builders[key] = b
	r.mu.Unlock()
}

// RegisterAll installs several entries in order.
func (r *Repository) RegisterAll(entries []ConfigEntry) {
	for _, e := range entries {
		r.RegisterFromConfig(e)
	}
}
