package policy

import (
	"maps"
	"slices"

	"github.com/conductores/onboarding-engine/internal/model"
)

// Markets and client types with built-in rule sets.
const (
	MarketAguascalientes = "aguascalientes"
	MarketEdomex         = "edomex"
	MarketOtros          = "otros"

	ClientIndividual = "individual"
	ClientColectivo  = "colectivo"

	SaleFinanciero = "financiero"
	SaleContado    = "contado"
)

// Key selects a rule set.
type Key struct {
	Market     string `json:"market" yaml:"market"`
	ClientType string `json:"clientType" yaml:"clientType"`
}

func (k Key) String() string {
	return k.Market + ":" + k.ClientType
}

// Context describes which rule set applies to a case.
type Context struct {
	Market               string             `json:"market" yaml:"market"`
	ClientType           string             `json:"clientType" yaml:"clientType"`
	SaleType             string             `json:"saleType" yaml:"saleType"`
	BusinessFlow         model.BusinessFlow `json:"businessFlow,omitempty" yaml:"businessFlow,omitempty"`
	RequiresIncomeProof  *bool              `json:"requiresIncomeProof,omitempty" yaml:"requiresIncomeProof,omitempty"`
	CollectiveSize       *int               `json:"collectiveSize,omitempty" yaml:"collectiveSize,omitempty"`
	IncomeThreshold      *float64           `json:"incomeThreshold,omitempty" yaml:"incomeThreshold,omitempty"`
	IncomeThresholdRatio *float64           `json:"incomeThresholdRatio,omitempty" yaml:"incomeThresholdRatio,omitempty"`
	Metadata             *ContextMetadata   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ContextMetadata carries rule overrides attached to a case.
type ContextMetadata struct {
	Tanda *TandaRules `json:"tanda,omitempty" yaml:"tanda,omitempty"`
}

// Key returns the rule set selector for c.
func (c Context) Key() Key {
	return Key{Market: c.Market, ClientType: c.ClientType}
}

// Document is one artifact a rule set asks for.
type Document struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label" yaml:"label"`
	Tooltip  string `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Group    string `json:"group,omitempty" yaml:"group,omitempty"`
}

// CoverageType is a protection product tier.
type CoverageType string

const (
	CoverageStandard CoverageType = "standard"
	CoveragePremium  CoverageType = "premium"
	CoverageGroup    CoverageType = "group"
)

// ProtectionPolicy describes the payment-protection sub-policy.
type ProtectionPolicy struct {
	Required              bool           `json:"required" yaml:"required"`
	CoverageOptions       []CoverageType `json:"coverageOptions" yaml:"coverageOptions"`
	DefaultCoverage       CoverageType   `json:"defaultCoverage,omitempty" yaml:"defaultCoverage,omitempty"`
	SimulateEndpoint      string         `json:"simulateEndpoint,omitempty" yaml:"simulateEndpoint,omitempty"`
	ApplyEndpoint         string         `json:"applyEndpoint,omitempty" yaml:"applyEndpoint,omitempty"`
	ScoreEndpoint         string         `json:"scoreEndpoint,omitempty" yaml:"scoreEndpoint,omitempty"`
	FallbackScoreEndpoint string         `json:"fallbackScoreEndpoint,omitempty" yaml:"fallbackScoreEndpoint,omitempty"`
}

// TandaRules bound a collective-savings group.
type TandaRules struct {
	MinMembers         int     `json:"minMembers" yaml:"minMembers"`
	MaxMembers         int     `json:"maxMembers" yaml:"maxMembers"`
	MinContribution    float64 `json:"minContribution" yaml:"minContribution"`
	MaxContribution    float64 `json:"maxContribution" yaml:"maxContribution"`
	MinRounds          int     `json:"minRounds" yaml:"minRounds"`
	MaxRounds          int     `json:"maxRounds" yaml:"maxRounds"`
	ValidationEndpoint string  `json:"validationEndpoint,omitempty" yaml:"validationEndpoint,omitempty"`
	ScheduleEndpoint   string  `json:"scheduleEndpoint,omitempty" yaml:"scheduleEndpoint,omitempty"`
}

// IncomePolicy is the payment-to-income rule.
type IncomePolicy struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	DocumentID string  `json:"documentId,omitempty" yaml:"documentId,omitempty"`
}

// Metadata holds thresholds and sub-policies for a rule set.
type Metadata struct {
	OCRThreshold float64           `json:"ocrThreshold" yaml:"ocrThreshold"`
	ExpiryRules  map[string]string `json:"expiryRules,omitempty" yaml:"expiryRules,omitempty"`
	Protection   *ProtectionPolicy `json:"protection,omitempty" yaml:"protection,omitempty"`
	Tanda        *TandaRules       `json:"tanda,omitempty" yaml:"tanda,omitempty"`
	Income       *IncomePolicy     `json:"income,omitempty" yaml:"income,omitempty"`
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	out := Metadata{
		OCRThreshold: m.OCRThreshold,
		ExpiryRules:  maps.Clone(m.ExpiryRules),
	}
	if m.Protection != nil {
		p := *m.Protection
		p.CoverageOptions = slices.Clone(m.Protection.CoverageOptions)
		out.Protection = &p
	}
	if m.Tanda != nil {
		t := *m.Tanda
		out.Tanda = &t
	}
	if m.Income != nil {
		i := *m.Income
		out.Income = &i
	}
	return out
}

// Result is the derived rule set for a Context.
type Result struct {
	Documents []Document `json:"documents" yaml:"documents"`
	Metadata  Metadata   `json:"metadata" yaml:"metadata"`
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	return Result{
		Documents: slices.Clone(r.Documents),
		Metadata:  r.Metadata.Clone(),
	}
}

// ConfigEntry installs static data for one rule set.
type ConfigEntry struct {
	Market     string     `json:"market" yaml:"market"`
	ClientType string     `json:"clientType" yaml:"clientType"`
	Documents  []Document `json:"documents" yaml:"documents"`
	Metadata   Metadata   `json:"metadata" yaml:"metadata"`
}

// RemoteEntry is one value of a RemoteConfig.
type RemoteEntry struct {
	Documents []Document `json:"documents" yaml:"documents"`
	Metadata  Metadata   `json:"metadata" yaml:"metadata"`
}

// RemoteConfig is the externally managed rule table keyed by market alias.
type RemoteConfig map[string]RemoteEntry

// Clone returns a deep copy of c.
func (c RemoteConfig) Clone() RemoteConfig {
	if c == nil {
		return nil
	}
	out := make(RemoteConfig, len(c))
	for k, e := range c {
		out[k] = RemoteEntry{
			Documents: slices.Clone(e.Documents),
			Metadata:  e.Metadata.Clone(),
		}
	}
	return out
}

// Ptr returns a pointer to v. Handy for optional Context fields.
func Ptr[T any](v T) *T {
	return &v
}
