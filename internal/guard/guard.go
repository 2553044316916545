// Package guard decides whether a case may advance to the next onboarding
// stage. Each guard is a pure evaluation over the flow context and the
// policy repository that yields an allow or a redirect with a message; the
// Enforcer performs the side effects of a blocked decision.
package guard

import (
	"time"

	"github.com/conductores/onboarding-engine/internal/flowctx"
	"github.com/conductores/onboarding-engine/internal/policy"
)

// DefaultStaleAfter is how old a contract snapshot may get before guards
// stop trusting it.
const DefaultStaleAfter = 24 * time.Hour

// Reason is a machine readable cause for a blocked decision.
type Reason string

const (
	ReasonDocumentsPending    Reason = "documents-pending"
	ReasonIncomeProof         Reason = "income-proof"
	ReasonMissingContext      Reason = "missing-context"
	ReasonMissingClient       Reason = "missing-client"
	ReasonMissingContract     Reason = "missing-contract"
	ReasonOfflinePending      Reason = "offline-pending"
	ReasonVoicePending        Reason = "voice-pending"
	ReasonProtectionPending   Reason = "protection-pending"
	ReasonAVIRejected         Reason = "avi-rejected"
	ReasonStaleContext        Reason = "stale-context"
	ReasonTandaMembersUnknown Reason = "tanda-members-unknown"
	ReasonTandaMemberBounds   Reason = "tanda-member-bounds"
	ReasonTandaDocuments      Reason = "tanda-documents"
	ReasonTandaNotValidated   Reason = "tanda-not-validated"
	ReasonTandaStale          Reason = "tanda-stale"
	ReasonTandaRejected       Reason = "tanda-rejected"
	ReasonTandaReview         Reason = "tanda-review"
	ReasonTandaSchedule       Reason = "tanda-schedule"
	ReasonTandaRoster         Reason = "tanda-roster"
	ReasonDeliveryPending     Reason = "delivery-pending"
)

// Decision is the outcome of one guard.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Guard    string `json:"guard,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
	Reason   Reason `json:"reason,omitempty"`
}

// Allow clears the transition.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Block stops the transition and sends the user to redirect.
func Block(redirect string, reason Reason, message string) Decision {
	return Decision{Redirect: redirect, Reason: reason, Message: message}
}

// Policies is the part of the policy repository guards read.
type Policies interface {
	RequiredDocs(c policy.Context) []policy.Document
	RequiresProtection(c policy.Context) bool
	TandaRules(c policy.Context) *policy.TandaRules
	IncomeThreshold(c policy.Context) (float64, bool)
	IncomeDocumentID(c policy.Context) (string, bool)
}

// Observer counts guard decisions.
type Observer interface {
	ObserveGuardDecision(guard string, allowed bool)
}

// Env is what guards evaluate against.
type Env struct {
	Flow     *flowctx.Store
	Policies Policies
	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration
	// Now defaults to time.Now.
	Now      func() time.Time
	Observer Observer
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) staleAfter() time.Duration {
	if e.StaleAfter > 0 {
		return e.StaleAfter
	}
	return DefaultStaleAfter
}

// Guard gates one stage transition. Evaluate never panics on missing or
// malformed context; target is the URL the user is trying to reach.
type Guard interface {
	Name() string
	Evaluate(env Env, target string) Decision
}

// Evaluate runs g, stamps the decision with the guard name and reports it
// to env.Observer.
func Evaluate(env Env, g Guard, target string) Decision {
	d := g.Evaluate(env, target)
	d.Guard = g.Name()
	if env.Observer != nil {
		env.Observer.ObserveGuardDecision(d.Guard, d.Allowed)
	}
	return d
}
