package guard

import (
	"math"
	"net/url"
	"strings"

	"github.com/conductores/onboarding-engine/internal/flowctx"
	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
)

const defaultIncomeDocumentID = "doc-income"

func load[T any](env Env, key string) (T, bool) {
	var zero T
	if env.Flow == nil {
		return zero, false
	}
	return flowctx.Load[T](env.Flow, key)
}

// lookup is load with decode failures reported, for guards that must not
// read a malformed snapshot as a missing one.
func lookup[T any](env Env, key string) (T, bool, error) {
	var zero T
	if env.Flow == nil {
		return zero, false, nil
	}
	return flowctx.Lookup[T](env.Flow, key)
}

// snapshotScope is the part of a documents snapshot that selects a rule set.
// It decodes from snapshots whose other fields are malformed.
type snapshotScope struct {
	PolicyContext *struct {
		Market     string `json:"market"`
		ClientType string `json:"clientType"`
	} `json:"policyContext"`
	FlowContext *struct {
		Market     string `json:"market"`
		ClientType string `json:"clientType"`
	} `json:"flowContext"`
}

func (s snapshotScope) is(market, clientType string) bool {
	if p := s.PolicyContext; p != nil && p.Market != "" {
		return p.Market == market && p.ClientType == clientType
	}
	if f := s.FlowContext; f != nil {
		return f.Market == market && f.ClientType == clientType
	}
	return false
}

// resolvePolicyContext prefers the stored policy context and otherwise
// rebuilds a minimal one from the loose flow snapshot.
func resolvePolicyContext(s DocumentsSnapshot, defaultFlow model.BusinessFlow) (policy.Context, bool) {
	if s.PolicyContext != nil {
		return *s.PolicyContext, true
	}

	f := s.FlowContext
	if f == nil || f.Market == "" || f.ClientType == "" {
		return policy.Context{}, false
	}

	pc := policy.Context{
		Market:               f.Market,
		ClientType:           f.ClientType,
		SaleType:             f.SaleType,
		BusinessFlow:         f.BusinessFlow,
		RequiresIncomeProof:  f.RequiresIncomeProof,
		CollectiveSize:       f.CollectiveMembers,
		IncomeThreshold:      f.IncomeThreshold,
		IncomeThresholdRatio: f.IncomeThresholdRatio,
	}
	if pc.SaleType == "" {
		pc.SaleType = policy.SaleFinanciero
	}
	if pc.BusinessFlow == "" {
		pc.BusinessFlow = defaultFlow
	}
	return pc, true
}

func finite(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

func firstFinite(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if f, ok := finite(v); ok {
			return f, true
		}
	}
	return 0, false
}

func monthlyPayment(s DocumentsSnapshot) (float64, bool) {
	f := s.FlowContext
	if f == nil {
		return 0, false
	}
	if v, ok := finite(f.MonthlyPayment); ok {
		return v, true
	}
	if q := f.QuotationData; q != nil {
		return firstFinite(q.MonthlyPayment, q.PMT, q.SumPMT)
	}
	return 0, false
}

// incomeThreshold applies the precedence explicit context threshold, flow
// threshold, quotation threshold, ratio × payment, then the policy default.
func incomeThreshold(env Env, s DocumentsSnapshot, pc policy.Context) (float64, bool) {
	if v, ok := finite(pc.IncomeThreshold); ok {
		return v, true
	}
	if f := s.FlowContext; f != nil {
		if v, ok := finite(f.IncomeThreshold); ok {
			return v, true
		}
		if q := f.QuotationData; q != nil {
			if v, ok := firstFinite(q.IncomeThreshold, q.RequiredIncomeThreshold); ok {
				return v, true
			}
		}
	}
	if ratio, ok := finite(pc.IncomeThresholdRatio); ok && ratio > 0 {
		if pay, ok := monthlyPayment(s); ok {
			return pay * ratio, true
		}
	}
	if env.Policies != nil {
		if v, ok := env.Policies.IncomeThreshold(pc); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, true
		}
	}
	return 0, false
}

// incomeProofRequired reports whether the case must show proof of income.
// Explicit flags win; otherwise the payment is compared with the threshold.
func incomeProofRequired(env Env, s DocumentsSnapshot, pc policy.Context) bool {
	if pc.RequiresIncomeProof != nil {
		return *pc.RequiresIncomeProof
	}
	if f := s.FlowContext; f != nil && f.RequiresIncomeProof != nil {
		return *f.RequiresIncomeProof
	}
	pay, okPay := monthlyPayment(s)
	limit, okLimit := incomeThreshold(env, s, pc)
	if !okPay || !okLimit {
		return false
	}
	return pay > limit
}

func incomeDocumentApproved(env Env, docs []model.Document, pc policy.Context) bool {
	id := defaultIncomeDocumentID
	if env.Policies != nil {
		if configured, ok := env.Policies.IncomeDocumentID(pc); ok {
			id = configured
		}
	}
	return model.IsApproved(docs, id)
}

// onboardingRedirect builds the wizard URL that resumes at target.
func onboardingRedirect(target string) string {
	if target == "" {
		target = "/onboarding/contracts"
	}
	return "/onboarding?redirectTo=" + strings.ReplaceAll(url.QueryEscape(target), "+", "%20")
}
