package guard

import (
	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
)

const msgProtectionRequired = "Aplica la protección de pagos requerida por la política antes de continuar."

// ProtectionRequired clears when the case's policy does not require payment
// protection, or when protection was applied.
type ProtectionRequired struct{}

func (ProtectionRequired) Name() string { return "protection-required" }

func (ProtectionRequired) Evaluate(env Env, _ string) Decision {
	pc, ok := protectionPolicyContext(env)
	if !ok || env.Policies == nil || !env.Policies.RequiresProtection(pc) {
		return Allow()
	}

	for _, key := range []string{KeyProtection, KeyProtectionLegacy} {
		if p, found := load[ProtectionSnapshot](env, key); found && p.applied() {
			return Allow()
		}
	}
	return Block(redirectProtection, ReasonProtectionPending, msgProtectionRequired)
}

func protectionPolicyContext(env Env) (policy.Context, bool) {
	if stored, ok := load[DocumentsSnapshot](env, KeyDocuments); ok {
		if pc, ok := resolvePolicyContext(stored, model.FlowVentaPlazo); ok {
			return pc, true
		}
	}
	if q, ok := load[QuoteSnapshot](env, KeyQuote); ok && q.PolicyContext != nil {
		return *q.PolicyContext, true
	}
	return policy.Context{}, false
}
