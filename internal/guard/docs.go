package guard

import (
	"slices"

	"github.com/conductores/onboarding-engine/internal/model"
)

const msgDocumentsPending = "Completa los documentos requeridos antes de continuar"

// DocsCompleted clears once the policy's required documents are approved.
// Without a usable documents snapshot it falls back to the onboarding
// wizard's progress.
type DocsCompleted struct{}

func (DocsCompleted) Name() string { return "docs-completed" }

func (DocsCompleted) Evaluate(env Env, target string) Decision {
	reason := ReasonDocumentsPending
	if stored, ok := load[DocumentsSnapshot](env, KeyDocuments); ok {
		var cleared bool
		if cleared, reason = documentClearance(env, stored); cleared {
			return Allow()
		}
	}
	if wizardClearance(env) {
		return Allow()
	}
	return Block(onboardingRedirect(target), reason, msgDocumentsPending)
}

func documentClearance(env Env, s DocumentsSnapshot) (bool, Reason) {
	pc, hasPolicy := resolvePolicyContext(s, model.FlowVentaPlazo)

	if hasPolicy && len(s.Documents) > 0 && env.Policies != nil {
		required := env.Policies.RequiredDocs(pc)
		if len(required) > 0 {
			complete := true
			for _, d := range required {
				if !model.IsApproved(s.Documents, d.ID) {
					complete = false
					break
				}
			}
			if complete {
				return true, ""
			}
		}
	}

	if hasPolicy && incomeProofRequired(env, s, pc) && !incomeDocumentApproved(env, s.Documents, pc) {
		return false, ReasonIncomeProof
	}

	if s.CompletionStatus != nil && s.CompletionStatus.AllComplete {
		return true, ""
	}
	return false, ReasonDocumentsPending
}

func wizardClearance(env Env) bool {
	w, ok := load[WizardSnapshot](env, KeyWizard)
	if !ok {
		return false
	}
	if w.CurrentStepIndex != nil && *w.CurrentStepIndex >= contractsStepIndex {
		return true
	}
	if w.CurrentStep != "" && slices.Index(wizardSteps, w.CurrentStep) >= contractsStepIndex {
		return true
	}
	return w.Documents != nil && w.Documents.CompletionStatus != nil && w.Documents.CompletionStatus.AllComplete
}
