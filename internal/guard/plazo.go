package guard

import (
	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
)

const (
	redirectQuote = "/cotizador"

	msgPaymentPlan = "Ajusta el plan de pagos antes de continuar."
	msgIncomeProof = "Reduce el pago mensual (enganche/plazo) o adjunta comprobante de ingresos antes de continuar."
)

// Plazo checks that a financed sale's monthly payment is affordable or
// backed by an approved proof of income.
type Plazo struct{}

func (Plazo) Name() string { return "plazo" }

func (Plazo) Evaluate(env Env, _ string) Decision {
	stored, ok := load[DocumentsSnapshot](env, KeyDocuments)
	if !ok {
		return Allow()
	}
	pc, ok := resolvePolicyContext(stored, model.FlowVentaPlazo)
	if !ok || pc.SaleType != policy.SaleFinanciero {
		return Allow()
	}

	if !plazoIncomeRequired(stored, pc) {
		return Allow()
	}
	if incomeDocumentApproved(env, stored.Documents, pc) {
		return Allow()
	}
	if pc.RequiresIncomeProof != nil {
		return Block(redirectQuote, ReasonIncomeProof, msgPaymentPlan)
	}
	return Block(redirectQuote, ReasonIncomeProof, msgIncomeProof)
}

// plazoIncomeRequired is true for an explicit requirement, or when a known
// payment exceeds a known threshold.
func plazoIncomeRequired(s DocumentsSnapshot, pc policy.Context) bool {
	if pc.RequiresIncomeProof != nil {
		return *pc.RequiresIncomeProof
	}
	pay, okPay := monthlyPayment(s)
	limit, okLimit := plazoIncomeThreshold(s)
	if !okPay || !okLimit {
		return false
	}
	return pay > limit
}

// plazoIncomeThreshold reads the peso threshold captured by the quote, from
// the flow first and then from the quotation itself.
func plazoIncomeThreshold(s DocumentsSnapshot) (float64, bool) {
	f := s.FlowContext
	if f == nil {
		return 0, false
	}
	if v, ok := finite(f.IncomeThreshold); ok {
		return v, true
	}
	if q := f.QuotationData; q != nil {
		return firstFinite(q.IncomeThreshold, q.RequiredIncomeThreshold)
	}
	return 0, false
}
