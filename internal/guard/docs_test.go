package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
)

func registerAB(repo *policy.Repository) policy.Context {
	repo.RegisterFromConfig(policy.ConfigEntry{
		Market:     "test",
		ClientType: policy.ClientIndividual,
		Documents:  []policy.Document{{ID: "A", Label: "A"}, {ID: "B", Label: "B"}, {ID: "C", Label: "C", Optional: true}},
	})
	return policy.Context{Market: "test", ClientType: policy.ClientIndividual, SaleType: policy.SaleContado}
}

func TestDocsCompleted_RequiredDocuments(t *testing.T) {
	env, repo := newEnv(t)
	pc := registerAB(repo)

	env.Flow.Save(KeyDocuments, DocumentsSnapshot{
		PolicyContext: &pc,
		Documents:     []model.Document{doc("A", model.DocumentApproved), doc("B", model.DocumentPending)},
	})
	d := DocsCompleted{}.Evaluate(env, "/onboarding/kyc")
	assert.False(t, d.Allowed)
	assert.Equal(t, "/onboarding?redirectTo=%2Fonboarding%2Fkyc", d.Redirect)
	assert.Equal(t, ReasonDocumentsPending, d.Reason)
	assert.Equal(t, msgDocumentsPending, d.Message)

	env.Flow.Save(KeyDocuments, DocumentsSnapshot{
		PolicyContext: &pc,
		Documents:     []model.Document{doc("A", model.DocumentApproved), doc("B", model.DocumentApproved)},
	})
	assert.True(t, DocsCompleted{}.Evaluate(env, "/onboarding/kyc").Allowed)
}

func TestDocsCompleted_LooseSnapshot(t *testing.T) {
	env, repo := newEnv(t)
	registerAB(repo)

	// Written by another consumer as plain JSON-shaped maps.
	env.Flow.Save(KeyDocuments, map[string]any{
		"flowContext": map[string]any{"market": "test", "clientType": "individual"},
		"documents": []any{
			map[string]any{"id": "A", "status": "Aprobado"},
			map[string]any{"id": "b", "status": "Aprobado"},
		},
	})
	assert.True(t, DocsCompleted{}.Evaluate(env, "").Allowed)
}

func TestDocsCompleted_IncomeProof(t *testing.T) {
	env, _ := newEnv(t)
	pc := policy.Context{Market: policy.MarketAguascalientes, ClientType: policy.ClientIndividual, SaleType: policy.SaleFinanciero}
	flow := &FlowSnapshot{MonthlyPayment: policy.Ptr(8000.0), IncomeThreshold: policy.Ptr(6000.0)}

	snapshot := DocumentsSnapshot{
		PolicyContext:    &pc,
		FlowContext:      flow,
		CompletionStatus: &CompletionStatus{AllComplete: true},
		Documents:        []model.Document{doc("doc-ine", model.DocumentApproved), doc("doc-income", model.DocumentPending)},
	}
	env.Flow.Save(KeyDocuments, snapshot)

	d := DocsCompleted{}.Evaluate(env, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonIncomeProof, d.Reason)

	snapshot.Documents[1].Status = model.DocumentApproved
	env.Flow.Save(KeyDocuments, snapshot)
	assert.True(t, DocsCompleted{}.Evaluate(env, "").Allowed)

	// Without the income rule the generic completion flag decides.
	snapshot.Documents[1].Status = model.DocumentPending
	snapshot.FlowContext = &FlowSnapshot{RequiresIncomeProof: policy.Ptr(false)}
	env.Flow.Save(KeyDocuments, snapshot)
	assert.True(t, DocsCompleted{}.Evaluate(env, "").Allowed)

	snapshot.CompletionStatus.AllComplete = false
	env.Flow.Save(KeyDocuments, snapshot)
	assert.False(t, DocsCompleted{}.Evaluate(env, "").Allowed)
}

func TestDocsCompleted_WizardFallback(t *testing.T) {
	tests := []struct {
		name    string
		wizard  any
		allowed bool
	}{
		{"no wizard", nil, false},
		{"early step", WizardSnapshot{CurrentStep: "kyc"}, false},
		{"contracts step", WizardSnapshot{CurrentStep: "contracts"}, true},
		{"completed step", WizardSnapshot{CurrentStep: "completed"}, true},
		{"unknown step", WizardSnapshot{CurrentStep: "launch"}, false},
		{"step index", map[string]any{"currentStepIndex": 4}, true},
		{"low index", map[string]any{"currentStepIndex": 2}, false},
		{"nested completion", map[string]any{"documents": map[string]any{"completionStatus": map[string]any{"allComplete": true}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := newEnv(t)
			if tt.wizard != nil {
				env.Flow.Save(KeyWizard, tt.wizard)
			}
			assert.Equal(t, tt.allowed, DocsCompleted{}.Evaluate(env, "").Allowed)
		})
	}
}

func TestDocsCompleted_WizardRescuesIncompleteDocuments(t *testing.T) {
	env, repo := newEnv(t)
	pc := registerAB(repo)
	env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: &pc, Documents: []model.Document{doc("A", model.DocumentPending)}})
	env.Flow.Save(KeyWizard, WizardSnapshot{CurrentStep: "contracts"})

	assert.True(t, DocsCompleted{}.Evaluate(env, "").Allowed)
}

func TestPlazo(t *testing.T) {
	financed := policy.Context{Market: policy.MarketAguascalientes, ClientType: policy.ClientIndividual, SaleType: policy.SaleFinanciero}
	cash := financed
	cash.SaleType = policy.SaleContado
	explicitNo := financed
	explicitNo.RequiresIncomeProof = policy.Ptr(false)
	explicitYes := financed
	explicitYes.RequiresIncomeProof = policy.Ptr(true)

	overThreshold := &FlowSnapshot{MonthlyPayment: policy.Ptr(8000.0), IncomeThreshold: policy.Ptr(6000.0)}
	underThreshold := &FlowSnapshot{MonthlyPayment: policy.Ptr(5000.0), IncomeThreshold: policy.Ptr(6000.0)}
	approvedIncome := []model.Document{doc("doc-income", model.DocumentApproved)}

	tests := []struct {
		name        string
		snapshot    *DocumentsSnapshot
		allowed     bool
		wantMessage string
	}{
		{name: "no snapshot", allowed: true},
		{name: "no policy context", snapshot: &DocumentsSnapshot{FlowContext: overThreshold}, allowed: true},
		{name: "contado", snapshot: &DocumentsSnapshot{PolicyContext: &cash, FlowContext: overThreshold}, allowed: true},
		{
			name:        "over threshold without proof",
			snapshot:    &DocumentsSnapshot{PolicyContext: &financed, FlowContext: overThreshold},
			wantMessage: msgIncomeProof,
		},
		{
			name:     "over threshold with approved proof",
			snapshot: &DocumentsSnapshot{PolicyContext: &financed, FlowContext: overThreshold, Documents: approvedIncome},
			allowed:  true,
		},
		{name: "under threshold", snapshot: &DocumentsSnapshot{PolicyContext: &financed, FlowContext: underThreshold}, allowed: true},
		{name: "explicitly not required", snapshot: &DocumentsSnapshot{PolicyContext: &explicitNo, FlowContext: overThreshold}, allowed: true},
		{
			name:        "explicitly required",
			snapshot:    &DocumentsSnapshot{PolicyContext: &explicitYes, FlowContext: underThreshold},
			wantMessage: msgPaymentPlan,
		},
		{
			name: "quotation values",
			snapshot: &DocumentsSnapshot{PolicyContext: &financed, FlowContext: &FlowSnapshot{
				QuotationData: &QuotationData{PMT: policy.Ptr(9000.0), RequiredIncomeThreshold: policy.Ptr(7000.0)},
			}},
			wantMessage: msgIncomeProof,
		},
		{
			name:     "payment known without threshold",
			snapshot: &DocumentsSnapshot{PolicyContext: &financed, FlowContext: &FlowSnapshot{MonthlyPayment: policy.Ptr(3000.0)}},
			allowed:  true,
		},
		{
			name: "ratio is not a peso threshold",
			snapshot: &DocumentsSnapshot{
				PolicyContext: &policy.Context{Market: policy.MarketEdomex, ClientType: policy.ClientIndividual, SaleType: policy.SaleFinanciero, IncomeThresholdRatio: policy.Ptr(0.5)},
				FlowContext:   &FlowSnapshot{MonthlyPayment: policy.Ptr(4000.0)},
			},
			allowed: true,
		},
		{
			name: "payment unknown",
			snapshot: &DocumentsSnapshot{
				PolicyContext: &policy.Context{Market: "otros", ClientType: policy.ClientIndividual, SaleType: policy.SaleFinanciero},
			},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := newEnv(t)
			if tt.snapshot != nil {
				env.Flow.Save(KeyDocuments, *tt.snapshot)
			}
			d := Plazo{}.Evaluate(env, "/contratos")
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, redirectQuote, d.Redirect)
				assert.Equal(t, tt.wantMessage, d.Message)
				assert.Equal(t, ReasonIncomeProof, d.Reason)
			}
		})
	}
}

func TestIncomeThreshold_Precedence(t *testing.T) {
	env, _ := newEnv(t)
	pc := policy.Context{Market: policy.MarketAguascalientes, ClientType: policy.ClientIndividual}

	s := DocumentsSnapshot{FlowContext: &FlowSnapshot{
		MonthlyPayment:  policy.Ptr(1000.0),
		IncomeThreshold: policy.Ptr(200.0),
		QuotationData:   &QuotationData{IncomeThreshold: policy.Ptr(300.0)},
	}}

	explicit := pc
	explicit.IncomeThreshold = policy.Ptr(100.0)
	v, ok := incomeThreshold(env, s, explicit)
	assert.True(t, ok)
	assert.InDelta(t, 100, v, 1e-9)

	v, _ = incomeThreshold(env, s, pc)
	assert.InDelta(t, 200, v, 1e-9)

	s.FlowContext.IncomeThreshold = nil
	v, _ = incomeThreshold(env, s, pc)
	assert.InDelta(t, 300, v, 1e-9)

	s.FlowContext.QuotationData = nil
	ratio := pc
	ratio.IncomeThresholdRatio = policy.Ptr(0.5)
	v, _ = incomeThreshold(env, s, ratio)
	assert.InDelta(t, 500, v, 1e-9)

	v, ok = incomeThreshold(env, s, pc)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-9)

	_, ok = incomeThreshold(Env{}, s, pc)
	assert.False(t, ok)
}

func TestProtectionRequired(t *testing.T) {
	colectivo := policy.Context{Market: policy.MarketEdomex, ClientType: policy.ClientColectivo, SaleType: policy.SaleFinanciero}
	individual := policy.Context{Market: policy.MarketAguascalientes, ClientType: policy.ClientIndividual, SaleType: policy.SaleFinanciero}

	tests := []struct {
		name    string
		setup   func(env Env)
		allowed bool
	}{
		{"no context", func(Env) {}, true},
		{"not required", func(env Env) {
			env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: &individual})
		}, true},
		{"required and missing", func(env Env) {
			env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: &colectivo})
		}, false},
		{"required and not applied", func(env Env) {
			env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: &colectivo})
			env.Flow.Save(KeyProtection, map[string]any{"applied": false})
		}, false},
		{"applied", func(env Env) {
			env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: &colectivo})
			env.Flow.Save(KeyProtection, map[string]any{"applied": true})
		}, true},
		{"applied under legacy key", func(env Env) {
			env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: &colectivo})
			env.Flow.Save(KeyProtectionLegacy, map[string]any{"state": map[string]any{"applied": true}})
		}, true},
		{"quote context", func(env Env) {
			env.Flow.Save(KeyQuote, QuoteSnapshot{PolicyContext: &colectivo})
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := newEnv(t)
			tt.setup(env)
			d := ProtectionRequired{}.Evaluate(env, "/contratos")
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, redirectProtection, d.Redirect)
				assert.Equal(t, ReasonProtectionPending, d.Reason)
			}
		})
	}
}
