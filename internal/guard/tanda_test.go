package guard

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
	"github.com/conductores/onboarding-engine/internal/tanda"
)

func registerTandaRules(repo *policy.Repository, rules *policy.TandaRules) {
	repo.RegisterFromConfig(policy.ConfigEntry{
		Market:     policy.MarketEdomex,
		ClientType: policy.ClientColectivo,
		Documents:  []policy.Document{{ID: "doc-consent", Label: "Consentimiento"}},
		Metadata:   policy.Metadata{OCRThreshold: 0.8, Tanda: rules},
	})
}

func memberDocs(members int) []model.Document {
	docs := []model.Document{doc("doc-consent", model.DocumentApproved)}
	for i := 1; i <= members; i++ {
		docs = append(docs,
			doc(fmt.Sprintf("doc-ine-%d", i), model.DocumentApproved),
			doc(fmt.Sprintf("doc-rfc-%d", i), model.DocumentApproved),
		)
	}
	return docs
}

func readyTandaState(members int) tanda.State {
	return tanda.State{
		ValidationID:       "validation-1",
		Status:             "success",
		Config:             tanda.StateConfig{Members: members},
		Schedule:           []tanda.ScheduleEntry{{}},
		LastRosterUploadID: "roster-1",
	}
}

func colectivoContext(size *int) *policy.Context {
	return &policy.Context{
		Market:         policy.MarketEdomex,
		ClientType:     policy.ClientColectivo,
		SaleType:       policy.SaleFinanciero,
		CollectiveSize: size,
	}
}

func TestTandaValid_Fixture(t *testing.T) {
	env, repo := newEnv(t)
	registerTandaRules(repo, &policy.TandaRules{MinMembers: 5, MaxMembers: 18})

	env.Flow.Save(KeyDocuments, DocumentsSnapshot{
		PolicyContext: colectivoContext(policy.Ptr(5)),
		Documents:     memberDocs(5),
	})
	env.Flow.Save(tanda.ContextKey, readyTandaState(5))

	assert.True(t, TandaValid{}.Evaluate(env, "/contratos").Allowed)
}

func TestTandaValid_MemberBounds(t *testing.T) {
	env, repo := newEnv(t)
	registerTandaRules(repo, &policy.TandaRules{MinMembers: 5, MaxMembers: 18})

	env.Flow.Save(KeyDocuments, DocumentsSnapshot{
		PolicyContext: colectivoContext(policy.Ptr(5)),
		FlowContext:   &FlowSnapshot{CollectiveMembers: policy.Ptr(25)},
		Documents:     memberDocs(25),
	})
	d := TandaValid{}.Evaluate(env, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, redirectTanda, d.Redirect)
	assert.Equal(t, ReasonTandaMemberBounds, d.Reason)
	assert.Equal(t, "La tanda permite máximo 18 integrantes.", d.Message)

	env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: colectivoContext(policy.Ptr(3))})
	d = TandaValid{}.Evaluate(env, "")
	assert.Equal(t, "La tanda requiere al menos 5 integrantes.", d.Message)
}

func TestTandaValid_Checks(t *testing.T) {
	pendingINE := memberDocs(5)
	pendingINE[5].Status = model.DocumentInReview // doc-ine-3

	noConsent := memberDocs(5)[1:]

	withState := func(mutate func(*tanda.State)) *tanda.State {
		st := readyTandaState(5)
		mutate(&st)
		return &st
	}

	tests := []struct {
		name       string
		size       *int
		docs       []model.Document
		state      *tanda.State
		wantReason Reason
		wantMsg    string
	}{
		{"members unknown", nil, memberDocs(5), withState(func(*tanda.State) {}), ReasonTandaMembersUnknown, msgTandaMembersUnknown},
		{"consent pending", policy.Ptr(5), noConsent, withState(func(*tanda.State) {}), ReasonTandaDocuments, msgTandaConsent},
		{"member INE pending", policy.Ptr(5), pendingINE, withState(func(*tanda.State) {}), ReasonTandaDocuments, "El INE del integrante 3 aún no está aprobado."},
		{"not validated", policy.Ptr(5), memberDocs(5), nil, ReasonTandaNotValidated, msgTandaNotValidated},
		{"members changed", policy.Ptr(5), memberDocs(5), withState(func(s *tanda.State) { s.Config.Members = 6 }), ReasonTandaStale, msgTandaStale},
		{"error", policy.Ptr(5), memberDocs(5), withState(func(s *tanda.State) { s.Status = model.ValidationError }), ReasonTandaRejected, msgTandaRejected},
		{"review", policy.Ptr(5), memberDocs(5), withState(func(s *tanda.State) { s.Status = model.ValidationReview }), ReasonTandaReview, msgTandaReview},
		{"no schedule", policy.Ptr(5), memberDocs(5), withState(func(s *tanda.State) { s.Schedule = nil }), ReasonTandaSchedule, msgTandaSchedule},
		{"no roster", policy.Ptr(5), memberDocs(5), withState(func(s *tanda.State) { s.LastRosterUploadID = "" }), ReasonTandaRoster, msgTandaRoster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, repo := newEnv(t)
			registerTandaRules(repo, &policy.TandaRules{MinMembers: 5, MaxMembers: 18})
			env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: colectivoContext(tt.size), Documents: tt.docs})
			if tt.state != nil {
				env.Flow.Save(tanda.ContextKey, *tt.state)
			}

			d := TandaValid{}.Evaluate(env, "")
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantMsg, d.Message)
			assert.Equal(t, redirectTanda, d.Redirect)
		})
	}
}

func TestTandaValid_NotApplicable(t *testing.T) {
	t.Run("other market", func(t *testing.T) {
		env, _ := newEnv(t)
		env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: &policy.Context{
			Market: policy.MarketAguascalientes, ClientType: policy.ClientIndividual,
		}})
		assert.True(t, TandaValid{}.Evaluate(env, "").Allowed)
	})

	t.Run("no documents snapshot", func(t *testing.T) {
		env, _ := newEnv(t)
		assert.True(t, TandaValid{}.Evaluate(env, "").Allowed)
	})

	t.Run("no tanda rules", func(t *testing.T) {
		env, repo := newEnv(t)
		registerTandaRules(repo, nil)
		env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: colectivoContext(policy.Ptr(40))})
		assert.True(t, TandaValid{}.Evaluate(env, "").Allowed)
	})
}

func TestTandaValid_CaseRulesOverrideRepository(t *testing.T) {
	env, _ := newEnv(t)
	pc := colectivoContext(policy.Ptr(5))
	pc.Metadata = &policy.ContextMetadata{Tanda: &policy.TandaRules{MinMembers: 2, MaxMembers: 3}}
	env.Flow.Save(KeyDocuments, DocumentsSnapshot{PolicyContext: pc})

	d := TandaValid{}.Evaluate(env, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, "La tanda permite máximo 3 integrantes.", d.Message)
}

func TestTandaValid_FlowSnapshotDefaults(t *testing.T) {
	env, repo := newEnv(t)
	registerTandaRules(repo, &policy.TandaRules{MinMembers: 5, MaxMembers: 18})
	env.Flow.Save(KeyDocuments, DocumentsSnapshot{
		FlowContext: &FlowSnapshot{Market: "edomex", ClientType: "colectivo", CollectiveMembers: policy.Ptr(5)},
		Documents:   memberDocs(5),
	})
	env.Flow.Save(tanda.ContextKey, readyTandaState(5))

	assert.True(t, TandaValid{}.Evaluate(env, "").Allowed)

	pc, ok := resolvePolicyContext(DocumentsSnapshot{FlowContext: &FlowSnapshot{Market: "edomex", ClientType: "colectivo"}}, model.FlowCreditoColectivo)
	assert.True(t, ok)
	assert.Equal(t, policy.SaleFinanciero, pc.SaleType)
	assert.Equal(t, model.FlowCreditoColectivo, pc.BusinessFlow)
}

func TestTandaValid_UnreadableSnapshotBlocks(t *testing.T) {
	env, repo := newEnv(t)
	registerTandaRules(repo, &policy.TandaRules{MinMembers: 5, MaxMembers: 18})

	env.Flow.Save(KeyDocuments, json.RawMessage(`{
		"policyContext": {"market": "edomex", "clientType": "colectivo", "saleType": "financiero"},
		"flowContext": {"collectiveMembers": "25"}
	}`))
	d := TandaValid{}.Evaluate(env, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, redirectTanda, d.Redirect)
	assert.Equal(t, ReasonTandaMembersUnknown, d.Reason)
	assert.Equal(t, msgTandaMembersUnknown, d.Message)

	env.Flow.Save(KeyDocuments, json.RawMessage(`{
		"policyContext": {"market": "ags", "clientType": "individual"},
		"flowContext": {"collectiveMembers": "25"}
	}`))
	assert.True(t, TandaValid{}.Evaluate(env, "").Allowed)
}
