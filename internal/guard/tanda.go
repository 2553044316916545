package guard

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
	"github.com/conductores/onboarding-engine/internal/tanda"
)

const (
	redirectTanda = "/cotizador/edomex-colectivo"

	msgTandaMembersUnknown = "Captura el número de integrantes de la Tanda antes de continuar."
	msgTandaConsent        = "La carta de consentimiento colectivo debe estar aprobada."
	msgTandaNotValidated   = "Valida la tanda y genera su cronograma antes de continuar."
	msgTandaStale          = "Actualiza la validación de tanda después de modificar el número de integrantes."
	msgTandaRejected       = "La validación de tanda falló. Ajusta los parámetros y vuelve a intentarlo."
	msgTandaReview         = "La tanda está en revisión. Captura la evidencia requerida antes de continuar."
	msgTandaSchedule       = "Genera el cronograma oficial de la tanda antes de continuar."
	msgTandaRoster         = "Sincroniza el roster de integrantes con los documentos aprobados antes de continuar."
)

// TandaValid gates collective cases in Estado de México: the group size
// must be within the policy bounds, every member document approved, and a
// current validation with schedule and roster upload recorded.
type TandaValid struct{}

func (TandaValid) Name() string { return "tanda-valid" }

func (TandaValid) Evaluate(env Env, _ string) Decision {
	stored, ok, err := lookup[DocumentsSnapshot](env, KeyDocuments)
	if err != nil {
		scope, _ := load[snapshotScope](env, KeyDocuments)
		if !scope.is(policy.MarketEdomex, policy.ClientColectivo) {
			return Allow()
		}
		zap.L().Warn("guard: unreadable documents snapshot", zap.Error(err))
		return Block(redirectTanda, ReasonTandaMembersUnknown, msgTandaMembersUnknown)
	}
	if !ok {
		return Allow()
	}
	pc, ok := resolvePolicyContext(stored, model.FlowCreditoColectivo)
	if !ok || pc.Market != policy.MarketEdomex || pc.ClientType != policy.ClientColectivo {
		return Allow()
	}

	rules := tandaRules(env, pc)
	if rules == nil {
		zap.L().Warn("guard: no tanda rules registered, skipping member checks",
			zap.String("market", pc.Market),
			zap.String("client_type", pc.ClientType),
		)
		return Allow()
	}

	var members *int
	if stored.FlowContext != nil && stored.FlowContext.CollectiveMembers != nil {
		members = stored.FlowContext.CollectiveMembers
	} else {
		members = pc.CollectiveSize
	}
	if members == nil {
		return Block(redirectTanda, ReasonTandaMembersUnknown, msgTandaMembersUnknown)
	}
	n := *members

	if n < rules.MinMembers {
		return Block(redirectTanda, ReasonTandaMemberBounds,
			fmt.Sprintf("La tanda requiere al menos %d integrantes.", rules.MinMembers))
	}
	if n > rules.MaxMembers {
		return Block(redirectTanda, ReasonTandaMemberBounds,
			fmt.Sprintf("La tanda permite máximo %d integrantes.", rules.MaxMembers))
	}

	if d := memberDocuments(n, stored.Documents); !d.Allowed {
		return d
	}

	st, ok := load[tanda.State](env, tanda.ContextKey)
	switch {
	case !ok || st.ValidationID == "":
		return Block(redirectTanda, ReasonTandaNotValidated, msgTandaNotValidated)
	case st.Config.Members != n:
		return Block(redirectTanda, ReasonTandaStale, msgTandaStale)
	case st.Status == model.ValidationError:
		return Block(redirectTanda, ReasonTandaRejected, msgTandaRejected)
	case st.Status == model.ValidationReview:
		return Block(redirectTanda, ReasonTandaReview, msgTandaReview)
	case len(st.Schedule) == 0:
		return Block(redirectTanda, ReasonTandaSchedule, msgTandaSchedule)
	case st.LastRosterUploadID == "":
		return Block(redirectTanda, ReasonTandaRoster, msgTandaRoster)
	}
	return Allow()
}

// tandaRules prefers rules attached to the case over the repository's.
func tandaRules(env Env, pc policy.Context) *policy.TandaRules {
	if pc.Metadata != nil && pc.Metadata.Tanda != nil {
		r := *pc.Metadata.Tanda
		return &r
	}
	if env.Policies == nil {
		return nil
	}
	return env.Policies.TandaRules(pc)
}

func memberDocuments(members int, docs []model.Document) Decision {
	if !model.IsApproved(docs, tanda.ConsentDocumentID) {
		return Block(redirectTanda, ReasonTandaDocuments, msgTandaConsent)
	}
	for i := 1; i <= members; i++ {
		if !model.IsApproved(docs, policy.MemberINEID(i)) {
			return Block(redirectTanda, ReasonTandaDocuments,
				fmt.Sprintf("El INE del integrante %d aún no está aprobado.", i))
		}
		if !model.IsApproved(docs, policy.MemberRFCID(i)) {
			return Block(redirectTanda, ReasonTandaDocuments,
				fmt.Sprintf("El RFC del integrante %d aún no está aprobado.", i))
		}
	}
	return Allow()
}
