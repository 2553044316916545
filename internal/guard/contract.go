package guard

import (
	"go.uber.org/zap"
)

const (
	redirectDocuments  = "/documentos"
	redirectClients    = "/clientes"
	redirectGeneration = "/contratos/generacion"
	redirectProtection = "/proteccion"

	msgContractMissing    = "Completa la etapa de documentos antes de generar el contrato."
	msgClientMissing      = "Selecciona un cliente antes de continuar con el contrato."
	msgContractIDMissing  = "Genera el contrato antes de continuar."
	msgContractDocs       = "Completa los documentos del expediente antes de continuar."
	msgOfflinePending     = "Hay documentos pendientes de sincronizar. Espera a que se procese la cola offline."
	msgVoicePending       = "Completa la verificación de voz antes de continuar."
	msgProtectionPending  = "Aplica la protección requerida antes de continuar."
	msgAVIRejected        = "La evaluación AVI resultó NO_GO. Revisa el caso con el cliente."
	msgContractStale      = "La información del contrato está desactualizada. Revisa el expediente nuevamente."
	msgDeliveryNoContract = "Genera el contrato antes de programar la entrega."
	msgDeliveryNoEvents   = "No hay eventos de entrega registrados para este caso."
)

// ContractReady clears when the contract snapshot shows a complete,
// verified and recent case.
type ContractReady struct{}

func (ContractReady) Name() string { return "contract-ready" }

func (ContractReady) Evaluate(env Env, _ string) Decision {
	_, d := contractClearance(env)
	return d
}

// ContractValid runs the ContractReady checks. Its Commit records the client
// and contract under KeyClient once the transition is allowed.
type ContractValid struct{}

func (ContractValid) Name() string { return "contract-valid" }

func (ContractValid) Evaluate(env Env, _ string) Decision {
	_, d := contractClearance(env)
	return d
}

func (ContractValid) Commit(env Env) {
	c, d := contractClearance(env)
	if !d.Allowed || env.Flow == nil {
		return
	}
	env.Flow.Save(KeyClient, ClientContextSnapshot{
		ClientID:    c.ClientID,
		ContractID:  c.ContractID,
		Market:      c.Market,
		LastUpdated: env.now().UTC(),
	})
}

// contractClearance applies the ordered contract checks. The first failing
// check decides the redirect.
func contractClearance(env Env) (ContractSnapshot, Decision) {
	c, ok := load[ContractSnapshot](env, KeyContract)
	switch {
	case !ok:
		return c, Block(redirectDocuments, ReasonMissingContext, msgContractMissing)
	case c.ClientID == "":
		return c, Block(redirectClients, ReasonMissingClient, msgClientMissing)
	case c.ContractID == "":
		return c, Block(redirectGeneration, ReasonMissingContract, msgContractIDMissing)
	case !c.DocumentsComplete:
		return c, Block(redirectDocuments, ReasonDocumentsPending, msgContractDocs)
	case c.PendingOfflineRequests > 0:
		return c, Block(redirectDocuments, ReasonOfflinePending, msgOfflinePending)
	case c.RequiresVoiceVerification != nil && *c.RequiresVoiceVerification && !c.VoiceVerified:
		return c, Block(redirectDocuments, ReasonVoicePending, msgVoicePending)
	case c.ProtectionRequired && !c.ProtectionApplied:
		return c, Block(redirectProtection, ReasonProtectionPending, msgProtectionPending)
	case c.AVIRejected():
		return c, Block(redirectClients, ReasonAVIRejected, msgAVIRejected)
	}

	age := env.now().Sub(c.UpdatedAt.Time)
	if c.UpdatedAt.IsZero() || age > env.staleAfter() {
		zap.L().Info("guard: contract snapshot is stale",
			zap.String("contract_id", c.ContractID),
			zap.Duration("age", age),
		)
		return c, Block(redirectDocuments, ReasonStaleContext, msgContractStale)
	}
	return c, Allow()
}

// Delivery clears post-sale delivery once a contract is complete, or when
// delivery events were already recorded for a case without a contract
// snapshot.
type Delivery struct{}

func (Delivery) Name() string { return "delivery" }

func (Delivery) Evaluate(env Env, _ string) Decision {
	if c, ok := load[ContractSnapshot](env, KeyContract); ok {
		switch {
		case c.ContractID == "":
			return Block(redirectGeneration, ReasonMissingContract, msgDeliveryNoContract)
		case !c.DocumentsComplete:
			return Block(redirectDocuments, ReasonDocumentsPending, msgContractDocs)
		case c.PendingOfflineRequests > 0:
			return Block(redirectDocuments, ReasonOfflinePending, msgOfflinePending)
		}
		return Allow()
	}

	if d, ok := load[DeliverySnapshot](env, KeyDelivery); ok && len(d.Events) > 0 {
		return Allow()
	}
	return Block(redirectGeneration, ReasonDeliveryPending, msgDeliveryNoEvents)
}
