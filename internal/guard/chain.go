package guard

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Stage names a gated transition.
type Stage string

const (
	// StageKYC gates documents → KYC.
	StageKYC Stage = "kyc"
	// StageQuote gates quote → contract.
	StageQuote              Stage = "quote"
	StageContract           Stage = "contract"
	StageContractGeneration Stage = "contract-generation"
	StageDelivery           Stage = "delivery"
)

// ErrUnknownStage is returned by StageChain for names outside Stages.
var ErrUnknownStage = eris.New("guard: unknown stage")

// Chain evaluates guards in order.
type Chain []Guard

// Evaluate returns the first blocked decision, or Allow when every guard
// clears.
func (c Chain) Evaluate(env Env, target string) Decision {
	for _, g := range c {
		if d := Evaluate(env, g, target); !d.Allowed {
			return d
		}
	}
	return Allow()
}

// EvaluateAll runs every guard and returns all decisions in order.
func (c Chain) EvaluateAll(env Env, target string) []Decision {
	out := make([]Decision, 0, len(c))
	for _, g := range c {
		out = append(out, Evaluate(env, g, target))
	}
	return out
}

// Stages maps each stage to its guard chain.
func Stages() map[Stage]Chain {
	return map[Stage]Chain{
		StageKYC:                {DocsCompleted{}},
		StageQuote:              {TandaValid{}, Plazo{}},
		StageContract:           {DocsCompleted{}, ProtectionRequired{}, ContractReady{}},
		StageContractGeneration: {ContractValid{}},
		StageDelivery:           {Delivery{}},
	}
}

// StageNames lists the stages in flow order.
func StageNames() []Stage {
	return []Stage{StageKYC, StageQuote, StageContract, StageContractGeneration, StageDelivery}
}

// StageChain returns the chain for a stage name.
func StageChain(name string) (Chain, error) {
	s := Stage(name)
	if !slices.Contains(StageNames(), s) {
		return nil, eris.Wrapf(ErrUnknownStage, "%q", name)
	}
	return Stages()[s], nil
}
