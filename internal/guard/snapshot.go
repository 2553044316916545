package guard

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
)

// Flow context keys read by guards.
const (
	KeyDocuments        = "documentos"
	KeyWizard           = "onboarding-wizard"
	KeyContract         = "contract"
	KeyClient           = "client"
	KeyQuote            = "cotizador"
	KeyProtection       = "protection"
	KeyProtectionLegacy = "proteccion"
	KeyDelivery         = "delivery"
)

// Timestamp reads either an RFC 3339 string or Unix milliseconds.
type Timestamp struct {
	time.Time
}

// At wraps t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return t.Time.UnmarshalJSON(b)
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return eris.Wrap(err, "guard: timestamp")
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// CompletionStatus summarizes document progress.
type CompletionStatus struct {
	TotalDocs            int     `json:"totalDocs"`
	CompletedDocs        int     `json:"completedDocs"`
	PendingDocs          int     `json:"pendingDocs"`
	CompletionPercentage float64 `json:"completionPercentage"`
	AllComplete          bool    `json:"allComplete"`
}

// QuotationData is the subset of a quote guards read.
type QuotationData struct {
	MonthlyPayment          *float64 `json:"monthlyPayment,omitempty"`
	PMT                     *float64 `json:"pmt,omitempty"`
	SumPMT                  *float64 `json:"sumPmt,omitempty"`
	IncomeThreshold         *float64 `json:"incomeThreshold,omitempty"`
	RequiredIncomeThreshold *float64 `json:"requiredIncomeThreshold,omitempty"`
}

// FlowSnapshot is the loose case description stored by the documents stage.
type FlowSnapshot struct {
	Market               string             `json:"market,omitempty"`
	ClientType           string             `json:"clientType,omitempty"`
	SaleType             string             `json:"saleType,omitempty"`
	BusinessFlow         model.BusinessFlow `json:"businessFlow,omitempty"`
	CollectiveMembers    *int               `json:"collectiveMembers,omitempty"`
	RequiresIncomeProof  *bool              `json:"requiresIncomeProof,omitempty"`
	MonthlyPayment       *float64           `json:"monthlyPayment,omitempty"`
	IncomeThreshold      *float64           `json:"incomeThreshold,omitempty"`
	IncomeThresholdRatio *float64           `json:"incomeThresholdRatio,omitempty"`
	QuotationData        *QuotationData     `json:"quotationData,omitempty"`
}

// DocumentsSnapshot is stored under KeyDocuments.
type DocumentsSnapshot struct {
	CompletionStatus *CompletionStatus `json:"completionStatus,omitempty"`
	Documents        []model.Document  `json:"documents,omitempty"`
	PolicyContext    *policy.Context   `json:"policyContext,omitempty"`
	FlowContext      *FlowSnapshot     `json:"flowContext,omitempty"`
}

// WizardSnapshot is stored under KeyWizard.
type WizardSnapshot struct {
	CurrentStepIndex *int   `json:"currentStepIndex,omitempty"`
	CurrentStep      string `json:"currentStep,omitempty"`
	Documents        *struct {
		CompletionStatus *CompletionStatus `json:"completionStatus,omitempty"`
	} `json:"documents,omitempty"`
}

// Wizard steps in order.
var wizardSteps = []string{"selection", "client_info", "documents", "kyc", "contracts", "completed"}

const contractsStepIndex = 4

// ContractSnapshot is stored under KeyContract. UpdatedAt is refreshed on
// every write.
type ContractSnapshot struct {
	ClientID                  string             `json:"clientId,omitempty"`
	ContractID                string             `json:"contractId,omitempty"`
	Market                    string             `json:"market,omitempty"`
	BusinessFlow              model.BusinessFlow `json:"businessFlow,omitempty"`
	DocumentsComplete         bool               `json:"documentsComplete"`
	AVIStatus                 string             `json:"aviStatus,omitempty"`
	AVIDecision               string             `json:"aviDecision,omitempty"`
	VoiceVerified             bool               `json:"voiceVerified"`
	RequiresVoiceVerification *bool              `json:"requiresVoiceVerification,omitempty"`
	ProtectionRequired        bool               `json:"protectionRequired"`
	ProtectionApplied         bool               `json:"protectionApplied"`
	PendingOfflineRequests    int                `json:"pendingOfflineRequests"`
	UpdatedAt                 Timestamp          `json:"updatedAt"`
}

// AVIRejected reports a NO_GO decision in any casing.
func (c ContractSnapshot) AVIRejected() bool {
	return strings.EqualFold(strings.TrimSpace(c.AVIDecision), "no_go")
}

// ClientContextSnapshot is written under KeyClient once a contract clears.
type ClientContextSnapshot struct {
	ClientID    string    `json:"clientId"`
	ContractID  string    `json:"contractId"`
	Market      string    `json:"market,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ProtectionSnapshot accepts both the flat and the nested layout.
type ProtectionSnapshot struct {
	Applied *bool `json:"applied,omitempty"`
	State   *struct {
		Applied *bool `json:"applied,omitempty"`
	} `json:"state,omitempty"`
}

func (p ProtectionSnapshot) applied() bool {
	if p.Applied != nil && *p.Applied {
		return true
	}
	return p.State != nil && p.State.Applied != nil && *p.State.Applied
}

// QuoteSnapshot is stored under KeyQuote.
type QuoteSnapshot struct {
	PolicyContext *policy.Context `json:"policyContext,omitempty"`
}

// DeliverySnapshot is stored under KeyDelivery.
type DeliverySnapshot struct {
	Events []json.RawMessage `json:"events,omitempty"`
}
