package tanda

import (
	"fmt"
	"math"
	"time"

	"github.com/conductores/onboarding-engine/internal/model"
	tandaapi "github.com/conductores/onboarding-engine/pkg/tanda"
)

// Bounds applied when the remote service cannot be reached.
const (
	FallbackMinMembers      = 5
	FallbackMaxMembers      = 50
	FallbackMinContribution = 500.0

	referenceContribution = 3500.0
)

const (
	warnBelowMin          = "El número de integrantes está por debajo del mínimo sugerido (5)."
	warnAboveMax          = "El número de integrantes excede el máximo soportado (50)."
	warnLowContribution   = "La aportación individual es menor al mínimo recomendado (MXN 500)."
	mockValidationIDFmt   = "mock-tanda-%d"
	mockRosterUploadIDFmt = "mock-roster-%d"
)

// localValidation applies the deterministic local rules.
func localValidation(cfg StateConfig, now time.Time) *tandaapi.ValidateResponse {
	status := model.ValidationOK
	if cfg.Members < FallbackMinMembers || cfg.Members > FallbackMaxMembers {
		status = model.ValidationReview
	}

	warnings := []string{}
	if cfg.Members < FallbackMinMembers {
		warnings = append(warnings, warnBelowMin)
	}
	if cfg.Members > FallbackMaxMembers {
		warnings = append(warnings, warnAboveMax)
	}
	if cfg.Contribution < FallbackMinContribution {
		warnings = append(warnings, warnLowContribution)
	}

	return &tandaapi.ValidateResponse{
		ValidationID: fmt.Sprintf(mockValidationIDFmt, now.UnixMilli()),
		Status:       string(status),
		Warnings:     warnings,
		Metrics: map[string]any{
			"capacityScore":        math.Min(1, float64(cfg.Members)/FallbackMaxMembers),
			"contributionAdequacy": cfg.Contribution / referenceContribution,
		},
	}
}

// localSchedule assigns one payout per round. Round i goes to
// rotation[i % len(rotation)] and is due i calendar months after the start.
func localSchedule(cfg StateConfig) []ScheduleEntry {
	if cfg.Rounds <= 0 {
		return []ScheduleEntry{}
	}

	rotation := cfg.RotationOrder
	if len(rotation) == 0 {
		rotation = make([]int, 0, max(cfg.Members, 0))
		for i := 1; i <= cfg.Members; i++ {
			rotation = append(rotation, i)
		}
	}

	payout := cfg.Contribution * float64(cfg.Members)
	out := make([]ScheduleEntry, 0, cfg.Rounds)
	for i := range cfg.Rounds {
		member := i + 1
		if len(rotation) > 0 {
			member = rotation[i%len(rotation)]
		}
		out = append(out, ScheduleEntry{
			Round:       i + 1,
			MemberIndex: member,
			Payout:      payout,
			ETA:         cfg.StartDate.AddDate(0, i, 0),
			MemberID:    fmt.Sprintf("member-%d", member),
		})
	}
	return out
}
