// Package tanda validates collective-savings groups against the remote
// tanda service, falling back to local rules when the service is slow or
// unreachable, and keeps the outcome in the flow context.
package tanda

import (
	"slices"
	"time"

	"github.com/conductores/onboarding-engine/internal/flowctx"
	"github.com/conductores/onboarding-engine/internal/model"
	tandaapi "github.com/conductores/onboarding-engine/pkg/tanda"
)

// ContextKey is the flow context slot the validation state lives under.
const ContextKey = "tanda"

// Breadcrumbs recorded with every persisted state.
var Breadcrumbs = []string{"Dashboard", "Documentos", "Tanda"}

// Config describes the group being validated.
type Config struct {
	Market        string     `json:"market"`
	ClientType    string     `json:"clientType"`
	Members       int        `json:"members"`
	Contribution  float64    `json:"contribution"`
	Rounds        int        `json:"rounds"`
	RotationOrder []int      `json:"rotationOrder,omitempty"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	AdvisorID     *string    `json:"advisorId,omitempty"`
	GroupName     *string    `json:"groupName,omitempty"`
}

// StateConfig is Config after defaults were applied.
type StateConfig struct {
	Market        string    `json:"market"`
	ClientType    string    `json:"clientType"`
	Members       int       `json:"members"`
	Contribution  float64   `json:"contribution"`
	Rounds        int       `json:"rounds"`
	StartDate     time.Time `json:"startDate"`
	RotationOrder []int     `json:"rotationOrder"`
	AdvisorID     *string   `json:"advisorId"`
	GroupName     *string   `json:"groupName"`
}

// ScheduleEntry is one payout round.
type ScheduleEntry = tandaapi.ScheduleEntry

// State is the last validation outcome. Validate replaces it whole;
// SyncRoster amends the roster fields.
type State struct {
	ValidationID       string                 `json:"validationId"`
	Status             model.ValidationStatus `json:"status"`
	ValidatedAt        time.Time              `json:"validatedAt"`
	Config             StateConfig            `json:"config"`
	Warnings           []string               `json:"warnings,omitempty"`
	Schedule           []ScheduleEntry        `json:"schedule,omitempty"`
	FallbackUsed       bool                   `json:"fallbackUsed"`
	Metadata           map[string]any         `json:"metadata,omitempty"`
	LastRosterUploadID string                 `json:"lastRosterUploadId,omitempty"`
	LastRosterSyncedAt *time.Time             `json:"lastRosterSyncedAt,omitempty"`
}

// Blocking reports whether the status stops the group from advancing.
func (s *State) Blocking() bool {
	return s.Status == model.ValidationError || s.Status == model.ValidationReview
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Config.RotationOrder = slices.Clone(s.Config.RotationOrder)
	out.Warnings = slices.Clone(s.Warnings)
	out.Schedule = slices.Clone(s.Schedule)
	out.Metadata = flowctx.Clone(s.Metadata)
	if s.LastRosterSyncedAt != nil {
		t := *s.LastRosterSyncedAt
		out.LastRosterSyncedAt = &t
	}
	return &out
}

func normalize(cfg Config, now time.Time) StateConfig {
	start := now.UTC()
	if cfg.StartDate != nil && !cfg.StartDate.IsZero() {
		start = cfg.StartDate.UTC()
	}
	rotation := slices.Clone(cfg.RotationOrder)
	if rotation == nil {
		rotation = []int{}
	}
	return StateConfig{
		Market:        cfg.Market,
		ClientType:    cfg.ClientType,
		Members:       cfg.Members,
		Contribution:  cfg.Contribution,
		Rounds:        cfg.Rounds,
		StartDate:     start,
		RotationOrder: rotation,
		AdvisorID:     cfg.AdvisorID,
		GroupName:     cfg.GroupName,
	}
}
