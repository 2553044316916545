// Package monitoring summarizes the tanda validation history and raises
// webhook alerts when the service leans on the local fallback too often.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/store"
)

// historyLimit caps how many records one collection reads.
const historyLimit = 10000

// MetricsSnapshot holds a point-in-time view of validation health.
type MetricsSnapshot struct {
	ValidationTotal  int     `json:"validation_total"`
	ValidationOK     int     `json:"validation_ok"`
	ValidationReview int     `json:"validation_review"`
	ValidationError  int     `json:"validation_error"`
	FallbackCount    int     `json:"fallback_count"`
	FallbackRate     float64 `json:"fallback_rate"`
	ReviewRate       float64 `json:"review_rate"`
	RosterSynced     int     `json:"roster_synced"`
	AvgMembers       float64 `json:"avg_members"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the validation history.
type Collector struct {
	history store.ValidationHistory
	now     func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(history store.ValidationHistory) *Collector {
	return &Collector{history: history, now: time.Now}
}

// Collect summarizes validations recorded within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	recs, err := c.history.ListValidations(ctx, store.ValidationFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        historyLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list validations")
	}

	snap.ValidationTotal = len(recs)
	var members int
	for _, r := range recs {
		switch r.Status {
		case model.ValidationReview:
			snap.ValidationReview++
		case model.ValidationError:
			snap.ValidationError++
		default:
			snap.ValidationOK++
		}
		if r.FallbackUsed {
			snap.FallbackCount++
		}
		if r.RosterUploadID != "" {
			snap.RosterSynced++
		}
		members += r.Members
	}

	if snap.ValidationTotal > 0 {
		total := float64(snap.ValidationTotal)
		snap.FallbackRate = float64(snap.FallbackCount) / total
		snap.ReviewRate = float64(snap.ValidationReview) / total
		snap.AvgMembers = float64(members) / total
	}
	return snap, nil
}
