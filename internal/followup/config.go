// Package followup reconciles expected visits against completed submissions
// and aggregates follow-up performance per beneficiary and per worker.
package followup

import (
	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/visit"
)

// Color is the band a follow-up rate falls into.
type Color string

const (
	ColorGood     Color = "good"
	ColorWarning  Color = "warning"
	ColorCritical Color = "critical"
	// ColorNone is used when no rate could be computed.
	ColorNone Color = ""
)

// Colors holds the lower bounds of the good and warning bands.
type Colors struct {
	Good    int
	Warning int
}

// Classify returns the band of rate. A nil rate has no band.
func (c Colors) Classify(rate *int) Color {
	switch {
	case rate == nil:
		return ColorNone
	case *rate >= c.Good:
		return ColorGood
	case *rate >= c.Warning:
		return ColorWarning
	default:
		return ColorCritical
	}
}

// OnTrack is the per-beneficiary on-track rule: enough completions, or few
// enough misses.
type OnTrack struct {
	MinCompleted int
	MaxMissed    int
}

// Evaluate applies the rule to a beneficiary's status counts.
func (o OnTrack) Evaluate(c StatusCounts) bool {
	return c.Completed() >= o.MinCompleted || c.Missed <= o.MaxMissed
}

// Config holds every threshold of the reconciliation run.
type Config struct {
	Rules   visit.Rules
	Colors  Colors
	OnTrack OnTrack
	// SameDayPair names the two milestones whose same-day completion is
	// scored as a fabrication signal.
	SameDayPair [2]model.VisitType
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Rules:       visit.DefaultRules(),
		Colors:      Colors{Good: 80, Warning: 60},
		OnTrack:     OnTrack{MinCompleted: 5, MaxMissed: 1},
		SameDayPair: [2]model.VisitType{model.VisitANC, model.VisitPostnatal},
	}
}
