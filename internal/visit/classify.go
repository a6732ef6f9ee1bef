package visit

import (
	"sort"
	"time"

	"github.com/sells-group/flw-audit/internal/model"
)

// Rules holds the day windows used when classifying visits.
type Rules struct {
	// OnTimeWindowDays is how long after the scheduled date a completion still
	// counts as on time.
	OnTimeWindowDays int
	// GracePeriodDays is how long a visit must have been due before it counts
	// toward the follow-up rate.
	GracePeriodDays int
}

// DefaultRules returns the stock 7-day on-time window and 5-day grace period.
func DefaultRules() Rules {
	return Rules{OnTimeWindowDays: 7, GracePeriodDays: 5}
}

// Classify maps an expected visit and its matching completion (nil if none)
// to a status as of the given day. It reports false for slots that were never
// created; those are excluded from every count.
func Classify(expected model.ExpectedVisit, matched *model.CompletedVisit, asOf time.Time, rules Rules) (model.VisitStatus, bool) {
	if !expected.Created {
		return "", false
	}

	onTimeUntil := model.AddDays(expected.ScheduledDate, rules.OnTimeWindowDays)
	if matched != nil {
		if model.DayOf(matched.SubmittedAt).After(onTimeUntil) {
			return model.StatusCompletedLate, true
		}
		return model.StatusCompletedOnTime, true
	}

	today := model.DayOf(asOf)
	switch {
	case !today.After(onTimeUntil):
		return model.StatusDueOnTime, true
	case !today.After(expected.ExpiryDate):
		return model.StatusDueLate, true
	default:
		return model.StatusMissed, true
	}
}

// CountsTowardRate reports whether a created visit has been due for at least
// the grace period and therefore belongs in the follow-up rate.
func CountsTowardRate(expected model.ExpectedVisit, asOf time.Time, rules Rules) bool {
	if !expected.Created {
		return false
	}
	return !model.AddDays(expected.ScheduledDate, rules.GracePeriodDays).After(model.DayOf(asOf))
}

type matchKey struct {
	beneficiaryID string
	visitType     model.VisitType
}

// Index looks up completion candidates by beneficiary and canonical visit type.
type Index struct {
	byKey map[matchKey][]model.CompletedVisit
}

// NewIndex groups completions by (beneficiary, visit type), each group sorted
// by submission time.
func NewIndex(visits []model.CompletedVisit) *Index {
	idx := &Index{byKey: make(map[matchKey][]model.CompletedVisit)}
	for _, v := range visits {
		k := matchKey{v.BeneficiaryID, v.VisitType}
		idx.byKey[k] = append(idx.byKey[k], v)
	}
	for _, group := range idx.byKey {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].SubmittedAt.Before(group[j].SubmittedAt)
		})
	}
	return idx
}

// Candidates returns the sorted completions for a beneficiary and visit type.
func (idx *Index) Candidates(beneficiaryID string, vt model.VisitType) []model.CompletedVisit {
	return idx.byKey[matchKey{beneficiaryID, vt}]
}

// Match returns the earliest completion submitted on or after the expected
// visit's scheduled day. Earlier submissions do not satisfy the slot.
func (idx *Index) Match(expected model.ExpectedVisit) *model.CompletedVisit {
	for _, v := range idx.Candidates(expected.BeneficiaryID, expected.VisitType) {
		if !model.DayOf(v.SubmittedAt).Before(expected.ScheduledDate) {
			v := v
			return &v
		}
	}
	return nil
}

// Classified is one created expected visit with its status and rate inclusion.
type Classified struct {
	Expected model.ExpectedVisit   `json:"expected"`
	Matched  *model.CompletedVisit `json:"matched,omitempty"`
	Status   model.VisitStatus     `json:"status"`
	InRate   bool                  `json:"in_rate"`
}

// ClassifyAll classifies every created slot of one beneficiary's schedule.
// Uncreated slots are dropped.
func ClassifyAll(schedule []model.ExpectedVisit, idx *Index, asOf time.Time, rules Rules) []Classified {
	out := make([]Classified, 0, len(schedule))
	for _, ev := range schedule {
		matched := idx.Match(ev)
		status, ok := Classify(ev, matched, asOf, rules)
		if !ok {
			continue
		}
		out = append(out, Classified{
			Expected: ev,
			Matched:  matched,
			Status:   status,
			InRate:   CountsTowardRate(ev, asOf, rules),
		})
	}
	return out
}
