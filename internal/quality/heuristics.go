// Package quality scores a worker's caseload for signs of fabricated records.
package quality

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/flw-audit/internal/model"
)

// Concentration describes how repetitive the values of one field are.
type Concentration struct {
	// Counted is the number of beneficiaries with a value for the field.
	Counted int `json:"counted"`
	// NonUniquePct is the share of counted beneficiaries whose value is shared
	// with at least one other beneficiary.
	NonUniquePct *float64 `json:"non_unique_pct"`
	// TopValue is the most frequent value and TopSharePct its share.
	TopValue    string   `json:"top_value,omitempty"`
	TopSharePct *float64 `json:"top_share_pct"`
}

// Scores holds the independent heuristics computed for one worker.
type Scores struct {
	Beneficiaries         int           `json:"beneficiaries"`
	DuplicatePhonePct     *float64      `json:"duplicate_phone_pct"`
	Parity                Concentration `json:"parity"`
	Age                   Concentration `json:"age"`
	SameDayMilestones     int           `json:"same_day_milestones"`
	BirthdayMatchesRegPct *float64      `json:"birthday_matches_registration_pct"`
}

// DuplicatePhonePct returns the percentage of beneficiaries whose phone
// number is shared by two or more beneficiaries. Beneficiaries without a phone
// are left out of both numerator and denominator.
func DuplicatePhonePct(caseload []model.BeneficiaryMetadata) *float64 {
	values := make([]string, 0, len(caseload))
	for _, b := range caseload {
		values = append(values, b.Phone)
	}
	return ValueConcentration(values).NonUniquePct
}

// ValueConcentration measures repetition across the non-blank values.
func ValueConcentration(values []string) Concentration {
	counts := make(map[string]int)
	var c Concentration
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		counts[v]++
		c.Counted++
	}
	if c.Counted == 0 {
		return c
	}

	nonUnique := 0
	keys := make([]string, 0, len(counts))
	for v, n := range counts {
		if n >= 2 {
			nonUnique += n
		}
		keys = append(keys, v)
	}
	// Deterministic tie-break on the smallest value.
	sort.Strings(keys)
	top, topN := "", 0
	for _, v := range keys {
		if counts[v] > topN {
			top, topN = v, counts[v]
		}
	}

	c.NonUniquePct = pct(nonUnique, c.Counted)
	c.TopValue = top
	c.TopSharePct = pct(topN, c.Counted)
	return c
}

// SameDayCompletions counts beneficiaries for whom both visit types were
// completed on the same calendar day.
func SameDayCompletions(visits []model.CompletedVisit, first, second model.VisitType) int {
	if first == "" || second == "" || first == second {
		return 0
	}
	days := make(map[string]map[model.VisitType]map[string]bool)
	for _, v := range visits {
		if v.VisitType != first && v.VisitType != second {
			continue
		}
		byType, ok := days[v.BeneficiaryID]
		if !ok {
			byType = make(map[model.VisitType]map[string]bool)
			days[v.BeneficiaryID] = byType
		}
		if byType[v.VisitType] == nil {
			byType[v.VisitType] = make(map[string]bool)
		}
		byType[v.VisitType][model.DayOf(v.SubmittedAt).Format(model.DateLayout)] = true
	}

	n := 0
	for _, byType := range days {
		for d := range byType[first] {
			if byType[second][d] {
				n++
				break
			}
		}
	}
	return n
}

// BirthdayMatchesRegistrationPct returns the percentage of beneficiaries whose
// birth day and month equal their registration day and month. Only
// beneficiaries with both dates are counted.
func BirthdayMatchesRegistrationPct(caseload []model.BeneficiaryMetadata) *float64 {
	counted, matched := 0, 0
	for _, b := range caseload {
		if b.DateOfBirth.IsZero() || b.RegisteredAt.IsZero() {
			continue
		}
		counted++
		if b.DateOfBirth.Month() == b.RegisteredAt.Month() && b.DateOfBirth.Day() == b.RegisteredAt.Day() {
			matched++
		}
	}
	return pct(matched, counted)
}

// Score runs every heuristic over one worker's caseload and visits.
func Score(caseload []model.BeneficiaryMetadata, visits []model.CompletedVisit, sameDayPair [2]model.VisitType) Scores {
	parity := make([]string, 0, len(caseload))
	ages := make([]string, 0, len(caseload))
	for _, b := range caseload {
		parity = append(parity, b.Parity)
		if b.Age > 0 {
			ages = append(ages, strconv.Itoa(b.Age))
		}
	}

	return Scores{
		Beneficiaries:         len(caseload),
		DuplicatePhonePct:     DuplicatePhonePct(caseload),
		Parity:                ValueConcentration(parity),
		Age:                   ValueConcentration(ages),
		SameDayMilestones:     SameDayCompletions(visits, sameDayPair[0], sameDayPair[1]),
		BirthdayMatchesRegPct: BirthdayMatchesRegistrationPct(caseload),
	}
}

func pct(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	v := math.Round(float64(num)/float64(den)*1000) / 10
	return &v
}
