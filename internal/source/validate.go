package source

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/visit"
	"github.com/sells-group/flw-audit/pkg/recordapi"
)

// VisitSet is the validated visit collection.
type VisitSet struct {
	Visits []model.CompletedVisit
	// Rejected counts rows dropped for missing ids, unknown visit types or
	// unparseable timestamps.
	Rejected int
	Info     CollectionInfo
}

// RegistrationSet is the validated registration collection.
type RegistrationSet struct {
	Beneficiaries map[string]model.BeneficiaryMetadata
	// Expected holds each beneficiary's schedule in care-schedule order.
	Expected map[string][]model.ExpectedVisit
	Rejected int
	// RejectedSlots counts schedule blocks dropped from otherwise valid rows.
	RejectedSlots int
	Info          CollectionInfo
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	model.DateLayout,
}

// parseTimestamp keeps the submission's own UTC offset so its calendar day
// is the one the worker saw. Offset-less layouts parse as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseOptionalDate returns the zero time for blank input.
func parseOptionalDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}, false
	}
	return model.DayOf(t), true
}

// ValidateVisits converts wire rows into CompletedVisits. Rows that cannot be
// identified or dated are rejected; a malformed GPS payload only clears the
// location.
func ValidateVisits(rows []recordapi.VisitRow) *VisitSet {
	set := &VisitSet{Visits: make([]model.CompletedVisit, 0, len(rows))}
	log := zap.L()
	for _, row := range rows {
		vt, ok := visit.NormalizeVisitType(row.VisitType)
		if !ok {
			set.Rejected++
			log.Debug("source: unknown visit type", zap.String("id", row.ID), zap.String("label", row.VisitType))
			continue
		}
		submitted, ok := parseTimestamp(row.SubmittedAt)
		if !ok {
			set.Rejected++
			log.Warn("source: bad submission time", zap.String("id", row.ID), zap.String("value", row.SubmittedAt))
			continue
		}
		loc := model.ParseLocation(row.GPS)
		if row.GPS != "" && !loc.Usable() {
			log.Debug("source: unusable gps payload", zap.String("id", row.ID), zap.String("gps", row.GPS))
		}
		v, err := model.NewCompletedVisit(
			strings.TrimSpace(row.ID),
			strings.TrimSpace(row.WorkerID),
			strings.TrimSpace(row.BeneficiaryID),
			vt, submitted, loc, row.AppVersion,
		)
		if err != nil {
			set.Rejected++
			log.Warn("source: rejected visit row", zap.Error(err))
			continue
		}
		set.Visits = append(set.Visits, v)
	}
	return set
}

// ValidateRegistrations converts wire rows into beneficiary metadata and
// schedules. A repeated case id keeps its first record. Each visit type keeps
// at most one schedule slot.
func ValidateRegistrations(rows []recordapi.RegistrationRow) *RegistrationSet {
	set := &RegistrationSet{
		Beneficiaries: make(map[string]model.BeneficiaryMetadata, len(rows)),
		Expected:      make(map[string][]model.ExpectedVisit, len(rows)),
	}
	log := zap.L()
	for _, row := range rows {
		id := strings.TrimSpace(row.CaseID)
		if _, dup := set.Beneficiaries[id]; dup {
			set.Rejected++
			log.Warn("source: duplicate registration", zap.String("case_id", id))
			continue
		}

		meta := model.BeneficiaryMetadata{
			ID:       id,
			Name:     strings.TrimSpace(row.Name),
			Phone:    row.Phone,
			Parity:   row.Parity,
			Eligible: row.Eligible,
			OwnerID:  row.OwnerID,
		}
		if row.Age != nil {
			meta.Age = *row.Age
		}
		if row.HouseholdSize != nil {
			meta.HouseholdSize = *row.HouseholdSize
		}
		for _, d := range []struct {
			raw    string
			target *time.Time
		}{
			{row.DateOfBirth, &meta.DateOfBirth},
			{row.RegisteredAt, &meta.RegisteredAt},
			{row.ExpectedEndDate, &meta.ExpectedEndDate},
		} {
			if t, ok := parseOptionalDate(d.raw); ok {
				*d.target = t
			} else {
				log.Debug("source: ignoring malformed date", zap.String("case_id", id), zap.String("value", d.raw))
			}
		}

		meta, err := model.NewBeneficiary(meta)
		if err != nil {
			set.Rejected++
			log.Warn("source: rejected registration row", zap.Error(err))
			continue
		}
		set.Beneficiaries[id] = meta
		set.Expected[id] = schedule(id, row.Visits, &set.RejectedSlots)
	}
	return set
}

func schedule(id string, blocks []recordapi.ScheduleBlock, rejected *int) []model.ExpectedVisit {
	seen := make(map[model.VisitType]bool, len(blocks))
	out := make([]model.ExpectedVisit, 0, len(blocks))
	for _, b := range blocks {
		vt, ok := visit.NormalizeVisitType(b.VisitType)
		if !ok || seen[vt] {
			*rejected++
			zap.L().Debug("source: dropped schedule block",
				zap.String("case_id", id), zap.String("visit_type", b.VisitType))
			continue
		}
		scheduled, ok1 := parseOptionalDate(b.ScheduledDate)
		expiry, ok2 := parseOptionalDate(b.ExpiryDate)
		if !ok1 || !ok2 {
			*rejected++
			zap.L().Warn("source: malformed schedule dates",
				zap.String("case_id", id), zap.String("visit_type", string(vt)))
			continue
		}
		ev, err := model.NewExpectedVisit(id, vt, scheduled, expiry, b.Created)
		if err != nil {
			*rejected++
			zap.L().Warn("source: rejected schedule block", zap.Error(err))
			continue
		}
		seen[vt] = true
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return scheduleRank(out[i].VisitType) < scheduleRank(out[j].VisitType)
	})
	return out
}

func scheduleRank(vt model.VisitType) int {
	for i, t := range model.ScheduleTypes {
		if t == vt {
			return i
		}
	}
	return len(model.ScheduleTypes)
}
