package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// VisitType is a canonical care-schedule milestone.
type VisitType string

const (
	VisitANC       VisitType = "anc"
	VisitPostnatal VisitType = "postnatal"
	VisitWeek1     VisitType = "week1"
	VisitMonth1    VisitType = "month1"
	VisitMonth3    VisitType = "month3"
	VisitMonth6    VisitType = "month6"
)

// ScheduleTypes lists the visit types of the care schedule in chronological order.
var ScheduleTypes = []VisitType{
	VisitANC,
	VisitPostnatal,
	VisitWeek1,
	VisitMonth1,
	VisitMonth3,
	VisitMonth6,
}

// Valid reports whether t is a known canonical visit type.
func (t VisitType) Valid() bool {
	for _, v := range ScheduleTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Location is a GPS fix recorded with a visit submission.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Precision float64 `json:"precision"`
}

// Usable reports whether the fix can take part in distance computation.
func (l *Location) Usable() bool {
	if l == nil || l.Precision <= 0 {
		return false
	}
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return false
	}
	return !(l.Latitude == 0 && l.Longitude == 0)
}

// ParseLocation parses a space-separated "lat lon [altitude] [accuracy]" GPS string.
// It returns nil for blank or malformed input; callers keep the visit either way.
func ParseLocation(raw string) *Location {
	parts := strings.Fields(raw)
	if len(parts) < 2 {
		return nil
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil
	}
	loc := &Location{Latitude: lat, Longitude: lon}
	if len(parts) >= 4 {
		if p, err := strconv.ParseFloat(parts[3], 64); err == nil {
			loc.Precision = p
		}
	}
	return loc
}

// CompletedVisit is one visit form submitted by a worker.
type CompletedVisit struct {
	ID            string    `json:"id"`
	WorkerID      string    `json:"worker_id"`
	BeneficiaryID string    `json:"beneficiary_id"`
	VisitType     VisitType `json:"visit_type"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Location      *Location `json:"location,omitempty"`
	AppVersion    int       `json:"app_version"`
}

// NewCompletedVisit validates and builds a CompletedVisit. The visit type must
// already be normalized to its canonical form.
func NewCompletedVisit(id, workerID, beneficiaryID string, vt VisitType, submittedAt time.Time, loc *Location, appVersion int) (CompletedVisit, error) {
	switch {
	case strings.TrimSpace(id) == "":
		return CompletedVisit{}, eris.New("model: completed visit: missing id")
	case strings.TrimSpace(workerID) == "":
		return CompletedVisit{}, eris.Errorf("model: completed visit %s: missing worker id", id)
	case strings.TrimSpace(beneficiaryID) == "":
		return CompletedVisit{}, eris.Errorf("model: completed visit %s: missing beneficiary id", id)
	case !vt.Valid():
		return CompletedVisit{}, eris.Errorf("model: completed visit %s: unknown visit type %q", id, vt)
	case submittedAt.IsZero():
		return CompletedVisit{}, eris.Errorf("model: completed visit %s: missing submission time", id)
	}
	return CompletedVisit{
		ID:            id,
		WorkerID:      workerID,
		BeneficiaryID: beneficiaryID,
		VisitType:     vt,
		SubmittedAt:   submittedAt,
		Location:      loc,
		AppVersion:    appVersion,
	}, nil
}

// ExpectedVisit is a scheduled visit obligation derived from a registration record.
type ExpectedVisit struct {
	BeneficiaryID string    `json:"beneficiary_id"`
	VisitType     VisitType `json:"visit_type"`
	ScheduledDate time.Time `json:"scheduled_date"`
	ExpiryDate    time.Time `json:"expiry_date"`
	Created       bool      `json:"created"`
}

// NewExpectedVisit validates and builds an ExpectedVisit. Slots that were never
// created may omit their dates.
func NewExpectedVisit(beneficiaryID string, vt VisitType, scheduled, expiry time.Time, created bool) (ExpectedVisit, error) {
	if strings.TrimSpace(beneficiaryID) == "" {
		return ExpectedVisit{}, eris.New("model: expected visit: missing beneficiary id")
	}
	if !vt.Valid() {
		return ExpectedVisit{}, eris.Errorf("model: expected visit for %s: unknown visit type %q", beneficiaryID, vt)
	}
	ev := ExpectedVisit{
		BeneficiaryID: beneficiaryID,
		VisitType:     vt,
		ScheduledDate: DayOf(scheduled),
		ExpiryDate:    DayOf(expiry),
		Created:       created,
	}
	if !created {
		return ev, nil
	}
	if scheduled.IsZero() {
		return ExpectedVisit{}, eris.Errorf("model: expected %s visit for %s: missing scheduled date", vt, beneficiaryID)
	}
	if expiry.IsZero() {
		return ExpectedVisit{}, eris.Errorf("model: expected %s visit for %s: missing expiry date", vt, beneficiaryID)
	}
	if ev.ExpiryDate.Before(ev.ScheduledDate) {
		return ExpectedVisit{}, eris.Errorf("model: expected %s visit for %s: expiry %s before scheduled %s",
			vt, beneficiaryID, ev.ExpiryDate.Format(DateLayout), ev.ScheduledDate.Format(DateLayout))
	}
	return ev, nil
}
