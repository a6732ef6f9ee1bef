package model

// VisitStatus is the classification of one expected visit against its completion.
type VisitStatus string

const (
	StatusCompletedOnTime VisitStatus = "completed_on_time"
	StatusCompletedLate   VisitStatus = "completed_late"
	StatusDueOnTime       VisitStatus = "due_on_time"
	StatusDueLate         VisitStatus = "due_late"
	StatusMissed          VisitStatus = "missed"
)

// AllStatuses lists every VisitStatus in display order.
var AllStatuses = []VisitStatus{
	StatusCompletedOnTime,
	StatusCompletedLate,
	StatusDueOnTime,
	StatusDueLate,
	StatusMissed,
}

// Completed reports whether the status represents a submitted visit.
func (s VisitStatus) Completed() bool {
	return s == StatusCompletedOnTime || s == StatusCompletedLate
}

// Due reports whether the status represents an outstanding, still recoverable visit.
func (s VisitStatus) Due() bool {
	return s == StatusDueOnTime || s == StatusDueLate
}

// Valid reports whether s is one of the five known statuses.
func (s VisitStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}
