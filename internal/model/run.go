package model

// Stage names of an analysis run, in execution order.
const (
	StageFetchVisits        = "fetch_visits"
	StageFetchRegistrations = "fetch_registrations"
	StageGPS                = "gps"
	StageFollowUp           = "followup"
	StageOverview           = "overview"
)

// StageStatus represents the outcome of a pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// StageResult holds the outcome of a pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
