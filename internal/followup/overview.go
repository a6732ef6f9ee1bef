package followup

import (
	"sort"
	"time"

	"github.com/sells-group/flw-audit/internal/gps"
	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/quality"
)

// OverviewRow merges the follow-up, GPS and quality results of one worker.
type OverviewRow struct {
	WorkerID      string `json:"worker_id"`
	Beneficiaries int    `json:"beneficiaries"`
	TotalVisits   int    `json:"total_visits"`
	FollowUpRate  *int   `json:"followup_rate"`
	Color         Color  `json:"color"`
	Missed        int    `json:"missed"`
	OnTrack       int    `json:"on_track"`

	VisitsWithGPS         int      `json:"visits_with_gps"`
	FlaggedCaseLegs       int      `json:"flagged_case_legs"`
	MaxCaseMeters         float64  `json:"max_case_meters"`
	MedianMetersPerVisit  *float64 `json:"median_meters_per_visit"`
	MedianMinutesPerVisit *float64 `json:"median_minutes_per_visit"`
	AvgDailyTravelMeters  float64  `json:"avg_daily_travel_meters"`

	Quality quality.Scores `json:"quality"`
}

// Overview is the per-worker merged result set.
type Overview struct {
	AsOf time.Time     `json:"as_of"`
	Rows []OverviewRow `json:"rows"`
}

// BuildOverview joins the follow-up and GPS summaries by worker and scores
// each worker's registered caseload. Workers present in either summary get a
// row.
func BuildOverview(fu Summary, g gps.Summary, in Input, cfg Config) Overview {
	rows := make(map[string]*OverviewRow)
	row := func(id string) *OverviewRow {
		r, ok := rows[id]
		if !ok {
			r = &OverviewRow{WorkerID: id}
			rows[id] = r
		}
		return r
	}

	for _, w := range fu.Workers {
		r := row(w.WorkerID)
		r.Beneficiaries = w.Beneficiaries
		r.TotalVisits = w.TotalVisits
		r.FollowUpRate = w.Rate
		r.Color = w.Color
		r.Missed = w.Counts.Missed
		r.OnTrack = w.OnTrack
	}
	for _, w := range g.Workers {
		r := row(w.WorkerID)
		r.VisitsWithGPS = w.VisitsWithGPS
		r.FlaggedCaseLegs = w.FlaggedCount
		r.MaxCaseMeters = w.MaxCaseMeters
		r.MedianMetersPerVisit = w.MedianMetersPerVisit
		r.MedianMinutesPerVisit = w.MedianMinutesPerVisit
		r.AvgDailyTravelMeters = w.AvgDailyTravelMeters
	}

	caseloads, caseVisits := caseloadsByWorker(in)
	for id, r := range rows {
		r.Quality = quality.Score(caseloads[id], caseVisits[id], cfg.SameDayPair)
	}

	out := Overview{AsOf: fu.AsOf, Rows: make([]OverviewRow, 0, len(rows))}
	for _, r := range rows {
		out.Rows = append(out.Rows, *r)
	}
	sort.Slice(out.Rows, func(i, j int) bool { return out.Rows[i].WorkerID < out.Rows[j].WorkerID })
	return out
}

// caseloadsByWorker groups the beneficiaries Reconcile counts, and the visits
// made to them, by owning worker. Only registered beneficiaries with at least
// one created slot are scored, so a worker's quality denominator never
// exceeds its follow-up caseload.
func caseloadsByWorker(in Input) (map[string][]model.BeneficiaryMetadata, map[string][]model.CompletedVisit) {
	scored := make(map[string]bool)
	ids := make([]string, 0, len(in.Beneficiaries))
	for id := range in.Beneficiaries {
		if hasCreatedSlot(in.Expected[id]) {
			scored[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	caseloads := make(map[string][]model.BeneficiaryMetadata)
	for _, id := range ids {
		w := in.owner(id)
		caseloads[w] = append(caseloads[w], in.Beneficiaries[id])
	}

	visits := make(map[string][]model.CompletedVisit)
	for _, v := range in.Visits {
		if !scored[v.BeneficiaryID] {
			continue
		}
		w := in.owner(v.BeneficiaryID)
		visits[w] = append(visits[w], v)
	}
	return caseloads, visits
}

func hasCreatedSlot(schedule []model.ExpectedVisit) bool {
	for _, ev := range schedule {
		if ev.Created {
			return true
		}
	}
	return false
}
