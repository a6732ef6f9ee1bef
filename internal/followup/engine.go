package followup

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/visit"
)

// UnassignedWorker groups beneficiaries no worker can be attributed to.
const UnassignedWorker = "unassigned"

// StatusCounts tallies visits by status.
type StatusCounts struct {
	CompletedOnTime int `json:"completed_on_time"`
	CompletedLate   int `json:"completed_late"`
	DueOnTime       int `json:"due_on_time"`
	DueLate         int `json:"due_late"`
	Missed          int `json:"missed"`
}

// Add counts one visit of status s.
func (c *StatusCounts) Add(s model.VisitStatus) {
	switch s {
	case model.StatusCompletedOnTime:
		c.CompletedOnTime++
	case model.StatusCompletedLate:
		c.CompletedLate++
	case model.StatusDueOnTime:
		c.DueOnTime++
	case model.StatusDueLate:
		c.DueLate++
	case model.StatusMissed:
		c.Missed++
	}
}

// Merge adds o into c.
func (c *StatusCounts) Merge(o StatusCounts) {
	c.CompletedOnTime += o.CompletedOnTime
	c.CompletedLate += o.CompletedLate
	c.DueOnTime += o.DueOnTime
	c.DueLate += o.DueLate
	c.Missed += o.Missed
}

func (c StatusCounts) Completed() int { return c.CompletedOnTime + c.CompletedLate }
func (c StatusCounts) Due() int       { return c.DueOnTime + c.DueLate }
func (c StatusCounts) Total() int     { return c.Completed() + c.Due() + c.Missed }

// Rate returns completed / (completed + due + missed) as a whole percentage,
// or nil when nothing was counted.
func (c StatusCounts) Rate() *int {
	den := c.Total()
	if den == 0 {
		return nil
	}
	r := int(math.Round(float64(c.Completed()) * 100 / float64(den)))
	return &r
}

// VisitDetail is one created expected visit in a beneficiary drill-down.
type VisitDetail struct {
	VisitType     model.VisitType   `json:"visit_type"`
	ScheduledDate time.Time         `json:"scheduled_date"`
	ExpiryDate    time.Time         `json:"expiry_date"`
	Status        model.VisitStatus `json:"status"`
	InRate        bool              `json:"in_rate"`
	VisitID       string            `json:"visit_id,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// BeneficiaryRecord is the drill-down row of one beneficiary.
type BeneficiaryRecord struct {
	BeneficiaryID string        `json:"beneficiary_id"`
	WorkerID      string        `json:"worker_id"`
	Name          string        `json:"name"`
	Phone         string        `json:"phone,omitempty"`
	Eligible      bool          `json:"eligible"`
	Visits        []VisitDetail `json:"visits"`
	Counts        StatusCounts  `json:"counts"`
	// RateCounts tallies only the visits past the grace period.
	RateCounts StatusCounts `json:"rate_counts"`
	Rate       *int         `json:"rate"`
	OnTrack    bool         `json:"on_track"`
}

// WorkerSummary is the follow-up aggregate of one worker.
type WorkerSummary struct {
	WorkerID              string `json:"worker_id"`
	Beneficiaries         int    `json:"beneficiaries"`
	EligibleBeneficiaries int    `json:"eligible_beneficiaries"`
	OnTrack               int    `json:"on_track"`
	// Counts tallies every created visit of the worker's caseload.
	Counts StatusCounts `json:"counts"`
	// RateCounts tallies the visits of eligible beneficiaries past the grace
	// period; Rate is computed from it.
	RateCounts StatusCounts `json:"rate_counts"`
	Rate       *int         `json:"rate"`
	Color      Color        `json:"color"`
	// TotalVisits counts every submission by the worker, registered or not.
	TotalVisits        int                 `json:"total_visits"`
	UnregisteredVisits int                 `json:"unregistered_visits"`
	Drilldown          []BeneficiaryRecord `json:"drilldown"`
}

// Summary is the follow-up result set.
type Summary struct {
	AsOf                 time.Time       `json:"as_of"`
	Workers              []WorkerSummary `json:"workers"`
	MissingRegistrations int             `json:"missing_registrations"`
}

// Input is the merged working set of one run.
type Input struct {
	Visits        []model.CompletedVisit
	Expected      map[string][]model.ExpectedVisit
	Beneficiaries map[string]model.BeneficiaryMetadata
	// Owners maps beneficiary id to worker id.
	Owners map[string]string
}

func (in Input) owner(beneficiaryID string) string {
	if w := in.Owners[beneficiaryID]; w != "" {
		return w
	}
	return UnassignedWorker
}

// Reconcile classifies every created expected visit as of asOf and rolls the
// statuses up per beneficiary and per worker. Beneficiaries without any
// created visit contribute nothing. Visits of unregistered beneficiaries
// only reach the raw visit tallies.
func Reconcile(in Input, asOf time.Time, cfg Config) Summary {
	asOf = model.DayOf(asOf)
	idx := visit.NewIndex(in.Visits)
	workers := make(map[string]*WorkerSummary)
	worker := func(id string) *WorkerSummary {
		w, ok := workers[id]
		if !ok {
			w = &WorkerSummary{WorkerID: id, Drilldown: []BeneficiaryRecord{}}
			workers[id] = w
		}
		return w
	}

	missing := make(map[string]bool)
	for _, v := range in.Visits {
		w := worker(v.WorkerID)
		w.TotalVisits++
		if _, ok := in.Beneficiaries[v.BeneficiaryID]; !ok {
			w.UnregisteredVisits++
			if !missing[v.BeneficiaryID] {
				missing[v.BeneficiaryID] = true
				zap.L().Warn("followup: visit for unregistered beneficiary",
					zap.String("beneficiary_id", v.BeneficiaryID),
					zap.String("worker_id", v.WorkerID),
					zap.String("visit_id", v.ID),
				)
			}
		}
	}

	ids := make([]string, 0, len(in.Expected))
	for id := range in.Expected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		classified := visit.ClassifyAll(in.Expected[id], idx, asOf, cfg.Rules)
		if len(classified) == 0 {
			continue
		}
		meta := in.Beneficiaries[id]
		rec := buildRecord(id, in.owner(id), meta, classified, cfg)

		w := worker(rec.WorkerID)
		w.Beneficiaries++
		w.Counts.Merge(rec.Counts)
		if rec.OnTrack {
			w.OnTrack++
		}
		if meta.Eligible {
			w.EligibleBeneficiaries++
			w.RateCounts.Merge(rec.RateCounts)
		}
		w.Drilldown = append(w.Drilldown, rec)
	}

	summary := Summary{AsOf: asOf, Workers: make([]WorkerSummary, 0, len(workers)), MissingRegistrations: len(missing)}
	for _, w := range workers {
		w.Rate = w.RateCounts.Rate()
		w.Color = cfg.Colors.Classify(w.Rate)
		summary.Workers = append(summary.Workers, *w)
	}
	sort.Slice(summary.Workers, func(i, j int) bool {
		return summary.Workers[i].WorkerID < summary.Workers[j].WorkerID
	})
	return summary
}

func buildRecord(id, workerID string, meta model.BeneficiaryMetadata, classified []visit.Classified, cfg Config) BeneficiaryRecord {
	rec := BeneficiaryRecord{
		BeneficiaryID: id,
		WorkerID:      workerID,
		Name:          meta.Name,
		Phone:         meta.Phone,
		Eligible:      meta.Eligible,
		Visits:        make([]VisitDetail, 0, len(classified)),
	}
	for _, c := range classified {
		d := VisitDetail{
			VisitType:     c.Expected.VisitType,
			ScheduledDate: c.Expected.ScheduledDate,
			ExpiryDate:    c.Expected.ExpiryDate,
			Status:        c.Status,
			InRate:        c.InRate,
		}
		if c.Matched != nil {
			at := c.Matched.SubmittedAt
			d.VisitID = c.Matched.ID
			d.CompletedAt = &at
		}
		rec.Visits = append(rec.Visits, d)
		rec.Counts.Add(c.Status)
		if c.InRate {
			rec.RateCounts.Add(c.Status)
		}
	}
	rec.Rate = rec.RateCounts.Rate()
	rec.OnTrack = cfg.OnTrack.Evaluate(rec.Counts)
	return rec
}

// Worker returns the summary of workerID, if present.
func (s Summary) Worker(workerID string) (WorkerSummary, bool) {
	i := sort.Search(len(s.Workers), func(i int) bool { return s.Workers[i].WorkerID >= workerID })
	if i < len(s.Workers) && s.Workers[i].WorkerID == workerID {
		return s.Workers[i], true
	}
	return WorkerSummary{}, false
}
