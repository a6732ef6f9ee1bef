package gps

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/model"
)

// Config holds the thresholds of the GPS audit.
type Config struct {
	// FlagThresholdKM is the revisit distance above which a case leg is flagged.
	FlagThresholdKM float64
	// MinAppVersion excludes visits from older clients from per-visit medians.
	MinAppVersion int
	// TrendDays is the length of the trailing daily-travel series.
	TrendDays int
}

// DefaultConfig returns the stock 5 km flag threshold and 7-day trend.
func DefaultConfig() Config {
	return Config{FlagThresholdKM: 5, TrendDays: 7}
}

// CaseLeg is the distance between two consecutive visits to the same beneficiary.
type CaseLeg struct {
	BeneficiaryID string    `json:"beneficiary_id"`
	FromVisitID   string    `json:"from_visit_id"`
	ToVisitID     string    `json:"to_visit_id"`
	FromAt        time.Time `json:"from_at"`
	ToAt          time.Time `json:"to_at"`
	Meters        float64   `json:"meters"`
	Flagged       bool      `json:"flagged"`
}

// CaseDistances sequences each beneficiary's visits by submission time and
// measures the distance between consecutive visits with usable GPS. Only
// revisits of the same beneficiary form legs; jumps between different
// beneficiaries are never measured here.
func CaseDistances(visits []model.CompletedVisit, thresholdKM float64) []CaseLeg {
	byCase := make(map[string][]model.CompletedVisit)
	for _, v := range visits {
		if _, ok := PointOf(v); !ok {
			continue
		}
		byCase[v.BeneficiaryID] = append(byCase[v.BeneficiaryID], v)
	}

	ids := make([]string, 0, len(byCase))
	for id := range byCase {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var legs []CaseLeg
	for _, id := range ids {
		group := byCase[id]
		sortByTime(group)
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			a, _ := PointOf(prev)
			b, _ := PointOf(cur)
			m := HaversineMeters(a, b)
			legs = append(legs, CaseLeg{
				BeneficiaryID: id,
				FromVisitID:   prev.ID,
				ToVisitID:     cur.ID,
				FromAt:        prev.SubmittedAt,
				ToAt:          cur.SubmittedAt,
				Meters:        m,
				Flagged:       m > thresholdKM*1000,
			})
		}
	}
	return legs
}

// DayTravel is the path a worker walked through one day's visits.
type DayTravel struct {
	Date          string  `json:"date"`
	Visits        int     `json:"visits"`
	VisitsWithGPS int     `json:"visits_with_gps"`
	Meters        float64 `json:"meters"`
}

// DailyTravel groups visits by calendar day and sums the distance between
// consecutive GPS fixes in chronological order. Days are returned in order.
func DailyTravel(visits []model.CompletedVisit) []DayTravel {
	byDay := groupByDay(visits)

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]DayTravel, 0, len(days))
	for _, d := range days {
		group := byDay[d]
		dt := DayTravel{Date: d, Visits: len(group)}
		var prev *Point
		for _, v := range group {
			p, ok := PointOf(v)
			if !ok {
				continue
			}
			dt.VisitsWithGPS++
			if prev != nil {
				dt.Meters += HaversineMeters(*prev, p)
			}
			prev = &p
		}
		out = append(out, dt)
	}
	return out
}

// Trend returns the trailing n calendar days ending at end, filling days
// without visits with zero entries.
func Trend(daily []DayTravel, end time.Time, n int) []DayTravel {
	if n <= 0 {
		return nil
	}
	byDate := make(map[string]DayTravel, len(daily))
	for _, d := range daily {
		byDate[d.Date] = d
	}
	out := make([]DayTravel, 0, n)
	for i := n - 1; i >= 0; i-- {
		date := model.AddDays(end, -i).Format(model.DateLayout)
		d, ok := byDate[date]
		if !ok {
			d = DayTravel{Date: date}
		}
		out = append(out, d)
	}
	return out
}

// PerVisitMedians returns the median meters and minutes between consecutive
// same-day visits, counting only visits from clients at or above minAppVersion
// with usable GPS. A nil result means no qualifying pair existed.
func PerVisitMedians(visits []model.CompletedVisit, minAppVersion int) (meters, minutes *float64) {
	var filtered []model.CompletedVisit
	for _, v := range visits {
		if v.AppVersion < minAppVersion {
			continue
		}
		if _, ok := PointOf(v); !ok {
			continue
		}
		filtered = append(filtered, v)
	}

	var dists, durs []float64
	for _, group := range groupByDay(filtered) {
		for i := 1; i < len(group); i++ {
			a, _ := PointOf(group[i-1])
			b, _ := PointOf(group[i])
			dists = append(dists, HaversineMeters(a, b))
			durs = append(durs, group[i].SubmittedAt.Sub(group[i-1].SubmittedAt).Minutes())
		}
	}

	if m, ok := median(dists); ok {
		meters = &m
	}
	if m, ok := median(durs); ok {
		minutes = &m
	}
	return meters, minutes
}

// WorkerGPS is the GPS summary of one worker over the analysis window.
type WorkerGPS struct {
	WorkerID              string      `json:"worker_id"`
	TotalVisits           int         `json:"total_visits"`
	VisitsWithGPS         int         `json:"visits_with_gps"`
	CaseLegs              int         `json:"case_legs"`
	FlaggedCount          int         `json:"flagged_count"`
	FlaggedLegs           []CaseLeg   `json:"flagged_legs,omitempty"`
	MaxCaseMeters         float64     `json:"max_case_meters"`
	MedianMetersPerVisit  *float64    `json:"median_meters_per_visit"`
	MedianMinutesPerVisit *float64    `json:"median_minutes_per_visit"`
	AvgDailyTravelMeters  float64     `json:"avg_daily_travel_meters"`
	Trend                 []DayTravel `json:"trend"`
}

// Summary is the GPS result set across all workers.
type Summary struct {
	From    time.Time   `json:"from"`
	To      time.Time   `json:"to"`
	Workers []WorkerGPS `json:"workers"`
}

// Analyze summarizes GPS metrics for every worker with visits submitted
// between from and to (inclusive calendar days).
func Analyze(visits []model.CompletedVisit, from, to time.Time, cfg Config) Summary {
	from, to = model.DayOf(from), model.DayOf(to)

	byWorker := make(map[string][]model.CompletedVisit)
	malformed := 0
	for _, v := range visits {
		day := model.DayOf(v.SubmittedAt)
		if day.Before(from) || day.After(to) {
			continue
		}
		if v.Location != nil && !v.Location.Usable() {
			malformed++
		}
		byWorker[v.WorkerID] = append(byWorker[v.WorkerID], v)
	}
	if malformed > 0 {
		zap.L().Debug("gps: visits with unusable fixes excluded from distances", zap.Int("count", malformed))
	}

	ids := make([]string, 0, len(byWorker))
	for id := range byWorker {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summary := Summary{From: from, To: to, Workers: make([]WorkerGPS, 0, len(ids))}
	for _, id := range ids {
		summary.Workers = append(summary.Workers, summarizeWorker(id, byWorker[id], to, cfg))
	}
	return summary
}

func summarizeWorker(workerID string, visits []model.CompletedVisit, end time.Time, cfg Config) WorkerGPS {
	w := WorkerGPS{WorkerID: workerID, TotalVisits: len(visits)}

	legs := CaseDistances(visits, cfg.FlagThresholdKM)
	w.CaseLegs = len(legs)
	for _, l := range legs {
		if l.Meters > w.MaxCaseMeters {
			w.MaxCaseMeters = l.Meters
		}
		if l.Flagged {
			w.FlaggedCount++
			w.FlaggedLegs = append(w.FlaggedLegs, l)
		}
	}

	daily := DailyTravel(visits)
	var total float64
	var travelDays int
	for _, d := range daily {
		w.VisitsWithGPS += d.VisitsWithGPS
		if d.VisitsWithGPS > 0 {
			total += d.Meters
			travelDays++
		}
	}
	if travelDays > 0 {
		w.AvgDailyTravelMeters = total / float64(travelDays)
	}
	w.Trend = Trend(daily, end, cfg.TrendDays)
	w.MedianMetersPerVisit, w.MedianMinutesPerVisit = PerVisitMedians(visits, cfg.MinAppVersion)
	return w
}

func groupByDay(visits []model.CompletedVisit) map[string][]model.CompletedVisit {
	byDay := make(map[string][]model.CompletedVisit)
	for _, v := range visits {
		d := model.DayOf(v.SubmittedAt).Format(model.DateLayout)
		byDay[d] = append(byDay[d], v)
	}
	for _, group := range byDay {
		sortByTime(group)
	}
	return byDay
}

func sortByTime(visits []model.CompletedVisit) {
	sort.SliceStable(visits, func(i, j int) bool {
		return visits[i].SubmittedAt.Before(visits[j].SubmittedAt)
	})
}
