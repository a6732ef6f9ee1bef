// Package pipeline runs one analysis request as a fixed sequence of stages,
// reporting progress to the caller as each stage starts and finishes.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/followup"
	"github.com/sells-group/flw-audit/internal/gps"
	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/source"
)

// Loader supplies the validated collections of a domain.
type Loader interface {
	LoadVisits(ctx context.Context, domain string) (*source.VisitSet, error)
	LoadRegistrations(ctx context.Context, domain string) (*source.RegistrationSet, error)
}

// ProgressFunc receives a stage name and a human-readable message.
type ProgressFunc func(stage, message string)

// StageError reports the stage that halted a run.
type StageError struct {
	Stage string
	Err   error
	// Stages is the stage log up to and including the failed stage.
	Stages []model.StageResult
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Config holds the thresholds used by the computation stages.
type Config struct {
	FollowUp followup.Config
	GPS      gps.Config
	// GPSWindowDays is the default GPS window length ending on the as-of day.
	GPSWindowDays int
}

// DefaultConfig returns the stock thresholds with a 30-day GPS window.
func DefaultConfig() Config {
	return Config{
		FollowUp:      followup.DefaultConfig(),
		GPS:           gps.DefaultConfig(),
		GPSWindowDays: 30,
	}
}

// Request describes one analysis.
type Request struct {
	Domain string `json:"domain"`
	// AsOf defaults to today (UTC).
	AsOf time.Time `json:"as_of"`
	// GPSFrom and GPSTo bound the GPS window; both default from AsOf.
	GPSFrom time.Time `json:"gps_from"`
	GPSTo   time.Time `json:"gps_to"`
}

// Result is the complete output of a successful run.
type Result struct {
	RunID    string              `json:"run_id"`
	Domain   string              `json:"domain"`
	AsOf     time.Time           `json:"as_of"`
	GPS      gps.Summary         `json:"gps"`
	FollowUp followup.Summary    `json:"followup"`
	Overview followup.Overview   `json:"overview"`
	Stages   []model.StageResult `json:"stages"`
}

// Pipeline executes analysis runs.
type Pipeline struct {
	loader Loader
	cfg    Config
	now    func() time.Time
}

// New creates a Pipeline.
func New(loader Loader, cfg Config) *Pipeline {
	return &Pipeline{loader: loader, cfg: cfg, now: time.Now}
}

// Normalize fills request defaults and validates it.
func (p *Pipeline) Normalize(req Request) (Request, error) {
	req.Domain = strings.TrimSpace(req.Domain)
	if req.Domain == "" {
		return req, eris.New("pipeline: domain is required")
	}
	if req.AsOf.IsZero() {
		req.AsOf = p.now()
	}
	req.AsOf = model.DayOf(req.AsOf)
	if req.GPSTo.IsZero() {
		req.GPSTo = req.AsOf
	}
	if req.GPSFrom.IsZero() {
		window := p.cfg.GPSWindowDays
		if window <= 0 {
			window = 30
		}
		req.GPSFrom = model.AddDays(req.GPSTo, -(window - 1))
	}
	req.GPSFrom, req.GPSTo = model.DayOf(req.GPSFrom), model.DayOf(req.GPSTo)
	if req.GPSFrom.After(req.GPSTo) {
		return req, eris.Errorf("pipeline: gps window starts %s after it ends %s",
			req.GPSFrom.Format(model.DateLayout), req.GPSTo.Format(model.DateLayout))
	}
	return req, nil
}

// Run executes every stage in order. The first failing stage halts the run
// and is returned as a *StageError; no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	req, err := p.Normalize(req)
	if err != nil {
		return nil, err
	}
	if onProgress == nil {
		onProgress = func(string, string) {}
	}

	result := &Result{RunID: uuid.NewString(), Domain: req.Domain, AsOf: req.AsOf}
	log := zap.L().With(zap.String("run_id", result.RunID), zap.String("domain", req.Domain))
	log.Info("pipeline: starting analysis",
		zap.String("as_of", req.AsOf.Format(model.DateLayout)),
		zap.String("gps_from", req.GPSFrom.Format(model.DateLayout)),
		zap.String("gps_to", req.GPSTo.Format(model.DateLayout)),
	)

	runStage := func(name string, fn func() (map[string]any, error)) error {
		if err := ctx.Err(); err != nil {
			return p.fail(result, name, 0, err, log)
		}
		onProgress(name, "started")

		start := time.Now()
		meta, err := fn()
		duration := time.Since(start).Milliseconds()
		if err != nil {
			onProgress(name, "failed: "+err.Error())
			return p.fail(result, name, duration, err, log)
		}

		result.Stages = append(result.Stages, model.StageResult{
			Name:     name,
			Status:   model.StageStatusComplete,
			Duration: duration,
			Metadata: meta,
		})
		log.Info("pipeline: stage complete", zap.String("stage", name), zap.Int64("duration_ms", duration))
		onProgress(name, "complete")
		return nil
	}

	var visits *source.VisitSet
	var regs *source.RegistrationSet
	var in followup.Input

	if err := runStage(model.StageFetchVisits, func() (map[string]any, error) {
		v, err := p.loader.LoadVisits(ctx, req.Domain)
		if err != nil {
			return nil, err
		}
		visits = v
		return collectionMeta(v.Info), nil
	}); err != nil {
		return nil, err
	}

	if err := runStage(model.StageFetchRegistrations, func() (map[string]any, error) {
		r, err := p.loader.LoadRegistrations(ctx, req.Domain)
		if err != nil {
			return nil, err
		}
		regs = r
		meta := collectionMeta(r.Info)
		meta["rejected_slots"] = r.RejectedSlots
		return meta, nil
	}); err != nil {
		return nil, err
	}

	ds := source.Merge(req.Domain, visits, regs)
	in = followup.Input{
		Visits:        ds.Visits,
		Expected:      ds.Expected,
		Beneficiaries: ds.Beneficiaries,
		Owners:        ds.Owners,
	}

	if err := runStage(model.StageGPS, func() (map[string]any, error) {
		result.GPS = gps.Analyze(in.Visits, req.GPSFrom, req.GPSTo, p.cfg.GPS)
		flagged := 0
		for _, w := range result.GPS.Workers {
			flagged += w.FlaggedCount
		}
		return map[string]any{"workers": len(result.GPS.Workers), "flagged_case_legs": flagged}, nil
	}); err != nil {
		return nil, err
	}

	if err := runStage(model.StageFollowUp, func() (map[string]any, error) {
		result.FollowUp = followup.Reconcile(in, req.AsOf, p.cfg.FollowUp)
		meta := map[string]any{
			"workers":               len(result.FollowUp.Workers),
			"missing_registrations": result.FollowUp.MissingRegistrations,
		}
		if missing := ds.MissingRegistrations(); len(missing) > 0 {
			meta["unregistered_beneficiaries"] = missing
		}
		return meta, nil
	}); err != nil {
		return nil, err
	}

	if err := runStage(model.StageOverview, func() (map[string]any, error) {
		result.Overview = followup.BuildOverview(result.FollowUp, result.GPS, in, p.cfg.FollowUp)
		return map[string]any{"rows": len(result.Overview.Rows)}, nil
	}); err != nil {
		return nil, err
	}

	log.Info("pipeline: analysis complete", zap.Int("workers", len(result.Overview.Rows)))
	return result, nil
}

func (p *Pipeline) fail(result *Result, stage string, duration int64, err error, log *zap.Logger) error {
	result.Stages = append(result.Stages, model.StageResult{
		Name:     stage,
		Status:   model.StageStatusFailed,
		Duration: duration,
		Error:    err.Error(),
	})
	log.Error("pipeline: stage failed",
		zap.String("stage", stage),
		zap.Int64("duration_ms", duration),
		zap.Error(err),
	)
	return &StageError{Stage: stage, Err: err, Stages: result.Stages}
}

func collectionMeta(info source.CollectionInfo) map[string]any {
	return map[string]any{
		"origin":    string(info.Origin),
		"requested": info.Requested,
		"rows":      info.Rows,
		"rejected":  info.Rejected,
	}
}
