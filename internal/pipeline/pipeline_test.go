package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flw-audit/internal/followup"
	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/source"
)

var asOf = time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

func testVisits() *source.VisitSet {
	loc := func(lat, lon float64) *model.Location {
		return &model.Location{Latitude: lat, Longitude: lon, Precision: 10}
	}
	return &source.VisitSet{
		Visits: []model.CompletedVisit{
			{ID: "f1", WorkerID: "w1", BeneficiaryID: "b1", VisitType: model.VisitANC,
				SubmittedAt: time.Date(2026, 5, 8, 9, 0, 0, 0, time.UTC), Location: loc(12.97, 77.59)},
			{ID: "f2", WorkerID: "w1", BeneficiaryID: "b1", VisitType: model.VisitPostnatal,
				SubmittedAt: time.Date(2026, 5, 18, 9, 0, 0, 0, time.UTC), Location: loc(13.10, 77.59)},
		},
		Info: source.CollectionInfo{Kind: source.KindVisits, Origin: source.OriginRemote, Rows: 2},
	}
}

func testRegistrations() *source.RegistrationSet {
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }
	return &source.RegistrationSet{
		Beneficiaries: map[string]model.BeneficiaryMetadata{
			"b1": {ID: "b1", Eligible: true, OwnerID: "w1"},
		},
		Expected: map[string][]model.ExpectedVisit{
			"b1": {
				{BeneficiaryID: "b1", VisitType: model.VisitANC, ScheduledDate: day(6), ExpiryDate: day(30), Created: true},
				{BeneficiaryID: "b1", VisitType: model.VisitPostnatal, ScheduledDate: day(9), ExpiryDate: day(30), Created: true},
			},
		},
		Info: source.CollectionInfo{Kind: source.KindRegistrations, Origin: source.OriginCache, Rows: 1},
	}
}

type progressLog struct {
	events []string
}

func (p *progressLog) record(stage, message string) {
	p.events = append(p.events, stage+": "+message)
}

func TestPipeline_Run_FullFlow(t *testing.T) {
	loader := new(mockLoader)
	loader.On("LoadVisits", mock.Anything, "demo").Return(testVisits(), nil)
	loader.On("LoadRegistrations", mock.Anything, "demo").Return(testRegistrations(), nil)

	p := New(loader, DefaultConfig())
	progress := &progressLog{}

	res, err := p.Run(context.Background(), Request{Domain: "demo", AsOf: asOf}, progress.record)
	require.NoError(t, err)
	loader.AssertExpectations(t)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, asOf, res.AsOf)

	names := make([]string, 0, len(res.Stages))
	for _, s := range res.Stages {
		names = append(names, s.Name)
		assert.Equal(t, model.StageStatusComplete, s.Status)
	}
	assert.Equal(t, []string{
		model.StageFetchVisits,
		model.StageFetchRegistrations,
		model.StageGPS,
		model.StageFollowUp,
		model.StageOverview,
	}, names)
	assert.Equal(t, "remote", res.Stages[0].Metadata["origin"])
	assert.Len(t, progress.events, 10)
	assert.Equal(t, "fetch_visits: started", progress.events[0])
	assert.Equal(t, "overview: complete", progress.events[9])

	w, ok := res.FollowUp.Worker("w1")
	require.True(t, ok)
	require.NotNil(t, w.Rate)
	// ANC on time, postnatal late (18 > 9+7): both completed.
	assert.Equal(t, 100, *w.Rate)
	assert.Equal(t, 1, w.Counts.CompletedLate)

	require.Len(t, res.GPS.Workers, 1)
	assert.Equal(t, 1, res.GPS.Workers[0].FlaggedCount, "~14.5 km revisit of b1")
	assert.Equal(t, model.AddDays(asOf, -29), res.GPS.From)

	require.Len(t, res.Overview.Rows, 1)
	assert.Equal(t, followup.ColorGood, res.Overview.Rows[0].Color)
	assert.Equal(t, 0, res.Overview.Rows[0].Quality.SameDayMilestones, "anc and postnatal on different days")
}

func TestPipeline_Run_ReportsUnregisteredBeneficiaries(t *testing.T) {
	visits := testVisits()
	visits.Visits = append(visits.Visits,
		model.CompletedVisit{ID: "f3", WorkerID: "w2", BeneficiaryID: "b9", VisitType: model.VisitANC,
			SubmittedAt: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)},
		model.CompletedVisit{ID: "f4", WorkerID: "w2", BeneficiaryID: "b9", VisitType: model.VisitPostnatal,
			SubmittedAt: time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)},
	)
	loader := new(mockLoader)
	loader.On("LoadVisits", mock.Anything, "demo").Return(visits, nil)
	loader.On("LoadRegistrations", mock.Anything, "demo").Return(testRegistrations(), nil)

	res, err := New(loader, DefaultConfig()).Run(context.Background(), Request{Domain: "demo", AsOf: asOf}, nil)
	require.NoError(t, err)

	var stage model.StageResult
	for _, s := range res.Stages {
		if s.Name == model.StageFollowUp {
			stage = s
		}
	}
	require.Equal(t, model.StageFollowUp, stage.Name)
	assert.Equal(t, 1, stage.Metadata["missing_registrations"])
	assert.Equal(t, []string{"b9"}, stage.Metadata["unregistered_beneficiaries"])
}

func TestPipeline_Run_StageFailureHalts(t *testing.T) {
	loader := new(mockLoader)
	loader.On("LoadVisits", mock.Anything, "demo").Return(testVisits(), nil)
	loader.On("LoadRegistrations", mock.Anything, "demo").Return(nil, errors.New("registrations: gateway timeout"))

	progress := &progressLog{}
	res, err := New(loader, DefaultConfig()).Run(context.Background(), Request{Domain: "demo", AsOf: asOf}, progress.record)

	require.Error(t, err)
	assert.Nil(t, res, "no partial result")

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.StageFetchRegistrations, se.Stage)
	require.Len(t, se.Stages, 2)
	assert.Equal(t, model.StageStatusFailed, se.Stages[1].Status)
	assert.Contains(t, se.Stages[1].Error, "gateway timeout")
	assert.Contains(t, err.Error(), "stage fetch_registrations failed")
	assert.Contains(t, progress.events, "fetch_registrations: failed: registrations: gateway timeout")
}

func TestPipeline_Run_CancelledBeforeStage(t *testing.T) {
	loader := new(mockLoader)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(loader, DefaultConfig()).Run(ctx, Request{Domain: "demo", AsOf: asOf}, nil)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.StageFetchVisits, se.Stage)
	assert.ErrorIs(t, err, context.Canceled)
	loader.AssertNotCalled(t, "LoadVisits", mock.Anything, mock.Anything)
}

func TestPipeline_Normalize(t *testing.T) {
	p := New(new(mockLoader), DefaultConfig())
	p.now = func() time.Time { return time.Date(2026, 5, 20, 17, 45, 0, 0, time.UTC) }

	req, err := p.Normalize(Request{Domain: " demo "})
	require.NoError(t, err)
	assert.Equal(t, "demo", req.Domain)
	assert.Equal(t, asOf, req.AsOf)
	assert.Equal(t, asOf, req.GPSTo)
	assert.Equal(t, model.AddDays(asOf, -29), req.GPSFrom)

	_, err = p.Normalize(Request{})
	assert.Error(t, err)

	_, err = p.Normalize(Request{Domain: "demo", GPSFrom: asOf, GPSTo: model.AddDays(asOf, -1)})
	assert.Error(t, err)
}
