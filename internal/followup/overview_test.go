package followup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flw-audit/internal/gps"
	"github.com/sells-group/flw-audit/internal/model"
)

func TestBuildOverview(t *testing.T) {
	in := Input{
		Visits: []model.CompletedVisit{
			completed("f1", "w1", "b1", model.VisitANC, 12),
			completed("f2", "w1", "b1", model.VisitPostnatal, 12),
			completed("f3", "w2", "b3", model.VisitANC, 12),
		},
		Expected: map[string][]model.ExpectedVisit{
			"b1": {expected("b1", model.VisitANC, 14, -10)},
			"b2": {expected("b2", model.VisitANC, 20, 15)},
		},
		Beneficiaries: map[string]model.BeneficiaryMetadata{
			"b1": {ID: "b1", Phone: "9845012345", Eligible: true},
			"b2": {ID: "b2", Phone: "9845012345", Eligible: true},
		},
		Owners: map[string]string{"b1": "w1", "b2": "w1", "b3": "w2"},
	}
	cfg := DefaultConfig()

	fu := Reconcile(in, asOf, cfg)
	g := gps.Summary{Workers: []gps.WorkerGPS{
		{WorkerID: "w1", VisitsWithGPS: 2, FlaggedCount: 1, MaxCaseMeters: 7200},
		{WorkerID: "w3", VisitsWithGPS: 4},
	}}

	ov := BuildOverview(fu, g, in, cfg)
	require.Len(t, ov.Rows, 3)
	assert.Equal(t, asOf, ov.AsOf)

	w1 := ov.Rows[0]
	assert.Equal(t, "w1", w1.WorkerID)
	assert.Equal(t, 2, w1.Beneficiaries)
	assert.Equal(t, 2, w1.TotalVisits)
	require.NotNil(t, w1.FollowUpRate)
	assert.Equal(t, 50, *w1.FollowUpRate)
	assert.Equal(t, ColorCritical, w1.Color)
	assert.Equal(t, 1, w1.Missed)
	assert.Equal(t, 1, w1.FlaggedCaseLegs)
	assert.InDelta(t, 7200, w1.MaxCaseMeters, 1e-9)
	assert.Equal(t, 2, w1.Quality.Beneficiaries)
	require.NotNil(t, w1.Quality.DuplicatePhonePct)
	assert.InDelta(t, 100.0, *w1.Quality.DuplicatePhonePct, 1e-9)
	assert.Equal(t, 1, w1.Quality.SameDayMilestones)

	w2 := ov.Rows[1]
	assert.Equal(t, "w2", w2.WorkerID)
	assert.Equal(t, 1, w2.TotalVisits)
	assert.Nil(t, w2.FollowUpRate)
	assert.Equal(t, 0, w2.Quality.Beneficiaries, "unregistered beneficiaries are not scored")

	w3 := ov.Rows[2]
	assert.Equal(t, "w3", w3.WorkerID)
	assert.Equal(t, 4, w3.VisitsWithGPS)
}

func TestBuildOverview_QualityCoversFollowUpCaseload(t *testing.T) {
	uncreated, err := model.NewExpectedVisit("b3", model.VisitMonth6, time.Time{}, time.Time{}, false)
	require.NoError(t, err)

	in := Input{
		Visits: []model.CompletedVisit{
			completed("f1", "w1", "b1", model.VisitANC, 12),
			completed("f2", "w1", "b3", model.VisitANC, 12),
			completed("f3", "w1", "b4", model.VisitPostnatal, 12),
		},
		Expected: map[string][]model.ExpectedVisit{
			"b1": {expected("b1", model.VisitANC, 14, -10)},
			"b3": {uncreated},
		},
		Beneficiaries: map[string]model.BeneficiaryMetadata{
			"b1": {ID: "b1", Phone: "9845012345", Eligible: true},
			"b3": {ID: "b3", Phone: "9845012345", Eligible: true},
			"b4": {ID: "b4", Phone: "9845099999", Eligible: true},
		},
		Owners: map[string]string{"b1": "w1", "b3": "w1", "b4": "w1"},
	}
	cfg := DefaultConfig()

	ov := BuildOverview(Reconcile(in, asOf, cfg), gps.Summary{}, in, cfg)
	require.Len(t, ov.Rows, 1)

	w1 := ov.Rows[0]
	assert.Equal(t, 1, w1.Beneficiaries)
	assert.Equal(t, w1.Beneficiaries, w1.Quality.Beneficiaries, "zero-slot beneficiaries are not scored")
	require.NotNil(t, w1.Quality.DuplicatePhonePct)
	assert.InDelta(t, 0.0, *w1.Quality.DuplicatePhonePct, 1e-9, "b3 shares b1's phone but is not scored")
}
