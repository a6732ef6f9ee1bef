package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *Location
	}{
		{"full", "12.5 77.25 900 4.5", &Location{Latitude: 12.5, Longitude: 77.25, Precision: 4.5}},
		{"no accuracy", "12.5 77.25", &Location{Latitude: 12.5, Longitude: 77.25}},
		{"blank", "", nil},
		{"one field", "12.5", nil},
		{"garbage", "north east", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLocation(tt.raw))
		})
	}
}

func TestLocationUsable(t *testing.T) {
	assert.True(t, (&Location{Latitude: 1, Longitude: 2, Precision: 5}).Usable())
	assert.False(t, (&Location{Latitude: 1, Longitude: 2}).Usable(), "zero precision")
	assert.False(t, (&Location{Precision: 5}).Usable(), "null island")
	assert.False(t, (&Location{Latitude: 91, Longitude: 2, Precision: 5}).Usable())
	var nilLoc *Location
	assert.False(t, nilLoc.Usable())
}

func TestNewCompletedVisit(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	v, err := NewCompletedVisit("f1", "w1", "b1", VisitANC, at, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "w1", v.WorkerID)
	assert.Equal(t, at, v.SubmittedAt)

	_, err = NewCompletedVisit("", "w1", "b1", VisitANC, at, nil, 3)
	assert.Error(t, err)
	_, err = NewCompletedVisit("f1", "", "b1", VisitANC, at, nil, 3)
	assert.Error(t, err)
	_, err = NewCompletedVisit("f1", "w1", "", VisitANC, at, nil, 3)
	assert.Error(t, err)
	_, err = NewCompletedVisit("f1", "w1", "b1", VisitType("ANC Visit"), at, nil, 3)
	assert.Error(t, err)
	_, err = NewCompletedVisit("f1", "w1", "b1", VisitANC, time.Time{}, nil, 3)
	assert.Error(t, err)
}

func TestNewExpectedVisit(t *testing.T) {
	sched := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	exp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	ev, err := NewExpectedVisit("b1", VisitMonth1, sched, exp, true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ev.ScheduledDate)

	_, err = NewExpectedVisit("b1", VisitMonth1, exp, sched, true)
	assert.Error(t, err, "expiry before scheduled")

	_, err = NewExpectedVisit("b1", VisitMonth1, time.Time{}, exp, true)
	assert.Error(t, err)

	ev, err = NewExpectedVisit("b1", VisitMonth1, time.Time{}, time.Time{}, false)
	require.NoError(t, err, "uncreated slots need no dates")
	assert.False(t, ev.Created)
}

func TestVisitStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompletedLate.Completed())
	assert.False(t, StatusDueLate.Completed())
	assert.True(t, StatusDueLate.Due())
	assert.False(t, StatusMissed.Due())
	assert.False(t, VisitStatus("unknown").Valid())
	for _, s := range AllStatuses {
		assert.True(t, s.Valid())
	}
}

func TestDateHelpers(t *testing.T) {
	a := time.Date(2026, 1, 30, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 2, 2, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), DayOf(b))
	assert.Equal(t, time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC), AddDays(a, 7))

	d, err := ParseDate("2026-02-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), d)
	d, err = ParseDate("2026-02-03T18:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), d)
	_, err = ParseDate("yesterday")
	assert.Error(t, err)
}

func TestDayOf_UsesSubmissionOffset(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	est := time.FixedZone("EST", -5*3600)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"early morning ahead of utc", time.Date(2026, 5, 10, 2, 0, 0, 0, ist), time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"late evening behind utc", time.Date(2026, 5, 9, 22, 0, 0, 0, est), time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC)},
		{"utc", time.Date(2026, 5, 9, 23, 59, 0, 0, time.UTC), time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC)},
		{"zero", time.Time{}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayOf(tt.in))
		})
	}
}
