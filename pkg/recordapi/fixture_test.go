package recordapi

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
domains:
  demo:
    visits:
      - id: f1
        user_id: w1
        case_id: c1
        visit_type: "ANC Visit "
        submitted_at: "2026-05-01T09:00:00Z"
        gps: "12.97 77.59 0 8"
        app_version: 52
    registrations:
      - case_id: c1
        owner_id: w1
        phone: "98450 12345"
        eligible: true
        visits:
          - visit_type: anc
            scheduled_date: "2026-04-28"
            expiry_date: "2026-05-20"
            created: true
`

func TestParseFixture(t *testing.T) {
	fc, err := ParseFixture(strings.NewReader(fixtureYAML))
	require.NoError(t, err)

	ctx := context.Background()
	n, err := fc.CountVisits(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	visits, err := fc.ListVisits(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "ANC Visit ", visits[0].VisitType)
	assert.Equal(t, 52, visits[0].AppVersion)

	regs, err := fc.ListRegistrations(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.True(t, regs[0].Visits[0].Created)

	_, err = fc.CountRegistrations(ctx, "other")
	assert.Error(t, err)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	fc, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Contains(t, fc.Domains, "demo")

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFixtureClient_ImplementsClient(t *testing.T) {
	var _ Client = (*FixtureClient)(nil)
	var _ Client = (*HTTPClient)(nil)
}
