//go:build !integration

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/flw-audit/internal/cache"
	"github.com/sells-group/flw-audit/internal/pipeline"
	"github.com/sells-group/flw-audit/pkg/recordapi"
)

const testFixture = `
domains:
  demo:
    visits:
      - id: f1
        user_id: w1
        case_id: b1
        visit_type: anc
        submitted_at: "2026-05-01T09:00:00Z"
        gps: "12.9716 77.5946 0 8"
        app_version: 52
      - id: f2
        user_id: w1
        case_id: b2
        visit_type: anc
        submitted_at: "2026-05-01T11:30:00Z"
        gps: "12.9800 77.6000 0 8"
        app_version: 52
    registrations:
      - case_id: b1
        owner_id: w1
        name: Asha
        phone: "98450 12345"
        eligible: true
        visits:
          - visit_type: anc
            scheduled_date: "2026-04-28"
            expiry_date: "2026-05-20"
            created: true
      - case_id: b2
        owner_id: w1
        name: Bela
        phone: "98450 67890"
        eligible: true
        visits:
          - visit_type: anc
            scheduled_date: "2026-04-29"
            expiry_date: "2026-05-20"
            created: true
`

func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	fc, err := recordapi.ParseFixture(strings.NewReader(testFixture))
	require.NoError(t, err)
	return newPipelineEnv(cache.NewMemory(), fc, nil, cache.RelaxedProfile(), pipeline.DefaultConfig(), "demo")
}
