package visit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/flw-audit/internal/model"
)

func TestNormalizeVisitType(t *testing.T) {
	tests := []struct {
		label string
		want  model.VisitType
		ok    bool
	}{
		{"anc", model.VisitANC, true},
		{"ANC Visit ", model.VisitANC, true},
		{"Antenatal_Visit", model.VisitANC, true},
		{"PNC", model.VisitPostnatal, true},
		{"Postnatal Delivery Visit", model.VisitPostnatal, true},
		{"1 Week Visit", model.VisitWeek1, true},
		{"week1", model.VisitWeek1, true},
		{"Week-1 Follow Up", model.VisitWeek1, true},
		{"1 Month Visit", model.VisitMonth1, true},
		{"3 Month Follow Up", model.VisitMonth3, true},
		{"６ Month Visit", model.VisitMonth6, true}, // full-width digit
		{"Six Month Visit\t", model.VisitMonth6, true},
		{"visit", "", false},
		{"", "", false},
		{"Registration", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := NormalizeVisitType(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
