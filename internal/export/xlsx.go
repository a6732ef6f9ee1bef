// Package export writes analysis results to spreadsheet workbooks.
package export

import (
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/flw-audit/internal/followup"
	"github.com/sells-group/flw-audit/internal/model"
)

// Sheet names of the overview workbook.
const (
	SheetOverview      = "Overview"
	SheetBeneficiaries = "Beneficiaries"
)

var overviewHeader = []string{
	"Worker", "Beneficiaries", "Total Visits", "Follow-up Rate", "Color", "Missed", "On Track",
	"Visits With GPS", "Flagged Case Legs", "Max Case Distance (m)", "Median m/Visit", "Median min/Visit",
	"Avg Daily Travel (m)", "Duplicate Phone %", "Parity Non-Unique %", "Top Parity", "Age Non-Unique %",
	"Top Age", "Same-Day Milestones", "Birthday = Registration %",
}

var beneficiaryHeader = []string{
	"Worker", "Beneficiary", "Name", "Eligible", "Visit Type", "Scheduled", "Expiry", "Status",
	"In Rate", "Completed At", "Beneficiary Rate", "On Track",
}

// BuildOverviewWorkbook lays out the overview rows and the follow-up
// drill-down as two sheets.
func BuildOverviewWorkbook(ov followup.Overview, fu followup.Summary) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SheetOverview)
	if err != nil {
		return nil, eris.Wrap(err, "export: add overview sheet")
	}
	addStrings(sheet.AddRow(), overviewHeader)
	for _, r := range ov.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.WorkerID)
		row.AddCell().SetInt(r.Beneficiaries)
		row.AddCell().SetInt(r.TotalVisits)
		addIntPtr(row, r.FollowUpRate)
		row.AddCell().SetString(string(r.Color))
		row.AddCell().SetInt(r.Missed)
		row.AddCell().SetInt(r.OnTrack)
		row.AddCell().SetInt(r.VisitsWithGPS)
		row.AddCell().SetInt(r.FlaggedCaseLegs)
		addFloat(row, r.MaxCaseMeters)
		addFloatPtr(row, r.MedianMetersPerVisit)
		addFloatPtr(row, r.MedianMinutesPerVisit)
		addFloat(row, r.AvgDailyTravelMeters)
		addFloatPtr(row, r.Quality.DuplicatePhonePct)
		addFloatPtr(row, r.Quality.Parity.NonUniquePct)
		row.AddCell().SetString(r.Quality.Parity.TopValue)
		addFloatPtr(row, r.Quality.Age.NonUniquePct)
		row.AddCell().SetString(r.Quality.Age.TopValue)
		row.AddCell().SetInt(r.Quality.SameDayMilestones)
		addFloatPtr(row, r.Quality.BirthdayMatchesRegPct)
	}

	detail, err := f.AddSheet(SheetBeneficiaries)
	if err != nil {
		return nil, eris.Wrap(err, "export: add beneficiaries sheet")
	}
	addStrings(detail.AddRow(), beneficiaryHeader)
	for _, w := range fu.Workers {
		for _, b := range w.Drilldown {
			for _, v := range b.Visits {
				row := detail.AddRow()
				row.AddCell().SetString(w.WorkerID)
				row.AddCell().SetString(b.BeneficiaryID)
				row.AddCell().SetString(b.Name)
				row.AddCell().SetBool(b.Eligible)
				row.AddCell().SetString(string(v.VisitType))
				row.AddCell().SetString(formatDay(v.ScheduledDate))
				row.AddCell().SetString(formatDay(v.ExpiryDate))
				row.AddCell().SetString(string(v.Status))
				row.AddCell().SetBool(v.InRate)
				if v.CompletedAt != nil {
					row.AddCell().SetString(v.CompletedAt.UTC().Format(time.RFC3339))
				} else {
					row.AddCell().SetString("")
				}
				addIntPtr(row, b.Rate)
				row.AddCell().SetBool(b.OnTrack)
			}
		}
	}
	return f, nil
}

// WriteOverview writes the workbook to w.
func WriteOverview(w io.Writer, ov followup.Overview, fu followup.Summary) error {
	f, err := BuildOverviewWorkbook(ov, fu)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// SaveOverview writes the workbook to path.
func SaveOverview(path string, ov followup.Overview, fu followup.Summary) error {
	f, err := BuildOverviewWorkbook(ov, fu)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addIntPtr(row *xlsx.Row, v *int) {
	if v == nil {
		row.AddCell().SetString("")
		return
	}
	row.AddCell().SetInt(*v)
}

func addFloat(row *xlsx.Row, v float64) {
	row.AddCell().SetString(strconv.FormatFloat(v, 'f', 1, 64))
}

func addFloatPtr(row *xlsx.Row, v *float64) {
	if v == nil {
		row.AddCell().SetString("")
		return
	}
	addFloat(row, *v)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}
