package gps

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/flw-audit/internal/model"
)

// DailyTrack renders one worker's visits on the given day as a GeoJSON
// FeatureCollection: a Point per visit with usable GPS, plus the
// chronological LineString through them when there are at least two.
func DailyTrack(visits []model.CompletedVisit, workerID string, day time.Time) ([]byte, error) {
	day = model.DayOf(day)

	var dayVisits []model.CompletedVisit
	for _, v := range visits {
		if v.WorkerID == workerID && model.DayOf(v.SubmittedAt).Equal(day) {
			if _, ok := PointOf(v); ok {
				dayVisits = append(dayVisits, v)
			}
		}
	}
	sortByTime(dayVisits)

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(dayVisits)+1)}
	flat := make([]float64, 0, 2*len(dayVisits))
	var meters float64
	for i, v := range dayVisits {
		p, _ := PointOf(v)
		if i > 0 {
			prev, _ := PointOf(dayVisits[i-1])
			meters += HaversineMeters(prev, p)
		}
		flat = append(flat, p.Lon, p.Lat)
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       v.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(4326),
			Properties: map[string]interface{}{
				"beneficiary_id": v.BeneficiaryID,
				"visit_type":     string(v.VisitType),
				"submitted_at":   v.SubmittedAt.Format(time.RFC3339),
				"sequence":       i + 1,
			},
		})
	}

	if len(dayVisits) >= 2 {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       workerID + "/" + day.Format(model.DateLayout),
			Geometry: geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326),
			Properties: map[string]interface{}{
				"worker_id": workerID,
				"date":      day.Format(model.DateLayout),
				"meters":    meters,
			},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "gps: encode daily track")
	}
	return data, nil
}
