package regime

import "regime-seeker/internal/model"

// Zone is a maximal run of consecutive bars sharing one state.
// StartIdx and EndIdx are inclusive indices into the enriched series.
type Zone struct {
	State     State `json:"state"`
	StartIdx  int   `json:"startIdx"`
	EndIdx    int   `json:"endIdx"`
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

// Bars returns the number of bars in the zone.
func (z Zone) Bars() int { return z.EndIdx - z.StartIdx + 1 }

// Zones splits an enriched series into runs of equal state.
func Zones(enriched []model.EnrichedCandle) []Zone {
	if len(enriched) == 0 {
		return nil
	}

	var zones []Zone
	start := 0
	for i := 1; i <= len(enriched); i++ {
		if i < len(enriched) && enriched[i].State == enriched[start].State {
			continue
		}
		zones = append(zones, Zone{
			State:     ParseState(enriched[start].State),
			StartIdx:  start,
			EndIdx:    i - 1,
			StartTime: enriched[start].Time,
			EndTime:   enriched[i-1].Time,
		})
		start = i
	}
	return zones
}
