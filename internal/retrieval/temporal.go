package retrieval

import "time"

const day = 24 * time.Hour

// TemporalFactor returns the age-bucket weight of a candidate. Months are counted as 30 days.
func TemporalFactor(age time.Duration) float64 {
	switch {
	case age <= 90*day:
		return 1.0
	case age <= 180*day:
		return 0.85
	case age <= 365*day:
		return 0.7
	default:
		return 0.5
	}
}
