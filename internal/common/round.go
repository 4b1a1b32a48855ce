package common

import "math"

// Round3 rounds to three decimal places, the precision probabilities
// and summary statistics are reported at.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
