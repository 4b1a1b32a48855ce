package engine

import (
	"fmt"
	"math"

	"github.com/weatherscope/probability-engine/internal/common"
)

// ComputeProbability calculates the exceedance probability of one
// variable against a threshold over a set of (year, value) pairs.
//
// Absent years are excluded from both numerator and denominator; they
// are never imputed. The comparison is strict, so a value exactly equal
// to the threshold counts toward data_points but not toward the
// numerator. When no year has a present value the computation fails
// with ErrInsufficientData rather than fabricating a probability.
func ComputeProbability(values []YearValue, threshold float64, dir Direction) (*VariableProbability, error) {
	var (
		present []float64
		matches int
	)

	for _, yv := range values {
		if yv.Value == nil {
			continue
		}
		v := *yv.Value
		present = append(present, v)

		switch dir {
		case Exceeds:
			if v > threshold {
				matches++
			}
		case FallsBelow:
			if v < threshold {
				matches++
			}
		}
	}

	if len(present) == 0 {
		return nil, fmt.Errorf("%w: no usable observations", ErrInsufficientData)
	}

	return &VariableProbability{
		Probability: common.Round3(float64(matches) / float64(len(present))),
		Threshold:   threshold,
		DataPoints:  len(present),
		Stats:       describe(present),
		RawValues:   values,
	}, nil
}

// describe computes mean, min, max and population standard deviation.
func describe(values []float64) Stats {
	min, max := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var sqSum float64
	for _, v := range values {
		d := v - mean
		sqSum += d * d
	}

	return Stats{
		Mean:   common.Round3(mean),
		Min:    common.Round3(min),
		Max:    common.Round3(max),
		StdDev: common.Round3(math.Sqrt(sqSum / float64(len(values)))),
	}
}
