package engine

import (
	"fmt"
	"time"
)

// Variable identifies one of the four weather conditions the engine
// computes exceedance probabilities for.
type Variable string

const (
	VariableRain Variable = "rain"
	VariableHeat Variable = "heat"
	VariableCold Variable = "cold"
	VariableWind Variable = "wind"
)

// Variables lists all supported variables in report order.
var Variables = []Variable{VariableRain, VariableHeat, VariableCold, VariableWind}

// Direction is the comparison applied between an observed value and the
// caller's threshold. Comparisons are strict; equality never matches.
type Direction int

const (
	// Exceeds counts years where value > threshold.
	Exceeds Direction = iota
	// FallsBelow counts years where value < threshold.
	FallsBelow
)

// Direction returns the threshold comparison for the variable:
// rain, heat and wind exceed; cold falls below.
func (v Variable) Direction() Direction {
	if v == VariableCold {
		return FallsBelow
	}
	return Exceeds
}

// Coordinate is a validated geographic point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate is within the WGS84 range.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrInvalidParameters, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrInvalidParameters, c.Lon)
	}
	return nil
}

// DateOfYear is a month/day pair without a year.
type DateOfYear struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Validate checks the pair is a real calendar date. February 29 is
// accepted; it maps to February 28 in non-leap lookback years.
func (d DateOfYear) Validate() error {
	if d.Month < 1 || d.Month > 12 {
		return fmt.Errorf("%w: month %d out of range [1,12]", ErrInvalidParameters, d.Month)
	}
	// Validate the day against a leap year so Feb 29 passes.
	t := time.Date(2000, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	if d.Day < 1 || t.Month() != time.Month(d.Month) || t.Day() != d.Day {
		return fmt.Errorf("%w: day %d invalid for month %d", ErrInvalidParameters, d.Day, d.Month)
	}
	return nil
}

// In resolves the date-of-year for a specific year. February 29 in a
// non-leap year resolves to February 28 rather than rolling into March.
func (d DateOfYear) In(year int) time.Time {
	day := d.Day
	if d.Month == 2 && d.Day == 29 && !isLeapYear(year) {
		day = 28
	}
	return time.Date(year, time.Month(d.Month), day, 0, 0, 0, 0, time.UTC)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Observation holds the daily values a provider reported for one
// historical date. Fields are nil when the provider had no value.
type Observation struct {
	Date          time.Time
	TempMax       *float64
	TempMin       *float64
	Precipitation *float64
	WindSpeed     *float64
}

// Value returns the observed quantity for the given variable.
func (o *Observation) Value(v Variable) *float64 {
	if o == nil {
		return nil
	}
	switch v {
	case VariableRain:
		return o.Precipitation
	case VariableHeat:
		return o.TempMax
	case VariableCold:
		return o.TempMin
	case VariableWind:
		return o.WindSpeed
	}
	return nil
}

// YearSample associates one lookback year with the provider outcome for
// its resolved date. Observation is nil when the answering provider had
// no data (not_found) or when every provider failed for that year.
type YearSample struct {
	Year        int
	Source      string
	Observation *Observation
}

// YearValue is one (year, value) pair used in a probability computation.
type YearValue struct {
	Year  int      `json:"year"`
	Value *float64 `json:"value"`
}

// Stats holds descriptive statistics over the present values of one
// variable's sample.
type Stats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// VariableProbability is the outcome of one variable's pipeline.
type VariableProbability struct {
	Probability float64 `json:"probability"`
	Threshold   float64 `json:"threshold"`
	DataPoints  int     `json:"data_points"`
	Source      string  `json:"source"`
	Stats       Stats   `json:"stats"`

	// RawValues feeds the merged historical_data section of the report;
	// it is ordered by year ascending and not serialized per-variable.
	RawValues []YearValue `json:"-"`
}

// Thresholds carries the caller-supplied threshold per variable. The
// engine enforces no defaults; defaults belong to the API layer.
type Thresholds struct {
	Rain float64
	Heat float64
	Cold float64
	Wind float64
}

// For returns the threshold for the given variable.
func (t Thresholds) For(v Variable) float64 {
	switch v {
	case VariableRain:
		return t.Rain
	case VariableHeat:
		return t.Heat
	case VariableCold:
		return t.Cold
	default:
		return t.Wind
	}
}

// VariableResult wraps a variable's probability or the error that kept
// it from being computed. Exactly one of the two is set.
type VariableResult struct {
	*VariableProbability
	Err error
}

// HistoricalRecord is one per-year row of the report's historical_data
// section, merging all four variables for display and export.
type HistoricalRecord struct {
	Year          int      `json:"year"`
	Date          string   `json:"date"`
	TempMax       *float64 `json:"temp_max"`
	TempMin       *float64 `json:"temp_min"`
	Precipitation *float64 `json:"precip"`
	WindSpeed     *float64 `json:"windspeed"`
}

// ProbabilityReport is the aggregate answer for one analyze request.
type ProbabilityReport struct {
	Variables      map[Variable]VariableResult
	Location       Coordinate
	Date           DateOfYear
	HistoricalData []HistoricalRecord
	Source         string
	DataPoints     int
	GeneratedAt    time.Time
}
