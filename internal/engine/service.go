package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/weatherscope/probability-engine/internal/metrics"
)

// Service is the aggregation facade: it validates the request, runs the
// sampler and probability calculator for each variable concurrently,
// and assembles the unified ProbabilityReport.
type Service struct {
	sampler        *Sampler
	requestTimeout time.Duration
}

// NewService creates a Service. requestTimeout is the aggregate
// deadline for one analyze request; pipelines that run out of time
// return the years they have rather than hanging.
func NewService(sampler *Sampler, requestTimeout time.Duration) *Service {
	return &Service{sampler: sampler, requestTimeout: requestTimeout}
}

// AnalyzeVariable runs a single variable's pipeline.
func (s *Service) AnalyzeVariable(ctx context.Context, coord Coordinate, doy DateOfYear, v Variable, threshold float64, lookbackYears int) (*VariableProbability, error) {
	if err := validateRequest(coord, doy); err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	return s.runPipeline(ctx, coord, doy, v, threshold, lookbackYears)
}

// Analyze runs all four variable pipelines concurrently and assembles
// the report. A failing variable is surfaced as a per-variable error
// marker; the whole request fails with ErrNoDataAvailable only when
// every variable fails.
func (s *Service) Analyze(ctx context.Context, coord Coordinate, doy DateOfYear, thresholds Thresholds, lookbackYears int) (*ProbabilityReport, error) {
	if err := validateRequest(coord, doy); err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[Variable]VariableResult, len(Variables))
		samples = make(map[Variable][]YearSample, len(Variables))
	)

	for _, v := range Variables {
		v := v
		wg.Add(1)
		go func() {
			defer wg.Done()

			smp, err := s.sampler.Sample(ctx, coord, doy, lookbackYears)
			if err != nil {
				log.Printf("analyze: %s pipeline failed: %v", v, err)
				mu.Lock()
				results[v] = VariableResult{Err: err}
				mu.Unlock()
				return
			}

			vp, err := computeForVariable(smp, v, thresholds.For(v))
			mu.Lock()
			if err != nil {
				results[v] = VariableResult{Err: err}
			} else {
				results[v] = VariableResult{VariableProbability: vp}
				samples[v] = smp
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, v := range Variables {
		if results[v].Err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		metrics.ReportsGenerated.WithLabelValues("failed").Inc()
		// Preserve provider unavailability so the API layer can answer
		// 503 instead of 404 when upstreams are down.
		for _, v := range Variables {
			if FailureKindOf(results[v].Err) == FailUnavailable {
				return nil, fmt.Errorf("%w: all variable pipelines failed: %w", ErrNoDataAvailable, results[v].Err)
			}
		}
		return nil, fmt.Errorf("%w: all variable pipelines failed", ErrNoDataAvailable)
	}

	historical := mergeHistorical(samples)
	outcome := "complete"
	if succeeded < len(Variables) {
		outcome = "partial"
	}
	metrics.ReportsGenerated.WithLabelValues(outcome).Inc()

	return &ProbabilityReport{
		Variables:      results,
		Location:       coord,
		Date:           doy,
		HistoricalData: historical,
		Source:         modalSource(samples),
		DataPoints:     len(historical),
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout > 0 {
		return context.WithTimeout(ctx, s.requestTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) runPipeline(ctx context.Context, coord Coordinate, doy DateOfYear, v Variable, threshold float64, lookbackYears int) (*VariableProbability, error) {
	smp, err := s.sampler.Sample(ctx, coord, doy, lookbackYears)
	if err != nil {
		return nil, err
	}
	return computeForVariable(smp, v, threshold)
}

// computeForVariable projects the year samples onto one variable's
// values and runs the probability calculation. The variable's source is
// the provider that served the most present years.
func computeForVariable(samples []YearSample, v Variable, threshold float64) (*VariableProbability, error) {
	values := make([]YearValue, 0, len(samples))
	sourceCounts := make(map[string]int)

	for _, smp := range samples {
		val := smp.Observation.Value(v)
		values = append(values, YearValue{Year: smp.Year, Value: val})
		if val != nil {
			sourceCounts[smp.Source]++
		}
	}

	vp, err := ComputeProbability(values, threshold, v.Direction())
	if err != nil {
		return nil, err
	}
	vp.Source = modalKey(sourceCounts)
	return vp, nil
}

// mergeHistorical unions the per-variable samples into one per-year
// record sequence, ordered by year ascending. Variables share cached
// router results, so overlapping years carry identical observations.
func mergeHistorical(samples map[Variable][]YearSample) []HistoricalRecord {
	byYear := make(map[int]HistoricalRecord)
	var years []int

	for _, smps := range samples {
		for _, smp := range smps {
			if smp.Observation == nil {
				continue
			}
			if _, seen := byYear[smp.Year]; !seen {
				years = append(years, smp.Year)
			}
			byYear[smp.Year] = HistoricalRecord{
				Year:          smp.Year,
				Date:          smp.Observation.Date.Format("2006-01-02"),
				TempMax:       smp.Observation.TempMax,
				TempMin:       smp.Observation.TempMin,
				Precipitation: smp.Observation.Precipitation,
				WindSpeed:     smp.Observation.WindSpeed,
			}
		}
	}

	sort.Ints(years)
	records := make([]HistoricalRecord, 0, len(years))
	for _, y := range years {
		records = append(records, byYear[y])
	}
	return records
}

// modalSource picks the provider that served the most years across all
// successful pipelines; it labels the report as a whole.
func modalSource(samples map[Variable][]YearSample) string {
	counts := make(map[string]int)
	for _, smps := range samples {
		for _, smp := range smps {
			if smp.Observation != nil {
				counts[smp.Source]++
			}
		}
	}
	return modalKey(counts)
}

func modalKey(counts map[string]int) string {
	best, bestCount := "", 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best
}

func validateRequest(coord Coordinate, doy DateOfYear) error {
	if err := coord.Validate(); err != nil {
		return err
	}
	return doy.Validate()
}

// IsInvalidParameters reports whether err stems from request validation.
func IsInvalidParameters(err error) bool { return errors.Is(err, ErrInvalidParameters) }
