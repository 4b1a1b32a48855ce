package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/weatherscope/probability-engine/internal/cache"
)

// Sampler gathers one observation per lookback year for a target
// month/day, fanning the per-year queries out concurrently through the
// Source Router under a concurrency cap.
type Sampler struct {
	router         *Router
	memo           *cache.Cache[YearResult]
	maxConcurrency int64

	// now is injectable for tests.
	now func() time.Time
}

// NewSampler creates a Sampler. memo de-duplicates identical
// (chain, coordinate, date) lookups across concurrent variable
// pipelines; it may be shared process-wide.
func NewSampler(router *Router, memo *cache.Cache[YearResult], maxConcurrency int) *Sampler {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Sampler{
		router:         router,
		memo:           memo,
		maxConcurrency: int64(maxConcurrency),
		now:            time.Now,
	}
}

// Sample returns one YearSample per lookback year, ordered by year
// ascending. A year whose fallback chain was exhausted is recorded with
// a nil observation rather than aborting the batch; when the request
// deadline expires mid-batch the years still pending are likewise
// recorded as missing so partial results survive. If strictly zero
// years yielded an observation, Sample fails with ErrInsufficientData.
func (s *Sampler) Sample(ctx context.Context, coord Coordinate, doy DateOfYear, lookbackYears int) ([]YearSample, error) {
	if lookbackYears <= 0 {
		return nil, fmt.Errorf("%w: lookback years must be positive", ErrInvalidParameters)
	}

	years := s.lookbackRange(doy, lookbackYears)
	samples := make([]YearSample, len(years))

	sem := semaphore.NewWeighted(s.maxConcurrency)
	var (
		g       errgroup.Group
		mu      sync.Mutex
		lastErr error
	)

	for i, year := range years {
		i, year := i, year
		samples[i].Year = year

		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Deadline hit before this year's turn; keep it missing.
				return nil
			}
			defer sem.Release(1)

			date := doy.In(year)
			key := s.memoKey(coord, date)

			res, err := s.memo.Do(key, func() (YearResult, error) {
				return s.router.FetchWithFallback(ctx, coord, date)
			})
			if err != nil {
				log.Printf("sampler: year %d missing for (%.4f,%.4f): %v", year, coord.Lat, coord.Lon, err)
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}

			samples[i].Source = res.Source
			samples[i].Observation = res.Observation
			return nil
		})
	}

	// Workers never return errors; missing years are recorded in place.
	_ = g.Wait()

	usable := 0
	for _, smp := range samples {
		if smp.Observation != nil {
			usable++
		}
	}
	if usable == 0 {
		// Keep the provider failure in the chain so callers can tell
		// "providers were down" apart from "there is no data".
		if lastErr != nil {
			return nil, fmt.Errorf("%w: no year in the last %d yielded data: %w", ErrInsufficientData, lookbackYears, lastErr)
		}
		return nil, fmt.Errorf("%w: no year in the last %d yielded data", ErrInsufficientData, lookbackYears)
	}

	return samples, nil
}

// lookbackRange builds the ascending year list ending at the most
// recent year whose resolved date is not in the future: the current
// year when the month/day has already passed, else the previous year.
func (s *Sampler) lookbackRange(doy DateOfYear, lookbackYears int) []int {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	endYear := now.Year()
	if doy.In(endYear).After(today) {
		endYear--
	}

	years := make([]int, 0, lookbackYears)
	for y := endYear - lookbackYears + 1; y <= endYear; y++ {
		years = append(years, y)
	}
	return years
}

func (s *Sampler) memoKey(coord Coordinate, date time.Time) string {
	return fmt.Sprintf("%s|%.4f,%.4f|%s", s.router.ChainKey(), coord.Lat, coord.Lon, date.Format("2006-01-02"))
}
