package engine

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weatherscope/probability-engine/internal/cache"
)

func newTestSampler(providers []Provider, now time.Time) *Sampler {
	router := NewRouter(providers, time.Second)
	s := NewSampler(router, cache.New[YearResult](0), 4)
	s.now = func() time.Time { return now }
	return s
}

// fixedNow is a date safely past June 15, so the current year counts as
// the most recent lookback year.
var fixedNow = time.Date(2024, time.August, 1, 12, 0, 0, 0, time.UTC)

func TestSampleKeyedByYearDespiteCompletionOrder(t *testing.T) {
	// Later years resolve faster, so completion order is roughly the
	// reverse of year order; association must still be by year.
	provider := &fakeProvider{
		name: "archive",
		fetch: func(ctx context.Context, coord Coordinate, date time.Time) (*Observation, error) {
			delay := time.Duration(2024-date.Year()) * 3 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			v := float64(date.Year())
			return &Observation{Date: date, Precipitation: &v}, nil
		},
	}

	s := newTestSampler([]Provider{provider}, fixedNow)

	samples, err := s.Sample(context.Background(), testCoord, DateOfYear{Month: 6, Day: 15}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(samples))
	}

	if !sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Year < samples[j].Year }) {
		t.Error("samples must be ordered by year ascending")
	}
	if samples[0].Year != 2015 || samples[9].Year != 2024 {
		t.Errorf("expected years 2015..2024, got %d..%d", samples[0].Year, samples[9].Year)
	}
	for _, smp := range samples {
		if smp.Observation == nil {
			t.Fatalf("year %d unexpectedly missing", smp.Year)
		}
		if int(*smp.Observation.Precipitation) != smp.Year {
			t.Errorf("year %d got value %v; results misattributed", smp.Year, *smp.Observation.Precipitation)
		}
	}
}

func TestSampleLookbackEndYear(t *testing.T) {
	provider := &fakeProvider{
		name: "archive",
		fetch: func(ctx context.Context, coord Coordinate, date time.Time) (*Observation, error) {
			return staticObservation(date), nil
		},
	}

	// Target date after "today": the window must end at the previous year.
	s := newTestSampler([]Provider{provider}, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	samples, err := s.Sample(context.Background(), testCoord, DateOfYear{Month: 6, Day: 15}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if samples[len(samples)-1].Year != 2023 {
		t.Errorf("future date this year: window should end 2023, got %d", samples[len(samples)-1].Year)
	}

	// Target date already passed: the current year is included.
	s = newTestSampler([]Provider{provider}, fixedNow)
	samples, err = s.Sample(context.Background(), testCoord, DateOfYear{Month: 6, Day: 15}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if samples[len(samples)-1].Year != 2024 {
		t.Errorf("past date this year: window should end 2024, got %d", samples[len(samples)-1].Year)
	}
}

func TestSampleSingleYearFailureDoesNotAbortBatch(t *testing.T) {
	provider := &fakeProvider{
		name: "archive",
		fetch: func(ctx context.Context, coord Coordinate, date time.Time) (*Observation, error) {
			if date.Year() == 2020 {
				return nil, NewProviderError("archive", FailUnavailable, errors.New("outage"))
			}
			return staticObservation(date), nil
		},
	}

	s := newTestSampler([]Provider{provider}, fixedNow)

	samples, err := s.Sample(context.Background(), testCoord, DateOfYear{Month: 6, Day: 15}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	usable := 0
	for _, smp := range samples {
		if smp.Year == 2020 {
			if smp.Observation != nil {
				t.Error("2020 should be a missing year")
			}
			continue
		}
		if smp.Observation == nil {
			t.Errorf("year %d unexpectedly missing", smp.Year)
		}
		usable++
	}
	if usable != 9 {
		t.Errorf("expected 9 usable years, got %d", usable)
	}
}

func TestSampleAllYearsMissingIsInsufficientData(t *testing.T) {
	s := newTestSampler([]Provider{failingProvider("archive", FailNotFound)}, fixedNow)

	_, err := s.Sample(context.Background(), testCoord, DateOfYear{Month: 6, Day: 15}, 10)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSampleRespectsConcurrencyCap(t *testing.T) {
	var inFlight, peak int64
	provider := &fakeProvider{
		name: "archive",
		fetch: func(ctx context.Context, coord Coordinate, date time.Time) (*Observation, error) {
			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return staticObservation(date), nil
		},
	}

	router := NewRouter([]Provider{provider}, time.Second)
	s := NewSampler(router, cache.New[YearResult](0), 3)
	s.now = func() time.Time { return fixedNow }

	if _, err := s.Sample(context.Background(), testCoord, DateOfYear{Month: 6, Day: 15}, 12); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := atomic.LoadInt64(&peak); p > 3 {
		t.Errorf("concurrency cap exceeded: peak %d > 3", p)
	}
}

func TestSampleDeadlineYieldsPartialBatch(t *testing.T) {
	provider := &fakeProvider{
		name: "archive",
		fetch: func(ctx context.Context, coord Coordinate, date time.Time) (*Observation, error) {
			// 2024 answers instantly; everything else outlives the deadline.
			if date.Year() == 2024 {
				return staticObservation(date), nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return staticObservation(date), nil
			}
		},
	}

	// Cap above the lookback so every year starts before the deadline.
	router := NewRouter([]Provider{provider}, time.Second)
	s := NewSampler(router, cache.New[YearResult](0), 16)
	s.now = func() time.Time { return fixedNow }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	samples, err := s.Sample(ctx, testCoord, DateOfYear{Month: 6, Day: 15}, 10)
	if err != nil {
		t.Fatalf("expected partial batch, got error: %v", err)
	}

	var got2024 bool
	for _, smp := range samples {
		if smp.Year == 2024 && smp.Observation != nil {
			got2024 = true
		}
	}
	if !got2024 {
		t.Error("the year that completed before the deadline must be kept")
	}
}
