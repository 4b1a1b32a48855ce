package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/weatherscope/probability-engine/internal/metrics"
)

// YearResult is the Source Router's answer for one (coordinate, date)
// query: which provider answered, and what it said. Observation is nil
// when the answering provider had no data for that date.
type YearResult struct {
	Source      string
	Observation *Observation
}

// Router tries providers in priority order and applies the fallback
// policy: advance only on retryable failures (unavailable, auth,
// rate-limited). A not_found answer is returned as an empty-but-
// successful result tagged to the provider that gave it; absence of
// data is informative and must not be masked by a lower-priority
// provider's possibly-inconsistent methodology.
type Router struct {
	providers   []Provider
	callTimeout time.Duration
}

// NewRouter builds a Router over the given priority-ordered providers.
// callTimeout bounds each individual upstream call; a timeout counts as
// unavailable for fallback purposes.
func NewRouter(providers []Provider, callTimeout time.Duration) *Router {
	return &Router{providers: providers, callTimeout: callTimeout}
}

// ChainKey identifies the provider priority chain for cache keying.
func (r *Router) ChainKey() string {
	key := ""
	for i, p := range r.providers {
		if i > 0 {
			key += ">"
		}
		key += p.Name()
	}
	return key
}

// FetchWithFallback resolves one (coordinate, date) query through the
// provider chain. It returns an error only when a provider failed
// terminally or every provider failed retryably.
func (r *Router) FetchWithFallback(ctx context.Context, coord Coordinate, date time.Time) (YearResult, error) {
	if len(r.providers) == 0 {
		return YearResult{}, fmt.Errorf("no providers configured")
	}

	var lastErr error
	for _, p := range r.providers {
		obs, err := r.fetchOne(ctx, p, coord, date)
		if err == nil {
			return YearResult{Source: p.Name(), Observation: obs}, nil
		}

		var pe *ProviderError
		if !errors.As(err, &pe) {
			// Context cancellation and other non-provider errors abort
			// the chain; the caller decides what a partial batch means.
			return YearResult{}, err
		}

		if pe.Kind == FailNotFound {
			// Terminal: empty-but-successful, tagged to the provider
			// that answered.
			return YearResult{Source: p.Name()}, nil
		}

		if !pe.Retryable() {
			return YearResult{}, pe
		}

		log.Printf("router: provider %s failed (%s) for %s; trying next", p.Name(), pe.Kind, date.Format("2006-01-02"))
		metrics.ProviderFallbacks.WithLabelValues(p.Name(), string(pe.Kind)).Inc()
		lastErr = pe
	}

	return YearResult{}, NewProviderError(r.providers[len(r.providers)-1].Name(), FailUnavailable,
		fmt.Errorf("all providers exhausted: %w", lastErr))
}

func (r *Router) fetchOne(ctx context.Context, p Provider, coord Coordinate, date time.Time) (*Observation, error) {
	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	obs, err := p.Fetch(callCtx, coord, date)
	if err != nil {
		// A per-call timeout counts as the provider being unavailable,
		// unless the overall request deadline is what expired.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewProviderError(p.Name(), FailUnavailable, err)
		}
		return nil, err
	}
	return obs, nil
}
