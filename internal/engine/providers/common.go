package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/weatherscope/probability-engine/internal/engine"
	"github.com/weatherscope/probability-engine/internal/metrics"
)

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// newBreaker builds the per-provider circuit breaker all clients share
// the settings of.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes one upstream call through the provider's circuit
// breaker and classifies the outcome into the failure taxonomy. There
// are no retries here; retry policy is the Source Router's fallback
// chain.
func doRequest(ctx context.Context, name string, client *http.Client, cb *gobreaker.CircuitBreaker, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	start := time.Now()
	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}

		// Throttling and server errors count against the breaker;
		// everything else is classified by the caller below.
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, errServerError
		}
		return resp, nil
	})
	metrics.ProviderCallLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, classifyExecError(name, err)
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, engine.NewProviderError(name, engine.FailMalformed, fmt.Errorf("unexpected result type from circuit breaker"))
	}

	if perr := classifyStatus(name, resp.StatusCode); perr != nil {
		resp.Body.Close()
		countCall(name, perr)
		return nil, perr
	}

	metrics.ProviderCallsTotal.WithLabelValues(name, "success").Inc()
	return resp, nil
}

func classifyExecError(name string, err error) *engine.ProviderError {
	var perr *engine.ProviderError
	switch {
	case errors.Is(err, errRateLimited):
		perr = engine.NewProviderError(name, engine.FailRateLimited, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		perr = engine.NewProviderError(name, engine.FailUnavailable, fmt.Errorf("%w: %v", errCircuitOpen, err))
	default:
		// Network failures, timeouts and 5xx all read as unavailable.
		perr = engine.NewProviderError(name, engine.FailUnavailable, err)
	}
	countCall(name, perr)
	return perr
}

// classifyStatus maps a non-2xx status the breaker let through into the
// failure taxonomy. Returns nil for successful responses.
func classifyStatus(name string, code int) *engine.ProviderError {
	switch {
	case code >= 200 && code < 300 && code != http.StatusNoContent:
		return nil
	case code == http.StatusNoContent, code == http.StatusNotFound:
		return engine.NewProviderError(name, engine.FailNotFound, fmt.Errorf("status %d", code))
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return engine.NewProviderError(name, engine.FailAuth, fmt.Errorf("status %d", code))
	default:
		return engine.NewProviderError(name, engine.FailUnavailable, fmt.Errorf("unexpected status %d", code))
	}
}

func countCall(name string, perr *engine.ProviderError) {
	metrics.ProviderCallsTotal.WithLabelValues(name, string(perr.Kind)).Inc()
}

func malformed(name string, err error) error {
	perr := engine.NewProviderError(name, engine.FailMalformed, err)
	countCall(name, perr)
	return perr
}

func notFound(name string, reason string) error {
	perr := engine.NewProviderError(name, engine.FailNotFound, errors.New(reason))
	countCall(name, perr)
	return perr
}
