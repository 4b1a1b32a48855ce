package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/weatherscope/probability-engine/internal/cache"
	"github.com/weatherscope/probability-engine/internal/engine"
)

// stubProvider answers every historical date with the same observation.
type stubProvider struct {
	name string
	err  error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(ctx context.Context, coord engine.Coordinate, date time.Time) (*engine.Observation, error) {
	if p.err != nil {
		return nil, p.err
	}
	tmax, tmin, precip, wind := 28.0, 14.0, 2.5, 6.0
	return &engine.Observation{
		Date:          date,
		TempMax:       &tmax,
		TempMin:       &tmin,
		Precipitation: &precip,
		WindSpeed:     &wind,
	}, nil
}

func newTestApp(provider engine.Provider) *fiber.App {
	app := fiber.New()

	router := engine.NewRouter([]engine.Provider{provider}, time.Second)
	sampler := engine.NewSampler(router, cache.New[engine.YearResult](time.Minute), 8)
	service := engine.NewService(sampler, 5*time.Second)
	RegisterRoutes(app, service, 10)

	return app
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode body %q: %v", body, err)
	}
	return m
}

func doRequest(t *testing.T, app *fiber.App, url string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func TestProbabilityAllValidation(t *testing.T) {
	app := newTestApp(&stubProvider{name: "archive"})

	tests := []struct {
		name string
		url  string
	}{
		{"missing lat", "/api/v1/probability/all?lon=-74&month=6&day=15"},
		{"missing day", "/api/v1/probability/all?lat=40.7&lon=-74&month=6"},
		{"lat out of range", "/api/v1/probability/all?lat=91&lon=-74&month=6&day=15"},
		{"month out of range", "/api/v1/probability/all?lat=40.7&lon=-74&month=13&day=15"},
		{"day out of range", "/api/v1/probability/all?lat=40.7&lon=-74&month=6&day=32"},
		{"not a real date", "/api/v1/probability/all?lat=40.7&lon=-74&month=4&day=31"},
		{"years_back too large", "/api/v1/probability/all?lat=40.7&lon=-74&month=6&day=15&years_back=50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, app, tt.url)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if body := decodeBody(t, resp); body["code"] != "invalid_parameters" {
				t.Errorf("expected code invalid_parameters, got %v", body["code"])
			}
		})
	}
}

func TestProbabilityAllResponseShape(t *testing.T) {
	app := newTestApp(&stubProvider{name: "archive"})

	resp := doRequest(t, app, "/api/v1/probability/all?lat=40.7128&lon=-74.0060&month=6&day=15")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	for _, key := range []string{"rain", "heat", "cold", "wind", "location", "date", "historical_data", "source", "data_points", "generated_at"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing key %q", key)
		}
	}

	rain, ok := body["rain"].(map[string]interface{})
	if !ok {
		t.Fatalf("rain is not an object: %v", body["rain"])
	}
	// Every stubbed year has 2.5mm > 0.1mm.
	if rain["probability"] != 1.0 {
		t.Errorf("expected rain probability 1, got %v", rain["probability"])
	}
	if rain["source"] != "archive" {
		t.Errorf("expected source archive, got %v", rain["source"])
	}
	if rain["threshold"] != 0.1 {
		t.Errorf("default rain threshold should apply, got %v", rain["threshold"])
	}

	if _, err := time.Parse(time.RFC3339, body["generated_at"].(string)); err != nil {
		t.Errorf("generated_at is not RFC3339: %v", err)
	}
}

func TestProbabilitySingleVariable(t *testing.T) {
	app := newTestApp(&stubProvider{name: "archive"})

	resp := doRequest(t, app, "/api/v1/probability/heat?lat=40.7&lon=-74&month=6&day=15&threshold=20")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	// Stubbed tmax 28 exceeds the caller's 20C threshold every year.
	if body["probability"] != 1.0 {
		t.Errorf("expected probability 1, got %v", body["probability"])
	}
	if body["threshold"] != 20.0 {
		t.Errorf("caller threshold must win over the default, got %v", body["threshold"])
	}
}

func TestProbabilityUnknownVariable(t *testing.T) {
	app := newTestApp(&stubProvider{name: "archive"})

	resp := doRequest(t, app, "/api/v1/probability/snow?lat=40.7&lon=-74&month=6&day=15")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProbabilityNoDataAvailable(t *testing.T) {
	app := newTestApp(&stubProvider{
		name: "archive",
		err:  engine.NewProviderError("archive", engine.FailNotFound, errors.New("no data")),
	})

	resp := doRequest(t, app, "/api/v1/probability/all?lat=40.7&lon=-74&month=6&day=15")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["code"] != "no_data_available" {
		t.Errorf("expected code no_data_available, got %v", body["code"])
	}
}

func TestProbabilityServiceUnavailable(t *testing.T) {
	app := newTestApp(&stubProvider{
		name: "archive",
		err:  engine.NewProviderError("archive", engine.FailUnavailable, errors.New("outage")),
	})

	resp := doRequest(t, app, "/api/v1/probability/rain?lat=40.7&lon=-74&month=6&day=15")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["code"] != "service_unavailable" {
		t.Errorf("expected code service_unavailable, got %v", body["code"])
	}
}
