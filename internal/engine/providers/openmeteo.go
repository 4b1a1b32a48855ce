package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/weatherscope/probability-engine/internal/engine"
)

// OpenMeteoProvider implements the engine.Provider interface for the
// Open-Meteo ERA5 reanalysis archive. No API key is required; it is the
// default fallback behind NASA POWER.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "open-meteo-archive",
		baseURL: "https://archive-api.open-meteo.com/v1/archive",
		client:  client,
		circuit: newBreaker("open-meteo-archive"),
	}
}

// SetBaseURL overrides the upstream endpoint, for tests.
func (p *OpenMeteoProvider) SetBaseURL(u string) { p.baseURL = u }

func (p *OpenMeteoProvider) Name() string { return p.name }

func (p *OpenMeteoProvider) Fetch(ctx context.Context, coord engine.Coordinate, date time.Time) (*engine.Observation, error) {
	day := date.Format("2006-01-02")

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", coord.Lat))
	values.Set("longitude", fmt.Sprintf("%f", coord.Lon))
	values.Set("start_date", day)
	values.Set("end_date", day)
	values.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max")
	values.Set("wind_speed_unit", "ms")
	values.Set("timezone", "UTC")

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, p.name, p.client, p.circuit, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The archive returns arrays indexed by day; with start==end each
	// holds at most one entry, null when the reanalysis has a gap.
	var payload struct {
		Daily struct {
			Time          []string   `json:"time"`
			TempMax       []*float64 `json:"temperature_2m_max"`
			TempMin       []*float64 `json:"temperature_2m_min"`
			Precipitation []*float64 `json:"precipitation_sum"`
			WindSpeed     []*float64 `json:"wind_speed_10m_max"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, malformed(p.name, err)
	}

	if len(payload.Daily.Time) == 0 {
		return nil, notFound(p.name, "no daily entry for date")
	}

	obs := &engine.Observation{
		Date:          date,
		TempMax:       first(payload.Daily.TempMax),
		TempMin:       first(payload.Daily.TempMin),
		Precipitation: first(payload.Daily.Precipitation),
		WindSpeed:     first(payload.Daily.WindSpeed),
	}

	if obs.TempMax == nil && obs.TempMin == nil && obs.Precipitation == nil && obs.WindSpeed == nil {
		return nil, notFound(p.name, "all daily values are null")
	}
	return obs, nil
}

func first(vals []*float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}
