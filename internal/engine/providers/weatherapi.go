package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/weatherscope/probability-engine/internal/engine"
)

// WeatherAPIProvider implements the engine.Provider interface for the
// WeatherAPI.com history endpoint. It requires an API key and is only
// registered when one is configured.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi-history",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/history.json",
		client:  client,
		circuit: newBreaker("weatherapi-history"),
	}
}

// SetBaseURL overrides the upstream endpoint, for tests.
func (p *WeatherAPIProvider) SetBaseURL(u string) { p.baseURL = u }

func (p *WeatherAPIProvider) Name() string { return p.name }

func (p *WeatherAPIProvider) Fetch(ctx context.Context, coord engine.Coordinate, date time.Time) (*engine.Observation, error) {
	if p.apiKey == "" {
		return nil, engine.NewProviderError(p.name, engine.FailAuth, fmt.Errorf("api key is not configured"))
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", fmt.Sprintf("%f,%f", coord.Lat, coord.Lon))
	values.Set("dt", date.Format("2006-01-02"))

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, p.name, p.client, p.circuit, req)
	if err != nil {
		// WeatherAPI answers 400 for dates outside the plan's history
		// window; that is absence of data, not an outage.
		if kind := engine.FailureKindOf(err); kind == engine.FailUnavailable && isBadRequest(err) {
			return nil, notFound(p.name, "date outside history window")
		}
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Date string `json:"date"`
				Day  struct {
					MaxTempC      float64 `json:"maxtemp_c"`
					MinTempC      float64 `json:"mintemp_c"`
					TotalPrecipMM float64 `json:"totalprecip_mm"`
					MaxWindKPH    float64 `json:"maxwind_kph"`
				} `json:"day"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, malformed(p.name, err)
	}

	if len(payload.Forecast.ForecastDay) == 0 {
		return nil, notFound(p.name, "no history for date")
	}

	day := payload.Forecast.ForecastDay[0].Day
	windMS := day.MaxWindKPH / 3.6

	return &engine.Observation{
		Date:          date,
		TempMax:       ptr(day.MaxTempC),
		TempMin:       ptr(day.MinTempC),
		Precipitation: ptr(day.TotalPrecipMM),
		WindSpeed:     ptr(windMS),
	}, nil
}

func isBadRequest(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unexpected status 400")
}

func ptr(v float64) *float64 { return &v }
