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

// powerFillValue is what NASA POWER reports for days it has no data
// for. Values at or below it are treated as absent, never as numbers.
const powerFillValue = -990.0

// NASAPowerProvider implements the engine.Provider interface for the
// NASA POWER daily point API. No API key is required.
type NASAPowerProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewNASAPowerProvider(client *http.Client) *NASAPowerProvider {
	return &NASAPowerProvider{
		name:    "nasa-power",
		baseURL: "https://power.larc.nasa.gov/api/temporal/daily/point",
		client:  client,
		circuit: newBreaker("nasa-power"),
	}
}

// SetBaseURL overrides the upstream endpoint, for tests.
func (p *NASAPowerProvider) SetBaseURL(u string) { p.baseURL = u }

func (p *NASAPowerProvider) Name() string { return p.name }

func (p *NASAPowerProvider) Fetch(ctx context.Context, coord engine.Coordinate, date time.Time) (*engine.Observation, error) {
	day := date.Format("20060102")

	values := url.Values{}
	values.Set("parameters", "PRECTOTCORR,T2M_MAX,T2M_MIN,WS10M")
	values.Set("community", "RE")
	values.Set("latitude", fmt.Sprintf("%f", coord.Lat))
	values.Set("longitude", fmt.Sprintf("%f", coord.Lon))
	values.Set("start", day)
	values.Set("end", day)
	values.Set("format", "JSON")

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, p.name, p.client, p.circuit, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Properties struct {
			Parameter map[string]map[string]float64 `json:"parameter"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, malformed(p.name, err)
	}

	params := payload.Properties.Parameter
	obs := &engine.Observation{
		Date:          date,
		Precipitation: powerValue(params, "PRECTOTCORR", day),
		TempMax:       powerValue(params, "T2M_MAX", day),
		TempMin:       powerValue(params, "T2M_MIN", day),
		WindSpeed:     powerValue(params, "WS10M", day),
	}

	if obs.Precipitation == nil && obs.TempMax == nil && obs.TempMin == nil && obs.WindSpeed == nil {
		return nil, notFound(p.name, "all parameters are fill values")
	}
	return obs, nil
}

func powerValue(params map[string]map[string]float64, key, day string) *float64 {
	series, ok := params[key]
	if !ok {
		return nil
	}
	v, ok := series[day]
	if !ok || v <= powerFillValue {
		return nil
	}
	return &v
}
