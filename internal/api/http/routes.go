package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/weatherscope/probability-engine/internal/engine"
)

var validate = validator.New()

// Threshold defaults live at this boundary, not in the engine; they are
// the product's documented defaults (mm/day, degC, degC, m/s).
const (
	defaultRainThreshold = 0.1
	defaultHeatThreshold = 35.0
	defaultColdThreshold = 5.0
	defaultWindThreshold = 15.0
)

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *engine.Service, defaultLookback int) {
	v1 := app.Group("/api/v1")

	v1.Get("/probability/all", func(c *fiber.Ctx) error {
		req, err := parseProbabilityQuery(c, defaultLookback)
		if err != nil {
			return invalidParams(c, err)
		}

		thresholds := engine.Thresholds{
			Rain: queryFloatDefault(c, "rain_threshold", defaultRainThreshold),
			Heat: queryFloatDefault(c, "heat_threshold", defaultHeatThreshold),
			Cold: queryFloatDefault(c, "cold_threshold", defaultColdThreshold),
			Wind: queryFloatDefault(c, "wind_threshold", defaultWindThreshold),
		}

		report, err := service.Analyze(c.Context(), req.coordinate(), req.dateOfYear(), thresholds, req.YearsBack)
		if err != nil {
			return respondEngineError(c, err)
		}

		return c.JSON(reportResponse(report))
	})

	v1.Get("/probability/:variable", func(c *fiber.Ctx) error {
		variable, ok := parseVariable(c.Params("variable"))
		if !ok {
			return invalidParams(c, fmt.Errorf("unknown variable %q", c.Params("variable")))
		}

		req, err := parseProbabilityQuery(c, defaultLookback)
		if err != nil {
			return invalidParams(c, err)
		}

		threshold := queryFloatDefault(c, "threshold", defaultThresholdFor(variable))

		vp, err := service.AnalyzeVariable(c.Context(), req.coordinate(), req.dateOfYear(), variable, threshold, req.YearsBack)
		if err != nil {
			return respondEngineError(c, err)
		}

		return c.JSON(fiber.Map{
			"probability":  vp.Probability,
			"threshold":    vp.Threshold,
			"data_points":  vp.DataPoints,
			"source":       vp.Source,
			"stats":        vp.Stats,
			"location":     req.coordinate(),
			"date":         req.dateOfYear(),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// probabilityQuery holds the validated query parameters shared by all
// probability endpoints.
type probabilityQuery struct {
	Lat       float64 `validate:"gte=-90,lte=90"`
	Lon       float64 `validate:"gte=-180,lte=180"`
	Month     int     `validate:"gte=1,lte=12"`
	Day       int     `validate:"gte=1,lte=31"`
	YearsBack int     `validate:"gte=1,lte=30"`
}

func (q probabilityQuery) coordinate() engine.Coordinate {
	return engine.Coordinate{Lat: q.Lat, Lon: q.Lon}
}

func (q probabilityQuery) dateOfYear() engine.DateOfYear {
	return engine.DateOfYear{Month: q.Month, Day: q.Day}
}

func parseProbabilityQuery(c *fiber.Ctx, defaultLookback int) (probabilityQuery, error) {
	var q probabilityQuery
	var err error

	if q.Lat, err = requireFloat(c, "lat"); err != nil {
		return q, err
	}
	if q.Lon, err = requireFloat(c, "lon"); err != nil {
		return q, err
	}
	if q.Month, err = requireInt(c, "month"); err != nil {
		return q, err
	}
	if q.Day, err = requireInt(c, "day"); err != nil {
		return q, err
	}
	q.YearsBack = c.QueryInt("years_back", defaultLookback)

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	// Month/day ranges pass the tag check; reject day/month pairs that
	// are not real calendar dates (e.g. April 31).
	if err := q.dateOfYear().Validate(); err != nil {
		return q, err
	}

	return q, nil
}

func parseVariable(s string) (engine.Variable, bool) {
	for _, v := range engine.Variables {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

func defaultThresholdFor(v engine.Variable) float64 {
	switch v {
	case engine.VariableRain:
		return defaultRainThreshold
	case engine.VariableHeat:
		return defaultHeatThreshold
	case engine.VariableCold:
		return defaultColdThreshold
	default:
		return defaultWindThreshold
	}
}

func requireFloat(c *fiber.Ctx, key string) (float64, error) {
	s := c.Query(key)
	if s == "" {
		return 0, fmt.Errorf("%s query parameter is required", key)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

func requireInt(c *fiber.Ctx, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, fmt.Errorf("%s query parameter is required", key)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

func queryFloatDefault(c *fiber.Ctx, key string, def float64) float64 {
	s := c.Query(key)
	if s == "" {
		return def
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return def
}

// reportResponse shapes the engine's report into the public JSON
// contract. Per-variable failures surface as an error marker instead of
// failing the whole response.
func reportResponse(report *engine.ProbabilityReport) fiber.Map {
	resp := fiber.Map{
		"location":        report.Location,
		"date":            report.Date,
		"historical_data": report.HistoricalData,
		"source":          report.Source,
		"data_points":     report.DataPoints,
		"generated_at":    report.GeneratedAt.Format(time.RFC3339),
	}

	for v, res := range report.Variables {
		if res.Err != nil {
			resp[string(v)] = fiber.Map{"error": errorCode(res.Err)}
			continue
		}
		resp[string(v)] = fiber.Map{
			"probability": res.Probability,
			"threshold":   res.Threshold,
			"data_points": res.DataPoints,
			"source":      res.Source,
			"stats":       res.Stats,
		}
	}
	return resp
}

func invalidParams(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   true,
		"code":    "invalid_parameters",
		"message": err.Error(),
	})
}

// respondEngineError maps engine failures onto the three public error
// codes; upstream error text is never forwarded.
func respondEngineError(c *fiber.Ctx, err error) error {
	switch {
	case engine.IsInvalidParameters(err):
		return invalidParams(c, err)
	case engine.FailureKindOf(err) == engine.FailUnavailable:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   true,
			"code":    "service_unavailable",
			"message": "upstream weather providers are unavailable",
		})
	case errors.Is(err, engine.ErrNoDataAvailable), errors.Is(err, engine.ErrInsufficientData):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"code":    "no_data_available",
			"message": "no historical data available for the requested location and date",
		})
	default:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   true,
			"code":    "service_unavailable",
			"message": "upstream weather providers are unavailable",
		})
	}
}

func errorCode(err error) string {
	if engine.FailureKindOf(err) == engine.FailUnavailable {
		return "service_unavailable"
	}
	if errors.Is(err, engine.ErrInsufficientData) {
		return "insufficient_data"
	}
	return "service_unavailable"
}
