package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/weatherscope/probability-engine/internal/api/http"
	"github.com/weatherscope/probability-engine/internal/cache"
	"github.com/weatherscope/probability-engine/internal/config"
	"github.com/weatherscope/probability-engine/internal/engine"
	"github.com/weatherscope/probability-engine/internal/engine/providers"
	"github.com/weatherscope/probability-engine/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Providers in priority order: NASA POWER primary, Open-Meteo
	// archive fallback, WeatherAPI history only when a key is set.
	var provs []engine.Provider
	provs = append(provs, providers.NewNASAPowerProvider(httpClient))
	provs = append(provs, providers.NewOpenMeteoProvider(httpClient))
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}

	// Upstream memo cache de-duplicates identical (coordinate, date)
	// lookups across the four concurrent variable pipelines.
	memo := cache.New[engine.YearResult](cfg.CacheTTL)

	router := engine.NewRouter(provs, cfg.ProviderTimeout)
	sampler := engine.NewSampler(router, memo, cfg.MaxConcurrency)
	service := engine.NewService(sampler, cfg.RequestTimeout)

	// Periodic eviction of expired cache entries.
	sweeper := scheduler.New(memo, cfg.CacheSweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("failed to start cache sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "probability-engine",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "probability-engine",
		})
	})

	// Prometheus exposition.
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.LookbackYears)

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
