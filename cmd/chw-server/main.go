package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ict4d/chwmonitor/internal/config"
	"github.com/ict4d/chwmonitor/internal/domain/chw"
	"github.com/ict4d/chwmonitor/internal/platform/auth"
	"github.com/ict4d/chwmonitor/internal/platform/middleware"
	"github.com/ict4d/chwmonitor/internal/platform/reporting"
	"github.com/ict4d/chwmonitor/internal/platform/sandbox"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "chw-server",
		Short:        "Community health worker monitoring API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// loadConfig reads and validates the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func newService(cfg *config.Config, logger zerolog.Logger) *chw.Service {
	return chw.NewService(chw.NewMemStore(), logger, chw.WithNeedsVisitDays(cfg.NeedsVisitDays))
}

func seedConfig(cfg *config.Config) sandbox.SeedConfig {
	return sandbox.SeedConfig{
		Workers:  cfg.SeedWorkers,
		Patients: cfg.SeedPatients,
		Visits:   cfg.SeedVisits,
		Seed:     cfg.SeedRandom,
	}
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Optional:   true,
	}
}

// newServer wires the middleware chain and all routes around svc.
func newServer(cfg *config.Config, svc *chw.Service, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	const exportPath = "/api/v1/sandbox/export"

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", "Location", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, exportPath))

	// Auth middleware
	if cfg.AnonymousAuth() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	cacheCfg := middleware.DefaultCacheConfig()
	cacheCfg.ExcludePaths = []string{exportPath}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1.Use(middleware.ETag(cacheCfg))

	chw.NewHandler(svc).RegisterRoutes(apiV1)
	reporting.NewHandler(svc).RegisterRoutes(apiV1)
	if cfg.SandboxActive() {
		sandbox.NewSeedHandler(svc, seedConfig(cfg), logger).RegisterRoutes(apiV1.Group("/sandbox"))
	}

	return e
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.IsDev() && cfg.AnonymousAuth() {
		logger.Warn().Msg("development mode without AUTH_SIGNING_KEY: every request is identified as dev-user")
	}

	svc := newService(cfg, logger)
	sc := seedConfig(cfg)
	if sc.Workers > 0 {
		result, err := sandbox.Seed(ctx, svc, sc, nil)
		if err != nil {
			return fmt.Errorf("seeding sample data: %w", err)
		}
		logger.Info().
			Int("workers", result.Workers).
			Int("patients", result.Patients).
			Int("visits", result.Visits).
			Int64("seed", result.Seed).
			Msg("sample data loaded")
	}

	e := newServer(cfg, svc, logger)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	})

	return g.Wait()
}
