package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/icu/icu/internal/config"
	"github.com/icu/icu/internal/domain/assessment"
	"github.com/icu/icu/internal/platform/auth"
	"github.com/icu/icu/internal/platform/cache"
	"github.com/icu/icu/internal/platform/db"
	"github.com/icu/icu/internal/platform/middleware"
	"github.com/icu/icu/internal/platform/openapi"
	"github.com/icu/icu/internal/platform/telemetry"
)

const version = "0.1.0"

// exportTimeout bounds the spreadsheet export, which pages through a
// patient's whole history.
const exportTimeout = 2 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "icu-server",
		Short:        "ICU clinical scoring API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scoreCmd())
	return rootCmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	open := func(ctx context.Context, dir string) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if dir == "" {
			dir = cfg.MigrationsDir
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, os.DirFS(dir)), pool.Close, nil
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			migrator, closeFn, err := open(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			migrator, closeFn, err := open(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth is active: every request is treated as admin; do not use in production")
	}

	ctx := context.Background()

	// Telemetry
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start telemetry")
	}
	tp.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Summary cache
	var (
		summaries cache.Cache = cache.Noop{}
		checks    []db.Check
	)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cache.WithURL(cfg.RedisURL))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rc.Close()
		summaries = rc
		checks = append(checks, db.Check{Name: "cache", Ping: rc.Ping})
		logger.Info().Msg("connected to redis")
	}

	svc := assessment.NewService(
		assessment.NewSeverityRepoPG(pool),
		assessment.NewWorkloadRepoPG(pool),
		assessment.NewCategorizationRepoPG(pool),
		db.NewTxRunner(pool),
		logger,
		assessment.WithCache(summaries, cfg.SummaryCacheTTL),
		assessment.WithMetrics(tp.Metrics),
	)

	authMW, err := authMiddleware(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure authentication")
	}

	e := newServer(cfg, logger, serverDeps{
		service: svc,
		auth:    authMW,
		health:  db.HealthHandler(pool, checks...),
		tracing: tp.Middleware(),
	})

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func authMiddleware(ctx context.Context, cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(), nil
	}
	return auth.JWTMiddleware(ctx, auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	})
}

type serverDeps struct {
	service *assessment.Service
	auth    echo.MiddlewareFunc
	health  echo.HandlerFunc
	tracing echo.MiddlewareFunc
}

// newServer builds the echo instance. /health sits outside auth; everything
// else lives under /api/v1.
func newServer(cfg *config.Config, logger zerolog.Logger, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if deps.tracing != nil {
		e.Use(deps.tracing)
	}
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After", echo.HeaderContentDisposition},
	}))
	e.Use(echomw.BodyLimit("1M"))

	// Health check
	if deps.health != nil {
		e.GET("/health", deps.health)
	}
	e.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"version": version})
	})

	// API group
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	apiV1 := e.Group("/api/v1",
		deps.auth,
		middleware.RateLimit(rateLimitCfg),
		middleware.Audit(logger),
		middleware.RequestTimeout(timeout, exportTimeout),
	)
	h := assessment.NewHandler(deps.service)
	h.RegisterRoutes(apiV1)

	// API docs are public
	docs := openapi.NewGenerator("ICU Scoring API", version, "/api/v1")
	docs.Add(h.Operations()...)
	docs.RegisterRoutes(e.Group("/api/v1"))

	return e
}
