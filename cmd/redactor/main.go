package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/analysis"
	"github.com/raaihank/care-redactor/internal/audit"
	"github.com/raaihank/care-redactor/internal/cache"
	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/logger"
	"github.com/raaihank/care-redactor/internal/redaction"
	"github.com/raaihank/care-redactor/internal/server"
	"github.com/raaihank/care-redactor/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "care-redactor: %v\n", err)
		os.Exit(1)
	}
}

// run starts the server and blocks until it stops. Returning instead of
// exiting lets deferred cleanup (sentry flush, store close) run on failure.
func run(args []string) error {
	fs := flag.NewFlagSet("redactor", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "Path to configuration file")
		envFile     = fs.String("env-file", ".env", "Optional dotenv file loaded before configuration")
		showVersion = fs.Bool("version", false, "Show version information")
		healthCheck = fs.String("health-check", "", "Check the health endpoint at this base URL and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("care-redactor %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	}

	if *healthCheck != "" {
		return performHealthCheck(*healthCheck)
	}

	// A missing .env is normal outside development
	envLoaded := godotenv.Load(*envFile) == nil

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting care-redactor",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("env_file_loaded", envLoaded),
	)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     "care-redactor@" + version,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			log.Warn("Failed to initialize Sentry", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redactor := redaction.New(cfg.Redaction, log.WithComponent("redaction"))
	deps := server.Deps{Redactor: redactor}

	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log.WithComponent("audit").Logger)
		if err != nil {
			log.Error("Failed to initialize audit store", zap.Error(err))
			sentry.CaptureException(err)
			return fmt.Errorf("audit store: %w", err)
		}
		defer store.Close()
		deps.Audit = store

		retention, err := audit.NewRetention(store, cfg.Audit.RetentionDays, cfg.Audit.RetentionSchedule, log.WithComponent("retention").Logger)
		if err != nil {
			log.Error("Failed to schedule audit retention", zap.Error(err))
			sentry.CaptureException(err)
			return fmt.Errorf("audit retention: %w", err)
		}
		retention.Start()
		defer retention.Stop()
	}

	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer resultCache.Close()
			deps.Cache = resultCache
		}
	}

	if cfg.Analysis.Enabled {
		deps.Analyzer = analysis.NewOpenAIAnalyzer(cfg.Analysis, log.WithComponent("analysis").Logger)
	}

	if cfg.WebSocket.Enabled {
		deps.Hub = websocket.NewHub(cfg.WebSocket, log.Logger)
	}

	srv := server.New(cfg, log, deps)

	// Only redaction defaults are reloaded; other sections need a restart.
	err = config.Watch(func(next *config.Config) {
		redactor.UpdateConfig(next.Redaction)
	}, func(err error) {
		log.Warn("Ignoring invalid configuration change", zap.Error(err))
	})
	if err != nil {
		log.Info("Configuration hot reload disabled", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
			return fmt.Errorf("server: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		stop()

		log.Info("Server shutdown complete")
	}
	return nil
}

// performHealthCheck calls /health on a running server
func performHealthCheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
	}

	fmt.Println("Health check passed")
	return nil
}
