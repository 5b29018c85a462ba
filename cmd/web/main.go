package main

import (
	"context"
	"github.com/joho/godotenv"
	"github.com/myrjola/profilescan/internal/ai"
	"github.com/myrjola/profilescan/internal/envstruct"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/insights"
	"github.com/myrjola/profilescan/internal/lifecycle"
	"github.com/myrjola/profilescan/internal/logging"
	"github.com/myrjola/profilescan/internal/metrics"
	"github.com/myrjola/profilescan/internal/pprofserver"
	"github.com/myrjola/profilescan/internal/questionbank"
	"github.com/myrjola/profilescan/internal/repositories"
	"github.com/myrjola/profilescan/internal/sqlite"
	"github.com/myrjola/profilescan/internal/validity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type application struct {
	logger      *slog.Logger
	assessments *lifecycle.Manager
	// ready reports whether the storage can serve requests.
	ready func(ctx context.Context) error
}

type config struct {
	// Addr is the address the HTTP server listens on. Use port 0 for a random port.
	Addr      string `env:"PROFILESCAN_ADDR" envDefault:"localhost:4000"`
	SqliteURL string `env:"PROFILESCAN_SQLITE_URL" envDefault:"./profilescan.sqlite3"`
	// PprofAddr enables the debug server with pprof and /metrics. Keep it on a loopback address.
	PprofAddr string `env:"PROFILESCAN_PPROF_ADDR" envDefault:""`
	// OpenAIAPIKey enables narrative insights. Without it every result uses the static fallback.
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIBaseURL   string        `env:"PROFILESCAN_OPENAI_BASE_URL" envDefault:""`
	OpenAIModel     string        `env:"PROFILESCAN_OPENAI_MODEL" envDefault:""`
	InsightTimeout  time.Duration `env:"PROFILESCAN_INSIGHT_TIMEOUT" envDefault:"15s"`
	SecondaryMargin float64       `env:"PROFILESCAN_SECONDARY_MARGIN" envDefault:"15"`
	RetakeCooldown  time.Duration `env:"PROFILESCAN_RETAKE_COOLDOWN" envDefault:"2160h"`
	RequestTimeout  time.Duration `env:"PROFILESCAN_REQUEST_TIMEOUT" envDefault:"45s"`
	// OptimizeInterval is how often PRAGMA optimize runs on the database.
	OptimizeInterval time.Duration `env:"PROFILESCAN_OPTIMIZE_INTERVAL" envDefault:"1h"`
}

var errRequestTimeout = errors.NewSentinel("request timeout must exceed the worst-case insight generation time")

// insightConfig returns the orchestrator settings. Submissions generate insights within the request, so
// RequestTimeout has to outlast Budget of the result.
func (cfg config) insightConfig() insights.Config {
	defaults := insights.DefaultConfig()
	return insights.Config{
		AttemptTimeout: cfg.InsightTimeout,
		MaxAttempts:    defaults.MaxAttempts,
		RetryBackoff:   defaults.RetryBackoff,
	}
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}
	insightConfig := cfg.insightConfig()
	if cfg.RequestTimeout <= insightConfig.Budget() {
		return errors.Wrap(errRequestTimeout, "validate config",
			slog.Duration("request_timeout", cfg.RequestTimeout),
			slog.Duration("insight_budget", insightConfig.Budget()))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "new database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults
	)
	m := metrics.MustNewMetrics(registry)

	embedded, err := questionbank.NewEmbedded()
	if err != nil {
		return errors.Wrap(err, "load question banks")
	}
	bank, err := questionbank.NewCache(embedded, 0)
	if err != nil {
		return errors.Wrap(err, "new question bank cache")
	}

	var generator insights.NarrativeGenerator
	if cfg.OpenAIAPIKey != "" {
		generator = ai.NewClient(logger, ai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
	} else {
		logger.LogAttrs(ctx, slog.LevelWarn, "OPENAI_API_KEY not set, serving fallback insights only")
	}
	orchestrator, err := insights.NewOrchestrator(logger, generator, m, insightConfig)
	if err != nil {
		return errors.Wrap(err, "new orchestrator")
	}

	manager, err := lifecycle.NewManager(
		logger,
		repositories.NewAssessmentRepository(db, logger),
		bank,
		orchestrator,
		m,
		lifecycle.Config{
			Thresholds:      validity.DefaultThresholds(),
			SecondaryMargin: cfg.SecondaryMargin,
			RetakeCooldown:  cfg.RetakeCooldown,
			Now:             time.Now,
		},
	)
	if err != nil {
		return errors.Wrap(err, "new lifecycle manager")
	}

	app := application{
		logger:      logger,
		assessments: manager,
		ready:       db.ReadOnly.PingContext,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.configureAndStartServer(ctx, cfg.Addr, cfg.RequestTimeout)
	})
	g.Go(func() error {
		db.RunOptimizer(ctx, cfg.OptimizeInterval)
		return nil
	})
	if cfg.PprofAddr != "" {
		g.Go(func() error {
			return pprofserver.Run(ctx, cfg.PprofAddr, registry, logger)
		})
	}
	if err = g.Wait(); err != nil {
		return errors.Wrap(err, "run")
	}
	return nil
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading .env file", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
