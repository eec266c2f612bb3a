package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arl/statsviz"
	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/sentryline/brandscan/internal/api"
	"github.com/sentryline/brandscan/internal/app/audit"
	"github.com/sentryline/brandscan/internal/app/queue"
	"github.com/sentryline/brandscan/internal/app/scanning"
	"github.com/sentryline/brandscan/internal/domain/events"
	domain "github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/internal/infra/eventbus"
	"github.com/sentryline/brandscan/internal/infra/eventbus/kafka"
	memoryBus "github.com/sentryline/brandscan/internal/infra/eventbus/memory"
	"github.com/sentryline/brandscan/internal/infra/keywords"
	"github.com/sentryline/brandscan/internal/infra/notify"
	"github.com/sentryline/brandscan/internal/infra/risk"
	"github.com/sentryline/brandscan/internal/infra/search"
	memoryStore "github.com/sentryline/brandscan/internal/infra/storage/scanning/memory"
	scanningStore "github.com/sentryline/brandscan/internal/infra/storage/scanning/postgres"
	"github.com/sentryline/brandscan/pkg/common"
	"github.com/sentryline/brandscan/pkg/common/logger"
	"github.com/sentryline/brandscan/pkg/common/otel"
	"github.com/sentryline/brandscan/pkg/config"
)

const serviceType = "scan-server"

// build is overridable at link time.
var build = "develop"

func main() {
	_, _ = maxprocs.Set()
	_ = godotenv.Load()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("SCAN-SERVER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"build":    build,
		"app":      serviceType,
	}

	logg := logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		logg.Error(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	tracer := tracenoop.NewTracerProvider().Tracer("")
	var meterProvider metric.MeterProvider = metricnoop.NewMeterProvider()
	if cfg.Telemetry.Enabled {
		tp, telemetryTeardown, err := otel.InitTelemetry(logg, otel.Config{
			ServiceName:      svcName,
			ExporterEndpoint: cfg.Telemetry.Endpoint,
			ExcludedRoutes: map[string]struct{}{
				"/v1/health":    {},
				"/v1/readiness": {},
			},
			Probability: cfg.Telemetry.Probability,
			ResourceAttributes: map[string]string{
				"library.language": "go",
			},
			InsecureExporter: true,
		})
		if err != nil {
			logg.Error(ctx, "failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer telemetryTeardown(ctx)

		tracer = tp.Tracer(serviceType)
		meterProvider = otel.GetMeterProvider()
	}

	metrics, err := api.NewAPIMetrics(meterProvider)
	if err != nil {
		logg.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	ready := &atomic.Bool{}

	var jobRepo domain.JobRepository
	var detections domain.DetectionRepository
	if cfg.Postgres.DSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			logg.Error(ctx, "failed to parse db config", "error", err)
			os.Exit(1)
		}
		poolCfg.MinConns = cfg.Postgres.MinConns
		poolCfg.MaxConns = cfg.Postgres.MaxConns
		poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			logg.Error(ctx, "failed to open db", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := runMigrations(ctx, pool); err != nil {
			logg.Error(ctx, "failed to run migrations", "error", err)
			os.Exit(1)
		}
		logg.Info(ctx, "migrations applied")

		jobRepo = scanningStore.NewJobStore(pool, tracer)
		detections = scanningStore.NewDetectionStore(pool, tracer)
	} else {
		logg.Info(ctx, "no postgres DSN configured, using in-memory stores")
		jobRepo = memoryStore.NewJobStore()
		detections = memoryStore.NewDetectionStore()
	}

	var bus events.EventBus
	switch cfg.Events.Transport {
	case "kafka":
		kafkaClient, err := kafka.NewClient(&kafka.ClientConfig{
			Brokers:  cfg.Events.Kafka.Brokers,
			GroupID:  cfg.Events.Kafka.GroupID,
			ClientID: cfg.Events.Kafka.ClientID,
		})
		if err != nil {
			logg.Error(ctx, "failed to create kafka client", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()

		bus, err = kafka.ConnectEventBus(&kafka.Config{
			Brokers:            cfg.Events.Kafka.Brokers,
			JobLifecycleTopic:  cfg.Events.Kafka.JobLifecycleTopic,
			ScanLifecycleTopic: cfg.Events.Kafka.ScanLifecycleTopic,
			ScanProgressTopic:  cfg.Events.Kafka.ScanProgressTopic,
			DetectionsTopic:    cfg.Events.Kafka.DetectionsTopic,
			GroupID:            cfg.Events.Kafka.GroupID,
			ClientID:           cfg.Events.Kafka.ClientID,
			ServiceType:        serviceType,
		}, kafkaClient, logg, metrics, tracer)
		if err != nil {
			logg.Error(ctx, "failed to connect event bus", "error", err)
			os.Exit(1)
		}
	default:
		bus = memoryBus.NewBroker()
	}
	defer bus.Close()

	eventPublisher := eventbus.NewDomainEventPublisher(bus)
	notifier := notify.NewEventBusNotifier(eventPublisher)

	var classifier *risk.Classifier
	if cfg.Risk.PolicyFile != "" {
		classifier, err = risk.NewClassifierFromFile(cfg.Risk.PolicyFile)
	} else {
		classifier, err = risk.NewClassifier()
	}
	if err != nil {
		logg.Error(ctx, "failed to load risk policy", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.Intel.HTTPTimeout.Std()}

	var resolver domain.KeywordResolver
	switch {
	case cfg.Intel.ProfilesBaseURL != "":
		resolver = keywords.NewHTTPResolver(cfg.Intel.ProfilesBaseURL, httpClient, logg, tracer)
	case cfg.Intel.ProfilesFixture != "":
		resolver, err = keywords.NewStaticResolverFromFile(cfg.Intel.ProfilesFixture)
		if err != nil {
			logg.Error(ctx, "failed to load keyword fixture", "error", err)
			os.Exit(1)
		}
	default:
		logg.Info(ctx, "no profile service configured, deriving keywords from target references")
		resolver = keywords.NewDerivedResolver()
	}

	var searcher domain.SearchExecutor
	if cfg.Intel.SearchBaseURL != "" {
		searcher = search.NewHTTPExecutor(cfg.Intel.SearchBaseURL, httpClient, logg, tracer)
	} else {
		logg.Info(ctx, "no search service configured, using simulated search")
		searcher = search.NewSimulatedExecutor()
	}

	progress := scanning.NewProgressPublisher(cfg.Publisher.SubscriberBuffer, logg)
	limiter := common.NewRateLimiter(cfg.Scanner.SearchRPS, cfg.Scanner.SearchBurst)

	completions := new(completionRelay)
	orchestrator := scanning.NewScanOrchestrator(
		scanning.Config{
			ConfidenceFloor:      cfg.Scanner.ConfidenceFloor,
			MaxResultsPerKeyword: cfg.Scanner.MaxResultsPerKeyword,
			ExcludeDomains:       cfg.Scanner.ExcludeDomains,
			RunTimeout:           cfg.Scanner.RunTimeout.Std(),
			Retention:            cfg.Scanner.Retention.Std(),
			AnalyzingThreshold:   cfg.Scanner.AnalyzingThreshold,
			VerifyingThreshold:   cfg.Scanner.VerifyingThreshold,
			SaveRetryMaxElapsed:  cfg.Scanner.SaveRetryMaxElapsed.Std(),
		},
		resolver,
		searcher,
		classifier,
		detections,
		notifier,
		completions,
		progress,
		eventPublisher,
		limiter,
		logg,
		tracer,
	)

	tiers, err := tierLimits(cfg.Queue.Tiers)
	if err != nil {
		logg.Error(ctx, "invalid tier configuration", "error", err)
		os.Exit(1)
	}

	admission, err := queue.NewAdmissionQueue(
		queue.Config{
			GlobalConcurrency:  cfg.Queue.GlobalConcurrency,
			MaxQueueDepth:      cfg.Queue.MaxQueueDepth,
			SchedulerTick:      cfg.Queue.SchedulerTick.Std(),
			MetricsWindow:      cfg.Queue.MetricsWindow.Std(),
			DefaultRunEstimate: cfg.Queue.DefaultRunEstimate.Std(),
			Tiers:              tiers,
		},
		orchestrator,
		jobRepo,
		eventPublisher,
		logg,
		tracer,
	)
	if err != nil {
		logg.Error(ctx, "failed to create admission queue", "error", err)
		os.Exit(1)
	}
	completions.Bind(admission)

	trail := audit.NewTrail(ctx, logg, tracer)
	if err := bus.Subscribe(ctx, trail.EventTypes(), trail.Handle); err != nil {
		logg.Error(ctx, "failed to subscribe audit trail", "error", err)
		os.Exit(1)
	}

	orchestrator.Start(ctx)
	defer orchestrator.Shutdown()

	admission.Start(ctx)
	defer admission.Stop()

	server, err := api.NewServer(api.Config{
		Host:            cfg.API.Host,
		Port:            cfg.API.Port,
		Build:           build,
		ReadTimeout:     cfg.API.ReadTimeout.Std(),
		WriteTimeout:    cfg.API.WriteTimeout.Std(),
		IdleTimeout:     cfg.API.IdleTimeout.Std(),
		ShutdownTimeout: cfg.API.ShutdownTimeout.Std(),
		Log:             logg,
		Tracer:          tracer,
		Metrics:         metrics,
		Queue:           admission,
		Runs:            orchestrator,
		Detections:      detections,
		Ready:           ready,
	})
	if err != nil {
		logg.Error(ctx, "failed to create api server", "error", err)
		os.Exit(1)
	}

	ready.Store(true)
	logg.Info(ctx, "scan subsystem up",
		"build", build,
		"transport", cfg.Events.Transport,
		"addr", fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return runDebugServer(gctx, cfg.API.DebugHost, logg)
	})

	if err := g.Wait(); err != nil {
		logg.Error(ctx, "server error", "error", err)
		os.Exit(1)
	}

	logg.Info(ctx, "shutdown complete")
}

// loadConfig reads the yaml configuration and applies environment overrides.
// An unset CONFIG_PATH falls back to config.yaml, and to the built-in
// defaults when that file does not exist.
func loadConfig(ctx context.Context) (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	var cfg *config.Config
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		cfg = config.Default()
	} else {
		loaded, err := config.NewFileLoader(path).Load(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Events.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}

	return cfg, nil
}

// tierLimits converts the yaml tier table into scheduler limits keyed by
// parsed plan tier.
func tierLimits(tiers map[string]config.TierConfig) (map[domain.PlanTier]queue.TierLimits, error) {
	out := make(map[domain.PlanTier]queue.TierLimits, len(tiers))
	for name, tc := range tiers {
		tier, err := domain.ParsePlanTier(name)
		if err != nil {
			return nil, fmt.Errorf("queue.tiers: %w", err)
		}
		out[tier] = queue.TierLimits{
			Weight:       tc.Weight,
			MaxRunning:   tc.MaxRunning,
			PerUserLimit: tc.PerUserLimit,
		}
	}
	return out, nil
}

// completionRelay lets the orchestrator and the admission queue reference
// each other despite being constructed in sequence. Bind must run before
// anything starts.
type completionRelay struct {
	handler domain.CompletionHandler
}

func (r *completionRelay) Bind(h domain.CompletionHandler) { r.handler = h }

func (r *completionRelay) HandleCompletion(ctx context.Context, completion domain.JobCompletion) {
	if r.handler == nil {
		return
	}
	r.handler.HandleCompletion(ctx, completion)
}

// runDebugServer serves pprof and the statsviz runtime dashboard on the debug
// host until ctx ends.
func runDebugServer(ctx context.Context, host string, logg *logger.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if err := statsviz.Register(mux); err != nil {
		return fmt.Errorf("register statsviz: %w", err)
	}

	server := &http.Server{Addr: host, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting debug server", "addr", host)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("debug server: %w", err)
	}
	return nil
}

// runMigrations applies all up migrations from db/migrations over a
// database/sql handle borrowed from the pool.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("could not acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://db/migrations"
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
