// The apiserver binary serves the webtrees HTTP API. It wires PostgreSQL,
// Redis, Kafka, OpenSearch, Neo4j and MinIO behind the application services
// and shuts everything down in reverse order on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mirono/webtrees/internal/application/auth"
	"github.com/mirono/webtrees/internal/application/genealogy"
	"github.com/mirono/webtrees/internal/application/importexport"
	"github.com/mirono/webtrees/internal/application/kinship"
	"github.com/mirono/webtrees/internal/application/reporting"
	"github.com/mirono/webtrees/internal/application/search"
	"github.com/mirono/webtrees/internal/application/users"
	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	pgrepo "github.com/mirono/webtrees/internal/infrastructure/database/postgres/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/database/redis"
	"github.com/mirono/webtrees/internal/infrastructure/messaging/kafka"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/prometheus"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
	"github.com/mirono/webtrees/internal/infrastructure/storage/minio"
	httpserver "github.com/mirono/webtrees/internal/interfaces/http"
	"github.com/mirono/webtrees/internal/interfaces/http/handlers"
	"github.com/mirono/webtrees/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const startupTimeout = 30 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "configs/config.yaml", "path to the configuration file")
		migrate     = flag.Bool("migrate", false, "apply pending database migrations before serving")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("webtrees-apiserver %s (commit: %s, built: %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting webtrees apiserver",
		logging.String("version", Version),
		logging.String("commit", GitCommit))

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// Infrastructure.
	pg, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pg.Close()

	if migrate {
		if err := pg.RunMigrations(cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info("database migrations applied")
	}

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		MaxRetries: cfg.Kafka.ProducerRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	defer producer.Close()

	if cfg.Kafka.AutoCreateTopics {
		tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to kafka admin: %w", err)
		}
		if err := tm.EnsureDefaultTopics(startCtx); err != nil {
			return fmt.Errorf("failed to create topics: %w", err)
		}
		tm.Close()
	}

	osClient, err := opensearch.NewClient(opensearch.NewClientConfig(cfg.OpenSearch), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	indexer := opensearch.NewIndexer(osClient, opensearch.IndexerConfig{
		BulkBatchSize: cfg.OpenSearch.BulkBatchSize,
	}, logger)
	if err := indexer.EnsureIndexes(startCtx); err != nil {
		return fmt.Errorf("failed to ensure search indexes: %w", err)
	}
	searcher := opensearch.NewSearcher(osClient, opensearch.SearcherConfig{}, logger)

	graphDriver, err := neo4j.NewDriver(cfg.Neo4j, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	defer graphDriver.Close()

	objects, err := minio.NewClient(cfg.MinIO, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to minio: %w", err)
	}
	if err := objects.EnsureBuckets(startCtx); err != nil {
		return fmt.Errorf("failed to ensure buckets: %w", err)
	}

	// Repositories and stores.
	treeRepo := pgrepo.NewTreeRepository(pg, logger)
	recordRepo := pgrepo.NewRecordRepository(pg, logger)
	userRepo := pgrepo.NewUserRepository(pg, logger)
	kinshipRepo := neo4jrepo.NewKinshipRepository(graphDriver, logger)
	if err := kinshipRepo.EnsureConstraints(startCtx); err != nil {
		return fmt.Errorf("failed to prepare kinship graph: %w", err)
	}

	resetTokens := redis.NewResetTokenStore(redisClient, cfg.Auth.ResetTokenTTL, cfg.Auth.ResetTokenLength, logger)
	throttle := redis.NewLoginThrottle(redisClient, cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutWindow)
	denylist := redis.NewSessionDenylist(redisClient)
	jobStore := redis.NewReportJobStore(redisClient, 0, logger)

	mediaStore := minio.NewMediaStore(objects, logger)
	exportStore := minio.NewExportStore(objects, logger)
	reportStore := minio.NewReportStore(objects, logger)

	// Event publishing.
	eventBus := &bus{producer: producer}

	// Application services.
	sessions, err := auth.NewSessionManager(cfg.Auth, denylist)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(userRepo, sessions, resetTokens, throttle,
		&authEvents{bus: eventBus}, cfg.Auth, cfg.Server.BaseURL, logger)
	usersSvc := users.NewService(userRepo, &usersEvents{bus: eventBus},
		cfg.Auth, cfg.Server.BaseURL, logger)
	kinshipSvc := kinship.NewService(recordRepo, kinshipRepo, logger)
	genealogySvc := genealogy.NewService(treeRepo, recordRepo, mediaStore,
		&searchEvents{bus: eventBus}, kinshipSvc, logger)
	gedcomSvc := importexport.NewService(treeRepo, recordRepo, exportStore,
		&importEvents{bus: eventBus}, "webtrees", logger)
	searchSvc := search.NewService(recordRepo, indexer, searcher, logger)
	reportingSvc := reporting.NewService(jobStore, reportStore,
		&recordLoader{records: recordRepo}, &reportEvents{bus: eventBus},
		rendererFactory, logger)

	// Metrics.
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "webtrees",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	// HTTP surface.
	healthHandler := handlers.NewHealthHandler(Version,
		&postgresHealth{conn: pg},
		&redisHealth{client: redisClient},
		&opensearchHealth{client: osClient},
		&neo4jHealth{driver: graphDriver},
	)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		AuthHandler:    handlers.NewAuthHandler(authSvc, logger),
		UsersHandler:   handlers.NewUsersHandler(usersSvc, logger),
		TreesHandler:   handlers.NewTreesHandler(genealogySvc, logger),
		RecordsHandler: handlers.NewRecordsHandler(genealogySvc, logger),
		GedcomHandler:  handlers.NewGedcomHandler(gedcomSvc, logger),
		SearchHandler:  handlers.NewSearchHandler(searchSvc, logger),
		KinshipHandler: handlers.NewKinshipHandler(kinshipSvc, logger),
		ReportsHandler: handlers.NewReportsHandler(reportingSvc, genealogySvc, logger),
		HealthHandler:  healthHandler,

		AuthMiddleware:    middleware.NewAuthMiddleware(authSvc, logger),
		CORSMiddleware:    middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()),
		LoggingMiddleware: middleware.NewLoggingMiddleware(logger, middleware.DefaultLoggingConfig()),
		MetricsMiddleware: middleware.NewMetricsMiddleware(appMetrics),
		RateLimitMiddleware: middleware.NewRateLimitMiddleware(
			middleware.NewTokenBucketLimiter(10, 30, time.Minute),
			middleware.DefaultRateLimitConfig()),

		Logger:           logger,
		MetricsCollector: collector,
	})

	server := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("apiserver stopped")
	return nil
}
