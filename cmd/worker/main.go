// The worker binary consumes the queues the apiserver publishes on: it
// delivers notification mail, writes audit entries, applies search-index
// mutations, renders report jobs and rebuilds projections after GEDCOM
// imports. It also watches the configured import directory for dropped
// .ged files.
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

	"github.com/mirono/webtrees/internal/application/importexport"
	"github.com/mirono/webtrees/internal/application/kinship"
	"github.com/mirono/webtrees/internal/application/reporting"
	"github.com/mirono/webtrees/internal/application/search"
	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	pgrepo "github.com/mirono/webtrees/internal/infrastructure/database/postgres/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/database/redis"
	"github.com/mirono/webtrees/internal/infrastructure/email"
	"github.com/mirono/webtrees/internal/infrastructure/messaging/kafka"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/prometheus"
	"github.com/mirono/webtrees/internal/infrastructure/render/html"
	"github.com/mirono/webtrees/internal/infrastructure/render/pdf"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
	"github.com/mirono/webtrees/internal/infrastructure/storage/minio"
	"github.com/mirono/webtrees/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const eventSource = "worker"

func main() {
	var (
		configPath  = flag.String("config", "configs/config.yaml", "path to the configuration file")
		healthAddr  = flag.String("health-addr", ":8081", "listen address for health and metrics")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("webtrees-worker %s (commit: %s, built: %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath, *healthAddr); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, healthAddr string) error {
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

	logger.Info("starting webtrees worker",
		logging.String("version", Version),
		logging.String("commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infrastructure.
	pg, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pg.Close()

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	osClient, err := opensearch.NewClient(opensearch.NewClientConfig(cfg.OpenSearch), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	indexer := opensearch.NewIndexer(osClient, opensearch.IndexerConfig{
		BulkBatchSize: cfg.OpenSearch.BulkBatchSize,
	}, logger)
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

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		MaxRetries: cfg.Kafka.ProducerRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	defer producer.Close()

	mailer, err := email.NewMailer(cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}

	// Repositories, stores and services.
	treeRepo := pgrepo.NewTreeRepository(pg, logger)
	recordRepo := pgrepo.NewRecordRepository(pg, logger)
	kinshipRepo := neo4jrepo.NewKinshipRepository(graphDriver, logger)
	if err := kinshipRepo.EnsureConstraints(ctx); err != nil {
		return fmt.Errorf("failed to prepare kinship graph: %w", err)
	}
	jobStore := redis.NewReportJobStore(redisClient, 0, logger)
	reportStore := minio.NewReportStore(objects, logger)
	exportStore := minio.NewExportStore(objects, logger)

	searchSvc := search.NewService(recordRepo, indexer, searcher, logger)
	kinshipSvc := kinship.NewService(recordRepo, kinshipRepo, logger)
	reportingSvc := reporting.NewService(jobStore, reportStore,
		&recordLoader{records: recordRepo},
		&reportEvents{producer: producer},
		rendererFactory, logger)
	importSvc := importexport.NewService(treeRepo, recordRepo, exportStore,
		&importEvents{producer: producer}, "webtrees", logger)

	w := &worker{
		mailer:  mailer,
		search:  searchSvc,
		kinship: kinshipSvc,
		reports: reportingSvc,
		log:     logger.Named("worker"),
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
		Topics: []string{
			kafka.TopicNotificationSend,
			kafka.TopicAuditLog,
			kafka.TopicSearchIndex,
			kafka.TopicReportGenerate,
			kafka.TopicGedcomImported,
		},
		RetryConfig: kafka.RetryConfig{
			MaxRetries:      cfg.Worker.MaxRetries,
			DeadLetterTopic: kafka.TopicDeadLetter,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	consumer.Subscribe(kafka.TopicNotificationSend, w.handleNotification)
	consumer.Subscribe(kafka.TopicAuditLog, w.handleAudit)
	consumer.Subscribe(kafka.TopicSearchIndex, w.handleSearchIndex)
	consumer.Subscribe(kafka.TopicReportGenerate, w.handleReportGenerate)
	consumer.Subscribe(kafka.TopicGedcomImported, w.handleGedcomImported)

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer consumer.Close()

	// Drop-directory import watcher.
	if cfg.Import.WatchDir != "" {
		watcher := importexport.NewWatcher(importSvc, treeRepo, cfg.Import, logger)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start import watcher: %w", err)
		}
		defer watcher.Stop()
	}

	// Health and metrics endpoint for probes.
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "webtrees",
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	healthSrv := healthServer(healthAddr, collector)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", logging.Err(err))
		}
	}()

	logger.Info("worker running")
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	return nil
}

func healthServer(addr string, collector prometheus.MetricsCollector) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})
	mux.Handle("/metrics", collector.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

// worker holds the consumers' shared dependencies.
type worker struct {
	mailer  email.Mailer
	search  *search.Service
	kinship *kinship.Service
	reports *reporting.Service
	log     logging.Logger
}

func (w *worker) handleNotification(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	var p kafka.NotificationPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	m, err := email.BuildMessage(p.Template, p.Email, p.Subject, p.Variables)
	if err != nil {
		return err
	}
	if err := w.mailer.Send(m); err != nil {
		return err
	}
	w.log.Info("mail delivered",
		logging.String("template", p.Template),
		logging.String("recipient_id", p.RecipientID))
	return nil
}

// handleAudit writes audit entries to the structured log. A dedicated sink
// can replace this without touching the producers.
func (w *worker) handleAudit(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	var p kafka.AuditLogPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	fields := []logging.Field{
		logging.String("action", p.Action),
		logging.String("actor_id", p.ActorID),
		logging.String("subject", p.Subject),
		logging.String("client_ip", p.ClientIP),
	}
	for k, v := range p.Detail {
		fields = append(fields, logging.String("detail_"+k, v))
	}
	w.log.Named("audit").Info("audit entry", fields...)
	return nil
}

func (w *worker) handleSearchIndex(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	var p kafka.SearchIndexPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	switch p.Op {
	case "index":
		return w.search.Index(ctx, p.TreeID, p.Xref, gedcom.RecordType(p.RecordType))
	case "delete":
		return w.search.Delete(ctx, p.TreeID, p.Xref, gedcom.RecordType(p.RecordType))
	case "reindex-tree":
		_, err := w.search.ReindexTree(ctx, p.TreeID)
		return err
	default:
		return errors.New(errors.ErrCodeValidation, "unknown search index op").WithDetail(p.Op)
	}
}

func (w *worker) handleReportGenerate(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	var p kafka.ReportGeneratePayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return w.reports.Process(ctx, p.Handle)
}

// handleGedcomImported rebuilds the derived projections of a freshly
// imported tree: the kinship graph first, then the search index.
func (w *worker) handleGedcomImported(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	var p kafka.GedcomImportedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	if _, err := w.kinship.SyncTree(ctx, p.TreeID); err != nil {
		return err
	}
	if _, err := w.search.ReindexTree(ctx, p.TreeID); err != nil {
		return err
	}
	w.log.Info("projections rebuilt after import",
		logging.Int64("tree_id", p.TreeID),
		logging.String("tree_name", p.TreeName))
	return nil
}

// Event publishing adapters.

func publish(ctx context.Context, producer *kafka.Producer, topic, eventType string, payload interface{}) error {
	env, err := kafka.NewEventEnvelope(eventType, eventSource, payload)
	if err != nil {
		return err
	}
	return producer.PublishEnvelope(ctx, topic, env)
}

// reportEvents satisfies reporting.Events.
type reportEvents struct{ producer *kafka.Producer }

func (e *reportEvents) ReportRequested(ctx context.Context, job *reporting.Job) error {
	return publish(ctx, e.producer, kafka.TopicReportGenerate, "report.requested", kafka.ReportGeneratePayload{
		Handle:      job.Handle,
		TreeID:      job.TreeID,
		Kind:        string(job.Kind),
		Format:      string(job.Format),
		Xref:        job.Xref,
		Generations: job.Generations,
		RequestedBy: job.RequestedBy,
	})
}

func (e *reportEvents) ReportFinished(ctx context.Context, job *reporting.Job) error {
	return publish(ctx, e.producer, kafka.TopicReportGenerated, "report.generated", kafka.ReportGeneratedPayload{
		Handle:     job.Handle,
		Status:     string(job.Status),
		ObjectKey:  job.ObjectKey,
		Reason:     job.Reason,
		FinishedAt: job.FinishedAt,
	})
}

// importEvents satisfies importexport.Events for the drop-directory watcher.
type importEvents struct{ producer *kafka.Producer }

func (e *importEvents) ImportCompleted(ctx context.Context, a importexport.Announcement) error {
	return publish(ctx, e.producer, kafka.TopicGedcomImported, "gedcom.imported", kafka.GedcomImportedPayload{
		TreeID:     a.TreeID,
		TreeName:   a.TreeName,
		Source:     a.Source,
		Counts:     a.Counts,
		ImportedAt: time.Now().UTC(),
	})
}

// recordLoader satisfies reporting.Loader over the record repository.
type recordLoader struct {
	records record.RecordRepository
}

func (l *recordLoader) Record(ctx context.Context, treeID int64, xref string) (*gedcom.Record, error) {
	rec, err := l.records.Get(ctx, treeID, xref)
	if err != nil {
		return nil, err
	}
	return rec.Parse()
}

// rendererFactory builds the output backend for a report format.
func rendererFactory(doc *report.Document, format report.Format) (report.Renderer, error) {
	switch format {
	case report.FormatPDF:
		return pdf.New(doc), nil
	case report.FormatHTML:
		return html.New(doc), nil
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unsupported report format").WithDetail(string(format))
	}
}
