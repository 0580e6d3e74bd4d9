package prometheus

import (
	"fmt"
	"time"
)

// AppMetrics bundles every metric the webtrees server emits.  All vectors are
// registered once at startup through a MetricsCollector and shared by
// reference; a failed registration yields a no-op vector so callers never
// need to nil-check.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	// Authentication and password reset
	AuthAttemptsTotal      CounterVec
	AuthLockoutsTotal      CounterVec
	ResetTokensIssuedTotal CounterVec
	ResetTokensUsedTotal   CounterVec
	SessionsActive         GaugeVec

	// GEDCOM import and export
	ImportRecordsTotal CounterVec
	ImportDuration     HistogramVec
	ExportDuration     HistogramVec
	ImportsActive      GaugeVec

	// Record operations
	RecordOpsTotal     CounterVec
	RecordChangesTotal CounterVec
	RecordTotalCount   GaugeVec

	// Report generation
	ReportJobsTotal    CounterVec
	ReportDuration     HistogramVec
	ReportArtifactSize HistogramVec
	ReportQueueDepth   GaugeVec

	// Search indexing and queries
	SearchIndexOpsTotal CounterVec
	SearchQueryDuration HistogramVec
	SearchResultCount   HistogramVec

	// Kinship graph
	KinshipNodesTotal    GaugeVec
	KinshipEdgesTotal    GaugeVec
	KinshipQueryDuration HistogramVec
	KinshipSyncDuration  HistogramVec

	// Outbound mail
	MailSentTotal CounterVec

	// Infrastructure
	DBConnectionPoolSize   GaugeVec
	DBConnectionPoolActive GaugeVec
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	MessageProcessDuration HistogramVec

	// System health
	ServiceUptime     GaugeVec
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default bucket layouts, tuned to the latency profile of each subsystem.
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultImportDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}
	DefaultReportDurationBuckets = []float64{.5, 1, 2, 5, 10, 30, 60, 120, 300}
	DefaultSizeBuckets           = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers the full metric set against the collector and
// returns the populated struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPResponseSize = collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path")
	// In-flight requests are counted before routing, so the path is not
	// known yet; method is the only label.
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// Auth
	m.AuthAttemptsTotal = collector.RegisterCounter("auth_attempts_total", "Login attempts", "result")
	m.AuthLockoutsTotal = collector.RegisterCounter("auth_lockouts_total", "Accounts locked after repeated failures")
	m.ResetTokensIssuedTotal = collector.RegisterCounter("reset_tokens_issued_total", "Password reset tokens issued")
	m.ResetTokensUsedTotal = collector.RegisterCounter("reset_tokens_used_total", "Password reset token consumption", "result")
	m.SessionsActive = collector.RegisterGauge("sessions_active", "Authenticated sessions currently valid")

	// GEDCOM
	m.ImportRecordsTotal = collector.RegisterCounter("gedcom_import_records_total", "Records written during GEDCOM import", "record_type", "status")
	m.ImportDuration = collector.RegisterHistogram("gedcom_import_duration_seconds", "Full GEDCOM import duration", DefaultImportDurationBuckets, "source")
	m.ExportDuration = collector.RegisterHistogram("gedcom_export_duration_seconds", "Full GEDCOM export duration", DefaultReportDurationBuckets, "target")
	m.ImportsActive = collector.RegisterGauge("gedcom_imports_active", "GEDCOM imports currently running")

	// Records
	m.RecordOpsTotal = collector.RegisterCounter("record_ops_total", "Record mutations", "op", "record_type")
	m.RecordChangesTotal = collector.RegisterCounter("record_changes_total", "Change journal entries written", "record_type")
	m.RecordTotalCount = collector.RegisterGauge("record_total_count", "Records per type", "record_type")

	// Reports
	m.ReportJobsTotal = collector.RegisterCounter("report_jobs_total", "Report jobs processed", "kind", "format", "status")
	m.ReportDuration = collector.RegisterHistogram("report_duration_seconds", "Report generation duration", DefaultReportDurationBuckets, "kind", "format")
	m.ReportArtifactSize = collector.RegisterHistogram("report_artifact_size_bytes", "Rendered report artifact size", DefaultSizeBuckets, "format")
	m.ReportQueueDepth = collector.RegisterGauge("report_queue_depth", "Report jobs awaiting a worker")

	// Search
	m.SearchIndexOpsTotal = collector.RegisterCounter("search_index_ops_total", "Search index mutations", "op", "status")
	m.SearchQueryDuration = collector.RegisterHistogram("search_query_duration_seconds", "Search query duration", DefaultHTTPDurationBuckets, "kind")
	m.SearchResultCount = collector.RegisterHistogram("search_result_count", "Search result count", []float64{0, 1, 5, 10, 50, 100, 500, 1000}, "kind")

	// Kinship
	m.KinshipNodesTotal = collector.RegisterGauge("kinship_nodes_total", "Nodes in the kinship graph", "node_type")
	m.KinshipEdgesTotal = collector.RegisterGauge("kinship_edges_total", "Edges in the kinship graph", "edge_type")
	m.KinshipQueryDuration = collector.RegisterHistogram("kinship_query_duration_seconds", "Kinship graph query duration", DefaultDBDurationBuckets, "query_type")
	m.KinshipSyncDuration = collector.RegisterHistogram("kinship_sync_duration_seconds", "Kinship graph sync duration", DefaultReportDurationBuckets, "trigger")

	// Mail
	m.MailSentTotal = collector.RegisterCounter("mail_sent_total", "Outbound mail by template and outcome", "template", "status")

	// Infrastructure
	m.DBConnectionPoolSize = collector.RegisterGauge("db_pool_size", "Database connection pool size", "db")
	m.DBConnectionPoolActive = collector.RegisterGauge("db_pool_active", "Database connections in use", "db")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Kafka message handling duration", DefaultHTTPDurationBuckets, "topic")

	// System
	m.ServiceUptime = collector.RegisterGauge("service_uptime_seconds", "Service uptime", "service")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Dependency health (1=up, 0=down)", "dependency")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Application errors", "component", "code")

	return m
}

// Helpers

// RecordHTTPRequest observes one completed HTTP request.
func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration, respSize int64) {
	status := fmt.Sprintf("%d", statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordAuthAttempt counts one login attempt.
func RecordAuthAttempt(metrics *AppMetrics, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	metrics.AuthAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordReportJob observes one finished report job.
func RecordReportJob(metrics *AppMetrics, kind, format, status string, duration time.Duration, artifactSize int) {
	metrics.ReportJobsTotal.WithLabelValues(kind, format, status).Inc()
	metrics.ReportDuration.WithLabelValues(kind, format).Observe(duration.Seconds())
	if artifactSize > 0 {
		metrics.ReportArtifactSize.WithLabelValues(format).Observe(float64(artifactSize))
	}
}

// RecordDBQuery observes one database round trip.
func RecordDBQuery(metrics *AppMetrics, db, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(db, "query_error").Inc()
	}
}

// RecordCacheAccess counts a cache hit or miss.
func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordHealth sets the health gauge for one dependency probe.
func RecordHealth(metrics *AppMetrics, dependency string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	metrics.HealthCheckStatus.WithLabelValues(dependency).Set(v)
}

// RecordError counts one application error against its component.
func RecordError(metrics *AppMetrics, component, code string) {
	metrics.ErrorsTotal.WithLabelValues(component, code).Inc()
}
