// Package config provides configuration loading, defaults, and validation for
// the webtrees server.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultBaseURL    = "http://localhost:8080"

	DefaultDBHost       = "localhost"
	DefaultDBPort       = 5432
	DefaultDBName       = "webtrees"
	DefaultDBMaxConns   = 25
	DefaultDBMigrations = "migrations"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "webtrees:"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "webtrees-workers"

	DefaultOpenSearchAddr   = "http://localhost:9200"
	DefaultOpenSearchPrefix = "webtrees"

	DefaultNeo4jURI = "bolt://localhost:7687"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMediaBucket   = "webtrees-media"
	DefaultReportBucket  = "webtrees-reports"
	DefaultExportBucket  = "webtrees-exports"
	DefaultTempBucket    = "webtrees-temp"

	DefaultMailTransport = "log"
	DefaultMailFrom      = "webtrees@localhost"
	DefaultMailFromName  = "webtrees"

	DefaultSessionTTL       = 24 * time.Hour
	DefaultResetTokenTTL    = time.Hour
	DefaultResetTokenLength = 32
	DefaultBcryptCost       = 12
	DefaultMaxLoginAttempts = 5
	DefaultLockoutWindow    = 30 * time.Minute
	DefaultMinPasswordLen   = 8

	DefaultImportMaxFileSize = int64(256 << 20) // 256 MiB

	DefaultReportFormat   = "pdf"
	DefaultReportPageSize = "A4"
	DefaultMaxGenerations = 10

	DefaultWorkerConcurrency = 4

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the server default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling raw config data and before Validate() so that
// optional-but-defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = DefaultBaseURL
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 32 << 20 // 32 MiB
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "webtrees"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultDBMigrations
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 15 * time.Minute
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}
	if cfg.Kafka.NumPartitions == 0 {
		cfg.Kafka.NumPartitions = 3
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultOpenSearchPrefix
	}
	if cfg.OpenSearch.BulkBatchSize == 0 {
		cfg.OpenSearch.BulkBatchSize = 500
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.User == "" {
		cfg.Neo4j.User = "neo4j"
	}
	if cfg.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Neo4j.MaxConnectionPoolSize = 50
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = 5 * time.Second
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.MediaBucket == "" {
		cfg.MinIO.MediaBucket = DefaultMediaBucket
	}
	if cfg.MinIO.ReportBucket == "" {
		cfg.MinIO.ReportBucket = DefaultReportBucket
	}
	if cfg.MinIO.ExportBucket == "" {
		cfg.MinIO.ExportBucket = DefaultExportBucket
	}
	if cfg.MinIO.TempBucket == "" {
		cfg.MinIO.TempBucket = DefaultTempBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = time.Hour
	}

	// ── Mail ──────────────────────────────────────────────────────────────────
	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = DefaultMailTransport
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Mail.FromAddress == "" {
		cfg.Mail.FromAddress = DefaultMailFrom
	}
	if cfg.Mail.FromName == "" {
		cfg.Mail.FromName = DefaultMailFromName
	}
	if cfg.Mail.SendTimeout == 0 {
		cfg.Mail.SendTimeout = 10 * time.Second
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = DefaultSessionTTL
	}
	if cfg.Auth.ResetTokenTTL == 0 {
		cfg.Auth.ResetTokenTTL = DefaultResetTokenTTL
	}
	if cfg.Auth.ResetTokenLength == 0 {
		cfg.Auth.ResetTokenLength = DefaultResetTokenLength
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = DefaultBcryptCost
	}
	if cfg.Auth.MaxLoginAttempts == 0 {
		cfg.Auth.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if cfg.Auth.LockoutWindow == 0 {
		cfg.Auth.LockoutWindow = DefaultLockoutWindow
	}
	if cfg.Auth.MinPasswordLength == 0 {
		cfg.Auth.MinPasswordLength = DefaultMinPasswordLen
	}

	// ── Import ────────────────────────────────────────────────────────────────
	if cfg.Import.MaxFileSize == 0 {
		cfg.Import.MaxFileSize = DefaultImportMaxFileSize
	}

	// ── Report ────────────────────────────────────────────────────────────────
	if cfg.Report.DefaultFormat == "" {
		cfg.Report.DefaultFormat = DefaultReportFormat
	}
	if cfg.Report.DefaultPageSize == "" {
		cfg.Report.DefaultPageSize = DefaultReportPageSize
	}
	if cfg.Report.GenerateTimeout == 0 {
		cfg.Report.GenerateTimeout = 5 * time.Minute
	}
	if cfg.Report.MaxGenerations == 0 {
		cfg.Report.MaxGenerations = DefaultMaxGenerations
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.QueueDepth == 0 {
		cfg.Worker.QueueDepth = 100
	}
	if cfg.Worker.HeartbeatInterval == 0 {
		cfg.Worker.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = 5 * time.Second
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
}

// NewDefaultConfig returns a Config populated entirely with defaults.  The
// JWT secret is a throwaway development value; production deployments must
// override it via configuration or the WEBTREES_AUTH_JWT_SECRET variable.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Auth.JWTSecret = "webtrees-insecure-dev-secret"
	return cfg
}
