package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  host: "127.0.0.1"
  port: 8081
  base_url: "https://family.example.com"
database:
  host: "db.internal"
  port: 5432
  user: "webtrees"
  password: "secret"
  db_name: "webtrees"
redis:
  addr: "redis.internal:6379"
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  group_id: "webtrees-workers"
mail:
  transport: "smtp"
  host: "smtp.example.com"
  port: 587
  from_address: "no-reply@family.example.com"
auth:
  jwt_secret: "file-secret"
  reset_token_ttl: 2h
log:
  level: "debug"
  format: "text"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "webtrees.yaml")
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)
	return path
}

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	})
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "https://family.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "smtp", cfg.Mail.Transport)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FromFile_AppliesDefaultsForUnsetSections(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultOpenSearchAddr}, cfg.OpenSearch.Addresses)
	assert.Equal(t, DefaultNeo4jURI, cfg.Neo4j.URI)
	assert.Equal(t, DefaultMediaBucket, cfg.MinIO.MediaBucket)
	assert.Equal(t, DefaultResetTokenLength, cfg.Auth.ResetTokenLength)
	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load("non_existent_config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	path := createTempConfigFile(t, "invalid_yaml: [")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	invalid := validConfigYAML + `
report:
  default_format: "docx"
`
	path := createTempConfigFile(t, invalid)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_EnvOverride(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	setEnvVars(t, map[string]string{
		"WEBTREES_SERVER_PORT": "9999",
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_EnvOverride_NestedKey(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	setEnvVars(t, map[string]string{
		"WEBTREES_DATABASE_HOST":        "db-override",
		"WEBTREES_AUTH_RESET_TOKEN_TTL": "45m",
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db-override", cfg.Database.Host)
	assert.Equal(t, "45m0s", cfg.Auth.ResetTokenTTL.String())
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	setEnvVars(t, map[string]string{
		"WEBTREES_AUTH_JWT_SECRET": "env-secret",
		"WEBTREES_SERVER_PORT":     "9001",
		"WEBTREES_MAIL_TRANSPORT":  "log",
	})

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 9001, cfg.Server.Port)
	// Everything else falls back to defaults.
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
}

func TestLoadFromEnv_MissingJWTSecretFailsValidation(t *testing.T) {
	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
}

func TestLoadFromFile_Alias(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestMustLoad_Success(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	assert.NotPanics(t, func() {
		MustLoad(path)
	})
}

func TestMustLoad_Panic(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad("non_existent.yaml")
	})
}

func TestFlattenKeys(t *testing.T) {
	in := map[string]interface{}{
		"database": map[string]interface{}{
			"host": "localhost",
			"port": 5432,
		},
		"log": map[string]interface{}{
			"level": "info",
		},
	}
	out := flattenKeys("", in)
	assert.Equal(t, "localhost", out["database.host"])
	assert.Equal(t, 5432, out["database.port"])
	assert.Equal(t, "info", out["log.level"])
}
