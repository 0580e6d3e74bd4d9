// Package integration holds tests that exercise the real backing services.
// They are skipped unless WEBTREES_INTEGRATION_TEST=1 and expect a local
// docker-compose stack; each service address can be overridden through the
// environment.
package integration

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	"github.com/mirono/webtrees/internal/infrastructure/database/redis"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	pgrepo "github.com/mirono/webtrees/internal/infrastructure/database/postgres/repositories"
)

const (
	// EnvIntegrationEnabled controls whether integration tests run.
	EnvIntegrationEnabled = "WEBTREES_INTEGRATION_TEST"

	// EnvPostgresHost and friends override the default service addresses.
	EnvPostgresHost   = "WEBTREES_TEST_POSTGRES_HOST"
	EnvPostgresPort   = "WEBTREES_TEST_POSTGRES_PORT"
	EnvRedisAddr      = "WEBTREES_TEST_REDIS_ADDR"
	EnvOpenSearchAddr = "WEBTREES_TEST_OPENSEARCH_ADDR"
	EnvNeo4jURI       = "WEBTREES_TEST_NEO4J_URI"

	// EnvMigrationsDir overrides the path to the SQL migrations.
	EnvMigrationsDir = "WEBTREES_TEST_MIGRATIONS"
)

func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(EnvIntegrationEnabled) != "1" {
		t.Skipf("integration tests disabled; set %s=1 to enable", EnvIntegrationEnabled)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envIntOr(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// openPostgres connects, applies migrations and wipes all rows so each test
// starts from an empty database. Without a configured host it launches a
// throwaway container instead.
func openPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	cfg := config.DatabaseConfig{
		Host:         os.Getenv(EnvPostgresHost),
		Port:         envIntOr(EnvPostgresPort, 5432),
		User:         envOr("WEBTREES_TEST_POSTGRES_USER", "webtrees"),
		Password:     envOr("WEBTREES_TEST_POSTGRES_PASSWORD", "webtrees"),
		DBName:       envOr("WEBTREES_TEST_POSTGRES_DB", "webtrees_test"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}
	if cfg.Host == "" {
		cfg.Host, cfg.Port = startPostgresContainer(t, cfg)
	}
	conn, err := postgres.NewConnection(cfg, logging.NewNopLogger())
	require.NoError(t, err, "postgres must be reachable for integration tests")
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.RunMigrations(envOr(EnvMigrationsDir, "../../migrations")))
	truncateAll(t, conn)
	return conn
}

// startPostgresContainer launches PostgreSQL 16 and returns its address.
func startPostgresContainer(t *testing.T, cfg config.DatabaseConfig) (string, int) {
	t.Helper()
	ctx := testContext(t)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     cfg.User,
				"POSTGRES_PASSWORD": cfg.Password,
				"POSTGRES_DB":       cfg.DBName,
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "docker must be available when no postgres is configured")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return host, port.Int()
}

func truncateAll(t *testing.T, conn *postgres.Connection) {
	t.Helper()
	_, err := conn.DB().Exec(
		`TRUNCATE changes, xref_counters, records, site_settings, trees, users CASCADE`)
	require.NoError(t, err)
}

func openRedis(t *testing.T) *redis.Client {
	t.Helper()
	client, err := redis.NewClient(config.RedisConfig{
		Addr:      envOr(EnvRedisAddr, "localhost:6379"),
		DB:        15,
		KeyPrefix: "webtrees_test",
	}, logging.NewNopLogger())
	require.NoError(t, err, "redis must be reachable for integration tests")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// seedUser inserts an active account and returns it.
func seedUser(t *testing.T, conn *postgres.Connection, username string) *user.User {
	t.Helper()
	repo := pgrepo.NewUserRepository(conn, logging.NewNopLogger())
	u := &user.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("%s@example.org", username),
		Username:     username,
		RealName:     username,
		PasswordHash: "$2a$10$integrationtesthashvalueonly",
		Role:         user.RoleMember,
		Status:       user.StatusActive,
		Language:     "en-US",
	}
	require.NoError(t, repo.Create(testContext(t), u))
	return u
}

// seedTree inserts a tree owned by the given user and returns it.
func seedTree(t *testing.T, conn *postgres.Connection, owner *user.User, name string) *tree.Tree {
	t.Helper()
	repo := pgrepo.NewTreeRepository(conn, logging.NewNopLogger())
	tr := &tree.Tree{
		Name:        name,
		Title:       name + " family tree",
		OwnerID:     owner.ID,
		ImportState: tree.ImportNone,
	}
	require.NoError(t, repo.Create(testContext(t), tr))
	return tr
}

// sampleGedcom is a minimal two-generation file used by import tests.
const sampleGedcom = `0 HEAD
1 SOUR webtrees
1 GEDC
2 VERS 5.5.1
2 FORM LINEAGE-LINKED
1 CHAR UTF-8
0 @I1@ INDI
1 NAME John /Smith/
1 SEX M
1 BIRT
2 DATE 12 MAR 1950
2 PLAC Boston, Massachusetts
1 FAMS @F1@
0 @I2@ INDI
1 NAME Mary /Jones/
1 SEX F
1 BIRT
2 DATE 4 JUL 1952
1 FAMS @F1@
0 @I3@ INDI
1 NAME Peter /Smith/
1 SEX M
1 BIRT
2 DATE 30 SEP 1980
1 FAMC @F1@
0 @F1@ FAM
1 HUSB @I1@
1 WIFE @I2@
1 CHIL @I3@
1 MARR
2 DATE 20 JUN 1975
0 TRLR
`
