package helper

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	testDBName     = "docrag_test"
	testDBUsername = "docrag"
	testDBPassword = "docrag"
)

// MustStartPostgresContainer starts a disposable Postgres container with the
// pgvector extension available. It returns the terminate function and the
// mapped host port.
func MustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	dbContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUsername),
		postgres.WithPassword(testDBPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}

	port, err := dbContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, "", err
	}

	return dbContainer.Terminate, port.Port(), nil
}

// SetTestDatabaseConfigEnvs points the database configuration environment
// variables at the test container. Values are reset when the test finishes.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", port)
	t.Setenv("DB_DATABASE", testDBName)
	t.Setenv("DB_USERNAME", testDBUsername)
	t.Setenv("DB_PASSWORD", testDBPassword)
	t.Setenv("DB_SCHEMA", "public")
}

// NewTestDatabase connects to the test container with a debug-level logger.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	opts := PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}
	logger := slog.New(NewPrettyHandler(os.Stdout, opts))

	db := NewDatabase("test", config, logger)
	db.Instance.SetConnMaxLifetime(time.Minute)

	return db
}
