package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/repositories"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("sentinel"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	// Connect through the production constructor so pool settings match
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.NewConnection(ctx, &config.DatabaseConfig{
		Host:              host,
		Port:              port.Int(),
		User:              "postgres",
		Password:          "postgres",
		Name:              "sentinel",
		SSLMode:           "disable",
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   5 * time.Minute,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: time.Minute,
	}, logger)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := runMigrations(ctx, db.Pool); err != nil {
		db.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	connStr, _ := container.ConnectionString(ctx, "sslmode=disable")

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       db.Pool,
		DB:         db,
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a database/sql handle
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.DB != nil {
		db.DB.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"ip_intelligence",
		"security_decisions",
		"security_events",
		"orders",
		"phone_blacklist",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// Repositories bundles every Signal Store repository
type Repositories struct {
	Intelligence *repositories.IntelligenceRepository
	Orders       *repositories.OrderHistoryRepository
	Decisions    *repositories.SecurityDecisionRepository
	Events       *repositories.SecurityEventRepository
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) Repositories {
	return Repositories{
		Intelligence: repositories.NewIntelligenceRepository(db),
		Orders:       repositories.NewOrderHistoryRepository(db),
		Decisions:    repositories.NewSecurityDecisionRepository(db),
		Events:       repositories.NewSecurityEventRepository(db),
	}
}

// SeedOrder inserts a storefront order with the given status and age
func SeedOrder(ctx context.Context, pool *pgxpool.Pool, tenantID, phone, status string, age time.Duration) error {
	_, err := pool.Exec(ctx,
		`INSERT INTO orders (tenant_id, phone, status, created_at) VALUES ($1, $2, $3, NOW() - $4::interval)`,
		tenantID, phone, status, fmt.Sprintf("%d seconds", int(age.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// SeedBlacklistedPhone adds a phone to the tenant blacklist
func SeedBlacklistedPhone(ctx context.Context, pool *pgxpool.Pool, tenantID, phone string) error {
	_, err := pool.Exec(ctx,
		`INSERT INTO phone_blacklist (tenant_id, phone, reason) VALUES ($1, $2, 'chargeback')`,
		tenantID, phone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert blacklist entry: %w", err)
	}
	return nil
}

// CountSecurityEvents counts persisted events of a type for an address
func CountSecurityEvents(ctx context.Context, pool *pgxpool.Pool, ip, eventType string) (int, error) {
	var n int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM security_events WHERE ip = $1 AND event_type = $2`, ip, eventType,
	).Scan(&n)
	return n, err
}
