// Package app boots the credit analysis service: database, checkpoint
// store, evaluator registry, pipeline, coordinator and HTTP surface.
package app

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/creditflow/creditflow/internal/checkpoint"
	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/controllers"
	"github.com/creditflow/creditflow/internal/coordinator"
	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/evaluator"
	"github.com/creditflow/creditflow/internal/evaluator/rules"
	"github.com/creditflow/creditflow/internal/hub"
	"github.com/creditflow/creditflow/internal/migrations"
	"github.com/creditflow/creditflow/internal/pipeline"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lmittmann/tint"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

// Start boots the service and blocks until the HTTP server stops.
func Start(mux *http.ServeMux) error {
	clock := core.NewRealClock()

	store, closeDB := setupCheckpointStore(clock)
	defer closeDB()

	analysisCfg := loadAnalysisConfig()

	registry := evaluator.NewRegistry()
	rules.Register(registry, clock)

	retry := pipeline.RetryConfig{
		MaxAttempts:      config.GetSystemSettingInteger(config.ENGINE_MAX_ATTEMPTS),
		RetryIntervalMin: parseDurationSetting(config.ENGINE_RETRY_INTERVAL_MIN),
		RetryIntervalMax: parseDurationSetting(config.ENGINE_RETRY_INTERVAL_MAX),
	}
	appendAttempts := config.GetSystemSettingInteger(config.ENGINE_CHECKPOINT_WRITE_RETRIES)
	pipe := pipeline.New(store, registry, analysisCfg, retry, appendAttempts, clock)

	eventHub := hub.New(hub.DefaultBufferSize)

	coord := coordinator.New(store, pipe, eventHub, analysisCfg, clock,
		config.GetSystemSettingInteger(config.ENGINE_MAX_ACTIVE),
		parseDurationSetting(config.STATUS_CACHE_TTL))

	recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := coord.RecoverAll(recoverCtx); err != nil {
		slog.Error("Recovery scan failed", "error", err)
	}
	cancel()

	if mux == nil {
		mux = http.NewServeMux()
	}
	applicationsController := controllers.NewApplicationsController(coord, store)
	applicationsController.RegisterRoutes(mux)

	addr := ":" + config.GetSystemSettingString(config.SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("HTTP server failed", "error", err)
		return err
	}
	return nil
}

func setupCheckpointStore(clock core.Clock) (checkpoint.Store, func()) {
	databaseType := config.GetSystemSettingString(config.DATABASE_TYPE)
	switch databaseType {
	case config.DATABASE_TYPE_POSTGRES:
		db := setupPostgresDatabase()
		return checkpoint.NewSQLStore(db, clock), func() { db.Close() }
	case config.DATABASE_TYPE_MYSQL:
		db := setupMysqlDatabase()
		return checkpoint.NewSQLStore(db, clock), func() { db.Close() }
	case config.DATABASE_TYPE_SQLLITE:
		db := setupSqlLiteDatabase()
		return checkpoint.NewSQLStore(db, clock), func() { db.Close() }
	case config.DATABASE_TYPE_REDIS:
		store := checkpoint.NewRedisStore(checkpoint.RedisConfig{
			Addrs:     strings.Split(config.GetSystemSettingString(config.REDIS_ADDR), ","),
			Namespace: config.GetSystemSettingString(config.REDIS_NAMESPACE),
		}, clock)
		slog.Info("Using Redis checkpoint store", "addr", config.GetSystemSettingString(config.REDIS_ADDR))
		return store, func() { store.Close() }
	case config.DATABASE_TYPE_MEMORY:
		slog.Warn("Using in-memory checkpoint store, workflows will not survive a restart")
		return checkpoint.NewMemoryStore(clock), func() {}
	default:
		panic("CREDITFLOW_DATABASE_TYPE must be set to one of the following values: POSTGRES, MYSQL, SQLLITE, REDIS, MEMORY")
	}
}

func loadAnalysisConfig() *config.AnalysisConfig {
	path := config.GetSystemSettingString(config.ANALYSIS_CONFIG_FILE)
	if path == "" {
		return config.DefaultAnalysisConfig()
	}
	cfg, err := config.LoadAnalysisConfig(path)
	if err != nil {
		slog.Error("Failed to load analysis config, using defaults", "path", path, "error", err)
		return config.DefaultAnalysisConfig()
	}
	slog.Info("Loaded analysis config", "path", path)
	return cfg
}

func parseDurationSetting(key string) time.Duration {
	dur, err := time.ParseDuration(config.GetSystemSettingString(key))
	if err != nil {
		panic(key + " must be a valid duration, e.g. 500ms or 10s")
	}
	return dur
}

func setupPostgresDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("CREDITFLOW_DATABASE_URL must be set when using the POSTGRES database type")
	}
	slog.Info("Using Postgres database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("postgres", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening Postgres database")
	dbPostgres, err := sql.Open("postgres", dbURL)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbPostgres
}

func setupSqlLiteDatabase() *sql.DB {
	fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
	if fileName == "" {
		panic("CREDITFLOW_DATABASE_SQLLITE_FILE_NAME must be set")
	}
	dbURL := "sqlite3://" + fileName
	slog.Info("Using SQLite database", "file", fileName)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("sqllite3", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening SQLite database")
	dbSqlLite, err := sql.Open("sqlite3", fileName)
	if err != nil {
		log.Fatalf("Failed to open SQLite DB: %v", err)
	}
	if err := dbSqlLite.Ping(); err != nil {
		log.Fatalf("Failed to ping SQLite DB: %v", err)
	}
	return dbSqlLite
}

func setupMysqlDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("CREDITFLOW_DATABASE_URL must be set when using the MYSQL database type")
	}
	if !strings.Contains(dbURL, "parseTime=true") {
		panic("CREDITFLOW_DATABASE_URL must contain 'parseTime=true' for MySQL")
	}
	if !strings.HasPrefix(dbURL, "mysql://") {
		panic("CREDITFLOW_DATABASE_URL must start with 'mysql://' for MySQL")
	}

	slog.Info("Using MySQL database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("mysql", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening MySQL database")
	dbMysql, err := sql.Open("mysql", strings.Replace(dbURL, "mysql://", "", 1))
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbMysql
}

func runMigrationsFromEmbed(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func SetupLogger() {
	w := os.Stderr
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
