package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feeledger/internal/config"
	"feeledger/internal/core"
	"feeledger/internal/sheets/memory"
	"feeledger/internal/storage"
)

func sqliteConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Database: storage.Config{
			Driver:     storage.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "backend.db"),
		},
		JWTSecret:       strings.Repeat("k", 32),
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		DatabaseDriver:         "sqlite",
		SQLiteDBPath:           "/tmp/ledger.db",
		SQLiteMaxOpenConns:     1,
		AMQPURL:                "amqp://localhost",
		AMQPExchange:           "feeledger",
		AMQPQueue:              "ledger_events",
		JWTSecret:              "secret",
		AccessTokenTTL:         time.Hour,
		RefreshTokenTTL:        2 * time.Hour,
		DefaultAcademicYear:    "2024-2025",
		AcademicYearStartMonth: 9,
		SyncBatchSize:          25,
	}

	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Database.Driver != storage.DriverSQLite || cfg.Database.MaxOpenConns != 1 {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Ledger.AcademicYearStartMonth != time.September || cfg.Ledger.DefaultAcademicYear != "2024-2025" {
		t.Errorf("unexpected ledger config %+v", cfg.Ledger)
	}
	if cfg.SyncBatchSize != 25 || cfg.AMQPQueue != "ledger_events" {
		t.Errorf("unexpected config %+v", cfg)
	}

	app.DatabaseDriver = "postgres"
	app.DatabaseURL = "postgres://localhost/ledger"
	cfg, err = FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Database.MaxOpenConns != 0 {
		t.Errorf("postgres should keep the default pool size, got %d", cfg.Database.MaxOpenConns)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	app.DatabaseDriver = "mysql"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"sqlite without path", func(c *Config) { c.Database.SQLitePath = "" }, "SQLite database path is required"},
		{"postgres without url", func(c *Config) { c.Database.Driver = storage.DriverPostgres }, "database URL is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "invalid database driver"},
		{"amqp without queue", func(c *Config) { c.AMQPURL = "amqp://localhost"; c.AMQPExchange = "x" }, "AMQP exchange and queue are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sqliteConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	result, err := NewFactory(nil).CreateBackend(ctx, sqliteConfig(t))
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	b := result.Backend

	if err := b.Repo.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	user, err := b.Auth.Register(ctx, nil, core.RegisterInput{
		Email: "admin@school.test", Password: "correct-horse", FirstName: "A", LastName: "B", Role: core.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("bootstrap register: %v", err)
	}
	if user.Role != core.RoleAdmin {
		t.Errorf("role = %s", user.Role)
	}
	if _, err := b.FeeTypes.Create(ctx, core.FeeTypeInput{Name: "Tuition"}); err != nil {
		t.Fatalf("create fee type: %v", err)
	}
	types, err := b.FeeTypes.List(ctx)
	if err != nil || len(types) != 1 {
		t.Fatalf("list fee types: %v %v", types, err)
	}

	if err := result.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestCreateBackend_RejectsIncompleteConfig(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.JWTSecret = ""
	if _, err := NewFactory(nil).CreateBackend(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "JWT secret is required") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestCreateWorker_RequiresBroker(t *testing.T) {
	_, err := NewFactory(nil).CreateWorker(context.Background(), sqliteConfig(t), memory.New())
	if err == nil || !strings.Contains(err.Error(), "AMQP URL is required") {
		t.Fatalf("expected missing AMQP error, got %v", err)
	}
}
