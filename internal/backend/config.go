package backend

import (
	"errors"
	"fmt"
	"time"

	"feeledger/internal/config"
	"feeledger/internal/services"
	"feeledger/internal/storage"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	driver := storage.Driver(appConfig.DatabaseDriver)
	if !driver.IsValid() {
		return Config{}, fmt.Errorf("invalid database driver in config: %s", appConfig.DatabaseDriver)
	}

	return Config{
		Database: storage.Config{
			Driver:       driver,
			SQLitePath:   appConfig.SQLiteDBPath,
			DatabaseURL:  appConfig.DatabaseURL,
			MaxOpenConns: maxOpenConns(driver, appConfig.SQLiteMaxOpenConns),
		},

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		JWTSecret:       appConfig.JWTSecret,
		AccessTokenTTL:  appConfig.AccessTokenTTL,
		RefreshTokenTTL: appConfig.RefreshTokenTTL,

		Ledger: services.LedgerConfig{
			DefaultAcademicYear:    appConfig.DefaultAcademicYear,
			AcademicYearStartMonth: time.Month(appConfig.AcademicYearStartMonth),
		},

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		SyncBatchSize:            appConfig.SyncBatchSize,
	}, nil
}

// maxOpenConns applies the SQLite pool limit; PostgreSQL keeps the
// database/sql default.
func maxOpenConns(driver storage.Driver, sqliteConns int) int {
	if driver == storage.DriverSQLite {
		return sqliteConns
	}
	return 0
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case storage.DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLite database path is required for the sqlite driver"))
		}
	case storage.DriverPostgres:
		if c.Database.DatabaseURL == "" {
			errs = append(errs, errors.New("database URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid database driver: %q", c.Database.Driver))
	}

	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		errs = append(errs, errors.New("AMQP exchange and queue are required when an AMQP URL is set"))
	}

	return errors.Join(errs...)
}

// validateAPI adds the checks only the API server needs.
func (c Config) validateAPI() error {
	err := c.Validate()
	if c.JWTSecret == "" {
		err = errors.Join(err, errors.New("JWT secret is required"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		err = errors.Join(err, errors.New("token ttls must be positive"))
	}
	return err
}

// validateWorker adds the checks only the export worker needs.
func (c Config) validateWorker() error {
	err := c.Validate()
	if c.AMQPURL == "" {
		err = errors.Join(err, errors.New("AMQP URL is required for the worker"))
	}
	return err
}
