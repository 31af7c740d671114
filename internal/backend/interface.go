package backend

import (
	"context"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/services"
	"feeledger/internal/sheets"
	"feeledger/internal/storage"
	"feeledger/internal/worker"
)

// Backend holds the services the API server exposes, wired over one
// connection pool.
type Backend struct {
	Repo     *storage.Repository
	Students *services.StudentService
	FeeTypes *services.FeeTypeService
	Ledger   *services.LedgerService
	Auth     *services.AuthService
}

// Worker holds what the export worker runs: the event consumer and the
// exporter that writes to the payment register.
type Worker struct {
	Repo     *storage.Repository
	Consumer *amqp.Client
	Exporter *worker.ExportWorker
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and its cleanup function
type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

// WorkerResult contains the worker instance and its cleanup function
type WorkerResult struct {
	Worker  *Worker
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend wires storage, events and services for the API server.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)

	// CreateWorker wires storage, the consumer and the exporter. A nil
	// register means the Google Sheets register from config.
	CreateWorker(ctx context.Context, config Config, register sheets.PaymentRegisterWriter) (*WorkerResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Database storage.Config

	// AMQP is optional for the API server and required for the worker
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Auth
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Ledger
	Ledger services.LedgerConfig

	// Payment register
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SyncBatchSize            int
}
