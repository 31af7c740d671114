package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/auth"
	"feeledger/internal/cache"
	"feeledger/internal/core"
	"feeledger/internal/log"
	"feeledger/internal/services"
	"feeledger/internal/sheets"
	gsheet "feeledger/internal/sheets/google"
	"feeledger/internal/storage"
	"feeledger/internal/worker"
)

const (
	feeTypeCacheTTL      = 5 * time.Minute
	revokedTokenCapacity = 10000
	cacheCleanupInterval = time.Minute
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.validateAPI(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	repo, err := storage.Open(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	// Events are optional for the API server. The publisher stays an untyped
	// nil interface when there is no broker.
	var publisher services.EventPublisher
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err.Error())
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	cacheManager := cache.NewManager(f.logger.Logger)
	feeTypeCache := cache.NewExpiryCache[[]core.FeeType](1, feeTypeCacheTTL)
	revoked := cache.NewExpiryCache[bool](revokedTokenCapacity, config.RefreshTokenTTL)
	cacheManager.Register(feeTypeCache)
	cacheManager.Register(revoked)
	cacheManager.StartCleanup(cacheCleanupInterval)

	issuer := auth.NewIssuer(config.JWTSecret, config.AccessTokenTTL, config.RefreshTokenTTL)

	b := &Backend{
		Repo:     repo,
		Students: services.NewStudentService(repo),
		FeeTypes: services.NewFeeTypeService(repo, feeTypeCache),
		Ledger:   services.NewLedgerService(repo, publisher, config.Ledger, f.logger),
		Auth:     services.NewAuthService(repo, issuer, revoked),
	}

	f.logger.Info("Initialized backend",
		"driver", config.Database.Driver,
		"amqp_enabled", amqpClient != nil)

	cleanup := func() error {
		cacheManager.Stop()
		var errs []error
		if amqpClient != nil {
			errs = append(errs, amqpClient.Close())
		}
		errs = append(errs, repo.Close())
		return errors.Join(errs...)
	}

	return &BackendResult{Backend: b, Cleanup: cleanup}, nil
}

// CreateWorker implements Factory.CreateWorker
func (f *DefaultFactory) CreateWorker(ctx context.Context, config Config, register sheets.PaymentRegisterWriter) (*WorkerResult, error) {
	if err := config.validateWorker(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}

	if register == nil {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		register = client
		f.logger.Info("Initialized Google Sheets payment register", "sheet", config.GoogleSheetName)
	}

	repo, err := storage.Open(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	consumer, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}

	w := &Worker{
		Repo:     repo,
		Consumer: consumer,
		Exporter: worker.NewExportWorker(repo, register, config.SyncBatchSize, f.logger),
	}

	cleanup := func() error {
		return errors.Join(consumer.Close(), repo.Close())
	}

	return &WorkerResult{Worker: w, Cleanup: cleanup}, nil
}
