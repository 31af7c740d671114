package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/log"
	"feeledger/internal/metrics"
	"feeledger/internal/sheets"
	"feeledger/internal/storage"
)

// startupBatchMultiplier widens the first sweep after downtime.
const startupBatchMultiplier = 5

// ExportWorker copies recorded payments into the payment register and
// marks them exported in the database.
type ExportWorker struct {
	repo      *storage.Repository
	register  sheets.PaymentRegisterWriter
	batchSize int
	logger    *log.Logger
	now       func() time.Time

	// exportMu serializes exports so the consumer and the sweep never
	// write the same payment twice.
	exportMu sync.Mutex
}

func NewExportWorker(repo *storage.Repository, register sheets.PaymentRegisterWriter, batchSize int, logger *log.Logger) *ExportWorker {
	if batchSize < 1 {
		batchSize = 50
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExportWorker{
		repo:      repo,
		register:  register,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent processes a single ledger event from AMQP. Only recorded
// payments reach the register; other events are acknowledged untouched.
func (w *ExportWorker) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	if e.Type != amqp.EventPaymentRecorded {
		w.logger.DebugContext(ctx, "Ignoring ledger event",
			log.FieldEventType, e.Type, "id", e.ID)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing payment event",
		log.FieldPaymentID, e.ID, log.FieldFeeID, e.FeeID)

	if _, err := w.ExportPayment(ctx, e.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.WarnContext(ctx, "Payment from event no longer exists",
				log.FieldPaymentID, e.ID)
			return nil
		}
		return err
	}
	return nil
}

// ExportPayment appends one payment to the register unless it was already
// exported. It reports whether a row was written.
func (w *ExportWorker) ExportPayment(ctx context.Context, paymentID int64) (bool, error) {
	w.exportMu.Lock()
	defer w.exportMu.Unlock()

	rec, err := w.repo.GetPaymentRecord(ctx, paymentID)
	if err != nil {
		return false, fmt.Errorf("load payment: %w", err)
	}
	if rec.ExportedAt != nil {
		w.logger.DebugContext(ctx, "Payment already exported", log.FieldPaymentID, paymentID)
		return false, nil
	}

	ref, err := w.register.Append(ctx, rec)
	metrics.RecordPaymentExported(err)
	if err != nil {
		return false, fmt.Errorf("append to payment register: %w", err)
	}

	if err := w.repo.MarkPaymentExported(ctx, paymentID, w.now()); err != nil {
		// The row is in the register already; a retry would duplicate it.
		w.logger.ErrorContext(ctx, "Failed to mark payment exported",
			log.FieldPaymentID, paymentID, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Payment exported",
		log.FieldPaymentID, paymentID,
		log.FieldStudentID, rec.Student.ID,
		log.FieldAmountCents, rec.Payment.Amount.Cents,
		"sheets_ref", ref)
	return true, nil
}

// ProcessPending exports up to one batch of payments whose event was lost.
// It returns how many rows were written.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

func (w *ExportWorker) processPending(ctx context.Context, limit int) (int, error) {
	ids, err := w.repo.ListUnexportedPayments(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending payments", "count", len(ids))

	exported := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		ok, err := w.ExportPayment(ctx, id)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to export payment",
				log.FieldPaymentID, id, log.FieldError, err)
			continue
		}
		if ok {
			exported++
		}
	}
	return exported, nil
}

// StartupSyncCheck exports a larger backlog once, to recover from worker
// downtime.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.processPending(ctx, w.batchSize*startupBatchMultiplier)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "exported", n)
	return nil
}

// RunSweep calls ProcessPending every interval until ctx is cancelled.
func (w *ExportWorker) RunSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic sweep failed", log.FieldError, err)
			}
		}
	}
}
