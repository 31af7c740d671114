package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/log"
	"feeledger/internal/metrics"
	"feeledger/internal/storage"
)

const defaultPaymentMethod = "cash"

type LedgerConfig struct {
	// DefaultAcademicYear overrides the year derived from the clock.
	DefaultAcademicYear    string
	AcademicYearStartMonth time.Month
}

// LedgerService assigns fees to students and records payments against them.
type LedgerService struct {
	repo   *storage.Repository
	pub    EventPublisher
	cfg    LedgerConfig
	now    Clock
	events *log.StructuredLogger
}

// NewLedgerService accepts a nil publisher; events are then skipped.
func NewLedgerService(repo *storage.Repository, pub EventPublisher, cfg LedgerConfig, logger *log.Logger) *LedgerService {
	if cfg.AcademicYearStartMonth < time.January || cfg.AcademicYearStartMonth > time.December {
		cfg.AcademicYearStartMonth = time.April
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LedgerService{
		repo:   repo,
		pub:    pub,
		cfg:    cfg,
		now:    utcNow,
		events: log.NewStructuredLogger(logger.WithComponent(log.ComponentLedger)),
	}
}

func (s *LedgerService) academicYear(requested string) string {
	if requested != "" {
		return requested
	}
	if s.cfg.DefaultAcademicYear != "" {
		return s.cfg.DefaultAcademicYear
	}
	return core.AcademicYearFor(s.now(), s.cfg.AcademicYearStartMonth)
}

// CreateFee assesses a fee of the given type against a student.
func (s *LedgerService) CreateFee(ctx context.Context, studentID int64, in core.FeeInput) (core.Fee, error) {
	in.AcademicYear = strings.TrimSpace(in.AcademicYear)
	if err := core.Validate(in); err != nil {
		return core.Fee{}, err
	}
	if in.TotalAmount == nil {
		return core.Fee{}, core.Validationf("Missing required field: total_amount")
	}
	if in.TotalAmount.Cents < 0 {
		return core.Fee{}, core.Validationf("total_amount must be greater than or equal to 0")
	}

	fee := core.Fee{
		StudentID:    studentID,
		FeeTypeID:    in.FeeTypeID,
		TotalAmount:  *in.TotalAmount,
		AcademicYear: s.academicYear(in.AcademicYear),
	}

	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if err := requireStudent(ctx, q, studentID); err != nil {
			return err
		}
		if _, err := q.GetFeeType(ctx, in.FeeTypeID); err != nil {
			return translate(err, msgFeeTypeNotFound, "")
		}
		var err error
		fee, err = q.CreateFee(ctx, fee, s.now())
		return err
	})
	if err != nil {
		return core.Fee{}, translate(err, "", "")
	}

	metrics.RecordFeeAssessed()
	s.events.LogFeeAssessed(ctx, fee.ID, fee.StudentID, fee.TotalAmount.Cents, fee.AcademicYear)
	publish(ctx, s.pub, amqp.NewFeeAssessedEvent(fee.ID, fee.StudentID))
	return fee, nil
}

func requireStudent(ctx context.Context, q *storage.Queries, studentID int64) error {
	ok, err := q.StudentExists(ctx, studentID)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFoundf(msgStudentNotFound)
	}
	return nil
}

// ListFeesForStudent returns every fee of a student with its derived balance.
func (s *LedgerService) ListFeesForStudent(ctx context.Context, studentID int64) ([]core.FeeStatement, error) {
	if err := requireStudent(ctx, s.repo.Queries, studentID); err != nil {
		return nil, translate(err, "", "")
	}
	statements, err := s.repo.ListFeeStatements(ctx, studentID)
	if err != nil {
		return nil, translate(err, "", "")
	}
	if statements == nil {
		statements = []core.FeeStatement{}
	}
	return statements, nil
}

// AddPayment records a payment against a fee. The fee row is locked for
// the duration of the check and insert, so concurrent payments on one fee
// are applied one at a time and the paid sum never exceeds the total.
func (s *LedgerService) AddPayment(ctx context.Context, feeID int64, in core.PaymentInput) (core.FeePayment, error) {
	if in.Amount == nil {
		return core.FeePayment{}, core.Validationf("Missing required field: amount")
	}
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.Remarks = strings.TrimSpace(in.Remarks)
	if err := core.Validate(in); err != nil {
		return core.FeePayment{}, err
	}
	if in.Amount.Cents <= 0 {
		return core.FeePayment{}, core.Validationf("amount must be greater than 0")
	}

	paidAt := s.now()
	if d := strings.TrimSpace(in.PaymentDate); d != "" {
		t, err := core.ParsePaymentDate(d)
		if err != nil {
			return core.FeePayment{}, core.Validationf("Invalid payment_date. Please use YYYY-MM-DD or RFC 3339 format.")
		}
		paidAt = t
	}
	method := in.PaymentMethod
	if method == "" {
		method = defaultPaymentMethod
	}

	var (
		fee     core.Fee
		payment core.FeePayment
	)
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		fee, err = q.LockFee(ctx, feeID)
		if err != nil {
			return translate(err, msgFeeNotFound, "")
		}
		paid, err := q.SumPayments(ctx, feeID)
		if err != nil {
			return err
		}
		if err := core.CheckPayment(fee.TotalAmount, paid, *in.Amount); err != nil {
			return err
		}
		payment, err = q.CreatePayment(ctx, core.FeePayment{
			FeeID:         feeID,
			Amount:        *in.Amount,
			PaymentDate:   paidAt,
			PaymentMethod: method,
			Remarks:       in.Remarks,
		}, s.now())
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrOverpayment) {
			metrics.RecordPayment(false, 0)
		}
		return core.FeePayment{}, translate(err, msgFeeNotFound, "")
	}

	metrics.RecordPayment(true, payment.Amount.Cents)
	s.events.LogPaymentRecorded(ctx, payment.ID, fee.ID, fee.StudentID, payment.Amount.Cents)
	publish(ctx, s.pub, amqp.NewPaymentRecordedEvent(payment.ID, fee.ID, fee.StudentID))
	return payment, nil
}
