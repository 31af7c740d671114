package storage

import (
	"context"
	"fmt"
	"time"

	"feeledger/internal/core"
)

type paymentRecordRow struct {
	paymentRow
	ExportedAt   *time.Time `db:"exported_at"`
	AcademicYear string     `db:"academic_year"`
	FeeTypeName  string     `db:"fee_type_name"`
	StudentID    int64      `db:"student_id"`
	StudentName  string     `db:"student_name"`
	RollNumber   string     `db:"roll_number"`
	ClassName    string     `db:"class_name"`
	Section      string     `db:"section"`
}

// GetPaymentRecord loads a payment joined with its fee, fee type and student.
func (q *Queries) GetPaymentRecord(ctx context.Context, paymentID int64) (core.PaymentRecord, error) {
	var row paymentRecordRow
	err := q.get(ctx, &row, `SELECT p.id, p.fee_id, p.amount_cents, p.payment_date, p.payment_method,
		p.remarks, p.created_at, p.updated_at, p.exported_at,
		f.academic_year, t.name AS fee_type_name,
		s.id AS student_id, s.student_name, s.roll_number, s.class_name, s.section
		FROM fee_payments p
		JOIN fees f ON f.id = p.fee_id
		JOIN fee_types t ON t.id = f.fee_type_id
		JOIN students s ON s.id = f.student_id
		WHERE p.id = ?`, paymentID)
	if err != nil {
		return core.PaymentRecord{}, fmt.Errorf("get payment record %d: %w", paymentID, classify(err))
	}

	var exported *time.Time
	if row.ExportedAt != nil {
		t := row.ExportedAt.UTC()
		exported = &t
	}
	return core.PaymentRecord{
		Payment:      row.paymentRow.toCore(),
		AcademicYear: row.AcademicYear,
		FeeTypeName:  row.FeeTypeName,
		Student: core.Student{
			ID:          row.StudentID,
			StudentName: row.StudentName,
			RollNumber:  row.RollNumber,
			ClassName:   row.ClassName,
			Section:     row.Section,
		},
		ExportedAt: exported,
	}, nil
}

// ListUnexportedPayments returns up to limit payment ids that have not been
// written to the payment register yet, oldest first.
func (q *Queries) ListUnexportedPayments(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids, `SELECT id FROM fee_payments WHERE exported_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported payments: %w", err)
	}
	return ids, nil
}

// MarkPaymentExported records when a payment reached the payment register.
func (q *Queries) MarkPaymentExported(ctx context.Context, paymentID int64, at time.Time) error {
	res, err := q.exec(ctx, `UPDATE fee_payments SET exported_at = ? WHERE id = ?`, at, paymentID)
	if err != nil {
		return fmt.Errorf("mark payment %d exported: %w", paymentID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("mark payment %d exported: %w", paymentID, err)
	}
	return nil
}
