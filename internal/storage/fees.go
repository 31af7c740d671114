package storage

import (
	"context"
	"fmt"
	"time"

	"feeledger/internal/core"
)

type feeTypeRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r feeTypeRow) toCore() core.FeeType {
	return core.FeeType{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type feeRow struct {
	ID               int64     `db:"id"`
	StudentID        int64     `db:"student_id"`
	FeeTypeID        int64     `db:"fee_type_id"`
	TotalAmountCents int64     `db:"total_amount_cents"`
	AcademicYear     string    `db:"academic_year"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r feeRow) toCore() core.Fee {
	return core.Fee{
		ID:           r.ID,
		StudentID:    r.StudentID,
		FeeTypeID:    r.FeeTypeID,
		TotalAmount:  core.Money{Cents: r.TotalAmountCents},
		AcademicYear: r.AcademicYear,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// feeWithTypeRow is a fee joined with its fee type.
type feeWithTypeRow struct {
	feeRow
	TypeName        string    `db:"type_name"`
	TypeDescription string    `db:"type_description"`
	TypeCreatedAt   time.Time `db:"type_created_at"`
	TypeUpdatedAt   time.Time `db:"type_updated_at"`
}

func (r feeWithTypeRow) feeType() core.FeeType {
	return core.FeeType{
		ID:          r.FeeTypeID,
		Name:        r.TypeName,
		Description: r.TypeDescription,
		CreatedAt:   r.TypeCreatedAt.UTC(),
		UpdatedAt:   r.TypeUpdatedAt.UTC(),
	}
}

type paymentRow struct {
	ID            int64     `db:"id"`
	FeeID         int64     `db:"fee_id"`
	AmountCents   int64     `db:"amount_cents"`
	PaymentDate   time.Time `db:"payment_date"`
	PaymentMethod string    `db:"payment_method"`
	Remarks       string    `db:"remarks"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r paymentRow) toCore() core.FeePayment {
	return core.FeePayment{
		ID:            r.ID,
		FeeID:         r.FeeID,
		Amount:        core.Money{Cents: r.AmountCents},
		PaymentDate:   r.PaymentDate.UTC(),
		PaymentMethod: r.PaymentMethod,
		Remarks:       r.Remarks,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

const (
	feeTypeColumns = `id, name, description, created_at, updated_at`
	feeColumns     = `id, student_id, fee_type_id, total_amount_cents, academic_year, created_at, updated_at`
	paymentColumns = `id, fee_id, amount_cents, payment_date, payment_method, remarks, created_at, updated_at`
)

func (q *Queries) ListFeeTypes(ctx context.Context) ([]core.FeeType, error) {
	var rows []feeTypeRow
	if err := q.selectAll(ctx, &rows, `SELECT `+feeTypeColumns+` FROM fee_types ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list fee types: %w", err)
	}
	out := make([]core.FeeType, len(rows))
	for i, r := range rows {
		out[i] = r.toCore()
	}
	return out, nil
}

func (q *Queries) GetFeeType(ctx context.Context, id int64) (core.FeeType, error) {
	var row feeTypeRow
	if err := q.get(ctx, &row, `SELECT `+feeTypeColumns+` FROM fee_types WHERE id = ?`, id); err != nil {
		return core.FeeType{}, fmt.Errorf("get fee type %d: %w", id, classify(err))
	}
	return row.toCore(), nil
}

func (q *Queries) CreateFeeType(ctx context.Context, in core.FeeTypeInput, now time.Time) (core.FeeType, error) {
	id, err := q.insert(ctx, `INSERT INTO fee_types (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?) RETURNING id`, in.Name, in.Description, now, now)
	if err != nil {
		return core.FeeType{}, fmt.Errorf("create fee type: %w", err)
	}
	return q.GetFeeType(ctx, id)
}

func (q *Queries) CreateFee(ctx context.Context, f core.Fee, now time.Time) (core.Fee, error) {
	id, err := q.insert(ctx, `INSERT INTO fees (student_id, fee_type_id, total_amount_cents, academic_year,
		created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		f.StudentID, f.FeeTypeID, f.TotalAmount.Cents, f.AcademicYear, now, now)
	if err != nil {
		return core.Fee{}, fmt.Errorf("create fee: %w", err)
	}
	return q.GetFee(ctx, id)
}

func (q *Queries) GetFee(ctx context.Context, id int64) (core.Fee, error) {
	var row feeRow
	if err := q.get(ctx, &row, `SELECT `+feeColumns+` FROM fees WHERE id = ?`, id); err != nil {
		return core.Fee{}, fmt.Errorf("get fee %d: %w", id, classify(err))
	}
	return row.toCore(), nil
}

// LockFee loads a fee and holds a write lock on its row until the
// surrounding transaction ends. It must run inside WithTx.
//
// PostgreSQL takes a row lock with FOR UPDATE. SQLite has no row locks, so
// a no-op write takes the database write lock instead.
func (q *Queries) LockFee(ctx context.Context, id int64) (core.Fee, error) {
	if q.driver == DriverPostgres {
		var row feeRow
		if err := q.get(ctx, &row, `SELECT `+feeColumns+` FROM fees WHERE id = ? FOR UPDATE`, id); err != nil {
			return core.Fee{}, fmt.Errorf("lock fee %d: %w", id, classify(err))
		}
		return row.toCore(), nil
	}

	res, err := q.exec(ctx, `UPDATE fees SET total_amount_cents = total_amount_cents WHERE id = ?`, id)
	if err != nil {
		return core.Fee{}, fmt.Errorf("lock fee %d: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return core.Fee{}, fmt.Errorf("lock fee %d: %w", id, err)
	}
	return q.GetFee(ctx, id)
}

// SumPayments returns the total paid against a fee.
func (q *Queries) SumPayments(ctx context.Context, feeID int64) (core.Money, error) {
	var cents int64
	if err := q.get(ctx, &cents, `SELECT COALESCE(SUM(amount_cents), 0) FROM fee_payments WHERE fee_id = ?`, feeID); err != nil {
		return core.Money{}, fmt.Errorf("sum payments for fee %d: %w", feeID, err)
	}
	return core.Money{Cents: cents}, nil
}

func (q *Queries) CreatePayment(ctx context.Context, p core.FeePayment, now time.Time) (core.FeePayment, error) {
	id, err := q.insert(ctx, `INSERT INTO fee_payments (fee_id, amount_cents, payment_date, payment_method,
		remarks, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.FeeID, p.Amount.Cents, p.PaymentDate, p.PaymentMethod, p.Remarks, now, now)
	if err != nil {
		return core.FeePayment{}, fmt.Errorf("create payment: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

// ListFeeStatements returns every fee of a student with its fee type and
// payments, both in insertion order.
func (q *Queries) ListFeeStatements(ctx context.Context, studentID int64) ([]core.FeeStatement, error) {
	var fees []feeWithTypeRow
	err := q.selectAll(ctx, &fees, `SELECT f.id, f.student_id, f.fee_type_id, f.total_amount_cents,
		f.academic_year, f.created_at, f.updated_at,
		t.name AS type_name, t.description AS type_description,
		t.created_at AS type_created_at, t.updated_at AS type_updated_at
		FROM fees f JOIN fee_types t ON t.id = f.fee_type_id
		WHERE f.student_id = ? ORDER BY f.id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list fees for student %d: %w", studentID, err)
	}

	var payments []paymentRow
	err = q.selectAll(ctx, &payments, `SELECT p.id, p.fee_id, p.amount_cents, p.payment_date,
		p.payment_method, p.remarks, p.created_at, p.updated_at
		FROM fee_payments p JOIN fees f ON f.id = p.fee_id
		WHERE f.student_id = ? ORDER BY p.id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list payments for student %d: %w", studentID, err)
	}

	byFee := make(map[int64][]core.FeePayment, len(fees))
	for _, p := range payments {
		byFee[p.FeeID] = append(byFee[p.FeeID], p.toCore())
	}

	out := make([]core.FeeStatement, len(fees))
	for i, f := range fees {
		out[i] = core.NewFeeStatement(f.toCore(), f.feeType(), byFee[f.ID])
	}
	return out, nil
}
