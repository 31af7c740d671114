package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"feeledger/internal/core"
)

func seedFee(t *testing.T, repo *Repository, total int64) (core.Student, core.FeeType, core.Fee) {
	t.Helper()
	ctx := context.Background()
	s, err := repo.CreateStudent(ctx, studentParams("R-1", "Ada Smith", "John Smith"), testNow)
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	ft, err := repo.CreateFeeType(ctx, core.FeeTypeInput{Name: "Tuition", Description: "Term fees"}, testNow)
	if err != nil {
		t.Fatalf("create fee type: %v", err)
	}
	fee, err := repo.CreateFee(ctx, core.Fee{
		StudentID: s.ID, FeeTypeID: ft.ID, TotalAmount: core.Money{Cents: total}, AcademicYear: "2023-2024",
	}, testNow)
	if err != nil {
		t.Fatalf("create fee: %v", err)
	}
	return s, ft, fee
}

func TestFeeTypes(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, name := range []string{"Transport", "Library", "Tuition"} {
		if _, err := repo.CreateFeeType(ctx, core.FeeTypeInput{Name: name}, testNow); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if _, err := repo.CreateFeeType(ctx, core.FeeTypeInput{Name: "Tuition"}, testNow); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	types, err := repo.ListFeeTypes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 3 || types[0].Name != "Library" || types[2].Name != "Tuition" {
		t.Fatalf("unexpected fee types %+v", types)
	}
	if _, err := repo.GetFeeType(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPaymentsAndStatements(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	s, ft, fee := seedFee(t, repo, 100000)

	for _, cents := range []int64{60000, 40000} {
		_, err := repo.CreatePayment(ctx, core.FeePayment{
			FeeID: fee.ID, Amount: core.Money{Cents: cents}, PaymentDate: testNow, PaymentMethod: "cash",
		}, testNow)
		if err != nil {
			t.Fatalf("create payment: %v", err)
		}
	}

	paid, err := repo.SumPayments(ctx, fee.ID)
	if err != nil || paid.Cents != 100000 {
		t.Fatalf("sum = %v, err = %v", paid, err)
	}

	statements, err := repo.ListFeeStatements(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(statements) != 1 {
		t.Fatalf("got %d statements", len(statements))
	}
	st := statements[0]
	if st.FeeType.ID != ft.ID || st.FeeTypeName != "Tuition" || st.FeeType.Description != "Term fees" {
		t.Fatalf("fee type not resolved: %+v", st.FeeType)
	}
	if st.TotalPaid.Cents != 100000 || st.RemainingAmount.Cents != 0 || st.Status != core.FeeSettled {
		t.Fatalf("unexpected balance %+v", st)
	}
	if len(st.Payments) != 2 || st.Payments[0].Amount.Cents != 60000 || st.Payments[1].Amount.Cents != 40000 {
		t.Fatalf("payments out of order: %+v", st.Payments)
	}
	if !st.Payments[0].PaymentDate.Equal(testNow) {
		t.Fatalf("payment date = %v", st.Payments[0].PaymentDate)
	}

	none, err := repo.ListFeeStatements(ctx, 999)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no statements, got %v %v", none, err)
	}
}

func TestDeleteStudentWithFeesIsRestricted(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	s, _, _ := seedFee(t, repo, 5000)

	n, err := repo.CountFeesForStudent(ctx, s.ID)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
	if err := repo.DeleteStudent(ctx, s.ID); !errors.Is(err, ErrReferenced) {
		t.Fatalf("expected ErrReferenced, got %v", err)
	}
	if _, err := repo.GetStudent(ctx, s.ID); err != nil {
		t.Fatalf("student should survive: %v", err)
	}
}

func TestPaymentConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_, _, fee := seedFee(t, repo, 5000)

	_, err := repo.CreatePayment(ctx, core.FeePayment{FeeID: fee.ID, Amount: core.Money{Cents: 0}, PaymentDate: testNow}, testNow)
	if err == nil {
		t.Fatal("zero payment must violate the amount check")
	}
	_, err = repo.CreatePayment(ctx, core.FeePayment{FeeID: 999, Amount: core.Money{Cents: 100}, PaymentDate: testNow}, testNow)
	if !errors.Is(err, ErrReferenced) {
		t.Fatalf("expected ErrReferenced for unknown fee, got %v", err)
	}
}

func TestLockFee(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_, _, fee := seedFee(t, repo, 5000)

	err := repo.WithTx(ctx, func(q *Queries) error {
		locked, err := q.LockFee(ctx, fee.ID)
		if err != nil {
			return err
		}
		if locked.TotalAmount.Cents != 5000 {
			t.Errorf("locked total = %d", locked.TotalAmount.Cents)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	err = repo.WithTx(ctx, func(q *Queries) error {
		_, err := q.LockFee(ctx, 999)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPaymentExportBookkeeping(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	s, _, fee := seedFee(t, repo, 100000)

	var ids []int64
	for i := 0; i < 3; i++ {
		p, err := repo.CreatePayment(ctx, core.FeePayment{
			FeeID: fee.ID, Amount: core.Money{Cents: 1000}, PaymentDate: testNow, PaymentMethod: "card", Remarks: "term 1",
		}, testNow)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, p.ID)
	}

	pending, err := repo.ListUnexportedPayments(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0] != ids[0] || pending[1] != ids[1] {
		t.Fatalf("unexpected pending ids %v", pending)
	}

	rec, err := repo.GetPaymentRecord(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.ExportedAt != nil || rec.Student.ID != s.ID || rec.Student.RollNumber != "R-1" ||
		rec.FeeTypeName != "Tuition" || rec.AcademicYear != "2023-2024" || rec.Payment.Remarks != "term 1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	exportedAt := testNow.Add(time.Hour)
	if err := repo.MarkPaymentExported(ctx, ids[0], exportedAt); err != nil {
		t.Fatal(err)
	}
	rec, err = repo.GetPaymentRecord(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.ExportedAt == nil || !rec.ExportedAt.Equal(exportedAt) {
		t.Fatalf("exported_at = %v", rec.ExportedAt)
	}

	pending, err = repo.ListUnexportedPayments(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending after export = %v, err = %v", pending, err)
	}
	if err := repo.MarkPaymentExported(ctx, 999, exportedAt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetPaymentRecord(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
