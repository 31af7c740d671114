package sheets

import (
	"testing"
	"time"

	"feeledger/internal/core"
)

func TestRow(t *testing.T) {
	rec := core.PaymentRecord{
		Payment: core.FeePayment{
			ID:            42,
			Amount:        core.Money{Cents: 150050},
			PaymentDate:   time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC),
			PaymentMethod: "card",
			Remarks:       "term 2",
		},
		AcademicYear: "2023-2024",
		FeeTypeName:  "Tuition",
		Student:      core.Student{StudentName: "Ada Smith", RollNumber: "R-1", ClassName: "5", Section: "A"},
	}

	got := Row(rec)
	want := []any{"2024-01-15", "R-1", "Ada Smith", "5-A", "Tuition", "2023-2024", "1500.50", "card", "term 2", int64(42)}
	if len(got) != len(Header) {
		t.Fatalf("row has %d columns, header has %d", len(got), len(Header))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d (%v) = %v, want %v", i, Header[i], got[i], want[i])
		}
	}

	rec.Student.Section = ""
	if class := Row(rec)[3]; class != "5" {
		t.Errorf("class without section = %v", class)
	}
}
