package sheets

import (
	"context"
	"fmt"

	"feeledger/internal/core"
)

// Ports for outbound adapters.
type (
	// PaymentRegisterWriter appends recorded payments to the payment register.
	PaymentRegisterWriter interface {
		Append(ctx context.Context, rec core.PaymentRecord) (rowRef string, err error)
	}
)

// Header is the first row of an empty register.
var Header = []any{
	"Payment Date", "Roll Number", "Student", "Class", "Fee Type",
	"Academic Year", "Amount", "Method", "Remarks", "Payment ID",
}

// Row renders rec in register column order.
func Row(rec core.PaymentRecord) []any {
	class := rec.Student.ClassName
	if rec.Student.Section != "" {
		class = fmt.Sprintf("%s-%s", class, rec.Student.Section)
	}
	return []any{
		rec.Payment.PaymentDate.UTC().Format(core.DateLayout),
		rec.Student.RollNumber,
		rec.Student.StudentName,
		class,
		rec.FeeTypeName,
		rec.AcademicYear,
		rec.Payment.Amount.String(),
		rec.Payment.PaymentMethod,
		rec.Payment.Remarks,
		rec.Payment.ID,
	}
}
