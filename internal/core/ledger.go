package core

// CheckPayment enforces the ledger rule that a payment is positive and
// never pushes the paid sum above the fee total.
func CheckPayment(total, paid, amount Money) error {
	if amount.Cents <= 0 {
		return Validationf("amount must be greater than 0")
	}
	// Compared as remaining to avoid overflowing paid+amount.
	if amount.Cents > total.Cents-paid.Cents {
		return ErrOverpayment
	}
	return nil
}

// NewFeeStatement derives the balance of f from its payments. Payments are
// kept in the order given.
func NewFeeStatement(f Fee, ft FeeType, payments []FeePayment) FeeStatement {
	var paid Money
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	if payments == nil {
		payments = []FeePayment{}
	}
	remaining := f.TotalAmount.Sub(paid)
	return FeeStatement{
		Fee:             f,
		FeeTypeName:     ft.Name,
		FeeType:         ft,
		TotalPaid:       paid,
		RemainingAmount: remaining,
		Status:          StatusFor(remaining),
		Payments:        payments,
	}
}

// StatusFor maps a remaining balance onto the fee state machine.
func StatusFor(remaining Money) FeeStatus {
	if remaining.Cents > 0 {
		return FeeOpen
	}
	return FeeSettled
}
