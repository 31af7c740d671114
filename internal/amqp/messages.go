package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventFeeAssessed     EventType = "fee.assessed"
	EventPaymentRecorded EventType = "payment.recorded"
)

// LedgerEvent announces a committed ledger change. It carries only ids;
// consumers load the current rows from the database.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	ID        int64     `json:"id"`
	FeeID     int64     `json:"fee_id"`
	StudentID int64     `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewFeeAssessedEvent(feeID, studentID int64) *LedgerEvent {
	return &LedgerEvent{
		Type:      EventFeeAssessed,
		ID:        feeID,
		FeeID:     feeID,
		StudentID: studentID,
		Timestamp: time.Now().UTC(),
	}
}

func NewPaymentRecordedEvent(paymentID, feeID, studentID int64) *LedgerEvent {
	return &LedgerEvent{
		Type:      EventPaymentRecorded,
		ID:        paymentID,
		FeeID:     feeID,
		StudentID: studentID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects ones without a type or id.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event type is missing")
	}
	if e.ID <= 0 {
		return nil, fmt.Errorf("event id must be positive, got %d", e.ID)
	}
	return &e, nil
}
