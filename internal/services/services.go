package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/metrics"
	"feeledger/internal/storage"
)

// EventPublisher hands committed ledger changes to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// publish sends event after commit. Failures are logged and counted but
// never returned: the ledger change is already durable.
func publish(ctx context.Context, pub EventPublisher, event *amqp.LedgerEvent) {
	if pub == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping ledger event",
			"event_type", event.Type, "id", event.ID)
		return
	}
	err := pub.Publish(ctx, event)
	metrics.RecordEventPublished(string(event.Type), err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"event_type", event.Type, "id", event.ID, "error", err)
	}
}

// translate maps storage sentinels onto client-facing errors. Errors that
// are already classified pass through unchanged.
func translate(err error, notFound, duplicate string) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	switch {
	case errors.As(err, &ce):
		return err
	case notFound != "" && errors.Is(err, storage.ErrNotFound):
		return &core.Error{Kind: core.KindNotFound, Message: notFound, Err: err}
	case duplicate != "" && errors.Is(err, storage.ErrDuplicate):
		return &core.Error{Kind: core.KindConflict, Message: duplicate, Err: err}
	default:
		return core.Internal(err)
	}
}

const (
	msgStudentNotFound = "Student not found"
	msgFeeNotFound     = "Fee not found"
	msgFeeTypeNotFound = "Fee type not found"
	msgDuplicateRoll   = "A student with this roll number already exists"
	msgDuplicateType   = "A fee type with this name already exists"
	msgDuplicateEmail  = "Email already registered"
)
