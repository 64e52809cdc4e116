package worker

import (
	"context"
	"fmt"

	"foodlog/internal/amqp"
	"foodlog/internal/core"
	"foodlog/internal/log"
)

// Refresher reloads local views of a day. FoodService satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, day core.Day)
}

// ChangeWorker applies entry change events published by other processes
// sharing the store, so this process's subscribers and cached rankings
// follow writes it did not make.
type ChangeWorker struct {
	refresher Refresher
	logger    *log.Logger
}

func NewChangeWorker(refresher Refresher, logger *log.Logger) *ChangeWorker {
	if logger == nil {
		logger = log.Default(log.ComponentAMQP)
	}
	return &ChangeWorker{refresher: refresher, logger: logger.WithComponent(log.ComponentAMQP)}
}

// HandleEntryChanged refreshes the day named by msg. A message with an
// unreadable date is dropped rather than requeued.
func (w *ChangeWorker) HandleEntryChanged(ctx context.Context, msg *amqp.EntryChangedMessage) error {
	day, err := msg.Day()
	if err != nil {
		w.logger.WarnContext(ctx, "Dropping entry change with bad date",
			"id", msg.ID, log.FieldDate, msg.Date, log.FieldError, err)
		return nil
	}

	w.logger.DebugContext(ctx, "Applying entry change",
		"id", msg.ID,
		log.FieldOperation, msg.Op,
		log.FieldDate, msg.Date,
		log.FieldName, msg.Name,
		log.FieldQuantity, msg.Quantity)

	w.refresher.Refresh(ctx, day)
	return nil
}

// Run consumes events from source until ctx ends. Losing the broker only
// stops cross-process refreshes, so a connection error is logged and Run
// returns nil; other failures are returned.
func (w *ChangeWorker) Run(ctx context.Context, source Source) error {
	err := source.ConsumeEntryChanges(ctx, func(msg *amqp.EntryChangedMessage) error {
		return w.HandleEntryChanged(ctx, msg)
	})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if amqp.IsConnectionError(err) {
		w.logger.WarnContext(ctx, "Broker connection lost, changes from other processes will not be applied",
			log.FieldError, err)
		return nil
	}
	return fmt.Errorf("consume entry changes: %w", err)
}

// Source delivers change events. *amqp.Client satisfies it.
type Source interface {
	ConsumeEntryChanges(ctx context.Context, handler func(*amqp.EntryChangedMessage) error) error
}
