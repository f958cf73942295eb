// Package mqhandler wires the RabbitMQ pipeline: enqueuing delivery jobs,
// running scheduled scans, and executing per-recipient delivery with retry
// and dead-lettering.
package mqhandler

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
)

// JobPublisher is the slice of the MQ publisher the enqueuer needs.
type JobPublisher interface {
	Publish(routingKey, messageID string, payload any) error
}

// DedupGuard suppresses duplicate processing of one job id within a scope.
type DedupGuard interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

// Enqueuer publishes delivery jobs, suppressing duplicate job ids through a
// short-lived redis guard so two overlapping scans do not double-enqueue.
type Enqueuer struct {
	publisher JobPublisher
	deduper   DedupGuard
	logger    *zap.Logger
}

func NewEnqueuer(publisher JobPublisher, deduper DedupGuard, logger *zap.Logger) *Enqueuer {
	return &Enqueuer{publisher: publisher, deduper: deduper, logger: logger}
}

// EnqueueDelivery publishes one delivery job. A duplicate job id inside the
// guard window is dropped silently; the consumer-side dedup and the ledger
// still backstop anything that slips through.
func (e *Enqueuer) EnqueueDelivery(ctx context.Context, payload mqcontracts.ReminderDeliveryPayload) error {
	if !e.deduper.AcquireOnce(ctx, "enqueue", payload.JobID) {
		return nil
	}

	if err := e.publisher.Publish(mqcontracts.RoutingKeyReminderDeliver, payload.JobID, payload); err != nil {
		return err
	}

	e.logger.Debug("Delivery job enqueued",
		zap.String("job_id", payload.JobID),
		zap.String("campaign", payload.Campaign),
		zap.String("stage", payload.Stage),
	)
	return nil
}
