package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/metrics"
	"github.com/allisson/escrowd/internal/webhook/domain"
)

// deliveryUseCaseWithMetrics decorates DeliveryUseCase with metrics instrumentation.
type deliveryUseCaseWithMetrics struct {
	next    DeliveryUseCase
	metrics metrics.BusinessMetrics
}

// NewDeliveryUseCaseWithMetrics wraps a DeliveryUseCase with metrics recording.
func NewDeliveryUseCaseWithMetrics(useCase DeliveryUseCase, m metrics.BusinessMetrics) DeliveryUseCase {
	return &deliveryUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Start delegates to the wrapped usecase; the loop itself is not an operation.
func (d *deliveryUseCaseWithMetrics) Start(ctx context.Context) error {
	return d.next.Start(ctx)
}

// ProcessWebhooks records metrics for delivery passes.
func (d *deliveryUseCaseWithMetrics) ProcessWebhooks(ctx context.Context) error {
	start := time.Now()
	err := d.next.ProcessWebhooks(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, "webhook", "webhook_delivery_pass", status)
	d.metrics.RecordDuration(ctx, "webhook", "webhook_delivery_pass", time.Since(start), status)

	return err
}

// RetryWebhook records metrics for operator requeue operations.
func (d *deliveryUseCaseWithMetrics) RetryWebhook(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := d.next.RetryWebhook(ctx, id)

	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, "webhook", "webhook_retry", status)
	d.metrics.RecordDuration(ctx, "webhook", "webhook_retry", time.Since(start), status)

	return err
}

// incomingUseCaseWithMetrics decorates IncomingUseCase with metrics instrumentation.
type incomingUseCaseWithMetrics struct {
	next    IncomingUseCase
	metrics metrics.BusinessMetrics
}

// NewIncomingUseCaseWithMetrics wraps an IncomingUseCase with metrics recording.
func NewIncomingUseCaseWithMetrics(useCase IncomingUseCase, m metrics.BusinessMetrics) IncomingUseCase {
	return &incomingUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Record records metrics for received notifications.
func (i *incomingUseCaseWithMetrics) Record(
	ctx context.Context,
	input RecordIncomingInput,
) (*domain.IncomingWebhook, error) {
	start := time.Now()
	incoming, err := i.next.Record(ctx, input)

	status := "success"
	if err != nil {
		status = "error"
	}

	i.metrics.RecordOperation(ctx, "webhook", "incoming_record", status)
	i.metrics.RecordDuration(ctx, "webhook", "incoming_record", time.Since(start), status)

	return incoming, err
}

// Start delegates to the wrapped usecase; the loop itself is not an operation.
func (i *incomingUseCaseWithMetrics) Start(ctx context.Context) error {
	return i.next.Start(ctx)
}

// ProcessIncoming records metrics for incoming processing passes.
func (i *incomingUseCaseWithMetrics) ProcessIncoming(ctx context.Context) error {
	start := time.Now()
	err := i.next.ProcessIncoming(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	i.metrics.RecordOperation(ctx, "webhook", "incoming_apply_pass", status)
	i.metrics.RecordDuration(ctx, "webhook", "incoming_apply_pass", time.Since(start), status)

	return err
}
