package events

import (
	"context"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/observability/metrics"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	outbox      Outbox
	handler     Handler
	logger      *logging.Logger
	metrics     *metrics.OutboxMetrics
	batchSize   int
	interval    time.Duration
	maxAttempts int
}

func NewDeliverer(outbox Outbox, handler Handler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		outbox:      outbox,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		interval:    2 * time.Second,
		maxAttempts: 8,
	}
}

func (d *Deliverer) WithBatchSize(size int) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithMaxAttempts sets how many failed deliveries an entry survives before it
// is moved to the dead-letter partition.
func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.OutboxMetrics) *Deliverer {
	d.metrics = m
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.outbox == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns the number of entries handled successfully.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.outbox.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	d.metrics.ObserveBatch(len(entries))

	delivered := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return delivered
		}
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.fail(ctx, entry, err)
			continue
		}
		if err := d.outbox.MarkDelivered(ctx, entry); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
			continue
		}
		delivered++
		d.metrics.ObserveDelivery(entry.Type, "delivered")
		d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
	}
	return delivered
}

func (d *Deliverer) fail(ctx context.Context, entry Entry, cause error) {
	if entry.Attempts+1 >= d.maxAttempts {
		d.logger.Error("outbox entry dropped after max attempts",
			"error", cause,
			"event_id", entry.ID,
			"type", entry.Type,
			"aggregate_id", entry.AggregateID,
			"attempts", entry.Attempts+1,
		)
		d.metrics.ObserveDelivery(entry.Type, "dead")
		if err := d.outbox.MarkDead(ctx, entry, cause); err != nil {
			d.logger.Error("failed to dead-letter outbox entry", "error", err, "event_id", entry.ID)
		}
		return
	}
	d.logger.Warn("outbox delivery failed", "error", cause, "event_id", entry.ID, "type", entry.Type, "attempts", entry.Attempts+1)
	d.metrics.ObserveDelivery(entry.Type, "failed")
	if err := d.outbox.MarkFailed(ctx, entry, cause); err != nil {
		d.logger.Error("failed to record outbox attempt", "error", err, "event_id", entry.ID)
	}
}
