package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gearhound/price-engine/internal/orchestrator"
	"github.com/gearhound/price-engine/internal/store"
)

// EventTypePriceUpdated is published after a tracked item's price state
// changes. Consumers (cache invalidators, history readers) re-read the
// item themselves; the payload is a pointer, not a snapshot.
const EventTypePriceUpdated = "PRICE_UPDATED"

type priceUpdatedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	ItemID    string    `json:"item_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Publisher writes domain events to the transactional outbox. The relay
// forwards them to Redis streams asynchronously.
type Publisher struct {
	outbox *OutboxRepository
	stream string
	logger *slog.Logger
}

func NewPublisher(db *store.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: NewOutboxRepository(db),
		stream: DefaultStream,
		logger: logger.With("component", "event_publisher"),
	}
}

// WithStream overrides the target Redis stream.
func (p *Publisher) WithStream(stream string) *Publisher {
	p.stream = stream
	return p
}

func (p *Publisher) PublishPriceUpdated(ctx context.Context, evt orchestrator.PriceUpdated) error {
	if evt.EventID == "" {
		evt.EventID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	payload, err := json.Marshal(priceUpdatedPayload{
		EventID:   evt.EventID,
		EventType: EventTypePriceUpdated,
		ItemID:    evt.ItemID,
		Timestamp: evt.Timestamp,
		Source:    "price-engine",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	id, err := uuid.Parse(evt.EventID)
	if err != nil {
		id = uuid.New()
	}

	event := &OutboxEvent{
		ID:            id,
		AggregateType: "tracked_item",
		AggregateID:   evt.ItemID,
		EventType:     EventTypePriceUpdated,
		Payload:       payload,
		TargetStream:  p.stream,
	}

	if err := p.outbox.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue price_updated event: %w", err)
	}

	p.logger.Debug("price_updated queued",
		"event_id", event.ID,
		"item_id", evt.ItemID)
	return nil
}

// LogPublisher is the EventPublisher used when no database is
// configured: it only logs. Useful for single-process deployments.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "event_publisher")}
}

func (p *LogPublisher) PublishPriceUpdated(_ context.Context, evt orchestrator.PriceUpdated) error {
	p.logger.Info("price_updated",
		"event_id", evt.EventID,
		"item_id", evt.ItemID,
		"timestamp", evt.Timestamp)
	return nil
}
