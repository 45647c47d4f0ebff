package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/loyalty-api/internal/events"
)

// EventsRepo persists domain events for the bus.
type EventsRepo struct {
	Pool *pgxpool.Pool
}

// InsertDomainEvent stores the event and returns it as recorded.
func (r EventsRepo) InsertDomainEvent(ctx context.Context, event events.DomainEvent) (events.DomainEvent, error) {
	err := r.Pool.QueryRow(ctx,
		`INSERT INTO domain_events (id, tenant_id, topic, aggregate_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING occurred_at`,
		event.ID, tenantSlug(ctx), event.Topic, event.AggregateID, event.Payload, event.OccurredAt,
	).Scan(&event.OccurredAt)
	if err != nil {
		return events.DomainEvent{}, fmt.Errorf("insert domain event: %w", err)
	}
	return event, nil
}
