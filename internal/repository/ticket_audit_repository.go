package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-relay/internal/events"
)

// TicketAuditRepository appends relay lifecycle events to the audit trail.
type TicketAuditRepository interface {
	Record(ctx context.Context, event events.Event) error
}

type ticketAuditRepository struct {
	pool *pgxpool.Pool
}

// NewTicketAuditRepository builds repository.
func NewTicketAuditRepository(pool *pgxpool.Pool) TicketAuditRepository {
	return &ticketAuditRepository{pool: pool}
}

func (r *ticketAuditRepository) Record(ctx context.Context, event events.Event) error {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		id = uuid.New()
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	const query = `
        INSERT INTO ticket_audit (id, ticket_id, event_type, actor, payload, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO NOTHING`
	_, err = r.pool.Exec(ctx, query,
		id,
		event.TicketID,
		string(event.Type),
		event.Actor,
		payload,
		event.Timestamp,
	)
	return err
}
