package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgEventStore struct{ DB *pgxpool.Pool }

func (s *PgEventStore) Insert(ctx context.Context, ev Event) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO payment_events(external_event_id, session_ref, outcome, amount_cents, received_at, processed)
		VALUES ($1,$2,$3,$4,$5,false)
		ON CONFLICT (external_event_id) DO NOTHING`,
		ev.ExternalEventID, ev.SessionRef, ev.Outcome, ev.AmountCents, ev.ReceivedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PgEventStore) Get(ctx context.Context, externalEventID string) (Event, error) {
	var ev Event
	err := s.DB.QueryRow(ctx, `
		SELECT external_event_id, session_ref, outcome, amount_cents, received_at, processed
		FROM payment_events WHERE external_event_id=$1`, externalEventID).
		Scan(&ev.ExternalEventID, &ev.SessionRef, &ev.Outcome, &ev.AmountCents, &ev.ReceivedAt, &ev.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	return ev, err
}

func (s *PgEventStore) MarkProcessed(ctx context.Context, externalEventID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE payment_events SET processed=true WHERE external_event_id=$1`, externalEventID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}
