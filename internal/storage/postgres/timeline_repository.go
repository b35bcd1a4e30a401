package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// TimelineRepository хранит журнал попыток оформления по сессиям корзины.
type TimelineRepository struct {
	store *Store
}

// NewTimelineRepository создаёт журнал поверх PostgreSQL.
func NewTimelineRepository(store *Store) *TimelineRepository {
	return &TimelineRepository{store: store}
}

func (r *TimelineRepository) Append(event domain.SubmissionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = r.store.clock()
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO submission_events (session_id, draft_id, sale_id, type, state, step, reason, occurred)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.SessionID, event.DraftID, event.SaleID, event.Type,
		string(event.State), string(event.Step), event.Reason, event.Occurred,
	)
	if err != nil {
		return fmt.Errorf("append submission event: %w", err)
	}
	return nil
}

// List возвращает события сессии по времени; при равном времени по порядку вставки.
func (r *TimelineRepository) List(sessionID string) ([]domain.SubmissionEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT session_id, draft_id, sale_id, type, state, step, reason, occurred
		FROM submission_events
		WHERE session_id = $1
		ORDER BY occurred ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list submission events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.SubmissionEvent, 0)
	for rows.Next() {
		var (
			event       domain.SubmissionEvent
			state, step string
		)
		if err := rows.Scan(
			&event.SessionID, &event.DraftID, &event.SaleID, &event.Type,
			&state, &step, &event.Reason, &event.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan submission event: %w", err)
		}
		event.State = domain.SubmissionState(state)
		event.Step = domain.SagaStep(step)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission events: %w", err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
