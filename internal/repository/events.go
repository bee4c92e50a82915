package repository

import (
	"context"
	"database/sql"

	"tixgate/internal/database"
	"tixgate/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (id, title, organizer_id, datetime_start)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING created_at`

	return r.db.QueryRowContext(ctx, query,
		event.ID,
		event.Title,
		event.OrganizerID,
		event.DatetimeStart,
	).Scan(&event.CreatedAt)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	event := &models.Event{}
	var organizerID sql.NullString
	query := `
		SELECT id, title, organizer_id, datetime_start, created_at
		FROM events
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&organizerID,
		&event.DatetimeStart,
		&event.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event.OrganizerID = organizerID.String
	return event, nil
}
