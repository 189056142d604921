package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles persistence for meal events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, description, image_url, host_user_id, host_name, host_email, host_phone,
	capacity, confirmed_count, diet_type, is_dine_in, start_time, end_time, signup_deadline, status, notes,
	full_address, city, district, street, number, latitude, longitude, created_at, updated_at`

// Create inserts a new event. The caller supplies the ID and timestamps.
func (r *EventRepository) Create(ctx context.Context, e *model.MealEvent) error {
	lat, lon := splitLocation(e.Location)
	_, err := conn(ctx, r.db).Exec(ctx,
		`INSERT INTO meal_events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		e.ID, e.Title, e.Description, e.ImageURL, e.HostUserID, e.Host.Name, e.Host.Email, e.Host.Phone,
		e.Capacity, e.ConfirmedCount, e.DietType, e.IsDineIn, e.StartTime, e.EndTime, e.SignupDeadline,
		string(e.Status), e.Notes, e.Address.FullAddress, e.Address.City, e.Address.District,
		e.Address.Street, e.Address.Number, lat, lon, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.MealEvent, error) {
	row := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM meal_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// GetForUpdate reads the event and takes an exclusive row lock on it for
// the rest of the surrounding transaction.
//
// Every mutation that touches an event's seats goes through this lock
// first, so concurrent writers for the same event are serialised: the
// second one blocks here until the first commits, and then sees the
// first one's participation row when it recomputes the aggregate.
func (r *EventRepository) GetForUpdate(ctx context.Context, id string) (*model.MealEvent, error) {
	row := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM meal_events WHERE id = $1 FOR UPDATE`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isLockFailure(err) {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return e, nil
}

// List returns a page of events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context, offset, limit int) ([]model.MealEvent, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+eventColumns+` FROM meal_events
		 ORDER BY created_at DESC, id
		 OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

// Count returns the total number of events.
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := conn(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM meal_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ListByHost returns the events a user hosts, newest first.
func (r *EventRepository) ListByHost(ctx context.Context, hostUserID string) ([]model.MealEvent, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+eventColumns+` FROM meal_events
		 WHERE host_user_id = $1
		 ORDER BY created_at DESC, id`,
		hostUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("list hosted events: %w", err)
	}
	return collectEvents(rows)
}

// UpdateAggregate writes the derived seat count and status onto an event.
func (r *EventRepository) UpdateAggregate(ctx context.Context, id string, confirmed int, status model.EventStatus, at time.Time) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE meal_events SET confirmed_count = $2, status = $3, updated_at = $4 WHERE id = $1`,
		id, confirmed, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("update event aggregate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Update overwrites every stored field of an event except its ID and
// creation time.
func (r *EventRepository) Update(ctx context.Context, e *model.MealEvent) error {
	lat, lon := splitLocation(e.Location)
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE meal_events SET
			title = $2, description = $3, image_url = $4, host_name = $5, host_email = $6, host_phone = $7,
			capacity = $8, confirmed_count = $9, diet_type = $10, is_dine_in = $11, start_time = $12,
			end_time = $13, signup_deadline = $14, status = $15, notes = $16, full_address = $17,
			city = $18, district = $19, street = $20, number = $21, latitude = $22, longitude = $23,
			updated_at = $24
		 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.ImageURL, e.Host.Name, e.Host.Email, e.Host.Phone,
		e.Capacity, e.ConfirmedCount, e.DietType, e.IsDineIn, e.StartTime,
		e.EndTime, e.SignupDeadline, string(e.Status), e.Notes, e.Address.FullAddress,
		e.Address.City, e.Address.District, e.Address.Street, e.Address.Number, lat, lon,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an event row. Participation rows reference events, so the
// foreign key rejects deleting an event anyone ever joined.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM meal_events WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReferenced
		}
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEvent(row rowScanner) (*model.MealEvent, error) {
	var (
		e      model.MealEvent
		status string
		lat    *float64
		lon    *float64
	)
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.ImageURL, &e.HostUserID, &e.Host.Name, &e.Host.Email, &e.Host.Phone,
		&e.Capacity, &e.ConfirmedCount, &e.DietType, &e.IsDineIn, &e.StartTime, &e.EndTime, &e.SignupDeadline,
		&status, &e.Notes, &e.Address.FullAddress, &e.Address.City, &e.Address.District,
		&e.Address.Street, &e.Address.Number, &lat, &lon, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.EventStatus(status)
	if lat != nil && lon != nil {
		e.Location = &model.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]model.MealEvent, error) {
	defer rows.Close()

	var events []model.MealEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func splitLocation(c *model.Coordinates) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	lat, lon := c.Latitude, c.Longitude
	return &lat, &lon
}
