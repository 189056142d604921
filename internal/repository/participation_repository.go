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

// ParticipationRepository handles persistence for reservation rows.
type ParticipationRepository struct {
	db *pgxpool.Pool
}

// NewParticipationRepository constructs a ParticipationRepository.
func NewParticipationRepository(db *pgxpool.Pool) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

const participationColumns = `id, meal_event_id, user_id, seat_count, status, user_name, email, phone, created_at, updated_at`

// GetForUpdate returns the (event, user) row locked for the surrounding
// transaction, or nil when the user never joined the event.
func (r *ParticipationRepository) GetForUpdate(ctx context.Context, eventID, userID string) (*model.Participation, error) {
	row := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+participationColumns+` FROM meal_event_participants
		 WHERE meal_event_id = $1 AND user_id = $2
		 FOR UPDATE`,
		eventID, userID,
	)
	p, err := scanParticipation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isLockFailure(err) {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return nil, fmt.Errorf("lock participation row: %w", err)
	}
	return p, nil
}

// GetByID returns a single participation row or ErrNotFound.
func (r *ParticipationRepository) GetByID(ctx context.Context, id string) (*model.Participation, error) {
	row := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+participationColumns+` FROM meal_event_participants WHERE id = $1`, id)
	p, err := scanParticipation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get participation: %w", err)
	}
	return p, nil
}

// Insert creates a new participation row. A second row for the same
// (event, user) pair yields ErrDuplicate; an unknown event yields ErrNotFound.
func (r *ParticipationRepository) Insert(ctx context.Context, p *model.Participation) error {
	_, err := conn(ctx, r.db).Exec(ctx,
		`INSERT INTO meal_event_participants (`+participationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.EventID, p.UserID, p.SeatCount, string(p.Status),
		p.Contact.Name, p.Contact.Email, p.Contact.Phone, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrDuplicate
		case isForeignKeyViolation(err):
			return ErrNotFound
		}
		return fmt.Errorf("insert participation: %w", err)
	}
	return nil
}

// Update writes status, seat count and contact back onto an existing row.
func (r *ParticipationRepository) Update(ctx context.Context, p *model.Participation) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE meal_event_participants
		 SET status = $2, seat_count = $3, user_name = $4, email = $5, phone = $6, updated_at = $7
		 WHERE id = $1`,
		p.ID, string(p.Status), p.SeatCount, p.Contact.Name, p.Contact.Email, p.Contact.Phone, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update participation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SumConfirmed returns the total seats held by confirmed rows of an event.
func (r *ParticipationRepository) SumConfirmed(ctx context.Context, eventID string) (int, error) {
	var total int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(seat_count), 0) FROM meal_event_participants
		 WHERE meal_event_id = $1 AND status = $2`,
		eventID, string(model.ParticipationConfirmed),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum confirmed seats: %w", err)
	}
	return total, nil
}

// CountByEvent returns how many participation rows, in any status, an event has.
func (r *ParticipationRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM meal_event_participants WHERE meal_event_id = $1`, eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participations: %w", err)
	}
	return n, nil
}

// ListByEvent returns every row of an event in signup order.
func (r *ParticipationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Participation, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+participationColumns+` FROM meal_event_participants
		 WHERE meal_event_id = $1
		 ORDER BY created_at ASC, id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	return collectParticipations(rows)
}

// ListConfirmed returns the confirmed rows of an event in signup order.
func (r *ParticipationRepository) ListConfirmed(ctx context.Context, eventID string) ([]model.Participation, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+participationColumns+` FROM meal_event_participants
		 WHERE meal_event_id = $1 AND status = $2
		 ORDER BY created_at ASC, id`,
		eventID, string(model.ParticipationConfirmed),
	)
	if err != nil {
		return nil, fmt.Errorf("list confirmed participations: %w", err)
	}
	return collectParticipations(rows)
}

// CancelConfirmed flips every confirmed row of an event to cancelled and
// returns the rows it changed.
func (r *ParticipationRepository) CancelConfirmed(ctx context.Context, eventID string, at time.Time) ([]model.Participation, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`UPDATE meal_event_participants
		 SET status = $3, updated_at = $4
		 WHERE meal_event_id = $1 AND status = $2
		 RETURNING `+participationColumns,
		eventID, string(model.ParticipationConfirmed), string(model.ParticipationCancelled), at,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel participations: %w", err)
	}
	return collectParticipations(rows)
}

// ListConfirmedByUser returns the confirmed rows a user holds across all
// events, newest first.
func (r *ParticipationRepository) ListConfirmedByUser(ctx context.Context, userID string) ([]model.Participation, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+participationColumns+` FROM meal_event_participants
		 WHERE user_id = $1 AND status = $2
		 ORDER BY created_at DESC, id`,
		userID, string(model.ParticipationConfirmed),
	)
	if err != nil {
		return nil, fmt.Errorf("list user participations: %w", err)
	}
	return collectParticipations(rows)
}

func scanParticipation(row rowScanner) (*model.Participation, error) {
	var (
		p      model.Participation
		status string
	)
	err := row.Scan(
		&p.ID, &p.EventID, &p.UserID, &p.SeatCount, &status,
		&p.Contact.Name, &p.Contact.Email, &p.Contact.Phone, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = model.ParticipationStatus(status)
	return &p, nil
}

func collectParticipations(rows pgx.Rows) ([]model.Participation, error) {
	defer rows.Close()

	var out []model.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participation: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participations: %w", err)
	}
	return out, nil
}
