package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it for tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides persistence for opening hours and calendar blocks.
type Repository struct {
	pool DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool DB) *Repository {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &Repository{pool: pool}
}

// WeekHoursFor loads the tenant's full weekly schedule. Weekdays without a
// row are closed.
func (r *Repository) WeekHoursFor(ctx context.Context, tenantID uuid.UUID) (WeekHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday,
			COALESCE(morning_open, ''),
			COALESCE(morning_close, ''),
			COALESCE(afternoon_open, ''),
			COALESCE(afternoon_close, '')
		FROM opening_hours
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("schedule: load week hours: %w", err)
	}
	defer rows.Close()

	hours := make(WeekHours)
	for rows.Next() {
		var weekday int
		var w DayWindows
		if err := rows.Scan(&weekday, &w.MorningOpen, &w.MorningClose, &w.AfternoonOpen, &w.AfternoonClose); err != nil {
			return nil, fmt.Errorf("schedule: scan week hours: %w", err)
		}
		windows := w
		hours[time.Weekday(weekday)] = &windows
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("schedule: iterate week hours: %w", rows.Err())
	}
	return hours, nil
}

// DayWindowsFor loads a single weekday's windows, nil when closed.
func (r *Repository) DayWindowsFor(ctx context.Context, tenantID uuid.UUID, day time.Weekday) (*DayWindows, error) {
	var w DayWindows
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(morning_open, ''),
			COALESCE(morning_close, ''),
			COALESCE(afternoon_open, ''),
			COALESCE(afternoon_close, '')
		FROM opening_hours
		WHERE tenant_id = $1 AND weekday = $2
	`, tenantID, int(day)).Scan(&w.MorningOpen, &w.MorningClose, &w.AfternoonOpen, &w.AfternoonClose)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: load day windows: %w", err)
	}
	return &w, nil
}

// SetDayWindows upserts the windows for one weekday. Passing nil closes the day.
func (r *Repository) SetDayWindows(ctx context.Context, tenantID uuid.UUID, day time.Weekday, w *DayWindows) error {
	if w == nil {
		_, err := r.pool.Exec(ctx, `DELETE FROM opening_hours WHERE tenant_id = $1 AND weekday = $2`, tenantID, int(day))
		if err != nil {
			return fmt.Errorf("schedule: close day: %w", err)
		}
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO opening_hours (tenant_id, weekday, morning_open, morning_close, afternoon_open, afternoon_close)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (tenant_id, weekday) DO UPDATE SET
			morning_open = EXCLUDED.morning_open,
			morning_close = EXCLUDED.morning_close,
			afternoon_open = EXCLUDED.afternoon_open,
			afternoon_close = EXCLUDED.afternoon_close
	`, tenantID, int(day), w.MorningOpen, w.MorningClose, w.AfternoonOpen, w.AfternoonClose)
	if err != nil {
		return fmt.Errorf("schedule: set day windows: %w", err)
	}
	return nil
}

// IsDateBlocked reports whether the calendar date is blocked for the tenant.
func (r *Repository) IsDateBlocked(ctx context.Context, tenantID uuid.UUID, date time.Time) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM blocked_dates WHERE tenant_id = $1 AND day = $2::date)
	`, tenantID, date.Format("2006-01-02")).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("schedule: blocked date lookup: %w", err)
	}
	return blocked, nil
}

// AddBlockedDate blocks a whole calendar date.
func (r *Repository) AddBlockedDate(ctx context.Context, tenantID uuid.UUID, date time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blocked_dates (tenant_id, day) VALUES ($1, $2::date)
		ON CONFLICT (tenant_id, day) DO NOTHING
	`, tenantID, date.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("schedule: add blocked date: %w", err)
	}
	return nil
}

// BlockedSlotsBetween returns blocked time ranges for the barber overlapping
// [from, to).
func (r *Repository) BlockedSlotsBetween(ctx context.Context, tenantID, barberID uuid.UUID, from, to time.Time) ([]BlockedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, barber_id, start_at, end_at, COALESCE(reason, '')
		FROM blocked_slots
		WHERE tenant_id = $1 AND barber_id = $2 AND start_at < $4 AND end_at > $3
		ORDER BY start_at ASC
	`, tenantID, barberID, from, to)
	if err != nil {
		return nil, fmt.Errorf("schedule: load blocked slots: %w", err)
	}
	defer rows.Close()

	var slots []BlockedSlot
	for rows.Next() {
		var s BlockedSlot
		if err := rows.Scan(&s.ID, &s.TenantID, &s.BarberID, &s.StartAt, &s.EndAt, &s.Reason); err != nil {
			return nil, fmt.Errorf("schedule: scan blocked slot: %w", err)
		}
		slots = append(slots, s)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("schedule: iterate blocked slots: %w", rows.Err())
	}
	return slots, nil
}

// AddBlockedSlot removes an explicit time range from a barber's availability.
func (r *Repository) AddBlockedSlot(ctx context.Context, tenantID, barberID uuid.UUID, start, end time.Time, reason string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blocked_slots (id, tenant_id, barber_id, start_at, end_at, reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, id, tenantID, barberID, start, end, reason)
	if err != nil {
		return uuid.Nil, fmt.Errorf("schedule: add blocked slot: %w", err)
	}
	return id, nil
}
