package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/danigamesx/barber-ai-sub000/internal/schedule"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

var availabilityTracer = otel.Tracer("barber.internal.availability")

// ScheduleStore exposes the schedule data the calculator reads.
type ScheduleStore interface {
	DayWindowsFor(ctx context.Context, tenantID uuid.UUID, day time.Weekday) (*schedule.DayWindows, error)
	IsDateBlocked(ctx context.Context, tenantID uuid.UUID, date time.Time) (bool, error)
	BlockedSlotsBetween(ctx context.Context, tenantID, barberID uuid.UUID, from, to time.Time) ([]schedule.BlockedSlot, error)
}

// AppointmentSource lists busy intervals from existing confirmed or paid
// appointments. exclude skips one appointment id (used by reschedule).
type AppointmentSource interface {
	ActiveIntervals(ctx context.Context, tenantID, barberID uuid.UUID, from, to time.Time, exclude uuid.UUID) ([]Interval, error)
}

// Service recomputes availability from scratch on every call. Nothing is
// cached across booking mutations; the repeated scan over existing
// appointments is the price of never serving a stale slot.
type Service struct {
	schedule ScheduleStore
	appts    AppointmentSource
	step     time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// NewService constructs an availability service with the given slot cadence.
func NewService(scheduleStore ScheduleStore, appts AppointmentSource, step time.Duration, logger *logging.Logger) *Service {
	if scheduleStore == nil {
		panic("availability: schedule store required")
	}
	if appts == nil {
		panic("availability: appointment source required")
	}
	if step <= 0 {
		step = 15 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		schedule: scheduleStore,
		appts:    appts,
		step:     step,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the wall clock (for tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Slots returns the ordered bookable start times for the barber on the given
// date, for a service of the given duration. date's year/month/day are taken
// in loc.
func (s *Service) Slots(ctx context.Context, tenantID, barberID uuid.UUID, duration time.Duration, date time.Time, loc *time.Location) ([]time.Time, error) {
	return s.slots(ctx, tenantID, barberID, duration, date, loc, uuid.Nil)
}

// CanBook reports whether start is currently an offerable slot for the barber,
// excluding one appointment from the conflict scan. Booking writes use it to
// re-validate at write time instead of trusting an earlier availability read.
func (s *Service) CanBook(ctx context.Context, tenantID, barberID uuid.UUID, start time.Time, duration time.Duration, loc *time.Location, exclude uuid.UUID) (bool, error) {
	starts, err := s.slots(ctx, tenantID, barberID, duration, start, loc, exclude)
	if err != nil {
		return false, err
	}
	for _, t := range starts {
		if t.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) slots(ctx context.Context, tenantID, barberID uuid.UUID, duration time.Duration, date time.Time, loc *time.Location, exclude uuid.UUID) ([]time.Time, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("barber.tenant_id", tenantID.String()),
		attribute.String("barber.barber_id", barberID.String()),
		attribute.String("barber.date", date.Format("2006-01-02")),
	)

	if loc == nil {
		loc = time.UTC
	}
	date = date.In(loc)

	blocked, err := s.schedule.IsDateBlocked(ctx, tenantID, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if blocked {
		return nil, nil
	}

	windows, err := s.schedule.DayWindowsFor(ctx, tenantID, date.Weekday())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	ranges, err := windows.Ranges(date, loc)
	if err != nil {
		// A malformed window is treated as closed rather than failing the
		// whole slot query.
		s.logger.Warn("availability: malformed opening hours, treating day as closed",
			"tenant_id", tenantID, "weekday", date.Weekday().String(), "error", err)
		return nil, nil
	}
	if len(ranges) == 0 {
		return nil, nil
	}

	dayStart := ranges[0].Start
	dayEnd := ranges[len(ranges)-1].End

	busy, err := s.appts.ActiveIntervals(ctx, tenantID, barberID, dayStart, dayEnd, exclude)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: load busy intervals: %w", err)
	}
	blocks, err := s.schedule.BlockedSlotsBetween(ctx, tenantID, barberID, dayStart, dayEnd)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: load blocked slots: %w", err)
	}
	for _, b := range blocks {
		busy = append(busy, Interval{Start: b.StartAt, End: b.EndAt})
	}

	starts := SlotStarts(ranges, duration, s.step, busy, s.now().In(loc))
	span.SetAttributes(attribute.Int("barber.slot_count", len(starts)))
	return starts, nil
}
