package meal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "gitlab.com/yelinaung/mess-bot/internal/meal"

// Repository persists meal records. Get returns repository.ErrNotFound
// when no record exists.
type Repository interface {
	Get(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot) (*models.MealRecord, error)
	CreateIfMissing(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, status models.MealStatus) (*models.MealRecord, error)
	SetStatus(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, status models.MealStatus) error
	MarkServed(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, servedBy string, at time.Time) error
	ListForBoarder(ctx context.Context, boarderID uuid.UUID, from, to time.Time) ([]models.MealRecord, error)
	ListForDay(ctx context.Context, day time.Time, slot models.Slot) ([]models.MealRecord, error)
	ListForPeriod(ctx context.Context, from, to time.Time) ([]models.MealRecord, error)
}

// BoarderLister lists the active roster.
type BoarderLister interface {
	ListActive(ctx context.Context) ([]models.Boarder, error)
}

// DayResult is the outcome of one (day, slot) in a bulk change.
// Err is empty on success.
type DayResult struct {
	Date time.Time
	Slot models.Slot
	Err  string
}

// OK reports whether the change succeeded.
func (r DayResult) OK() bool {
	return r.Err == ""
}

// Service applies the meal rules on top of the repositories.
type Service struct {
	meals    Repository
	boarders BoarderLister
	policy   Policy
	loc      *time.Location
	now      func() time.Time

	toggles metric.Int64Counter
}

// NewService creates a meal Service. loc is the mess time zone.
func NewService(meals Repository, boarders BoarderLister, policy Policy, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	toggles, err := otel.Meter(instrumentationName).Int64Counter(
		"mess.meal.toggles",
		metric.WithDescription("Meal status changes persisted"),
	)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to create meal toggle counter")
	}
	return &Service{
		meals:    meals,
		boarders: boarders,
		policy:   policy,
		loc:      loc,
		now:      time.Now,
		toggles:  toggles,
	}
}

// WithClock replaces the time source. Used by tests and the reminder loop.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Policy returns the time policy in force.
func (s *Service) Policy() Policy {
	return s.policy
}

// Location returns the mess time zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Now returns the current time in the mess time zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Today returns the current civil date of the mess.
func (s *Service) Today() time.Time {
	return dates.Day(s.Now())
}

// GetOrCreate returns the record for the day, creating it ON if missing.
func (s *Service) GetOrCreate(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot) (*models.MealRecord, error) {
	day = dates.Day(day)
	rec, err := s.meals.Get(ctx, boarderID, day, slot)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load meal record: %w", err)
	}
	rec, err = s.meals.CreateIfMissing(ctx, boarderID, day, slot, models.MealOn)
	if err != nil {
		return nil, fmt.Errorf("failed to create meal record: %w", err)
	}
	return rec, nil
}

// Status returns the resolved status for display without creating a record.
func (s *Service) Status(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot) (models.MealStatus, *models.MealRecord, error) {
	rec, err := s.meals.Get(ctx, boarderID, dates.Day(day), slot)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ResolveStatus(nil), nil, nil
		}
		return "", nil, fmt.Errorf("failed to load meal record: %w", err)
	}
	return ResolveStatus(rec), rec, nil
}

// CanToggle is the pre-check the front-end runs before offering a change.
func (s *Service) CanToggle(day time.Time, slot models.Slot, status models.MealStatus) error {
	return s.policy.CheckToggle(s.Now(), day, slot, status)
}

// Toggle sets a slot's status. The lock policy is checked before the
// lookup and again right before the write, because the lock is time based
// and the first check may have gone stale.
func (s *Service) Toggle(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, status models.MealStatus) (*models.MealRecord, error) {
	day = dates.Day(day)
	if err := s.CanToggle(day, slot, status); err != nil {
		return nil, err
	}

	rec, err := s.GetOrCreate(ctx, boarderID, day, slot)
	if err != nil {
		return nil, err
	}

	if err := s.CanToggle(day, slot, status); err != nil {
		return nil, err
	}
	if err := s.meals.SetStatus(ctx, boarderID, day, slot, status); err != nil {
		return nil, fmt.Errorf("failed to update meal status: %w", err)
	}
	rec.Status = status

	if s.toggles != nil {
		s.toggles.Add(ctx, 1, metric.WithAttributes(
			attribute.String("slot", string(slot)),
			attribute.String("status", string(status)),
		))
	}
	logger.Log.Debug().
		Str("boarder_id", boarderID.String()).
		Str("date", dates.Format(day)).
		Str("slot", string(slot)).
		Str("status", string(status)).
		Msg("Meal status updated")
	return rec, nil
}

// SetRange applies status to every selected slot of every day from start
// to end inclusive. Days are processed one after another and each
// (day, slot) is independent: a failure is recorded in its DayResult and
// processing continues. Only argument validation fails the whole call.
func (s *Service) SetRange(
	ctx context.Context,
	boarderID uuid.UUID,
	start, end time.Time,
	sel Selection,
	status models.MealStatus,
) ([]DayResult, error) {
	start, end = dates.Day(start), dates.Day(end)
	slots := sel.Slots()
	switch {
	case len(slots) == 0:
		return nil, ErrNoSlotSelected
	case end.Before(start):
		return nil, ErrInvalidRange
	case start.Before(s.Today()):
		return nil, ErrDateInPast
	}
	days := dates.Range(start, end)
	if len(days) > MaxRangeDays {
		return nil, fmt.Errorf("%w: %d days (max %d)", ErrRangeTooLong, len(days), MaxRangeDays)
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "meal.SetRange")
	defer span.End()
	span.SetAttributes(
		attribute.Int("days", len(days)),
		attribute.String("status", string(status)),
	)

	results := make([]DayResult, 0, len(days)*len(slots))
	failed := 0
	for _, day := range days {
		for _, slot := range slots {
			res := DayResult{Date: day, Slot: slot}
			if _, err := s.Toggle(ctx, boarderID, day, slot, status); err != nil {
				res.Err = err.Error()
				failed++
			}
			results = append(results, res)
		}
	}

	if failed > 0 {
		logger.Log.Warn().
			Str("boarder_id", boarderID.String()).
			Int("failed", failed).
			Int("total", len(results)).
			Msg("Bulk meal update finished with failures")
	}
	return results, nil
}

// MarkServed records that staff served the boarder's meal today. The
// marker is only ever set, never cleared, so serving twice is a no-op.
func (s *Service) MarkServed(ctx context.Context, boarderID uuid.UUID, slot models.Slot, staff string) error {
	now := s.Now()
	if !s.policy.ServingOpen(now, slot) {
		return ErrServingClosed
	}
	day := dates.Day(now)

	rec, err := s.GetOrCreate(ctx, boarderID, day, slot)
	if err != nil {
		return err
	}
	if ResolveStatus(rec) == models.MealOff {
		return ErrMealOff
	}
	if rec.IsServed() {
		return nil
	}
	if err := s.meals.MarkServed(ctx, boarderID, day, slot, staff, now); err != nil {
		return fmt.Errorf("failed to mark meal served: %w", err)
	}
	return nil
}

// ListServable returns the active boarders still waiting to be served in
// slot today. Outside the serving window the list is always empty.
func (s *Service) ListServable(ctx context.Context, slot models.Slot) ([]models.Boarder, error) {
	now := s.Now()
	if !s.policy.ServingOpen(now, slot) {
		return nil, nil
	}

	boarders, err := s.boarders.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list boarders: %w", err)
	}
	records, err := s.meals.ListForDay(ctx, dates.Day(now), slot)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal records: %w", err)
	}

	byBoarder := make(map[uuid.UUID]*models.MealRecord, len(records))
	for i := range records {
		byBoarder[records[i].BoarderID] = &records[i]
	}

	var servable []models.Boarder
	for _, b := range boarders {
		rec := byBoarder[b.ID]
		if ResolveStatus(rec) != models.MealOn {
			continue
		}
		if rec != nil && rec.IsServed() {
			continue
		}
		servable = append(servable, b)
	}
	return servable, nil
}

// EnsureDay creates the default ON records of every active boarder for
// day, so that counting and display read the same rows. Failures for one
// boarder do not stop the others; they are joined into the returned error.
func (s *Service) EnsureDay(ctx context.Context, day time.Time) error {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "meal.EnsureDay")
	defer span.End()

	boarders, err := s.boarders.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list boarders: %w", err)
	}

	day = dates.Day(day)
	var errs []error
	for _, b := range boarders {
		for _, slot := range models.Slots {
			if _, err := s.meals.CreateIfMissing(ctx, b.ID, day, slot, models.MealOn); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", b.Room, slot, err))
			}
		}
	}
	return errors.Join(errs...)
}
