package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/cache"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrInvalidAmount is returned for expenses with a negative or zero amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// ExpenseStore reads and records mess expenses.
type ExpenseStore interface {
	Create(ctx context.Context, expense *models.Expense) error
	ListForPeriod(ctx context.Context, startDate, endDate time.Time) ([]models.Expense, error)
}

// PaymentTotaler sums approved payments.
type PaymentTotaler interface {
	TotalApproved(ctx context.Context, startDate, endDate time.Time) (decimal.Decimal, error)
}

// Roster lists the active boarders.
type Roster interface {
	ListActive(ctx context.Context) ([]models.Boarder, error)
}

// MealCounter counts ON meals per boarder over an inclusive range.
type MealCounter interface {
	CountsForPeriod(ctx context.Context, start, end time.Time) (map[uuid.UUID]int, error)
}

// Service loads statement inputs and records expenses.
type Service struct {
	expenses ExpenseStore
	payments PaymentTotaler
	boarders Roster
	meals    MealCounter
	cache    *cache.Cache
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a billing Service. cache may be nil.
func NewService(
	expenses ExpenseStore,
	payments PaymentTotaler,
	boarders Roster,
	meals MealCounter,
	c *cache.Cache,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		expenses: expenses,
		payments: payments,
		boarders: boarders,
		meals:    meals,
		cache:    c,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordExpense validates and stores an expense, then drops cached
// aggregates that include it.
func (s *Service) RecordExpense(ctx context.Context, expense *models.Expense) error {
	if !expense.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := models.ParseExpenseCategory(string(expense.Category)); err != nil {
		return err
	}
	if expense.Date.IsZero() {
		expense.Date = dates.Today(s.now(), s.loc)
	}
	expense.Date = dates.Day(expense.Date)

	if err := s.expenses.Create(ctx, expense); err != nil {
		return fmt.Errorf("failed to record expense: %w", err)
	}
	s.cache.InvalidateTags(ctx, cache.TagExpenses, cache.TagStats)

	logger.Log.Info().
		Int("expense_id", expense.ID).
		Str("category", string(expense.Category)).
		Str("amount", expense.Amount.StringFixed(2)).
		Msg("Expense recorded")
	return nil
}

// MonthlyExpenses returns the expenses dated in month, served from the cache.
func (s *Service) MonthlyExpenses(ctx context.Context, month time.Time) ([]models.Expense, error) {
	first, next := dates.MonthRange(month)
	return cache.CacheOrFetch(ctx, s.cache, "expenses:"+first.Format("2006-01"),
		func(ctx context.Context) ([]models.Expense, error) {
			return s.expenses.ListForPeriod(ctx, first, next)
		}, false, cache.TagExpenses)
}

func (s *Service) approvedTotal(ctx context.Context, first, next time.Time) (decimal.Decimal, error) {
	return cache.CacheOrFetch(ctx, s.cache, "payments:approved:"+first.Format("2006-01"),
		func(ctx context.Context) (decimal.Decimal, error) {
			return s.payments.TotalApproved(ctx,
				dates.At(first, 0, 0, s.loc), dates.At(next, 0, 0, s.loc))
		}, false, cache.TagPayments, cache.TagStats)
}

func (s *Service) activeRoster(ctx context.Context) ([]models.Boarder, error) {
	return cache.CacheOrFetch(ctx, s.cache, "boarders:active", s.boarders.ListActive, false, cache.TagBoarders)
}

// MonthlyStatement computes the statement of month. Meals are counted
// from the first of the month through today, or through the month end for
// past months.
func (s *Service) MonthlyStatement(ctx context.Context, month time.Time) (*Statement, error) {
	first, next := dates.MonthRange(month)

	ctx, span := otel.Tracer("gitlab.com/yelinaung/mess-bot/internal/billing").Start(ctx, "billing.MonthlyStatement")
	defer span.End()
	span.SetAttributes(attribute.String("month", first.Format("2006-01")))

	expenses, err := s.MonthlyExpenses(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	approved, err := s.approvedTotal(ctx, first, next)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved payments: %w", err)
	}
	boarders, err := s.activeRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load boarders: %w", err)
	}

	counts := map[uuid.UUID]int{}
	today := dates.Today(s.now(), s.loc)
	if !today.Before(first) {
		end := dates.Clamp(today, first, dates.AddDays(next, -1))
		counts, err = s.meals.CountsForPeriod(ctx, first, end)
		if err != nil {
			return nil, fmt.Errorf("failed to count meals: %w", err)
		}
	}

	return ComputeStatement(Input{
		Month:            first,
		Expenses:         expenses,
		ApprovedPayments: approved,
		Boarders:         boarders,
		MealCounts:       counts,
	}), nil
}
