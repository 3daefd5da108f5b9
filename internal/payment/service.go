// Package payment handles boarder payments and the advance balance they
// credit.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/cache"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "gitlab.com/yelinaung/mess-bot/internal/payment"

const pendingCacheKey = "payments:pending"

// ErrInvalidAmount is returned for a payment amount that is not positive.
var ErrInvalidAmount = errors.New("payment amount must be positive")

// Repository persists payments. TransitionStatus must only change a
// payment still in the from status.
type Repository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id int) (*models.Payment, error)
	ListPending(ctx context.Context) ([]models.Payment, error)
	ListForBoarder(ctx context.Context, boarderID uuid.UUID, limit int) ([]models.Payment, error)
	TransitionStatus(ctx context.Context, id int, from, to models.PaymentStatus, reviewer *int64) (*models.Payment, error)
}

// AdvanceStore updates a boarder's advance balance.
type AdvanceStore interface {
	AdjustAdvance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	SetAdvance(ctx context.Context, id uuid.UUID, value decimal.Decimal) error
}

// Service submits and reviews payments.
type Service struct {
	payments Repository
	advances AdvanceStore
	cache    *cache.Cache

	approvals metric.Int64Counter
}

// NewService creates a payment Service. c may be nil.
func NewService(payments Repository, advances AdvanceStore, c *cache.Cache) *Service {
	approvals, err := otel.Meter(instrumentationName).Int64Counter(
		"mess.payment.approvals",
		metric.WithDescription("Payments approved and credited"),
	)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to create payment approval counter")
	}
	return &Service{payments: payments, advances: advances, cache: c, approvals: approvals}
}

// Submit records a pending payment from a boarder.
func (s *Service) Submit(ctx context.Context, boarderID uuid.UUID, amount decimal.Decimal, proofRef string) (*models.Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	p := &models.Payment{
		BoarderID: boarderID,
		Amount:    amount,
		ProofRef:  proofRef,
		Status:    models.PaymentPending,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to submit payment: %w", err)
	}
	s.cache.InvalidateTags(ctx, cache.TagPayments)

	logger.Log.Info().
		Int("payment_id", p.ID).
		Str("boarder_id", boarderID.String()).
		Str("amount", amount.StringFixed(2)).
		Msg("Payment submitted")
	return p, nil
}

// Approve marks a pending payment approved and credits its amount to the
// boarder's advance. If the credit fails the payment is moved back to
// pending. When that also fails both errors are returned and the payment
// needs manual repair.
func (s *Service) Approve(ctx context.Context, paymentID int, reviewer int64) (*models.Payment, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "payment.Approve")
	defer span.End()
	span.SetAttributes(attribute.Int("payment.id", paymentID))

	p, err := s.payments.TransitionStatus(ctx, paymentID, models.PaymentPending, models.PaymentApproved, &reviewer)
	if err != nil {
		return nil, fmt.Errorf("failed to approve payment: %w", err)
	}

	advance, err := s.advances.AdjustAdvance(ctx, p.BoarderID, p.Amount)
	if err != nil {
		creditErr := fmt.Errorf("failed to credit advance: %w", err)
		if _, undoErr := s.payments.TransitionStatus(ctx, paymentID, models.PaymentApproved, models.PaymentPending, nil); undoErr != nil {
			logger.Log.Error().
				Err(undoErr).
				AnErr("credit_error", err).
				Int("payment_id", paymentID).
				Str("boarder_id", p.BoarderID.String()).
				Msg("Payment approved but advance not credited, manual repair needed")
			return nil, errors.Join(creditErr, fmt.Errorf("failed to reopen payment: %w", undoErr))
		}
		logger.Log.Warn().Err(err).Int("payment_id", paymentID).Msg("Advance credit failed, payment reopened")
		return nil, creditErr
	}

	s.cache.InvalidateTags(ctx, cache.TagPayments, cache.TagBoarders, cache.TagStats)
	if s.approvals != nil {
		s.approvals.Add(ctx, 1)
	}

	logger.Log.Info().
		Int("payment_id", paymentID).
		Int64("reviewer", reviewer).
		Str("advance", advance.StringFixed(2)).
		Msg("Payment approved")
	return p, nil
}

// Reject marks a pending payment rejected.
func (s *Service) Reject(ctx context.Context, paymentID int, reviewer int64) (*models.Payment, error) {
	p, err := s.payments.TransitionStatus(ctx, paymentID, models.PaymentPending, models.PaymentRejected, &reviewer)
	if err != nil {
		return nil, fmt.Errorf("failed to reject payment: %w", err)
	}
	s.cache.InvalidateTags(ctx, cache.TagPayments)
	logger.Log.Info().Int("payment_id", paymentID).Int64("reviewer", reviewer).Msg("Payment rejected")
	return p, nil
}

// AdjustAdvance adds delta to a boarder's advance and returns the new value.
func (s *Service) AdjustAdvance(ctx context.Context, boarderID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	v, err := s.advances.AdjustAdvance(ctx, boarderID, delta)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to adjust advance: %w", err)
	}
	s.cache.InvalidateTags(ctx, cache.TagBoarders, cache.TagStats)
	return v, nil
}

// SetAdvance overwrites a boarder's advance.
func (s *Service) SetAdvance(ctx context.Context, boarderID uuid.UUID, value decimal.Decimal) error {
	if err := s.advances.SetAdvance(ctx, boarderID, value); err != nil {
		return fmt.Errorf("failed to set advance: %w", err)
	}
	s.cache.InvalidateTags(ctx, cache.TagBoarders, cache.TagStats)
	return nil
}

// ListPending returns payments awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]models.Payment, error) {
	return cache.CacheOrFetch(ctx, s.cache, pendingCacheKey, s.payments.ListPending, false, cache.TagPayments)
}

// History returns a boarder's most recent payments.
func (s *Service) History(ctx context.Context, boarderID uuid.UUID, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.payments.ListForBoarder(ctx, boarderID, limit)
}
