package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/database"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

const paymentColumns = `id, boarder_id, amount, proof_ref, status, reviewed_by, created_at, updated_at`

// PaymentRepository handles payment database operations.
type PaymentRepository struct {
	db database.PGXDB
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db database.PGXDB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records a new payment. An empty status defaults to pending.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (boarder_id, amount, proof_ref, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, p.BoarderID, p.Amount, p.ProofRef, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id int) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", notFound(err))
	}
	return p, nil
}

// ListPending returns the payments awaiting review, oldest first.
func (r *PaymentRepository) ListPending(ctx context.Context) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'pending'
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// ListForBoarder returns a boarder's latest payments, newest first.
func (r *PaymentRepository) ListForBoarder(ctx context.Context, boarderID uuid.UUID, limit int) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE boarder_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, boarderID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// TransitionStatus moves a payment from one status to another only if it
// is still in the from status. It returns ErrConflict when the payment is
// in another status and ErrNotFound when it does not exist.
func (r *PaymentRepository) TransitionStatus(
	ctx context.Context,
	id int,
	from, to models.PaymentStatus,
	reviewer *int64,
) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments SET status = $3, reviewed_by = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns+`
	`, id, from, to, reviewer))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("payment %d is not %s: %w", id, from, ErrConflict)
}

// TotalApproved sums approved payments created from startDate inclusive to
// endDate exclusive.
func (r *PaymentRepository) TotalApproved(ctx context.Context, startDate, endDate time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE status = 'approved' AND created_at >= $1 AND created_at < $2
	`, startDate, endDate).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get approved total: %w", err)
	}
	return total, nil
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	if err := row.Scan(
		&p.ID, &p.BoarderID, &p.Amount, &p.ProofRef, &p.Status,
		&p.ReviewedBy, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPayments(rows pgx.Rows) ([]models.Payment, error) {
	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}
