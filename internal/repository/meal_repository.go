package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/mess-bot/internal/database"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

const mealColumns = `id, boarder_id, meal_date, slot, status, served_by, served_at, created_at, updated_at`

// MealRepository handles meal record database operations. Days are civil
// dates stored in DATE columns.
type MealRepository struct {
	db database.PGXDB
}

// NewMealRepository creates a new MealRepository.
func NewMealRepository(db database.PGXDB) *MealRepository {
	return &MealRepository{db: db}
}

// Get retrieves the record of a boarder's slot on day.
func (r *MealRepository) Get(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot) (*models.MealRecord, error) {
	rec, err := scanMeal(r.db.QueryRow(ctx, `
		SELECT `+mealColumns+` FROM meal_records
		WHERE boarder_id = $1 AND meal_date = $2 AND slot = $3
	`, boarderID, day, slot))
	if err != nil {
		return nil, fmt.Errorf("failed to get meal record: %w", notFound(err))
	}
	return rec, nil
}

// CreateIfMissing inserts the record with status unless one exists, then
// returns the stored record. Concurrent callers all see the same row.
func (r *MealRepository) CreateIfMissing(
	ctx context.Context,
	boarderID uuid.UUID,
	day time.Time,
	slot models.Slot,
	status models.MealStatus,
) (*models.MealRecord, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO meal_records (boarder_id, meal_date, slot, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (boarder_id, meal_date, slot) DO NOTHING
	`, boarderID, day, slot, status)
	if err != nil {
		return nil, fmt.Errorf("failed to create meal record: %w", err)
	}
	return r.Get(ctx, boarderID, day, slot)
}

// SetStatus overwrites the status of an existing record.
func (r *MealRepository) SetStatus(ctx context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, status models.MealStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE meal_records SET status = $4, updated_at = NOW()
		WHERE boarder_id = $1 AND meal_date = $2 AND slot = $3
	`, boarderID, day, slot, status)
	if err != nil {
		return fmt.Errorf("failed to set meal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to set meal status: %w", ErrNotFound)
	}
	return nil
}

// MarkServed records who served the meal. An already served record keeps
// its original marker.
func (r *MealRepository) MarkServed(
	ctx context.Context,
	boarderID uuid.UUID,
	day time.Time,
	slot models.Slot,
	servedBy string,
	at time.Time,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE meal_records SET served_by = $4, served_at = $5, updated_at = NOW()
		WHERE boarder_id = $1 AND meal_date = $2 AND slot = $3 AND served_by = ''
	`, boarderID, day, slot, servedBy, at)
	if err != nil {
		return fmt.Errorf("failed to mark meal served: %w", err)
	}
	return nil
}

// ListForBoarder returns a boarder's records from from to to inclusive.
func (r *MealRepository) ListForBoarder(ctx context.Context, boarderID uuid.UUID, from, to time.Time) ([]models.MealRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+mealColumns+` FROM meal_records
		WHERE boarder_id = $1 AND meal_date BETWEEN $2 AND $3
		ORDER BY meal_date, slot
	`, boarderID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query meal records: %w", err)
	}
	defer rows.Close()
	return scanMeals(rows)
}

// ListForDay returns every record of one slot on day.
func (r *MealRepository) ListForDay(ctx context.Context, day time.Time, slot models.Slot) ([]models.MealRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+mealColumns+` FROM meal_records
		WHERE meal_date = $1 AND slot = $2
		ORDER BY id
	`, day, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to query meal records for day: %w", err)
	}
	defer rows.Close()
	return scanMeals(rows)
}

// ListForPeriod returns every record from from to to inclusive.
func (r *MealRepository) ListForPeriod(ctx context.Context, from, to time.Time) ([]models.MealRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+mealColumns+` FROM meal_records
		WHERE meal_date BETWEEN $1 AND $2
		ORDER BY meal_date, slot, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query meal records for period: %w", err)
	}
	defer rows.Close()
	return scanMeals(rows)
}

func scanMeal(row pgx.Row) (*models.MealRecord, error) {
	var rec models.MealRecord
	if err := row.Scan(
		&rec.ID, &rec.BoarderID, &rec.Date, &rec.Slot, &rec.Status,
		&rec.ServedBy, &rec.ServedAt, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanMeals(rows pgx.Rows) ([]models.MealRecord, error) {
	var records []models.MealRecord
	for rows.Next() {
		rec, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meal records: %w", err)
	}
	return records, nil
}
