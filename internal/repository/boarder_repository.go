// Package repository implements PostgreSQL persistence for the mess.
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/database"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

const boarderColumns = `id, telegram_user_id, name, room, preference, advance, active, created_at, updated_at`

// BoarderRepository handles boarder database operations.
type BoarderRepository struct {
	db database.PGXDB
}

// NewBoarderRepository creates a new BoarderRepository.
func NewBoarderRepository(db database.PGXDB) *BoarderRepository {
	return &BoarderRepository{db: db}
}

// Create registers a new active boarder. A nil ID is replaced by a new UUID.
func (r *BoarderRepository) Create(ctx context.Context, b *models.Boarder) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Active = true
	err := r.db.QueryRow(ctx, `
		INSERT INTO boarders (id, telegram_user_id, name, room, preference, advance, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING created_at, updated_at
	`, b.ID, b.TelegramUserID, b.Name, b.Room, b.Preference, b.Advance,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create boarder: %w", duplicate(err))
	}
	return nil
}

// GetByID retrieves a boarder by ID.
func (r *BoarderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Boarder, error) {
	b, err := scanBoarder(r.db.QueryRow(ctx, `SELECT `+boarderColumns+` FROM boarders WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get boarder: %w", notFound(err))
	}
	return b, nil
}

// GetByTelegramID retrieves the boarder linked to a Telegram user.
func (r *BoarderRepository) GetByTelegramID(ctx context.Context, userID int64) (*models.Boarder, error) {
	b, err := scanBoarder(r.db.QueryRow(ctx, `SELECT `+boarderColumns+` FROM boarders WHERE telegram_user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get boarder by telegram id: %w", notFound(err))
	}
	return b, nil
}

// GetByRoom retrieves the active boarder of a room, case-insensitively.
func (r *BoarderRepository) GetByRoom(ctx context.Context, room string) (*models.Boarder, error) {
	b, err := scanBoarder(r.db.QueryRow(ctx, `
		SELECT `+boarderColumns+` FROM boarders
		WHERE LOWER(room) = LOWER($1) AND active
	`, room))
	if err != nil {
		return nil, fmt.Errorf("failed to get boarder by room: %w", notFound(err))
	}
	return b, nil
}

// ListActive returns all active boarders ordered by room.
func (r *BoarderRepository) ListActive(ctx context.Context) ([]models.Boarder, error) {
	return r.list(ctx, `SELECT `+boarderColumns+` FROM boarders WHERE active ORDER BY room, name`)
}

// ListAll returns every boarder, including deactivated ones.
func (r *BoarderRepository) ListAll(ctx context.Context) ([]models.Boarder, error) {
	return r.list(ctx, `SELECT `+boarderColumns+` FROM boarders ORDER BY active DESC, room, name`)
}

func (r *BoarderRepository) list(ctx context.Context, query string) ([]models.Boarder, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list boarders: %w", err)
	}
	defer rows.Close()

	var boarders []models.Boarder
	for rows.Next() {
		b, err := scanBoarder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan boarder: %w", err)
		}
		boarders = append(boarders, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate boarders: %w", err)
	}
	return boarders, nil
}

// Update saves the profile fields of a boarder.
func (r *BoarderRepository) Update(ctx context.Context, b *models.Boarder) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE boarders SET
			telegram_user_id = $2,
			name = $3,
			room = $4,
			preference = $5,
			updated_at = NOW()
		WHERE id = $1
	`, b.ID, b.TelegramUserID, b.Name, b.Room, b.Preference)
	if err != nil {
		return fmt.Errorf("failed to update boarder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update boarder: %w", ErrNotFound)
	}
	return nil
}

// Deactivate marks a boarder inactive. Boarders are never deleted.
func (r *BoarderRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE boarders SET active = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate boarder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to deactivate boarder: %w", ErrNotFound)
	}
	return nil
}

// AdjustAdvance adds delta to the boarder's advance in one statement and
// returns the new balance.
func (r *BoarderRepository) AdjustAdvance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var advance decimal.Decimal
	err := r.db.QueryRow(ctx, `
		UPDATE boarders SET advance = advance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING advance
	`, id, delta).Scan(&advance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to adjust advance: %w", notFound(err))
	}
	return advance, nil
}

// SetAdvance overwrites the boarder's advance.
func (r *BoarderRepository) SetAdvance(ctx context.Context, id uuid.UUID, value decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE boarders SET advance = $2, updated_at = NOW() WHERE id = $1
	`, id, value)
	if err != nil {
		return fmt.Errorf("failed to set advance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to set advance: %w", ErrNotFound)
	}
	return nil
}

func scanBoarder(row pgx.Row) (*models.Boarder, error) {
	var b models.Boarder
	if err := row.Scan(
		&b.ID, &b.TelegramUserID, &b.Name, &b.Room, &b.Preference,
		&b.Advance, &b.Active, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}
