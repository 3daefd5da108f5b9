package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gitlab.com/yelinaung/mess-bot/internal/database"
)

// PushTokenRepository handles Expo device token database operations.
type PushTokenRepository struct {
	db database.PGXDB
}

// NewPushTokenRepository creates a new PushTokenRepository.
func NewPushTokenRepository(db database.PGXDB) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Register links a device token to a boarder. A token registered by
// another boarder moves to this one.
func (r *PushTokenRepository) Register(ctx context.Context, boarderID uuid.UUID, token string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO push_tokens (boarder_id, token)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET boarder_id = EXCLUDED.boarder_id
	`, boarderID, token)
	if err != nil {
		return fmt.Errorf("failed to register push token: %w", err)
	}
	return nil
}

// TokensByBoarder returns every registered token grouped by boarder.
func (r *PushTokenRepository) TokensByBoarder(ctx context.Context) (map[uuid.UUID][]string, error) {
	rows, err := r.db.Query(ctx, `SELECT boarder_id, token FROM push_tokens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query push tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[uuid.UUID][]string)
	for rows.Next() {
		var boarderID uuid.UUID
		var token string
		if err := rows.Scan(&boarderID, &token); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		tokens[boarderID] = append(tokens[boarderID], token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push tokens: %w", err)
	}
	return tokens, nil
}

// Delete removes the given tokens, returning how many were deleted.
func (r *PushTokenRepository) Delete(ctx context.Context, tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM push_tokens WHERE token = ANY($1)`, tokens)
	if err != nil {
		return 0, fmt.Errorf("failed to delete push tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
