package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/mess-bot/internal/database"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

// StaffRepository handles staff and manager role grants.
type StaffRepository struct {
	db database.PGXDB
}

// NewStaffRepository creates a new StaffRepository.
func NewStaffRepository(db database.PGXDB) *StaffRepository {
	return &StaffRepository{db: db}
}

// Grant gives a user a role by ID (and optional username). Granting again
// replaces the role.
func (r *StaffRepository) Grant(ctx context.Context, userID int64, username string, role models.StaffRole, grantedBy int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO staff_members (user_id, username, role, granted_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) WHERE user_id != 0
		DO UPDATE SET username = EXCLUDED.username, role = EXCLUDED.role
	`, userID, username, role, grantedBy)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// GrantByUsername gives a role to a user known only by username. The user
// ID is backfilled on their first message.
func (r *StaffRepository) GrantByUsername(ctx context.Context, username string, role models.StaffRole, grantedBy int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO staff_members (user_id, username, role, granted_by)
		VALUES (0, $1, $2, $3)
		ON CONFLICT (LOWER(username)) WHERE username != ''
		DO UPDATE SET role = EXCLUDED.role
	`, username, role, grantedBy)
	if err != nil {
		return fmt.Errorf("failed to grant role by username: %w", err)
	}
	return nil
}

// RoleOf returns the role of a user matched by ID or username, or "" when
// the user holds no role. needsBackfill is true when the match was by
// username only and UpdateUserID should be called.
func (r *StaffRepository) RoleOf(ctx context.Context, userID int64, username string) (role models.StaffRole, needsBackfill bool, err error) {
	var matchedUserID int64
	scanErr := r.db.QueryRow(ctx, `
		SELECT user_id, role FROM staff_members
		WHERE (user_id = $1 AND user_id != 0)
		   OR (LOWER(username) = LOWER($2) AND username != '')
		ORDER BY user_id DESC
		LIMIT 1
	`, userID, username).Scan(&matchedUserID, &role)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up role: %w", scanErr)
	}
	return role, matchedUserID == 0, nil
}

// Revoke removes a user's role by user ID.
func (r *StaffRepository) Revoke(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM staff_members WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// RevokeByUsername removes a user's role by username.
func (r *StaffRepository) RevokeByUsername(ctx context.Context, username string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM staff_members WHERE LOWER(username) = LOWER($1)`, username)
	if err != nil {
		return fmt.Errorf("failed to revoke role by username: %w", err)
	}
	return nil
}

// UpdateUserID backfills the user_id for a username-only grant.
func (r *StaffRepository) UpdateUserID(ctx context.Context, username string, userID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE staff_members
		SET user_id = $1
		WHERE LOWER(username) = LOWER($2) AND user_id = 0
	`, userID, username)
	if err != nil {
		return fmt.Errorf("failed to update user ID: %w", err)
	}
	return nil
}

// GetAll returns all role grants.
func (r *StaffRepository) GetAll(ctx context.Context) ([]models.StaffMember, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, username, role, granted_by, created_at
		FROM staff_members
		ORDER BY role, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	defer rows.Close()

	var members []models.StaffMember
	for rows.Next() {
		var m models.StaffMember
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Role, &m.GrantedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staff member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staff: %w", err)
	}
	return members, nil
}
