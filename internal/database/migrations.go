package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RunMigrations creates the database schema in one transaction. Every
// statement is idempotent.
func RunMigrations(ctx context.Context, db TxBeginner) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS boarders (
			id UUID PRIMARY KEY,
			telegram_user_id BIGINT UNIQUE,
			name TEXT NOT NULL,
			room TEXT NOT NULL,
			preference TEXT NOT NULL DEFAULT 'veg'
				CHECK (preference IN ('veg', 'non-veg', 'egg', 'fish')),
			advance DECIMAL(12, 2) NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_boarders_active_room ON boarders(LOWER(room)) WHERE active`,

		`CREATE TABLE IF NOT EXISTS meal_records (
			id BIGSERIAL PRIMARY KEY,
			boarder_id UUID NOT NULL REFERENCES boarders(id),
			meal_date DATE NOT NULL,
			slot TEXT NOT NULL CHECK (slot IN ('brunch', 'dinner')),
			status TEXT NOT NULL DEFAULT 'ON' CHECK (status IN ('ON', 'OFF')),
			served_by TEXT NOT NULL DEFAULT '',
			served_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (boarder_id, meal_date, slot)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meal_records_date_slot ON meal_records(meal_date, slot)`,

		`CREATE TABLE IF NOT EXISTS expenses (
			id SERIAL PRIMARY KEY,
			expense_date DATE NOT NULL,
			category TEXT NOT NULL,
			amount DECIMAL(12, 2) NOT NULL CHECK (amount >= 0),
			description TEXT NOT NULL DEFAULT '',
			receipt_file_id TEXT NOT NULL DEFAULT '',
			created_by BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(expense_date)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses(category)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id SERIAL PRIMARY KEY,
			boarder_id UUID NOT NULL REFERENCES boarders(id),
			amount DECIMAL(12, 2) NOT NULL CHECK (amount > 0),
			proof_ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'approved', 'rejected')),
			reviewed_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_boarder_id ON payments(boarder_id)`,

		`CREATE TABLE IF NOT EXISTS push_tokens (
			id SERIAL PRIMARY KEY,
			boarder_id UUID NOT NULL REFERENCES boarders(id),
			token TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_push_tokens_boarder_id ON push_tokens(boarder_id)`,

		`CREATE TABLE IF NOT EXISTS staff_members (
			id SERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL DEFAULT 0,
			username TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'staff' CHECK (role IN ('staff', 'manager')),
			granted_by BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_staff_members_user_id ON staff_members(user_id) WHERE user_id != 0`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_staff_members_username ON staff_members(LOWER(username)) WHERE username != ''`,
	}

	return InTx(ctx, db, func(tx pgx.Tx) error {
		for i, migration := range migrations {
			if _, err := tx.Exec(ctx, migration); err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
		}
		return nil
	})
}

// SeedManagers grants the manager role to the configured Telegram user IDs
// in one transaction. Existing grants are upgraded to manager.
func SeedManagers(ctx context.Context, db TxBeginner, userIDs []int64) error {
	return InTx(ctx, db, func(tx pgx.Tx) error {
		for _, id := range userIDs {
			if id == 0 {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO staff_members (user_id, role)
				VALUES ($1, 'manager')
				ON CONFLICT (user_id) WHERE user_id != 0
				DO UPDATE SET role = 'manager'
			`, id)
			if err != nil {
				return fmt.Errorf("failed to seed manager %d: %w", id, err)
			}
		}
		return nil
	})
}
