package bot

import (
	"context"
	"errors"

	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
)

type role int

const (
	roleNone role = iota
	roleStaff
	roleManager
)

// roleOf resolves the highest role of a Telegram user. Managers named in
// the config always win; otherwise the staff table decides. A grant made
// by username is bound to the user ID the first time that user is seen.
func (b *Bot) roleOf(ctx context.Context, userID int64, username string) role {
	if b.cfg.IsManager(userID, username) {
		return roleManager
	}

	r := roleNone
	if b.cfg.IsStaff(userID) {
		r = roleStaff
	}
	if b.staff == nil {
		return r
	}

	granted, needsBackfill, err := b.staff.RoleOf(ctx, userID, username)
	if err != nil {
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(userID)).Msg("Failed to look up staff role")
		return r
	}
	if needsBackfill && username != "" {
		if err := b.staff.UpdateUserID(ctx, username, userID); err != nil {
			logger.Log.Warn().Err(err).Str("user_hash", logger.HashUserID(userID)).Msg("Failed to backfill staff user ID")
		}
	}

	switch granted {
	case appmodels.RoleManager:
		return roleManager
	case appmodels.RoleStaff:
		if r < roleStaff {
			r = roleStaff
		}
	}
	return r
}

// requireRole replies with a refusal and returns false when the sender of
// update lacks min.
func (b *Bot) requireRole(ctx context.Context, tg TelegramAPI, update *models.Update, minRole role) bool {
	userID := update.Message.From.ID
	if b.roleOf(ctx, userID, update.Message.From.Username) >= minRole {
		return true
	}

	logger.Log.Warn().Str("user_hash", logger.HashUserID(userID)).Msg("Blocked command for insufficient role")
	if minRole == roleManager {
		b.reply(ctx, tg, update.Message.Chat.ID, "⛔ Only managers can use this command.")
	} else {
		b.reply(ctx, tg, update.Message.Chat.ID, "⛔ Only mess staff can use this command.")
	}
	return false
}

// requireBoarder loads the boarder linked to the sender, replying with a
// hint to /register when there is none.
func (b *Bot) requireBoarder(ctx context.Context, tg TelegramAPI, update *models.Update) (*appmodels.Boarder, bool) {
	chatID := update.Message.Chat.ID
	boarder, err := b.boarders.GetByTelegramID(ctx, update.Message.From.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		b.replyHTML(ctx, tg, chatID, "👋 You are not registered yet. Use <code>/register &lt;room&gt; &lt;veg|non-veg|egg|fish&gt;</code> first.")
		return nil, false
	case err != nil:
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(update.Message.From.ID)).Msg("Failed to load boarder")
		b.reply(ctx, tg, chatID, "❌ Failed to load your profile. Please try again.")
		return nil, false
	case !boarder.Active:
		b.reply(ctx, tg, chatID, "⛔ Your account is inactive. Please contact the mess manager.")
		return nil, false
	}
	return boarder, true
}

// staffName is how a serving staff member is recorded on a meal.
func staffName(user *models.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	return "staff"
}
