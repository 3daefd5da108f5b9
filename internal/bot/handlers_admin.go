package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
)

// extractAdminArgs extracts command arguments while preserving @username args.
// Unlike extractCommandArgs, it only strips the command word (and any bot mention
// attached to it), preserving @username as an argument rather than stripping it.
func extractAdminArgs(text string) string {
	parts := strings.SplitN(text, " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseStaffRole(s string) (appmodels.StaffRole, bool) {
	switch appmodels.StaffRole(strings.ToLower(s)) {
	case appmodels.RoleStaff:
		return appmodels.RoleStaff, true
	case appmodels.RoleManager:
		return appmodels.RoleManager, true
	}
	return "", false
}

// handleGrant handles the /grant command.
func (b *Bot) handleGrant(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleGrantCore(ctx, tgBot, update)
}

// handleGrantCore gives a user the staff or manager role.
// Usage: /grant <user_id|@username> <staff|manager>.
func (b *Bot) handleGrantCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	usage := "Usage: <code>/grant &lt;user_id&gt; &lt;staff|manager&gt;</code> or <code>/grant @username &lt;staff|manager&gt;</code>"
	fields := strings.Fields(extractAdminArgs(update.Message.Text))
	if len(fields) != 2 {
		b.replyHTML(ctx, tg, chatID, usage)
		return
	}
	role, ok := parseStaffRole(fields[1])
	if !ok {
		b.replyHTML(ctx, tg, chatID, "❌ Unknown role.\n\n"+usage)
		return
	}

	grantedBy := update.Message.From.ID
	if targetID, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
		if err := b.staff.Grant(ctx, targetID, "", role, grantedBy); err != nil {
			logger.Log.Error().Err(err).Str("target_hash", logger.HashUserID(targetID)).Msg("Failed to grant role")
			b.reply(ctx, tg, chatID, "Failed to grant role. Please try again.")
			return
		}
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("✅ User <code>%d</code> is now %s.", targetID, role))
		return
	}

	targetUsername := strings.TrimPrefix(fields[0], "@")
	if err := b.staff.GrantByUsername(ctx, targetUsername, role, grantedBy); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to grant role by username")
		b.reply(ctx, tg, chatID, "Failed to grant role. Please try again.")
		return
	}
	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("✅ User <code>@%s</code> is now %s.", escapeHTML(targetUsername), role))
}

// handleRevoke handles the /revoke command.
func (b *Bot) handleRevoke(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleRevokeCore(ctx, tgBot, update)
}

// handleRevokeCore removes a granted role. Managers from the config cannot
// be revoked here.
func (b *Bot) handleRevokeCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	args := extractAdminArgs(update.Message.Text)
	if args == "" || strings.Contains(args, " ") {
		b.replyHTML(ctx, tg, chatID, "Usage: <code>/revoke &lt;user_id&gt;</code> or <code>/revoke @username</code>")
		return
	}

	if targetID, err := strconv.ParseInt(args, 10, 64); err == nil {
		if b.cfg.IsManager(targetID, "") {
			b.reply(ctx, tg, chatID, "Configured managers cannot be revoked via bot commands.")
			return
		}
		if err := b.staff.Revoke(ctx, targetID); err != nil {
			logger.Log.Error().Err(err).Str("target_hash", logger.HashUserID(targetID)).Msg("Failed to revoke role")
			b.reply(ctx, tg, chatID, "Failed to revoke role. Please try again.")
			return
		}
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("User <code>%d</code> has been revoked.", targetID))
		return
	}

	targetUsername := strings.TrimPrefix(args, "@")
	if b.cfg.IsManager(0, targetUsername) {
		b.reply(ctx, tg, chatID, "Configured managers cannot be revoked via bot commands.")
		return
	}
	if err := b.staff.RevokeByUsername(ctx, targetUsername); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to revoke role by username")
		b.reply(ctx, tg, chatID, "Failed to revoke role. Please try again.")
		return
	}
	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("User <code>@%s</code> has been revoked.", escapeHTML(targetUsername)))
}

// handleStaff handles the /staff command.
func (b *Bot) handleStaff(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleStaffCore(ctx, tgBot, update)
}

// handleStaffCore lists configured managers and every granted role.
func (b *Bot) handleStaffCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Configured managers:</b>\n")
	for _, id := range b.cfg.ManagerUserIDs {
		fmt.Fprintf(&sb, "• <code>%d</code>\n", id)
	}
	for _, name := range b.cfg.ManagerUsernames {
		fmt.Fprintf(&sb, "• <code>@%s</code>\n", escapeHTML(name))
	}

	members, err := b.staff.GetAll(ctx)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to list staff")
		b.reply(ctx, tg, chatID, "Failed to load staff. Please try again.")
		return
	}

	sb.WriteString("\n<b>Granted roles:</b>\n")
	if len(members) == 0 {
		sb.WriteString("None\n")
	}
	for _, m := range members {
		who := fmt.Sprintf("<code>%d</code>", m.UserID)
		switch {
		case m.Username != "" && m.UserID != 0:
			who = fmt.Sprintf("<code>%d</code> (@%s)", m.UserID, escapeHTML(m.Username))
		case m.Username != "":
			who = fmt.Sprintf("<code>@%s</code> (not yet seen)", escapeHTML(m.Username))
		}
		fmt.Fprintf(&sb, "• %s: %s\n", who, m.Role)
	}

	b.replyHTML(ctx, tg, chatID, strings.TrimRight(sb.String(), "\n"))
}
