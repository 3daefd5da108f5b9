package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/cache"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
)

// handleStart handles the /start command.
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleStartCore(ctx, tgBot, update)
}

// handleStartCore is the testable implementation of handleStart.
func (b *Bot) handleStartCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}

	firstName := ""
	if update.Message.From != nil {
		firstName = update.Message.From.FirstName
	}

	text := fmt.Sprintf(`👋 Welcome%s!

I keep track of your mess meals. Every meal is ON unless you turn it off before the lock time.

<b>Quick Start:</b>
• Register once: <code>/register 101 veg</code>
• See today's meals: /meals
• Skip tonight's dinner: <code>/off dinner</code>
• Going home for a week: <code>/offrange 2026-03-10 2026-03-16</code>

Use /help to see all available commands.`,
		formatGreeting(firstName))

	logger.Log.Debug().Str("chat_hash", logger.HashChatID(update.Message.Chat.ID)).Msg("Sending /start response")
	b.replyHTML(ctx, tg, update.Message.Chat.ID, text)
}

// handleHelp handles the /help command.
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleHelpCore(ctx, tgBot, update)
}

// handleHelpCore is the testable implementation of handleHelp. Staff and
// manager sections are only shown to users holding those roles.
func (b *Bot) handleHelpCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	brunch, _ := b.meals.Policy().Slot(appmodels.SlotBrunch)
	dinner, _ := b.meals.Policy().Slot(appmodels.SlotDinner)

	var sb strings.Builder
	fmt.Fprintf(&sb, `📚 <b>Available Commands</b>

<b>Meals:</b>
• <code>/meals [date]</code> - Show your meals for a day
• <code>/on &lt;brunch|dinner&gt; [date]</code> - Turn a meal on
• <code>/off &lt;brunch|dinner&gt; [date]</code> - Turn a meal off
• <code>/offrange &lt;start&gt; &lt;end&gt; [brunch|dinner|both]</code> - Turn meals off for a range
• <code>/onrange &lt;start&gt; &lt;end&gt; [brunch|dinner|both]</code> - Turn meals back on
• <code>/count [start end]</code> - Count your meals (default: this month)

<b>Account:</b>
• <code>/register &lt;room&gt; &lt;veg|non-veg|egg|fish&gt; [name]</code> - Join the mess
• <code>/balance</code> - Advance and dues this month
• <code>/pay &lt;amount&gt;</code> - Report a payment (send as a photo caption to attach proof)
• <code>/pushtoken &lt;token&gt;</code> - Get app reminders

Brunch locks at %s, dinner at %s. Turning a meal on is always allowed.`,
		brunch.LockAt, dinner.LockAt)

	r := b.roleOf(ctx, update.Message.From.ID, update.Message.From.Username)
	if r >= roleStaff {
		sb.WriteString(`

<b>Staff:</b>
• <code>/serve [brunch|dinner]</code> - Rooms still to be served
• <code>/served &lt;room&gt; [brunch|dinner]</code> - Mark a room served
• <code>/headcount [brunch|dinner] [date]</code> - Kitchen headcount`)
	}
	if r >= roleManager {
		sb.WriteString(`

<b>Manager:</b>
• <code>/expense &lt;amount&gt; &lt;category&gt; [description]</code> - Record an expense
• Send a receipt photo to record it automatically
• <code>/expenses [YYYY-MM]</code> - Month's expenses
• <code>/payments</code> - Pending payments
• <code>/approve &lt;#&gt;</code>, <code>/reject &lt;#&gt;</code> - Review a payment
• <code>/advance &lt;room&gt; &lt;+amount|-amount|=amount&gt;</code> - Adjust an advance
• <code>/deactivate &lt;room&gt;</code> - Remove a boarder
• <code>/statement [YYYY-MM]</code> - Monthly statement (CSV)
• <code>/chart [YYYY-MM]</code> - Expense chart
• <code>/grant &lt;user_id|@username&gt; &lt;staff|manager&gt;</code>, <code>/revoke &lt;user_id|@username&gt;</code>, <code>/staff</code>`)
	}

	b.replyHTML(ctx, tg, update.Message.Chat.ID, sb.String())
}

// handleRegister handles the /register command.
func (b *Bot) handleRegister(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleRegisterCore(ctx, tgBot, update)
}

// handleRegisterCore links the sender to a new boarder record.
// Usage: /register <room> <preference> [name].
func (b *Bot) handleRegisterCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	from := update.Message.From
	usage := "Usage: <code>/register &lt;room&gt; &lt;veg|non-veg|egg|fish&gt; [name]</code>"

	fields := strings.Fields(extractCommandArgs(update.Message.Text, "/register"))
	if len(fields) < 2 {
		b.replyHTML(ctx, tg, chatID, usage)
		return
	}

	room := strings.ToUpper(fields[0])
	if len(room) > appmodels.MaxRoomLength {
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("❌ Room must be at most %d characters.", appmodels.MaxRoomLength))
		return
	}
	pref, err := appmodels.ParsePreference(fields[1])
	if err != nil {
		b.replyHTML(ctx, tg, chatID, "❌ Unknown preference.\n\n"+usage)
		return
	}
	name := strings.TrimSpace(strings.Join(fields[2:], " "))
	if name == "" {
		name = strings.TrimSpace(from.FirstName + " " + from.LastName)
	}
	if name == "" {
		name = "Room " + room
	}

	if existing, err := b.boarders.GetByTelegramID(ctx, from.ID); err == nil {
		if !existing.Active {
			b.reply(ctx, tg, chatID, "⛔ Your account is inactive. Please contact the mess manager.")
			return
		}
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("ℹ️ You are already registered in room <b>%s</b>.", escapeHTML(existing.Room)))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(from.ID)).Msg("Failed to look up boarder")
		b.reply(ctx, tg, chatID, "❌ Failed to register. Please try again.")
		return
	}

	if occupant, err := b.boarders.GetByRoom(ctx, room); err == nil && occupant.Active {
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("⛔ Room <b>%s</b> is already taken.", escapeHTML(room)))
		return
	}

	userID := from.ID
	boarder := &appmodels.Boarder{
		TelegramUserID: &userID,
		Name:           name,
		Room:           room,
		Preference:     pref,
		Advance:        decimal.Zero,
		Active:         true,
	}
	if err := b.boarders.Create(ctx, boarder); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			b.replyHTML(ctx, tg, chatID, fmt.Sprintf("⛔ Room <b>%s</b> is already taken.", escapeHTML(room)))
			return
		}
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(from.ID)).Msg("Failed to create boarder")
		b.reply(ctx, tg, chatID, "❌ Failed to register. Please try again.")
		return
	}
	b.cache.InvalidateTags(ctx, cache.TagBoarders, cache.TagStats)

	if err := b.meals.EnsureDay(ctx, b.meals.Today()); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to create today's meals for new boarder")
	}

	logger.Log.Info().
		Str("boarder_hash", logger.HashBoarderID(boarder.ID)).
		Str("preference", string(pref)).
		Msg("Boarder registered")

	b.replyHTML(ctx, tg, chatID, fmt.Sprintf(
		"✅ Welcome to the mess, %s!\n\nRoom: <b>%s</b>\nPreference: %s\n\nAll your meals are ON by default. Use /meals to see them.",
		escapeHTML(name), escapeHTML(room), pref))
}
