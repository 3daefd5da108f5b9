package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
)

// commandOf returns the bare command name of text ("/on@messbot x" -> "on"),
// or "" when text is not a command.
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// matchCommand matches text messages whose command is exactly name.
func matchCommand(name string) bot.MatchFunc {
	return func(update *models.Update) bool {
		return update.Message != nil && commandOf(update.Message.Text) == name
	}
}

// extractCommandArgs strips the /command prefix (and optional @botname suffix)
// from a message and returns the remaining trimmed arguments.
func extractCommandArgs(text, command string) string {
	args := strings.TrimSpace(strings.TrimPrefix(text, command))
	if strings.HasPrefix(args, "@") {
		if spaceIdx := strings.Index(args, " "); spaceIdx != -1 {
			args = strings.TrimSpace(args[spaceIdx:])
		} else {
			args = ""
		}
	}
	return args
}

// escapeHTML escapes HTML special characters for safe interpolation in Telegram HTML messages.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// formatGreeting returns a greeting suffix with the user's name.
func formatGreeting(firstName string) string {
	if firstName == "" {
		return ""
	}
	return ", " + escapeHTML(firstName)
}

// formatMoney renders an amount with the mess currency symbol.
func formatMoney(d decimal.Decimal) string {
	return appmodels.CurrencySymbol + d.StringFixed(2)
}

// formatDay renders a civil day for messages, e.g. "Tue 10 Mar".
func formatDay(day time.Time) string {
	return day.Format("Mon 02 Jan")
}

// parseAmount parses a positive money amount, accepting a leading
// currency symbol and thousands separators.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), appmodels.CurrencySymbol)
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return d.Round(2), nil
}

// parseDayArg parses a date argument relative to today. It accepts
// YYYY-MM-DD, "today" and "tomorrow"; an empty argument means today.
func parseDayArg(s string, today time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "tomorrow":
		return dates.AddDays(today, 1), nil
	}
	day, err := dates.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return day, nil
}

// parseMonthArg parses an optional YYYY-MM argument, defaulting to today's month.
func parseMonthArg(s string, today time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		first, _ := dates.MonthRange(today)
		return first, nil
	}
	month, err := dates.ParseMonth(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, use YYYY-MM", s)
	}
	return month, nil
}

// describeMealError turns a meal service error into a message for the boarder.
func (b *Bot) describeMealError(err error, slot appmodels.Slot) string {
	switch {
	case errors.Is(err, meal.ErrToggleLocked):
		lock := ""
		if sp, perr := b.meals.Policy().Slot(slot); perr == nil {
			lock = " (locked at " + sp.LockAt.String() + ")"
		}
		return fmt.Sprintf("⛔ Too late to turn %s off for today%s.", strings.ToLower(slot.Label()), lock)
	case errors.Is(err, meal.ErrDateInPast):
		return "⛔ That date is in the past."
	case errors.Is(err, meal.ErrInvalidRange):
		return "❌ The end date must not be before the start date."
	case errors.Is(err, meal.ErrRangeTooLong):
		return fmt.Sprintf("❌ A range can cover at most %d days.", meal.MaxRangeDays)
	case errors.Is(err, meal.ErrNoSlotSelected):
		return "❌ Select brunch, dinner or both."
	case errors.Is(err, meal.ErrServingClosed):
		return fmt.Sprintf("⛔ %s is not being served right now.", slot.Label())
	case errors.Is(err, meal.ErrMealOff):
		return fmt.Sprintf("⛔ %s is OFF for this boarder.", slot.Label())
	default:
		return "❌ Something went wrong. Please try again."
	}
}

// reply sends a plain text message.
func (b *Bot) reply(ctx context.Context, tg TelegramAPI, chatID int64, text string) {
	_, err := tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		logger.Log.Error().Err(err).Str("chat_hash", logger.HashChatID(chatID)).Msg("Failed to send message")
	}
}

// replyHTML sends an HTML formatted message.
func (b *Bot) replyHTML(ctx context.Context, tg TelegramAPI, chatID int64, text string) {
	_, err := tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		logger.Log.Error().Err(err).Str("chat_hash", logger.HashChatID(chatID)).Msg("Failed to send message")
	}
}
