package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
)

const mealCallbackPrefix = "meal:"

// mealCallbackData encodes a toggle button as meal:<date>:<slot>:<status>.
func mealCallbackData(day time.Time, slot appmodels.Slot, status appmodels.MealStatus) string {
	return fmt.Sprintf("%s%s:%s:%s", mealCallbackPrefix, dates.Format(day), slot, status)
}

// parseMealCallbackData reverses mealCallbackData.
func parseMealCallbackData(data string) (time.Time, appmodels.Slot, appmodels.MealStatus, error) {
	parts := strings.Split(strings.TrimPrefix(data, mealCallbackPrefix), ":")
	if len(parts) != 3 {
		return time.Time{}, "", "", fmt.Errorf("malformed meal callback %q", data)
	}
	day, err := dates.Parse(parts[0])
	if err != nil {
		return time.Time{}, "", "", err
	}
	slot, err := appmodels.ParseSlot(parts[1])
	if err != nil {
		return time.Time{}, "", "", err
	}
	status, err := appmodels.ParseMealStatus(parts[2])
	if err != nil {
		return time.Time{}, "", "", err
	}
	return day, slot, status, nil
}

func statusIcon(status appmodels.MealStatus) string {
	if status == appmodels.MealOn {
		return "🟢"
	}
	return "⚪"
}

func flip(status appmodels.MealStatus) appmodels.MealStatus {
	if status == appmodels.MealOn {
		return appmodels.MealOff
	}
	return appmodels.MealOn
}

// mealDayView renders a boarder's two slots for day with toggle buttons.
// Buttons are only offered for changes the lock policy currently allows.
func (b *Bot) mealDayView(ctx context.Context, boarder *appmodels.Boarder, day time.Time) (string, *models.InlineKeyboardMarkup, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🍽 <b>Meals for %s</b> (room %s)\n\n", formatDay(day), escapeHTML(boarder.Room))

	var row []models.InlineKeyboardButton
	for _, slot := range appmodels.Slots {
		status, rec, err := b.meals.Status(ctx, boarder.ID, day, slot)
		if err != nil {
			return "", nil, err
		}
		sp, _ := b.meals.Policy().Slot(slot)
		fmt.Fprintf(&sb, "%s %s: <b>%s</b>", statusIcon(status), slot.Label(), status)
		if rec != nil && rec.IsServed() {
			sb.WriteString(" (served)")
		} else if status == appmodels.MealOn {
			fmt.Fprintf(&sb, " (lock %s)", sp.LockAt)
		}
		sb.WriteString("\n")

		next := flip(status)
		if b.meals.CanToggle(day, slot, next) == nil {
			row = append(row, models.InlineKeyboardButton{
				Text:         fmt.Sprintf("Turn %s %s", strings.ToLower(slot.Label()), next),
				CallbackData: mealCallbackData(day, slot, next),
			})
		}
	}

	var kb *models.InlineKeyboardMarkup
	if len(row) > 0 {
		kb = &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
	}
	return sb.String(), kb, nil
}

// handleMeals handles the /meals command.
func (b *Bot) handleMeals(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleMealsCore(ctx, tgBot, update)
}

// handleMealsCore shows the sender's meals for a day. Usage: /meals [date].
func (b *Bot) handleMealsCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	boarder, ok := b.requireBoarder(ctx, tg, update)
	if !ok {
		return
	}

	day, err := parseDayArg(extractCommandArgs(update.Message.Text, "/meals"), b.meals.Today())
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	text, kb, err := b.mealDayView(ctx, boarder, day)
	if err != nil {
		logger.Log.Error().Err(err).Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Failed to load meals")
		b.reply(ctx, tg, chatID, "❌ Failed to load your meals. Please try again.")
		return
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := tg.SendMessage(ctx, params); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send meals")
	}
}

// handleOn handles the /on command.
func (b *Bot) handleOn(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleToggleCore(ctx, tgBot, update, "/on", appmodels.MealOn)
}

// handleOff handles the /off command.
func (b *Bot) handleOff(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleToggleCore(ctx, tgBot, update, "/off", appmodels.MealOff)
}

// handleToggleCore sets one slot. Usage: /on|/off <brunch|dinner> [date].
func (b *Bot) handleToggleCore(ctx context.Context, tg TelegramAPI, update *models.Update, command string, status appmodels.MealStatus) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	boarder, ok := b.requireBoarder(ctx, tg, update)
	if !ok {
		return
	}

	fields := strings.Fields(extractCommandArgs(update.Message.Text, command))
	if len(fields) == 0 || len(fields) > 2 {
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("Usage: <code>%s &lt;brunch|dinner&gt; [date]</code>", command))
		return
	}
	slot, err := appmodels.ParseSlot(fields[0])
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}
	dayArg := ""
	if len(fields) == 2 {
		dayArg = fields[1]
	}
	day, err := parseDayArg(dayArg, b.meals.Today())
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	if _, err := b.meals.Toggle(ctx, boarder.ID, day, slot, status); err != nil {
		logger.Log.Info().Err(err).
			Str("boarder_hash", logger.HashBoarderID(boarder.ID)).
			Str("slot", string(slot)).
			Msg("Meal toggle refused")
		b.reply(ctx, tg, chatID, b.describeMealError(err, slot))
		return
	}

	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("%s %s on %s is now <b>%s</b>.",
		statusIcon(status), slot.Label(), formatDay(day), status))
}

// handleMealCallback handles the toggle buttons under /meals.
func (b *Bot) handleMealCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleMealCallbackCore(ctx, tgBot, update)
}

// handleMealCallbackCore is the testable implementation of handleMealCallback.
func (b *Bot) handleMealCallbackCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	query := update.CallbackQuery
	if query == nil || query.Message.Message == nil {
		return
	}
	msg := query.Message.Message

	answer := func(text string, alert bool) {
		_, _ = tg.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            text,
			ShowAlert:       alert,
		})
	}

	day, slot, status, err := parseMealCallbackData(query.Data)
	if err != nil {
		answer("❌ Invalid action", false)
		return
	}

	boarder, err := b.boarders.GetByTelegramID(ctx, query.From.ID)
	if err != nil || !boarder.Active {
		answer("⛔ You are not a registered boarder", true)
		return
	}

	if _, err := b.meals.Toggle(ctx, boarder.ID, day, slot, status); err != nil {
		answer(b.describeMealError(err, slot), true)
		return
	}
	answer(fmt.Sprintf("%s is now %s", slot.Label(), status), false)

	text, kb, err := b.mealDayView(ctx, boarder, day)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to refresh meals view")
		return
	}
	params := &bot.EditMessageTextParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := tg.EditMessageText(ctx, params); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to edit meals view")
	}
}

// handleOnRange handles the /onrange command.
func (b *Bot) handleOnRange(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleRangeCore(ctx, tgBot, update, "/onrange", appmodels.MealOn)
}

// handleOffRange handles the /offrange command.
func (b *Bot) handleOffRange(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleRangeCore(ctx, tgBot, update, "/offrange", appmodels.MealOff)
}

// handleRangeCore applies status over a date range.
// Usage: /onrange|/offrange <start> <end> [brunch|dinner|both].
func (b *Bot) handleRangeCore(ctx context.Context, tg TelegramAPI, update *models.Update, command string, status appmodels.MealStatus) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	boarder, ok := b.requireBoarder(ctx, tg, update)
	if !ok {
		return
	}

	fields := strings.Fields(extractCommandArgs(update.Message.Text, command))
	if len(fields) < 2 || len(fields) > 3 {
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("Usage: <code>%s &lt;start&gt; &lt;end&gt; [brunch|dinner|both]</code>", command))
		return
	}
	today := b.meals.Today()
	start, err := parseDayArg(fields[0], today)
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}
	end, err := parseDayArg(fields[1], today)
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}
	selArg := ""
	if len(fields) == 3 {
		selArg = fields[2]
	}
	sel, err := meal.ParseSelection(selArg)
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	results, err := b.meals.SetRange(ctx, boarder.ID, start, end, sel, status)
	if err != nil {
		slot := appmodels.SlotBrunch
		if slots := sel.Slots(); len(slots) > 0 {
			slot = slots[0]
		}
		b.reply(ctx, tg, chatID, b.describeMealError(err, slot))
		return
	}

	b.replyHTML(ctx, tg, chatID, formatRangeResults(results, start, end, status))
}

// formatRangeResults summarizes a bulk update, listing each failed day-slot.
func formatRangeResults(results []meal.DayResult, start, end time.Time, status appmodels.MealStatus) string {
	var failed []meal.DayResult
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}

	var sb strings.Builder
	icon := "✅"
	if len(failed) > 0 {
		icon = "⚠️"
	}
	fmt.Fprintf(&sb, "%s %d of %d meals from %s to %s set <b>%s</b>.",
		icon, len(results)-len(failed), len(results), formatDay(start), formatDay(end), status)

	for _, r := range failed {
		fmt.Fprintf(&sb, "\n• %s %s: %s", formatDay(r.Date), r.Slot.Label(), escapeHTML(r.Err))
	}
	return sb.String()
}

// handleCount handles the /count command.
func (b *Bot) handleCount(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleCountCore(ctx, tgBot, update)
}

// handleCountCore counts the sender's ON meals. Usage: /count [start end],
// defaulting to the month so far.
func (b *Bot) handleCountCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	boarder, ok := b.requireBoarder(ctx, tg, update)
	if !ok {
		return
	}

	today := b.meals.Today()
	start, end := dates.MonthToDate(b.meals.Now(), b.meals.Location())

	fields := strings.Fields(extractCommandArgs(update.Message.Text, "/count"))
	switch len(fields) {
	case 0:
	case 2:
		var err error
		if start, err = parseDayArg(fields[0], today); err != nil {
			b.reply(ctx, tg, chatID, "❌ "+err.Error())
			return
		}
		if end, err = parseDayArg(fields[1], today); err != nil {
			b.reply(ctx, tg, chatID, "❌ "+err.Error())
			return
		}
	default:
		b.replyHTML(ctx, tg, chatID, "Usage: <code>/count [start end]</code>")
		return
	}

	n, err := b.meals.CountForBoarder(ctx, boarder.ID, start, end)
	if err != nil {
		b.reply(ctx, tg, chatID, b.describeMealError(err, appmodels.SlotBrunch))
		return
	}

	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("🔢 You had <b>%d</b> meals from %s to %s.", n, formatDay(start), formatDay(end)))
}
