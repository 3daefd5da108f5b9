package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
)

// slotArgOrCurrent parses an optional slot argument. Without one, the slot
// being served now is used.
func (b *Bot) slotArgOrCurrent(arg string) (appmodels.Slot, error) {
	if arg != "" {
		return appmodels.ParseSlot(arg)
	}
	if slot, ok := b.meals.Policy().ServingSlot(b.meals.Now()); ok {
		return slot, nil
	}
	return "", errors.New("no meal is being served now, name the slot")
}

// handleServe handles the /serve command.
func (b *Bot) handleServe(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleServeCore(ctx, tgBot, update)
}

// handleServeCore lists the rooms still waiting for the slot being served.
func (b *Bot) handleServeCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleStaff) {
		return
	}

	slot, err := b.slotArgOrCurrent(extractCommandArgs(update.Message.Text, "/serve"))
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}
	if !b.meals.Policy().ServingOpen(b.meals.Now(), slot) {
		b.reply(ctx, tg, chatID, b.describeMealError(meal.ErrServingClosed, slot))
		return
	}

	servable, err := b.meals.ListServable(ctx, slot)
	if err != nil {
		logger.Log.Error().Err(err).Str("slot", string(slot)).Msg("Failed to list servable boarders")
		b.reply(ctx, tg, chatID, "❌ Failed to load the serving list. Please try again.")
		return
	}
	if len(servable) == 0 {
		b.reply(ctx, tg, chatID, fmt.Sprintf("✅ Everyone has been served %s.", strings.ToLower(slot.Label())))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🍛 <b>%s: %d to serve</b>\n", slot.Label(), len(servable))
	for _, bd := range servable {
		fmt.Fprintf(&sb, "\n• <b>%s</b> %s (%s)", escapeHTML(bd.Room), escapeHTML(bd.Name), bd.Preference)
	}
	fmt.Fprintf(&sb, "\n\nMark with <code>/served &lt;room&gt; %s</code>", slot)
	b.replyHTML(ctx, tg, chatID, sb.String())
}

// handleServed handles the /served command.
func (b *Bot) handleServed(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleServedCore(ctx, tgBot, update)
}

// handleServedCore marks a room's meal served. Usage: /served <room> [slot].
func (b *Bot) handleServedCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleStaff) {
		return
	}

	fields := strings.Fields(extractCommandArgs(update.Message.Text, "/served"))
	if len(fields) == 0 || len(fields) > 2 {
		b.replyHTML(ctx, tg, chatID, "Usage: <code>/served &lt;room&gt; [brunch|dinner]</code>")
		return
	}
	slotArg := ""
	if len(fields) == 2 {
		slotArg = fields[1]
	}
	slot, err := b.slotArgOrCurrent(slotArg)
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	boarder, err := b.boarders.GetByRoom(ctx, fields[0])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.replyHTML(ctx, tg, chatID, fmt.Sprintf("❌ No boarder in room <b>%s</b>.", escapeHTML(fields[0])))
			return
		}
		logger.Log.Error().Err(err).Msg("Failed to look up room")
		b.reply(ctx, tg, chatID, "❌ Failed to look up the room. Please try again.")
		return
	}

	if err := b.meals.MarkServed(ctx, boarder.ID, slot, staffName(update.Message.From)); err != nil {
		if errors.Is(err, meal.ErrServingClosed) || errors.Is(err, meal.ErrMealOff) {
			b.reply(ctx, tg, chatID, b.describeMealError(err, slot))
			return
		}
		logger.Log.Error().Err(err).Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Failed to mark meal served")
		b.reply(ctx, tg, chatID, "❌ Failed to mark the meal served. Please try again.")
		return
	}

	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("✅ %s served to room <b>%s</b> (%s).",
		slot.Label(), escapeHTML(boarder.Room), escapeHTML(boarder.Name)))
}

// handleHeadcount handles the /headcount command.
func (b *Bot) handleHeadcount(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleHeadcountCore(ctx, tgBot, update)
}

// handleHeadcountCore shows the kitchen headcount by preference.
// Usage: /headcount [slot] [date]; without a slot both are shown.
func (b *Bot) handleHeadcountCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleStaff) {
		return
	}

	slots := appmodels.Slots
	dayArg := ""
	for _, f := range strings.Fields(extractCommandArgs(update.Message.Text, "/headcount")) {
		if slot, err := appmodels.ParseSlot(f); err == nil {
			slots = []appmodels.Slot{slot}
			continue
		}
		dayArg = f
	}
	day, err := parseDayArg(dayArg, b.meals.Today())
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	// Today and tomorrow are materialized so untouched boarders are counted.
	// Later days are projected without writing rows.
	today := b.meals.Today()
	headcount := b.meals.Headcount
	switch {
	case day.After(dates.AddDays(today, 1)):
		headcount = b.meals.ProjectedHeadcount
	case !day.Before(today):
		if err := b.meals.EnsureDay(ctx, day); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to materialize day before headcount")
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👩‍🍳 <b>Headcount for %s</b>", formatDay(day))
	for _, slot := range slots {
		hc, err := headcount(ctx, day, slot)
		if err != nil {
			logger.Log.Error().Err(err).Str("slot", string(slot)).Msg("Failed to compute headcount")
			b.reply(ctx, tg, chatID, "❌ Failed to compute the headcount. Please try again.")
			return
		}
		sb.WriteString(formatHeadcount(hc))
	}
	b.replyHTML(ctx, tg, chatID, sb.String())
}

func formatHeadcount(hc *meal.Headcount) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n\n<b>%s: %d</b>", hc.Slot.Label(), hc.Total)
	for _, g := range hc.Groups {
		if g.Count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n• %s: %d", g.Preference, g.Count)
		names := make([]string, len(g.Names))
		for i, n := range g.Names {
			names[i] = escapeHTML(n)
		}
		fmt.Fprintf(&sb, "\n  %s", strings.Join(names, ", "))
	}
	return sb.String()
}
