package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/cache"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
)

// roomOf returns "room (name)" of a boarder for manager listings.
func (b *Bot) roomOf(ctx context.Context, p *appmodels.Payment) string {
	boarder, err := b.boarders.GetByID(ctx, p.BoarderID)
	if err != nil {
		return "unknown boarder"
	}
	return fmt.Sprintf("%s (%s)", escapeHTML(boarder.Room), escapeHTML(boarder.Name))
}

// handlePayments handles the /payments command.
func (b *Bot) handlePayments(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handlePaymentsCore(ctx, tgBot, update)
}

// handlePaymentsCore lists the payments waiting for review.
func (b *Bot) handlePaymentsCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	pending, err := b.payments.ListPending(ctx)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to list pending payments")
		b.reply(ctx, tg, chatID, "❌ Failed to load payments. Please try again.")
		return
	}
	if len(pending) == 0 {
		b.reply(ctx, tg, chatID, "✅ No payments waiting for review.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🧾 <b>%d pending payments</b>\n", len(pending))
	for i := range pending {
		p := &pending[i]
		proof := ""
		if p.ProofRef != "" {
			proof = " 📎"
		}
		fmt.Fprintf(&sb, "\n#%d %s · %s · %s%s",
			p.ID, b.roomOf(ctx, p), formatMoney(p.Amount),
			p.CreatedAt.In(b.meals.Location()).Format("02 Jan 15:04"), proof)
	}
	sb.WriteString("\n\nReview with <code>/approve &lt;#&gt;</code> or <code>/reject &lt;#&gt;</code>")
	b.replyHTML(ctx, tg, chatID, sb.String())
}

// handleApprove handles the /approve command.
func (b *Bot) handleApprove(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleReviewCore(ctx, tgBot, update, "/approve", true)
}

// handleReject handles the /reject command.
func (b *Bot) handleReject(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleReviewCore(ctx, tgBot, update, "/reject", false)
}

// handleReviewCore approves or rejects a pending payment and tells the
// boarder. Usage: /approve|/reject <payment#>.
func (b *Bot) handleReviewCore(ctx context.Context, tg TelegramAPI, update *models.Update, command string, approve bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	args := strings.TrimPrefix(extractCommandArgs(update.Message.Text, command), "#")
	id, err := strconv.Atoi(args)
	if err != nil || id <= 0 {
		b.replyHTML(ctx, tg, chatID, fmt.Sprintf("Usage: <code>%s &lt;payment#&gt;</code>", command))
		return
	}

	reviewer := update.Message.From.ID
	var p *appmodels.Payment
	if approve {
		p, err = b.payments.Approve(ctx, id, reviewer)
	} else {
		p, err = b.payments.Reject(ctx, id, reviewer)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		b.reply(ctx, tg, chatID, fmt.Sprintf("❌ Payment #%d not found.", id))
		return
	case errors.Is(err, repository.ErrConflict):
		b.reply(ctx, tg, chatID, fmt.Sprintf("ℹ️ Payment #%d was already reviewed.", id))
		return
	case err != nil:
		logger.Log.Error().Err(err).Int("payment_id", id).Bool("approve", approve).Msg("Failed to review payment")
		b.reply(ctx, tg, chatID, fmt.Sprintf("❌ Failed to review payment #%d. Please try again.", id))
		return
	}

	verb := "rejected"
	if approve {
		verb = "approved"
	}
	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("✅ Payment #%d of %s from %s %s.", p.ID, formatMoney(p.Amount), b.roomOf(ctx, p), verb))
	b.notifyBoarder(ctx, tg, p.BoarderID, fmt.Sprintf("🧾 Your payment #%d of %s was %s.", p.ID, formatMoney(p.Amount), verb))
}

// handleAdvance handles the /advance command.
func (b *Bot) handleAdvance(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleAdvanceCore(ctx, tgBot, update)
}

// handleAdvanceCore changes a boarder's advance. Usage:
// /advance <room> <+amount|-amount|=amount>; a bare amount adds.
func (b *Bot) handleAdvanceCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	usage := "Usage: <code>/advance &lt;room&gt; &lt;+amount|-amount|=amount&gt;</code>"
	fields := strings.Fields(extractCommandArgs(update.Message.Text, "/advance"))
	if len(fields) != 2 {
		b.replyHTML(ctx, tg, chatID, usage)
		return
	}

	op, raw := byte('+'), fields[1]
	if raw[0] == '+' || raw[0] == '-' || raw[0] == '=' {
		op, raw = raw[0], raw[1:]
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil || amount.IsNegative() {
		b.replyHTML(ctx, tg, chatID, "❌ Invalid amount.\n\n"+usage)
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

	var balance decimal.Decimal
	switch op {
	case '=':
		err = b.payments.SetAdvance(ctx, boarder.ID, amount)
		balance = amount
	case '-':
		balance, err = b.payments.AdjustAdvance(ctx, boarder.ID, amount.Neg())
	default:
		balance, err = b.payments.AdjustAdvance(ctx, boarder.ID, amount)
	}
	if err != nil {
		logger.Log.Error().Err(err).Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Failed to change advance")
		b.reply(ctx, tg, chatID, "❌ Failed to change the advance. Please try again.")
		return
	}

	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("✅ Advance of room <b>%s</b> is now %s.", escapeHTML(boarder.Room), formatMoney(balance)))
}

// handleDeactivate handles the /deactivate command.
func (b *Bot) handleDeactivate(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleDeactivateCore(ctx, tgBot, update)
}

// handleDeactivateCore marks a room's boarder inactive. Usage: /deactivate <room>.
func (b *Bot) handleDeactivateCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	room := extractCommandArgs(update.Message.Text, "/deactivate")
	if room == "" || strings.ContainsAny(room, " \t") {
		b.replyHTML(ctx, tg, chatID, "Usage: <code>/deactivate &lt;room&gt;</code>")
		return
	}

	boarder, err := b.boarders.GetByRoom(ctx, room)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.replyHTML(ctx, tg, chatID, fmt.Sprintf("❌ No boarder in room <b>%s</b>.", escapeHTML(room)))
			return
		}
		logger.Log.Error().Err(err).Msg("Failed to look up room")
		b.reply(ctx, tg, chatID, "❌ Failed to look up the room. Please try again.")
		return
	}

	if err := b.boarders.Deactivate(ctx, boarder.ID); err != nil {
		logger.Log.Error().Err(err).Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Failed to deactivate boarder")
		b.reply(ctx, tg, chatID, "❌ Failed to deactivate the boarder. Please try again.")
		return
	}
	b.cache.InvalidateTags(ctx, cache.TagBoarders, cache.TagStats)

	logger.Log.Info().Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Boarder deactivated")
	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("✅ %s (room <b>%s</b>) is no longer active.", escapeHTML(boarder.Name), escapeHTML(boarder.Room)))
}

// notifyBoarder sends text to the boarder's Telegram chat when one is linked.
// Failures are logged only.
func (b *Bot) notifyBoarder(ctx context.Context, tg TelegramAPI, boarderID uuid.UUID, text string) {
	boarder, err := b.boarders.GetByID(ctx, boarderID)
	if err != nil || boarder.TelegramUserID == nil {
		return
	}
	_, err = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *boarder.TelegramUserID,
		Text:   text,
	})
	if err != nil {
		logger.Log.Warn().Err(err).Str("boarder_hash", logger.HashBoarderID(boarderID)).Msg("Failed to notify boarder")
	}
}
