package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/mess-bot/internal/billing"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/payment"
)

// Expo tokens look like ExponentPushToken[xxxx] (older SDKs: ExpoPushToken[xxxx]).
var pushTokenPrefixes = []string{"ExponentPushToken[", "ExpoPushToken["}

func validPushToken(token string) bool {
	if !strings.HasSuffix(token, "]") {
		return false
	}
	for _, p := range pushTokenPrefixes {
		if strings.HasPrefix(token, p) && len(token) > len(p)+1 {
			return true
		}
	}
	return false
}

// handleBalance handles the /balance command.
func (b *Bot) handleBalance(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleBalanceCore(ctx, tgBot, update)
}

// handleBalanceCore shows the sender's row of this month's statement and
// their recent payments.
func (b *Bot) handleBalanceCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	boarder, ok := b.requireBoarder(ctx, tg, update)
	if !ok {
		return
	}

	st, err := b.billing.MonthlyStatement(ctx, b.meals.Today())
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to compute statement for balance")
		b.reply(ctx, tg, chatID, "❌ Failed to compute your balance. Please try again.")
		return
	}

	rowIdx := -1
	for i := range st.Rows {
		if st.Rows[i].BoarderID == boarder.ID {
			rowIdx = i
			break
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 <b>Balance for %s</b> (room %s)\n\n", st.Month.Format("January 2006"), escapeHTML(boarder.Room))
	if rowIdx < 0 {
		fmt.Fprintf(&sb, "Advance: %s\n", formatMoney(boarder.Advance))
	} else {
		r := st.Rows[rowIdx]
		fmt.Fprintf(&sb, "Meals so far: %d × %s%d = %s\n", r.Meals, appmodels.CurrencySymbol, billing.MealRate, formatMoney(r.MealCost))
		fmt.Fprintf(&sb, "Shared expenses (EST): %s\n", formatMoney(r.EST))
		fmt.Fprintf(&sb, "Advance: %s\n", formatMoney(r.Deposit))
		fmt.Fprintf(&sb, "<b>Due: %s</b>\n", formatMoney(r.Due))
	}

	history, err := b.payments.History(ctx, boarder.ID, 5)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to load payment history")
	} else if len(history) > 0 {
		sb.WriteString("\n<b>Recent payments:</b>\n")
		for _, p := range history {
			fmt.Fprintf(&sb, "• #%d %s %s (%s)\n", p.ID, p.CreatedAt.In(b.meals.Location()).Format("02 Jan"), formatMoney(p.Amount), p.Status)
		}
	}

	b.replyHTML(ctx, tg, chatID, strings.TrimRight(sb.String(), "\n"))
}

// handlePay handles the /pay command without a photo.
func (b *Bot) handlePay(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handlePayCore(ctx, tgBot, update)
}

// handlePayCore is the testable implementation of handlePay.
func (b *Bot) handlePayCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	b.submitPayment(ctx, tg, update, update.Message.Text, "")
}

// submitPayment reports a payment for manager review. text is the command
// text (or photo caption) and proofRef the Telegram file ID of the proof.
func (b *Bot) submitPayment(ctx context.Context, tg TelegramAPI, update *models.Update, text, proofRef string) {
	chatID := update.Message.Chat.ID

	boarder, ok := b.requireBoarder(ctx, tg, update)
	if !ok {
		return
	}

	args := extractCommandArgs(text, "/pay")
	if args == "" {
		b.replyHTML(ctx, tg, chatID, "Usage: <code>/pay &lt;amount&gt;</code>\nSend it as the caption of a photo to attach proof.")
		return
	}
	amount, err := parseAmount(args)
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	p, err := b.payments.Submit(ctx, boarder.ID, amount, proofRef)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidAmount) {
			b.reply(ctx, tg, chatID, "❌ "+err.Error())
			return
		}
		logger.Log.Error().Err(err).Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Failed to submit payment")
		b.reply(ctx, tg, chatID, "❌ Failed to record your payment. Please try again.")
		return
	}

	proof := ""
	if proofRef != "" {
		proof = " with proof"
	}
	b.replyHTML(ctx, tg, chatID, fmt.Sprintf("🧾 Payment #%d of %s recorded%s. A manager will review it soon.", p.ID, formatMoney(p.Amount), proof))
}

// handlePushToken handles the /pushtoken command.
func (b *Bot) handlePushToken(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handlePushTokenCore(ctx, tgBot, update)
}

// handlePushTokenCore registers an Expo token for meal reminders.
func (b *Bot) handlePushTokenCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	boarder, ok := b.requireBoarder(ctx, tg, update)
	if !ok {
		return
	}

	token := extractCommandArgs(update.Message.Text, "/pushtoken")
	if !validPushToken(token) {
		b.replyHTML(ctx, tg, chatID, "Usage: <code>/pushtoken ExponentPushToken[...]</code>")
		return
	}

	if err := b.tokens.Register(ctx, boarder.ID, token); err != nil {
		logger.Log.Error().Err(err).Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Failed to register push token")
		b.reply(ctx, tg, chatID, "❌ Failed to save your device. Please try again.")
		return
	}
	logger.Log.Info().
		Str("boarder_hash", logger.HashBoarderID(boarder.ID)).
		Str("token_hash", logger.HashPushToken(token)).
		Msg("Push token registered")
	b.reply(ctx, tg, chatID, "🔔 Reminders enabled for this device.")
}
