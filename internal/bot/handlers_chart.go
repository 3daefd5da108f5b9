package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/mess-bot/internal/billing"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
)

// handleChart handles the /chart command to render the month's expense breakdown.
func (b *Bot) handleChart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleChartCore(ctx, tgBot, update)
}

// handleChartCore is the testable implementation of handleChart.
func (b *Bot) handleChartCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	month, err := parseMonthArg(extractCommandArgs(update.Message.Text, "/chart"), b.meals.Today())
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	st, err := b.billing.MonthlyStatement(ctx, month)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to compute statement for chart")
		b.reply(ctx, tg, chatID, "❌ Failed to generate chart. Please try again.")
		return
	}

	title := fmt.Sprintf("Mess expenses (%s)", st.Month.Format("January 2006"))
	chartData, err := billing.GenerateExpenseChart(st.Buckets, title)
	if err != nil {
		if errors.Is(err, billing.ErrNothingToChart) {
			b.reply(ctx, tg, chatID, fmt.Sprintf("📊 No expenses found for %s.", st.Month.Format("January 2006")))
			return
		}
		logger.Log.Error().Err(err).Msg("Failed to generate chart")
		b.reply(ctx, tg, chatID, "❌ Failed to generate chart. Please try again.")
		return
	}

	caption := fmt.Sprintf("📊 <b>%s</b>\n\nTotal: %s\nPayments in: %s\nDeficit: %s",
		title, formatMoney(st.TotalExpenditure), formatMoney(st.TotalIncoming), formatMoney(st.Deficit))

	_, err = tg.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:    chatID,
		Document:  &models.InputFileUpload{Filename: billing.ChartFilename(st), Data: bytes.NewReader(chartData)},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send chart document")
		b.reply(ctx, tg, chatID, "❌ Failed to send chart. Please try again.")
		return
	}

	logger.Log.Info().
		Str("month", st.Month.Format("2006-01")).
		Str("total", st.TotalExpenditure.String()).
		Msg("Chart generated successfully")
}
