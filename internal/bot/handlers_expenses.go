package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/billing"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
)

// categoryList renders the accepted expense categories for usage hints.
func categoryList() string {
	names := make([]string, len(appmodels.ExpenseCategories))
	for i, c := range appmodels.ExpenseCategories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// handleExpense handles the /expense command.
func (b *Bot) handleExpense(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleExpenseCore(ctx, tgBot, update)
}

// handleExpenseCore records a mess expense dated today.
// Usage: /expense <amount> <category> [description].
func (b *Bot) handleExpenseCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	usage := "Usage: <code>/expense &lt;amount&gt; &lt;category&gt; [description]</code>\n\nCategories: " + categoryList()
	fields := strings.Fields(extractCommandArgs(update.Message.Text, "/expense"))
	if len(fields) < 2 {
		b.replyHTML(ctx, tg, chatID, usage)
		return
	}
	amount, err := parseAmount(fields[0])
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}
	category, err := appmodels.ParseExpenseCategory(fields[1])
	if err != nil {
		b.replyHTML(ctx, tg, chatID, "❌ Unknown category.\n\n"+usage)
		return
	}

	expense := &appmodels.Expense{
		Category:    category,
		Amount:      amount,
		Description: strings.Join(fields[2:], " "),
		CreatedBy:   update.Message.From.ID,
	}
	if err := b.billing.RecordExpense(ctx, expense); err != nil {
		if errors.Is(err, billing.ErrInvalidAmount) {
			b.reply(ctx, tg, chatID, "❌ "+err.Error())
			return
		}
		logger.Log.Error().Err(err).Msg("Failed to record expense")
		b.reply(ctx, tg, chatID, "❌ Failed to record the expense. Please try again.")
		return
	}

	logger.Log.Info().
		Int("expense_id", expense.ID).
		Str("category", string(expense.Category)).
		Str("amount", expense.Amount.StringFixed(2)).
		Str("description", logger.SanitizeDescription(expense.Description)).
		Str("user_hash", logger.HashUserID(expense.CreatedBy)).
		Msg("Expense recorded")
	b.replyHTML(ctx, tg, chatID, formatExpenseSaved(expense))
}

func formatExpenseSaved(e *appmodels.Expense) string {
	text := fmt.Sprintf("✅ Expense #%d recorded\n\n%s · %s · %s",
		e.ID, formatMoney(e.Amount), e.Category, formatDay(e.Date))
	if e.Description != "" {
		text += "\n" + escapeHTML(e.Description)
	}
	return text
}

// handleExpenses handles the /expenses command.
func (b *Bot) handleExpenses(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleExpensesCore(ctx, tgBot, update)
}

// handleExpensesCore lists a month's expenses with bucket totals.
// Usage: /expenses [YYYY-MM].
func (b *Bot) handleExpensesCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	month, err := parseMonthArg(extractCommandArgs(update.Message.Text, "/expenses"), b.meals.Today())
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	expenses, err := b.billing.MonthlyExpenses(ctx, month)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to load expenses")
		b.reply(ctx, tg, chatID, "❌ Failed to load expenses. Please try again.")
		return
	}
	if len(expenses) == 0 {
		b.reply(ctx, tg, chatID, fmt.Sprintf("📋 No expenses recorded for %s.", month.Format("January 2006")))
		return
	}

	b.replyHTML(ctx, tg, chatID, formatExpenseList(month.Format("January 2006"), expenses))
}

// maxListedExpenses caps the itemized part of /expenses; totals always
// cover the whole month.
const maxListedExpenses = 30

func formatExpenseList(title string, expenses []appmodels.Expense) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 <b>Expenses for %s</b>\n", title)

	for i, e := range expenses {
		if i == maxListedExpenses {
			fmt.Fprintf(&sb, "\n… and %d more", len(expenses)-maxListedExpenses)
			break
		}
		fmt.Fprintf(&sb, "\n#%d %s %s %s", e.ID, e.Date.Format("02 Jan"), formatMoney(e.Amount), e.Category)
		if e.Description != "" {
			fmt.Fprintf(&sb, " · %s", escapeHTML(e.Description))
		}
	}

	sb.WriteString("\n\n<b>By bucket:</b>")
	sum := decimal.Zero
	for _, bt := range billing.SumByBucket(expenses) {
		sum = sum.Add(bt.Amount)
		if bt.Amount.IsZero() {
			continue
		}
		fmt.Fprintf(&sb, "\n• %s: %s", bt.Name, formatMoney(bt.Amount))
	}
	fmt.Fprintf(&sb, "\n\n<b>Total: %s</b>", formatMoney(sum))
	return sb.String()
}

// handleStatement handles the /statement command.
func (b *Bot) handleStatement(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleStatementCore(ctx, tgBot, update)
}

// handleStatementCore sends the month's statement as a CSV document.
// Usage: /statement [YYYY-MM].
func (b *Bot) handleStatementCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !b.requireRole(ctx, tg, update, roleManager) {
		return
	}

	month, err := parseMonthArg(extractCommandArgs(update.Message.Text, "/statement"), b.meals.Today())
	if err != nil {
		b.reply(ctx, tg, chatID, "❌ "+err.Error())
		return
	}

	st, err := b.billing.MonthlyStatement(ctx, month)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to compute statement")
		b.reply(ctx, tg, chatID, "❌ Failed to compute the statement. Please try again.")
		return
	}

	data, err := billing.GenerateStatementCSV(st)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to generate statement CSV")
		b.reply(ctx, tg, chatID, "❌ Failed to generate the statement. Please try again.")
		return
	}

	caption := fmt.Sprintf("🧾 <b>Statement for %s</b>\n\nExpenditure: %s\nPayments in: %s\nDeficit: %s\nEST per boarder: %s\nBoarders: %d · Meals: %d",
		st.Month.Format("January 2006"),
		formatMoney(st.TotalExpenditure), formatMoney(st.TotalIncoming), formatMoney(st.Deficit),
		formatMoney(st.EST), st.ActiveBoarders, st.TotalMeals)

	_, err = tg.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:    chatID,
		Document:  &models.InputFileUpload{Filename: billing.StatementFilename(st), Data: bytes.NewReader(data)},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send statement document")
		b.reply(ctx, tg, chatID, "❌ Failed to send the statement. Please try again.")
		return
	}

	logger.Log.Info().
		Str("month", st.Month.Format("2006-01")).
		Int("boarders", st.ActiveBoarders).
		Msg("Statement exported")
}
