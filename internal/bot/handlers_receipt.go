package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/gemini"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
)

const (
	receiptCallbackPrefix = "receipt:"
	// maxPhotoBytes bounds a downloaded photo; Telegram photos are far smaller.
	maxPhotoBytes = 10 << 20
	// pendingReceiptTTL is how long an unconfirmed receipt can still be saved.
	pendingReceiptTTL = time.Hour
)

// pendingReceipt is a parsed receipt waiting for the manager to confirm it.
type pendingReceipt struct {
	expense   appmodels.Expense
	createdBy int64
	createdAt time.Time
}

// buildReceiptConfirmationKeyboard creates the inline keyboard for receipt confirmation.
func buildReceiptConfirmationKeyboard(key string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Save", CallbackData: receiptCallbackPrefix + "save:" + key},
				{Text: "❌ Cancel", CallbackData: receiptCallbackPrefix + "cancel:" + key},
			},
		},
	}
}

// storeReceipt keeps a pending receipt and drops expired ones.
func (b *Bot) storeReceipt(p *pendingReceipt) string {
	b.receiptsMu.Lock()
	defer b.receiptsMu.Unlock()

	for k, old := range b.pendingReceipts {
		if p.createdAt.Sub(old.createdAt) > pendingReceiptTTL {
			delete(b.pendingReceipts, k)
		}
	}
	key := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	b.pendingReceipts[key] = p
	return key
}

// takeReceipt removes and returns a pending receipt.
func (b *Bot) takeReceipt(key string) (*pendingReceipt, bool) {
	b.receiptsMu.Lock()
	defer b.receiptsMu.Unlock()

	p, ok := b.pendingReceipts[key]
	if ok {
		delete(b.pendingReceipts, key)
	}
	return p, ok
}

// downloadPhoto fetches a Telegram file by ID.
func (b *Bot) downloadPhoto(ctx context.Context, tg TelegramAPI, fileID string) ([]byte, error) {
	file, err := tg.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tg.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, errors.New("file too large")
	}
	return data, nil
}

// handlePhotoCore routes photo messages: a /pay caption attaches payment
// proof, anything else from a manager is read as a receipt.
func (b *Bot) handlePhotoCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil || update.Message.From == nil || len(update.Message.Photo) == 0 {
		return
	}

	msg := update.Message
	largestPhoto := msg.Photo[len(msg.Photo)-1]

	if commandOf(msg.Caption) == "pay" {
		b.submitPayment(ctx, tg, update, msg.Caption, largestPhoto.FileID)
		return
	}

	if b.roleOf(ctx, msg.From.ID, msg.From.Username) < roleManager {
		b.replyHTML(ctx, tg, msg.Chat.ID, "📎 To send payment proof, add the caption <code>/pay &lt;amount&gt;</code> to the photo.")
		return
	}
	b.handleReceiptCore(ctx, tg, update, largestPhoto.FileID)
}

// handleReceiptCore reads a receipt with Gemini and asks the manager to
// confirm the resulting expense.
func (b *Bot) handleReceiptCore(ctx context.Context, tg TelegramAPI, update *models.Update, fileID string) {
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	if b.receipts == nil {
		b.replyHTML(ctx, tg, chatID, "📷 Receipt OCR is not configured. Please add expenses manually using <code>/expense &lt;amount&gt; &lt;category&gt;</code>")
		return
	}

	b.reply(ctx, tg, chatID, "📷 Processing receipt...")

	imageBytes, err := b.downloadPhoto(ctx, tg, fileID)
	if err != nil {
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(userID)).Msg("Failed to download photo")
		b.reply(ctx, tg, chatID, "❌ Failed to download photo. Please try again.")
		return
	}

	data, err := b.receipts.ParseReceipt(ctx, imageBytes, "image/jpeg")
	if err != nil {
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(userID)).Msg("Failed to parse receipt")
		manual := "Please add it manually: <code>/expense &lt;amount&gt; &lt;category&gt;</code>"
		if errors.Is(err, gemini.ErrParseTimeout) {
			b.replyHTML(ctx, tg, chatID, "⏱️ Receipt processing timed out. "+manual)
			return
		}
		b.replyHTML(ctx, tg, chatID, "❌ Could not read this receipt. "+manual)
		return
	}
	if !data.HasAmount() {
		b.replyHTML(ctx, tg, chatID, "❌ No total found on this receipt. Please add it manually: <code>/expense &lt;amount&gt; &lt;category&gt;</code>")
		return
	}

	today := b.meals.Today()
	day := today
	if !data.Date.IsZero() {
		if d := dates.Day(data.Date); !d.After(today) {
			day = d
		}
	}

	p := &pendingReceipt{
		expense: appmodels.Expense{
			Date:          day,
			Category:      data.Category,
			Amount:        data.Amount,
			Description:   data.Description(),
			ReceiptFileID: fileID,
			CreatedBy:     userID,
		},
		createdBy: userID,
		createdAt: b.meals.Now(),
	}
	key := b.storeReceipt(p)

	logger.Log.Info().
		Str("user_hash", logger.HashUserID(userID)).
		Str("amount", data.Amount.String()).
		Str("category", string(data.Category)).
		Float64("confidence", data.Confidence).
		Msg("Receipt parsed")

	text := fmt.Sprintf("🧾 <b>Receipt read</b>\n\nAmount: %s\nCategory: %s\nDate: %s",
		formatMoney(p.expense.Amount), p.expense.Category, formatDay(day))
	if p.expense.Description != "" {
		text += "\n" + escapeHTML(p.expense.Description)
	}
	text += "\n\nSave this expense?"

	_, err = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: buildReceiptConfirmationKeyboard(key),
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send receipt confirmation")
	}
}

// handleReceiptCallback handles the Save/Cancel buttons of a parsed receipt.
func (b *Bot) handleReceiptCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleReceiptCallbackCore(ctx, tgBot, update)
}

// handleReceiptCallbackCore is the testable implementation of handleReceiptCallback.
func (b *Bot) handleReceiptCallbackCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	query := update.CallbackQuery
	if query == nil || query.Message.Message == nil {
		return
	}
	msg := query.Message.Message

	answer := func(text string) {
		_, _ = tg.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: query.ID, Text: text})
	}
	edit := func(text string) {
		_, err := tg.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			logger.Log.Error().Err(err).Msg("Failed to edit receipt message")
		}
	}

	action, key, ok := strings.Cut(strings.TrimPrefix(query.Data, receiptCallbackPrefix), ":")
	if !ok || (action != "save" && action != "cancel") {
		answer("❌ Invalid action")
		return
	}
	if b.roleOf(ctx, query.From.ID, query.From.Username) < roleManager {
		answer("⛔ Only managers can do this")
		return
	}

	p, found := b.takeReceipt(key)
	if !found {
		answer("This receipt has expired")
		edit("⌛ Receipt expired. Please send the photo again.")
		return
	}

	if action == "cancel" {
		answer("Cancelled")
		edit("❌ Receipt discarded.")
		return
	}

	expense := p.expense
	if err := b.billing.RecordExpense(ctx, &expense); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to save receipt expense")
		answer("❌ Failed to save")
		edit("❌ Failed to save the expense. Please add it with /expense.")
		return
	}
	answer("Saved")
	edit(formatExpenseSaved(&expense))
}
