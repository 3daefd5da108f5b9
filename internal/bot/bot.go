// Package bot provides the Telegram front-end of the mess: boarder meal
// toggles, staff serving and headcounts, and manager billing commands.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"gitlab.com/yelinaung/mess-bot/internal/billing"
	"gitlab.com/yelinaung/mess-bot/internal/cache"
	"gitlab.com/yelinaung/mess-bot/internal/config"
	"gitlab.com/yelinaung/mess-bot/internal/gemini"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/payment"
	"gitlab.com/yelinaung/mess-bot/internal/reminder"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// BoarderStore is the boarder persistence the bot needs.
type BoarderStore interface {
	Create(ctx context.Context, b *models.Boarder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Boarder, error)
	GetByTelegramID(ctx context.Context, userID int64) (*models.Boarder, error)
	GetByRoom(ctx context.Context, room string) (*models.Boarder, error)
	ListActive(ctx context.Context) ([]models.Boarder, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// StaffStore persists staff and manager grants.
type StaffStore interface {
	Grant(ctx context.Context, userID int64, username string, role models.StaffRole, grantedBy int64) error
	GrantByUsername(ctx context.Context, username string, role models.StaffRole, grantedBy int64) error
	RoleOf(ctx context.Context, userID int64, username string) (models.StaffRole, bool, error)
	Revoke(ctx context.Context, userID int64) error
	RevokeByUsername(ctx context.Context, username string) error
	UpdateUserID(ctx context.Context, username string, userID int64) error
	GetAll(ctx context.Context) ([]models.StaffMember, error)
}

// TokenRegistrar stores Expo push tokens.
type TokenRegistrar interface {
	Register(ctx context.Context, boarderID uuid.UUID, token string) error
}

// ReceiptParser extracts expense data from a receipt photo.
type ReceiptParser interface {
	ParseReceipt(ctx context.Context, imageBytes []byte, mimeType string) (*gemini.ReceiptData, error)
}

// Deps holds the services and stores the bot is built on.
type Deps struct {
	Boarders  BoarderStore
	Staff     StaffStore
	Tokens    TokenRegistrar
	Meals     *meal.Service
	Billing   *billing.Service
	Payments  *payment.Service
	Reminders *reminder.Job
	Cache     *cache.Cache
	// Receipts is optional; receipt OCR is disabled without it.
	Receipts ReceiptParser
}

// Bot wraps the Telegram bot with application dependencies.
type Bot struct {
	bot *bot.Bot
	cfg *config.Config

	boarders  BoarderStore
	staff     StaffStore
	tokens    TokenRegistrar
	meals     *meal.Service
	billing   *billing.Service
	payments  *payment.Service
	reminders *reminder.Job
	cache     *cache.Cache
	receipts  ReceiptParser

	httpClient    *http.Client
	messageSender TelegramAPI

	receiptsMu      sync.Mutex
	pendingReceipts map[string]*pendingReceipt
}

// New creates a new Bot instance.
func New(cfg *config.Config, deps Deps) (*Bot, error) {
	b := newBot(cfg, deps)

	opts := []bot.Option{
		bot.WithMiddlewares(b.logMiddleware),
		bot.WithDefaultHandler(b.defaultHandler),
	}

	telegramBot, err := bot.New(cfg.TelegramBotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b.bot = telegramBot
	b.messageSender = telegramBot
	b.registerHandlers()

	return b, nil
}

func newBot(cfg *config.Config, deps Deps) *Bot {
	return &Bot{
		cfg:             cfg,
		boarders:        deps.Boarders,
		staff:           deps.Staff,
		tokens:          deps.Tokens,
		meals:           deps.Meals,
		billing:         deps.Billing,
		payments:        deps.Payments,
		reminders:       deps.Reminders,
		cache:           deps.Cache,
		receipts:        deps.Receipts,
		httpClient:      &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		pendingReceipts: make(map[string]*pendingReceipt),
	}
}

// Start runs the scheduler and begins polling for updates. It blocks
// until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	go b.startSchedulerLoop(ctx)

	logger.Log.Info().Msg("Bot started polling")
	b.bot.Start(ctx)
}

// registerHandlers sets up command and callback handlers.
func (b *Bot) registerHandlers() {
	text := func(command string, h bot.HandlerFunc) {
		b.bot.RegisterHandlerMatchFunc(matchCommand(command), h)
	}

	text("start", b.handleStart)
	text("help", b.handleHelp)
	text("register", b.handleRegister)

	text("meals", b.handleMeals)
	text("on", b.handleOn)
	text("off", b.handleOff)
	text("onrange", b.handleOnRange)
	text("offrange", b.handleOffRange)
	text("count", b.handleCount)
	text("pay", b.handlePay)
	text("balance", b.handleBalance)
	text("pushtoken", b.handlePushToken)

	text("serve", b.handleServe)
	text("served", b.handleServed)
	text("headcount", b.handleHeadcount)

	text("expense", b.handleExpense)
	text("expenses", b.handleExpenses)
	text("payments", b.handlePayments)
	text("approve", b.handleApprove)
	text("reject", b.handleReject)
	text("advance", b.handleAdvance)
	text("deactivate", b.handleDeactivate)
	text("statement", b.handleStatement)
	text("chart", b.handleChart)

	text("grant", b.handleGrant)
	text("revoke", b.handleRevoke)
	text("staff", b.handleStaff)

	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, mealCallbackPrefix, bot.MatchTypePrefix, b.handleMealCallback)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, receiptCallbackPrefix, bot.MatchTypePrefix, b.handleReceiptCallback)
}

// logMiddleware logs every update with hashed identifiers.
func (b *Bot) logMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
		userID := extractUserID(update)
		if userID == 0 {
			return
		}
		logUserAction(userID, update)
		next(ctx, tgBot, update)
	}
}

// logUserAction logs the user's input/action. Message text may contain
// names and amounts, so it is sanitized first.
func logUserAction(userID int64, update *tgmodels.Update) {
	switch {
	case update.Message != nil:
		msg := update.Message
		event := logger.Log.Info().
			Str("user_hash", logger.HashUserID(userID)).
			Str("chat_hash", logger.HashChatID(msg.Chat.ID))

		if msg.Text != "" {
			event = event.Str("text", logger.SanitizeText(msg.Text))
		}
		if len(msg.Photo) > 0 {
			event = event.Str("type", "photo")
		}

		event.Msg("User input")

	case update.CallbackQuery != nil:
		logger.Log.Info().
			Str("user_hash", logger.HashUserID(userID)).
			Str("data", update.CallbackQuery.Data).
			Msg("Callback query")
	}
}

// extractUsername gets the username from the update.
func extractUsername(update *tgmodels.Update) string {
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From.Username
	}
	if update.CallbackQuery != nil {
		return update.CallbackQuery.From.Username
	}
	return ""
}

// extractUserID gets the user ID from various update types.
func extractUserID(update *tgmodels.Update) int64 {
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From.ID
	}
	if update.CallbackQuery != nil {
		return update.CallbackQuery.From.ID
	}
	return 0
}

// defaultHandler routes photos and answers anything unrecognized.
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.defaultHandlerCore(ctx, tgBot, update)
}

func (b *Bot) defaultHandlerCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}

	if len(update.Message.Photo) > 0 {
		b.handlePhotoCore(ctx, tg, update)
		return
	}

	logger.Log.Debug().
		Str("chat_hash", logger.HashChatID(update.Message.Chat.ID)).
		Msg("Default handler triggered")

	b.reply(ctx, tg, update.Message.Chat.ID, "I didn't understand that. Use /help to see available commands.")
}
