// Package main is the entry point for the mess manager Telegram bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gitlab.com/yelinaung/mess-bot/internal/billing"
	"gitlab.com/yelinaung/mess-bot/internal/bot"
	"gitlab.com/yelinaung/mess-bot/internal/cache"
	"gitlab.com/yelinaung/mess-bot/internal/config"
	"gitlab.com/yelinaung/mess-bot/internal/database"
	"gitlab.com/yelinaung/mess-bot/internal/gemini"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	"gitlab.com/yelinaung/mess-bot/internal/payment"
	"gitlab.com/yelinaung/mess-bot/internal/push"
	"gitlab.com/yelinaung/mess-bot/internal/reminder"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
	"gitlab.com/yelinaung/mess-bot/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// remindTimeout bounds a one-shot reminder run started from cron.
const remindTimeout = 2 * time.Minute

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("mess-bot %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	logger.InitHashSalt()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		Exporter:       cfg.OTelExporter,
		Protocol:       cfg.OTLPProtocol,
		ServiceName:    "mess-bot",
		ServiceVersion: version,
	})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to set up telemetry")
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	if err := database.SeedManagers(ctx, pool, cfg.ManagerUserIDs); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to seed managers")
	}

	logger.Log.Info().Msg("Database initialized successfully")

	store, closeStore, err := openCacheStore(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Str("backend", cfg.CacheBackend).Msg("Failed to open cache store")
	}
	defer closeStore()

	app := wire(cfg, pool, cache.New(store))

	if len(os.Args) > 1 && os.Args[1] == "remind" {
		runReminderOnce(ctx, app.reminders)
		return
	}

	deps := app.deps
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel))
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Receipt OCR disabled")
		} else {
			deps.Receipts = client
		}
	}

	telegramBot, err := bot.New(cfg, deps)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to create bot")
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Log.Info().Msg("Shutting down...")
		cancel()
	}()

	telegramBot.Start(ctx)
}

type application struct {
	deps      bot.Deps
	reminders *reminder.Job
}

// wire builds the repositories and services on top of pool.
func wire(cfg *config.Config, pool *pgxpool.Pool, c *cache.Cache) application {
	loc := cfg.Location()

	boarders := repository.NewBoarderRepository(pool)
	meals := repository.NewMealRepository(pool)
	expenses := repository.NewExpenseRepository(pool)
	payments := repository.NewPaymentRepository(pool)
	tokens := repository.NewPushTokenRepository(pool)
	staff := repository.NewStaffRepository(pool)

	mealSvc := meal.NewService(meals, boarders, meal.DefaultPolicy, loc)
	expo := push.NewExpoClient(cfg.ExpoPushURL, cfg.ExpoAccessToken, 0)
	job := reminder.NewJob(meal.DefaultPolicy, loc, boarders, meals, tokens, expo)

	return application{
		deps: bot.Deps{
			Boarders:  boarders,
			Staff:     staff,
			Tokens:    tokens,
			Meals:     mealSvc,
			Billing:   billing.NewService(expenses, payments, boarders, mealSvc, c, loc),
			Payments:  payment.NewService(payments, boarders, c),
			Reminders: job,
			Cache:     c,
		},
		reminders: job,
	}
}

// openCacheStore opens the configured cache backend and returns a func
// releasing it.
func openCacheStore(cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return cache.NewRedisStore(client, ""), func() { _ = client.Close() }, nil
	case config.CacheSQLite:
		s, err := cache.OpenSQLiteStore(cfg.CacheSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return cache.NewMemoryStore(), func() {}, nil
	}
}

// runReminderOnce sends the reminder due now, for cron-driven deployments
// that run without the bot's scheduler.
func runReminderOnce(ctx context.Context, job *reminder.Job) {
	ctx, cancel := context.WithTimeout(ctx, remindTimeout)
	defer cancel()

	now := time.Now()
	if _, ok := job.Rule(now); !ok {
		logger.Log.Info().Int("hour", now.Hour()).Msg("No reminder due at this hour")
		return
	}
	res, err := job.Run(ctx, now)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Reminder run failed")
	}
	fmt.Printf("sent %d reminders for %s %s in %d batches (%d failed, %d tokens pruned)\n",
		res.Messages, res.Slot, res.Date.Format("2006-01-02"), res.Batches, res.Failed, res.Pruned)
}
