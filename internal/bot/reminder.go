package bot

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/reminder"
)

const (
	// SchedulerCheckInterval is how often the scheduler checks for due work.
	SchedulerCheckInterval = 5 * time.Minute
	// ReminderTimeout is the maximum time a single scheduler check can take.
	ReminderTimeout = 2 * time.Minute
)

// schedulerState remembers what already ran so a check repeated within the
// same hour does nothing.
type schedulerState struct {
	ensuredDay string
	pushedRun  string
	// reminded maps a Telegram user ID to the run it was reminded for.
	reminded map[int64]string
}

func newSchedulerState() *schedulerState {
	return &schedulerState{reminded: make(map[int64]string)}
}

// startSchedulerLoop materializes each day's meal records and sends the
// meal reminders at the policy hours.
func (b *Bot) startSchedulerLoop(ctx context.Context) {
	logger.Log.Info().
		Bool("reminders", b.cfg.RemindersEnabled && b.reminders != nil).
		Str("timezone", b.meals.Location().String()).
		Msg("Scheduler loop started")

	state := newSchedulerState()
	ticker := time.NewTicker(SchedulerCheckInterval)
	defer ticker.Stop()

	select {
	case <-ctx.Done():
		logger.Log.Info().Msg("Scheduler loop stopped")
		return
	default:
	}

	// Run one check immediately so a restart during a reminder hour still
	// sends it.
	b.runScheduledTasks(ctx, state, b.meals.Now())

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("Scheduler loop stopped")
			return
		case <-ticker.C:
			b.runScheduledTasks(ctx, state, b.meals.Now())
		}
	}
}

// runScheduledTasks does the work due at now. Failed steps are retried on
// the next check.
func (b *Bot) runScheduledTasks(ctx context.Context, state *schedulerState, now time.Time) {
	checkCtx, cancel := context.WithTimeout(ctx, ReminderTimeout)
	defer cancel()

	today := dates.Format(dates.Today(now, b.meals.Location()))
	if state.ensuredDay != today {
		if err := b.meals.EnsureDay(checkCtx, dates.Today(now, b.meals.Location())); err != nil {
			logger.Log.Error().Err(err).Str("date", today).Msg("Failed to create meal records for today")
		} else {
			state.ensuredDay = today
		}
	}

	if !b.cfg.RemindersEnabled || b.reminders == nil {
		return
	}
	rule, ok := b.reminders.Rule(now)
	if !ok {
		return
	}
	runKey := fmt.Sprintf("%s@%02d", today, rule.Hour)

	// Prune entries from earlier runs so the map doesn't grow unbounded.
	for uid, key := range state.reminded {
		if key != runKey {
			delete(state.reminded, uid)
		}
	}

	if state.pushedRun != runKey {
		if _, err := b.reminders.Run(checkCtx, now); err != nil {
			logger.Log.Error().Err(err).Str("run", runKey).Msg("Failed to send push reminders")
		} else {
			state.pushedRun = runKey
		}
	}

	b.sendTelegramReminders(checkCtx, state, runKey, dates.AddDays(dates.Today(now, b.meals.Location()), rule.DayOffset), rule.Slot)
}

// sendTelegramReminders messages every active boarder linked to Telegram
// with the status of their upcoming meal.
func (b *Bot) sendTelegramReminders(ctx context.Context, state *schedulerState, runKey string, day time.Time, slot models.Slot) {
	boarders, err := b.boarders.ListActive(ctx)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to fetch boarders for meal reminder")
		return
	}

	lock := ""
	if sp, err := b.meals.Policy().Slot(slot); err == nil {
		lock = sp.LockAt.String()
	}

	for _, boarder := range boarders {
		if boarder.TelegramUserID == nil {
			continue
		}
		userID := *boarder.TelegramUserID
		if state.reminded[userID] == runKey {
			continue
		}

		status, _, err := b.meals.Status(ctx, boarder.ID, day, slot)
		if err != nil {
			logger.Log.Warn().Err(err).Str("boarder_hash", logger.HashBoarderID(boarder.ID)).Msg("Failed to load meal status for reminder")
			continue
		}

		text := fmt.Sprintf("🍽️ %s, %s\n\n%s\n\nUse /meals to change it.",
			slot.Label(), formatDay(day), reminder.Text(slot, status, lock))

		_, err = b.messageSender.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: userID,
			Text:   text,
		})
		if err != nil {
			logger.Log.Warn().Err(err).Str("user_hash", logger.HashUserID(userID)).Msg("Failed to send meal reminder")
			continue
		}

		state.reminded[userID] = runKey
		logger.Log.Debug().Str("user_hash", logger.HashUserID(userID)).Msg("Sent meal reminder")
	}
}
