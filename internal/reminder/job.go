// Package reminder pushes the upcoming meal status to every boarder's
// devices at the reminder hours of the meal policy.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "gitlab.com/yelinaung/mess-bot/internal/reminder"

// Roster lists the active boarders.
type Roster interface {
	ListActive(ctx context.Context) ([]models.Boarder, error)
}

// MealReader lists one slot's records for a day.
type MealReader interface {
	ListForDay(ctx context.Context, day time.Time, slot models.Slot) ([]models.MealRecord, error)
}

// TokenStore reads device tokens and drops the ones Expo rejected.
type TokenStore interface {
	TokensByBoarder(ctx context.Context) (map[uuid.UUID][]string, error)
	Delete(ctx context.Context, tokens []string) (int, error)
}

// Result describes one run. A run outside the reminder hours has an empty
// Slot and zero counts.
type Result struct {
	Slot     models.Slot
	Date     time.Time
	Messages int
	Batches  int
	Failed   int
	Pruned   int
}

// Job builds and sends the reminder messages.
type Job struct {
	policy   meal.Policy
	loc      *time.Location
	boarders Roster
	meals    MealReader
	tokens   TokenStore
	sender   push.Sender

	sent metric.Int64Counter
}

// NewJob creates a reminder Job for the mess time zone loc.
func NewJob(policy meal.Policy, loc *time.Location, boarders Roster, meals MealReader, tokens TokenStore, sender push.Sender) *Job {
	if loc == nil {
		loc = time.Local
	}
	sent, err := otel.Meter(instrumentationName).Int64Counter(
		"mess.reminders.sent",
		metric.WithDescription("Reminder push messages accepted by the push service"),
	)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to create reminder counter")
	}
	return &Job{
		policy:   policy,
		loc:      loc,
		boarders: boarders,
		meals:    meals,
		tokens:   tokens,
		sender:   sender,
		sent:     sent,
	}
}

// Rule returns the reminder rule due at now, if any.
func (j *Job) Rule(now time.Time) (meal.ReminderRule, bool) {
	return j.policy.ReminderFor(now.In(j.loc).Hour())
}

// Run sends the reminder due at now. Batches are sent one after another and
// a failed batch is logged and counted without stopping the run. Loading
// the roster, records or tokens fails the whole run.
func (j *Job) Run(ctx context.Context, now time.Time) (Result, error) {
	rule, ok := j.Rule(now)
	if !ok {
		return Result{}, nil
	}
	day := dates.AddDays(dates.Today(now, j.loc), rule.DayOffset)
	res := Result{Slot: rule.Slot, Date: day}
	log := logger.For("reminder")

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "reminder.Run",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("slot", string(rule.Slot)),
			attribute.String("date", dates.Format(day)),
		),
	)
	defer span.End()

	messages, err := j.buildMessages(ctx, day, rule.Slot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build reminders")
		return res, err
	}
	res.Messages = len(messages)

	var unregistered []string
	for _, batch := range push.Batches(messages, push.MaxBatch) {
		res.Batches++
		out, err := j.sender.Send(ctx, batch)
		if err != nil {
			res.Failed++
			span.RecordError(err, trace.WithAttributes(attribute.Int("batch", res.Batches)))
			log.Error().
				Err(err).
				Int("batch", res.Batches).
				Int("size", len(batch)).
				Msg("Failed to send reminder batch")
			continue
		}
		unregistered = append(unregistered, out.Unregistered...)
		if j.sent != nil {
			j.sent.Add(ctx, int64(len(batch)-len(out.Errors)), metric.WithAttributes(attribute.String("slot", string(rule.Slot))))
		}
	}

	if len(unregistered) > 0 {
		n, err := j.tokens.Delete(ctx, unregistered)
		if err != nil {
			log.Warn().Err(err).Int("tokens", len(unregistered)).Msg("Failed to prune unregistered push tokens")
		}
		for _, token := range unregistered {
			log.Debug().Str("token_hash", logger.HashPushToken(token)).Msg("Pruned unregistered push token")
		}
		res.Pruned = n
	}

	log.Info().
		Str("slot", string(res.Slot)).
		Str("date", dates.Format(res.Date)).
		Int("messages", res.Messages).
		Int("batches", res.Batches).
		Int("failed", res.Failed).
		Int("pruned", res.Pruned).
		Msg("Reminder run finished")
	return res, nil
}

func (j *Job) buildMessages(ctx context.Context, day time.Time, slot models.Slot) ([]push.Message, error) {
	boarders, err := j.boarders.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list boarders: %w", err)
	}
	records, err := j.meals.ListForDay(ctx, day, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal records: %w", err)
	}
	tokens, err := j.tokens.TokensByBoarder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load push tokens: %w", err)
	}

	byBoarder := make(map[uuid.UUID]*models.MealRecord, len(records))
	for i := range records {
		byBoarder[records[i].BoarderID] = &records[i]
	}

	lock := ""
	if sp, err := j.policy.Slot(slot); err == nil {
		lock = sp.LockAt.String()
	}

	var messages []push.Message
	for _, b := range boarders {
		status := meal.ResolveStatus(byBoarder[b.ID])
		for _, token := range tokens[b.ID] {
			messages = append(messages, push.Message{
				To:    token,
				Title: fmt.Sprintf("%s on %s", slot.Label(), day.Format("Mon 02 Jan")),
				Body:  Text(slot, status, lock),
				Sound: "default",
				Data: map[string]string{
					"slot":   string(slot),
					"date":   dates.Format(day),
					"status": string(status),
				},
			})
		}
	}
	return messages, nil
}

// Text is the reminder body for a boarder whose meal is status.
func Text(slot models.Slot, status models.MealStatus, lock string) string {
	if status == models.MealOff {
		return fmt.Sprintf("Your %s is OFF. Turn it ON if you will eat.", slot)
	}
	if lock == "" {
		return fmt.Sprintf("Your %s is ON.", slot)
	}
	return fmt.Sprintf("Your %s is ON. Turn it OFF before %s if you will not eat.", slot, lock)
}
