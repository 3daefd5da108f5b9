package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/push"
)

var messLoc = time.FixedZone("IST", 5*3600+1800)

type fakeRoster struct{ boarders []models.Boarder }

func (f fakeRoster) ListActive(context.Context) ([]models.Boarder, error) {
	return f.boarders, nil
}

type fakeMeals struct {
	records []models.MealRecord
	day     time.Time
	slot    models.Slot
}

func (f *fakeMeals) ListForDay(_ context.Context, day time.Time, slot models.Slot) ([]models.MealRecord, error) {
	f.day, f.slot = day, slot
	return f.records, nil
}

type fakeTokens struct {
	tokens  map[uuid.UUID][]string
	deleted []string
}

func (f *fakeTokens) TokensByBoarder(context.Context) (map[uuid.UUID][]string, error) {
	return f.tokens, nil
}

func (f *fakeTokens) Delete(_ context.Context, tokens []string) (int, error) {
	f.deleted = append(f.deleted, tokens...)
	return len(tokens), nil
}

type fakeSender struct {
	mu      sync.Mutex
	batches [][]push.Message
	// failBatch makes the n-th call (1-based) fail.
	failBatch    int
	unregistered map[string]bool
}

func (f *fakeSender) Send(_ context.Context, messages []push.Message) (*push.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, messages)
	if len(f.batches) == f.failBatch {
		return nil, errors.New("push service unavailable")
	}
	res := &push.Result{}
	for _, m := range messages {
		if f.unregistered[m.To] {
			res.Errors = append(res.Errors, push.TicketError{Token: m.To, Code: push.DeviceNotRegistered})
			res.Unregistered = append(res.Unregistered, m.To)
		}
	}
	return res, nil
}

func setup(boarders int, tokensEach int) (*Job, *fakeMeals, *fakeTokens, *fakeSender, []models.Boarder) {
	roster := make([]models.Boarder, boarders)
	tokens := &fakeTokens{tokens: make(map[uuid.UUID][]string)}
	for i := range roster {
		roster[i] = models.Boarder{ID: uuid.New(), Room: fmt.Sprint(100 + i), Active: true}
		for k := range tokensEach {
			tokens.tokens[roster[i].ID] = append(tokens.tokens[roster[i].ID], fmt.Sprintf("tok-%d-%d", i, k))
		}
	}
	meals := &fakeMeals{}
	sender := &fakeSender{unregistered: map[string]bool{}}
	job := NewJob(meal.DefaultPolicy, messLoc, fakeRoster{boarders: roster}, meals, tokens, sender)
	return job, meals, tokens, sender, roster
}

func TestRun_OutsideReminderHours(t *testing.T) {
	t.Parallel()

	job, _, _, sender, _ := setup(3, 1)
	res, err := job.Run(context.Background(), time.Date(2026, 3, 10, 9, 0, 0, 0, messLoc))
	require.NoError(t, err)
	require.Equal(t, Result{}, res)
	require.Empty(t, sender.batches)
}

func TestRun_DinnerToday(t *testing.T) {
	t.Parallel()

	job, meals, _, sender, roster := setup(3, 1)
	meals.records = []models.MealRecord{
		{BoarderID: roster[1].ID, Slot: models.SlotDinner, Status: models.MealOff},
	}

	res, err := job.Run(context.Background(), time.Date(2026, 3, 10, 15, 5, 0, 0, messLoc))
	require.NoError(t, err)
	require.Equal(t, models.SlotDinner, res.Slot)
	require.Equal(t, "2026-03-10", dates.Format(res.Date))
	require.Equal(t, "2026-03-10", dates.Format(meals.day))
	require.Equal(t, 3, res.Messages)
	require.Equal(t, 1, res.Batches)
	require.Zero(t, res.Failed)

	byToken := map[string]push.Message{}
	for _, m := range sender.batches[0] {
		byToken[m.To] = m
	}
	require.Equal(t, "ON", byToken["tok-0-0"].Data["status"])
	require.Equal(t, "OFF", byToken["tok-1-0"].Data["status"])
	require.Contains(t, byToken["tok-0-0"].Body, "17:00")
}

func TestRun_BrunchTomorrowAcrossUTCMidnight(t *testing.T) {
	t.Parallel()

	job, meals, _, _, _ := setup(1, 1)
	// 23:10 IST is 17:40 UTC on the same civil day.
	res, err := job.Run(context.Background(), time.Date(2026, 3, 10, 17, 40, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, models.SlotBrunch, res.Slot)
	require.Equal(t, "2026-03-11", dates.Format(res.Date))
	require.Equal(t, models.SlotBrunch, meals.slot)
}

func TestRun_BatchesAndFailures(t *testing.T) {
	t.Parallel()

	job, _, _, sender, _ := setup(125, 2)
	sender.failBatch = 2

	res, err := job.Run(context.Background(), time.Date(2026, 3, 10, 15, 0, 0, 0, messLoc))
	require.NoError(t, err)
	require.Equal(t, 250, res.Messages)
	require.Equal(t, 3, res.Batches)
	require.Equal(t, 1, res.Failed, "a failed batch does not stop the run")
	require.Len(t, sender.batches, 3)
	for _, b := range sender.batches {
		require.LessOrEqual(t, len(b), push.MaxBatch)
	}
}

func TestRun_PrunesUnregisteredTokens(t *testing.T) {
	t.Parallel()

	job, _, tokens, sender, _ := setup(2, 1)
	sender.unregistered["tok-1-0"] = true

	res, err := job.Run(context.Background(), time.Date(2026, 3, 10, 23, 0, 0, 0, messLoc))
	require.NoError(t, err)
	require.Equal(t, 1, res.Pruned)
	require.Equal(t, []string{"tok-1-0"}, tokens.deleted)
}

// Not parallel: it swaps the global logger.
func TestRun_LogsSummaryWithComponent(t *testing.T) {
	original := logger.Log
	defer func() { logger.Log = original }()

	var buf bytes.Buffer
	logger.Log = zerolog.New(&buf)

	job, _, _, _, _ := setup(2, 1)
	_, err := job.Run(context.Background(), time.Date(2026, 3, 10, 15, 0, 0, 0, messLoc))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "reminder", line["component"])
	require.Equal(t, "Reminder run finished", line["message"])
	require.Equal(t, "dinner", line["slot"])
	require.EqualValues(t, 2, line["messages"])
}

func TestText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Your dinner is ON. Turn it OFF before 17:00 if you will not eat.", Text(models.SlotDinner, models.MealOn, "17:00"))
	require.Equal(t, "Your brunch is OFF. Turn it ON if you will eat.", Text(models.SlotBrunch, models.MealOff, "05:00"))
	require.Equal(t, "Your brunch is ON.", Text(models.SlotBrunch, models.MealOn, ""))
}
