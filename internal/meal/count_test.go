package meal

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

func TestCountOn(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, CountOn(nil))

	id := uuid.New()
	records := []models.MealRecord{
		{BoarderID: id, Status: models.MealOn},
		{BoarderID: id, Status: models.MealOff},
		{BoarderID: id, Status: models.MealOn},
	}
	require.Equal(t, 2, CountOn(records))
}

func TestCountForBoarder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := boarder("101", "Asha", models.PreferenceVeg)
	svc, _, _ := newTestService(at(2026, 3, 1, 9, 0), b)
	start := dates.AddDays(svc.Today(), 1)
	end := dates.AddDays(start, 2)

	n, err := svc.CountForBoarder(ctx, b.ID, start, end)
	require.NoError(t, err)
	require.Equal(t, 0, n, "no records means nothing billed")

	for _, d := range dates.Range(start, end) {
		require.NoError(t, svc.EnsureDay(ctx, d))
	}
	_, err = svc.Toggle(ctx, b.ID, start, models.SlotDinner, models.MealOff)
	require.NoError(t, err)

	n, err = svc.CountForBoarder(ctx, b.ID, start, end)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, err = svc.CountForBoarder(ctx, b.ID, end, start)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestCountsForPeriod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	asha := boarder("101", "Asha", models.PreferenceVeg)
	bala := boarder("102", "Bala", models.PreferenceNonVeg)
	svc, _, _ := newTestService(at(2026, 3, 1, 9, 0), asha, bala)
	day := dates.AddDays(svc.Today(), 1)

	require.NoError(t, svc.EnsureDay(ctx, day))
	_, err := svc.Toggle(ctx, bala.ID, day, models.SlotBrunch, models.MealOff)
	require.NoError(t, err)

	counts, err := svc.CountsForPeriod(ctx, day, day)
	require.NoError(t, err)
	require.Equal(t, 2, counts[asha.ID])
	require.Equal(t, 1, counts[bala.ID])
}

func TestGroupByPreference(t *testing.T) {
	t.Parallel()

	asha := boarder("101", "Asha", models.PreferenceVeg)
	bala := boarder("102", "Bala", models.PreferenceNonVeg)
	arun := boarder("103", "Arun", models.PreferenceVeg)
	gone := uuid.New()

	records := []models.MealRecord{
		{BoarderID: asha.ID, Status: models.MealOn},
		{BoarderID: bala.ID, Status: models.MealOff},
		{BoarderID: arun.ID, Status: models.MealOn},
		{BoarderID: gone, Status: models.MealOn},
	}

	groups := GroupByPreference([]models.Boarder{asha, bala, arun}, records)
	require.Len(t, groups, len(models.Preferences))
	require.Equal(t, models.PreferenceVeg, groups[0].Preference)
	require.Equal(t, 2, groups[0].Count)
	require.Equal(t, []string{"Arun", "Asha"}, groups[0].Names)

	total := 0
	for _, g := range groups {
		total += g.Count
	}
	require.Equal(t, 2, total, "unmatched and OFF records are skipped")
}

func TestHeadcount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	asha := boarder("101", "Asha", models.PreferenceVeg)
	bala := boarder("102", "Bala", models.PreferenceEgg)
	svc, _, _ := newTestService(at(2026, 3, 1, 9, 0), asha, bala)

	require.NoError(t, svc.EnsureDay(ctx, svc.Today()))

	hc, err := svc.Headcount(ctx, svc.Today(), models.SlotDinner)
	require.NoError(t, err)
	require.Equal(t, 2, hc.Total)
	require.Equal(t, models.SlotDinner, hc.Slot)
}

func TestProjectedHeadcount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	asha := boarder("101", "Asha", models.PreferenceVeg)
	bala := boarder("102", "Bala", models.PreferenceEgg)
	arun := boarder("103", "Arun", models.PreferenceVeg)
	svc, meals, _ := newTestService(at(2026, 3, 1, 9, 0), asha, bala, arun)
	day := dates.AddDays(svc.Today(), 10)

	_, err := svc.Toggle(ctx, bala.ID, day, models.SlotDinner, models.MealOff)
	require.NoError(t, err)
	written := len(meals.records)

	hc, err := svc.ProjectedHeadcount(ctx, day, models.SlotDinner)
	require.NoError(t, err)
	require.Equal(t, 2, hc.Total, "untouched boarders are projected ON")
	require.Equal(t, []string{"Arun", "Asha"}, hc.Groups[0].Names)
	require.Equal(t, written, len(meals.records), "projection writes nothing")

	stored, err := svc.Headcount(ctx, day, models.SlotDinner)
	require.NoError(t, err)
	require.Zero(t, stored.Total)
}
