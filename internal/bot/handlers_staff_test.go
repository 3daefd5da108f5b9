package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/mess-bot/internal/bot/mocks"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
)

func TestHandleServeCore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*Bot, *testEnv) {
		t.Helper()
		b, env := setupTestBot(t, testTime(2026, 3, 10, 20, 30))
		today := b.meals.Today()

		env.boarders.add("101", "Asha", appmodels.PreferenceVeg, 0)
		off := env.boarders.add("102", "Ravi", appmodels.PreferenceNonVeg, 0)
		served := env.boarders.add("103", "Meera", appmodels.PreferenceFish, 0)

		_, err := env.meals.CreateIfMissing(ctx, off.ID, today, appmodels.SlotDinner, appmodels.MealOff)
		require.NoError(t, err)
		require.NoError(t, b.meals.MarkServed(ctx, served.ID, appmodels.SlotDinner, "@cook"))
		return b, env
	}

	t.Run("boarders cannot use it", func(t *testing.T) {
		t.Parallel()
		b, _ := setup(t)
		mockBot := mocks.NewMockBot()

		b.handleServeCore(ctx, mockBot, mocks.CommandUpdate(testChatID, testBoarderID, "/serve"))

		require.Equal(t, "⛔ Only mess staff can use this command.", mockBot.LastSentMessage().Text)
	})

	t.Run("lists rooms still to serve in the open slot", func(t *testing.T) {
		t.Parallel()
		b, _ := setup(t)
		mockBot := mocks.NewMockBot()

		b.handleServeCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/serve"))

		text := mockBot.LastSentMessage().Text
		require.Contains(t, text, "Dinner: 1 to serve")
		require.Contains(t, text, "<b>101</b> Asha (veg)")
		require.NotContains(t, text, "102")
		require.NotContains(t, text, "103")
	})

	t.Run("closed slot", func(t *testing.T) {
		t.Parallel()
		b, _ := setup(t)
		mockBot := mocks.NewMockBot()

		b.handleServeCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/serve brunch"))

		require.Equal(t, "⛔ Brunch is not being served right now.", mockBot.LastSentMessage().Text)
	})

	t.Run("no slot outside serving hours", func(t *testing.T) {
		t.Parallel()
		b, env := setup(t)
		env.clock.Set(testTime(2026, 3, 10, 15, 0))
		mockBot := mocks.NewMockBot()

		b.handleServeCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/serve"))

		require.Contains(t, mockBot.LastSentMessage().Text, "no meal is being served now")
	})

	t.Run("granted staff can serve", func(t *testing.T) {
		t.Parallel()
		b, env := setup(t)
		require.NoError(t, env.staff.Grant(ctx, 555, "", appmodels.RoleStaff, testManagerID))
		mockBot := mocks.NewMockBot()

		b.handleServeCore(ctx, mockBot, mocks.CommandUpdate(555, 555, "/serve dinner"))

		require.Contains(t, mockBot.LastSentMessage().Text, "1 to serve")
	})

	t.Run("username grant is bound on first use", func(t *testing.T) {
		t.Parallel()
		b, env := setup(t)
		require.NoError(t, env.staff.GrantByUsername(ctx, "cook", appmodels.RoleStaff, testManagerID))
		mockBot := mocks.NewMockBot()

		update := mocks.NewUpdateBuilder().
			WithMessage(556, 556, "/serve").
			WithFrom(556, "cook", "Cook", "").
			Build()
		b.handleServeCore(ctx, mockBot, update)

		require.Contains(t, mockBot.LastSentMessage().Text, "1 to serve")
		members, err := env.staff.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, members, 1)
		require.Equal(t, int64(556), members[0].UserID)
	})
}

func TestHandleServedCore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b, env := setupTestBot(t, testTime(2026, 3, 10, 20, 30))
	today := b.meals.Today()
	asha := env.boarders.add("101", "Asha", appmodels.PreferenceVeg, 0)
	ravi := env.boarders.add("102", "Ravi", appmodels.PreferenceNonVeg, 0)
	_, err := env.meals.CreateIfMissing(ctx, ravi.ID, today, appmodels.SlotDinner, appmodels.MealOff)
	require.NoError(t, err)

	t.Run("marks the meal served", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleServedCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/served 101"))

		require.Equal(t, "✅ Dinner served to room <b>101</b> (Asha).", mockBot.LastSentMessage().Text)
		rec, err := env.meals.Get(ctx, asha.ID, today, appmodels.SlotDinner)
		require.NoError(t, err)
		require.Equal(t, "@testuser", rec.ServedBy)
		require.NotNil(t, rec.ServedAt)
	})

	t.Run("serving twice keeps the first marker", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		update := mocks.NewUpdateBuilder().
			WithMessage(testManagerID, testManagerID, "/served 101 dinner").
			WithFrom(testManagerID, "boss", "Boss", "").
			Build()
		b.handleServedCore(ctx, mockBot, update)

		require.Contains(t, mockBot.LastSentMessage().Text, "served to room")
		rec, err := env.meals.Get(ctx, asha.ID, today, appmodels.SlotDinner)
		require.NoError(t, err)
		require.Equal(t, "@testuser", rec.ServedBy)
	})

	t.Run("meal off", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleServedCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/served 102"))
		require.Equal(t, "⛔ Dinner is OFF for this boarder.", mockBot.LastSentMessage().Text)
	})

	t.Run("unknown room", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleServedCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/served 999"))
		require.Contains(t, mockBot.LastSentMessage().Text, "No boarder in room <b>999</b>")
	})

	t.Run("closed slot", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleServedCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/served 101 brunch"))
		require.Contains(t, mockBot.LastSentMessage().Text, "not being served")
	})

	t.Run("everyone served", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleServeCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/serve"))
		require.Equal(t, "✅ Everyone has been served dinner.", mockBot.LastSentMessage().Text)
	})

	t.Run("usage", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleServedCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/served"))
		require.Contains(t, mockBot.LastSentMessage().Text, "Usage")
	})
}

func TestHandleHeadcountCore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b, env := setupTestBot(t, testTime(2026, 3, 10, 9, 0))
	env.boarders.add("101", "Asha", appmodels.PreferenceVeg, 0)
	env.boarders.add("103", "Meera", appmodels.PreferenceVeg, 0)
	ravi := env.boarders.add("102", "Ravi", appmodels.PreferenceNonVeg, 0)
	_, err := b.meals.Toggle(ctx, ravi.ID, b.meals.Today(), appmodels.SlotDinner, appmodels.MealOff)
	require.NoError(t, err)

	t.Run("single slot", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleHeadcountCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/headcount dinner"))

		text := mockBot.LastSentMessage().Text
		require.Contains(t, text, "Headcount for Tue 10 Mar")
		require.Contains(t, text, "<b>Dinner: 2</b>\n• veg: 2\n  Asha, Meera")
		require.NotContains(t, text, "non-veg")
		require.NotContains(t, text, "Brunch")
	})

	t.Run("both slots counted from default records", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleHeadcountCore(ctx, mockBot, mocks.CommandUpdate(testManagerID, testManagerID, "/headcount"))

		text := mockBot.LastSentMessage().Text
		require.Contains(t, text, "<b>Brunch: 3</b>")
		require.Contains(t, text, "• non-veg: 1")
		require.Contains(t, text, "<b>Dinner: 2</b>")
	})

	t.Run("date and slot in any order", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleHeadcountCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/headcount tomorrow brunch"))

		text := mockBot.LastSentMessage().Text
		require.Contains(t, text, "Wed 11 Mar")
		require.Contains(t, text, "<b>Brunch: 3</b>")
	})

	t.Run("later days are projected without writing records", func(t *testing.T) {
		day := dates.AddDays(b.meals.Today(), 5)
		_, err := b.meals.Toggle(ctx, ravi.ID, day, appmodels.SlotDinner, appmodels.MealOff)
		require.NoError(t, err)

		mockBot := mocks.NewMockBot()
		b.handleHeadcountCore(ctx, mockBot, mocks.CommandUpdate(testStaffID, testStaffID, "/headcount dinner "+dates.Format(day)))

		text := mockBot.LastSentMessage().Text
		require.Contains(t, text, "<b>Dinner: 2</b>\n• veg: 2\n  Asha, Meera")
		require.NotContains(t, text, "non-veg")
		records, err := env.meals.ListForDay(ctx, day, appmodels.SlotDinner)
		require.NoError(t, err)
		require.Len(t, records, 1, "only the explicit toggle is stored")
	})

	t.Run("boarders cannot use it", func(t *testing.T) {
		mockBot := mocks.NewMockBot()
		b.handleHeadcountCore(ctx, mockBot, mocks.CommandUpdate(testChatID, testBoarderID, "/headcount"))
		require.Contains(t, mockBot.LastSentMessage().Text, "Only mess staff")
	})
}
