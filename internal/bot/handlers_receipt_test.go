package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/mess-bot/internal/bot/mocks"
	"gitlab.com/yelinaung/mess-bot/internal/gemini"
	appmodels "gitlab.com/yelinaung/mess-bot/internal/models"
)

func TestBuildReceiptConfirmationKeyboard(t *testing.T) {
	t.Parallel()

	keyboard := buildReceiptConfirmationKeyboard("abc123")

	require.NotNil(t, keyboard)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	require.Equal(t, "✅ Save", keyboard.InlineKeyboard[0][0].Text)
	require.Equal(t, "receipt:save:abc123", keyboard.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, "❌ Cancel", keyboard.InlineKeyboard[0][1].Text)
	require.Equal(t, "receipt:cancel:abc123", keyboard.InlineKeyboard[0][1].CallbackData)
}

// photoServer serves a fake JPEG for Telegram file downloads.
func photoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("\xff\xd8\xff\xe0fake-jpeg"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// receiptButton returns the callback data of the confirmation button
// starting with prefix.
func receiptButton(t *testing.T, msg *mocks.SentMessage, prefix string) string {
	t.Helper()
	data := msg.Button(prefix)
	require.NotEmpty(t, data, "no button with prefix %q in %v", prefix, msg.Buttons())
	return data
}

func TestHandlePhotoCore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("pay caption attaches proof", func(t *testing.T) {
		t.Parallel()
		b, env := setupTestBot(t, testTime(2026, 3, 10, 9, 0))
		bd := env.boarders.add("101", "Asha", appmodels.PreferenceVeg, testBoarderID)
		mockBot := mocks.NewMockBot()

		b.handlePhotoCore(ctx, mockBot, mocks.PaymentProofUpdate(testChatID, testBoarderID, "upi-shot", "/pay 500"))

		require.Equal(t, "🧾 Payment #1 of ₹500.00 recorded with proof. A manager will review it soon.", mockBot.LastSentMessage().Text)
		p, err := env.payments.GetByID(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, bd.ID, p.BoarderID)
		require.Equal(t, "upi-shot", p.ProofRef)
	})

	t.Run("boarder photo without caption gets a hint", func(t *testing.T) {
		t.Parallel()
		b, env := setupTestBot(t, testTime(2026, 3, 10, 9, 0))
		env.boarders.add("101", "Asha", appmodels.PreferenceVeg, testBoarderID)
		mockBot := mocks.NewMockBot()

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testChatID, testBoarderID, "selfie"))

		require.Contains(t, mockBot.LastSentMessage().Text, "/pay &lt;amount&gt;")
		pending, err := env.payments.ListPending(ctx)
		require.NoError(t, err)
		require.Empty(t, pending)
	})

	t.Run("receipt OCR not configured", func(t *testing.T) {
		t.Parallel()
		b, _ := setupTestBot(t, testTime(2026, 3, 10, 9, 0))
		mockBot := mocks.NewMockBot()

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))

		require.Contains(t, mockBot.LastSentMessage().Text, "Receipt OCR is not configured")
	})
}

func TestReceiptFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T, receipts *fakeReceipts) (*Bot, *testEnv, *mocks.MockBot) {
		t.Helper()
		b, env := setupTestBot(t, testTime(2026, 3, 10, 9, 0))
		b.receipts = receipts
		mockBot := mocks.NewMockBot()
		mockBot.FileServerURL = photoServer(t).URL
		return b, env, mockBot
	}

	parsed := &gemini.ReceiptData{
		Amount:     mustParseDecimal("845.50"),
		Vendor:     "Sabzi Mandi",
		Date:       time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		Category:   appmodels.CategoryVegetables,
		Items:      []string{"onion", "tomato"},
		Confidence: 0.9,
	}

	t.Run("save records the expense", func(t *testing.T) {
		t.Parallel()
		b, env, mockBot := setup(t, &fakeReceipts{data: parsed})

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))

		require.Equal(t, "📷 Processing receipt...", mockBot.Messages()[0].Text)
		require.Equal(t, []string{"bill"}, mockBot.RequestedFiles(), "the largest photo size is downloaded")
		confirm := mockBot.LastSentMessage()
		require.Contains(t, confirm.Text, "Amount: ₹845.50")
		require.Contains(t, confirm.Text, "Category: vegetables")
		require.Contains(t, confirm.Text, "Date: Sun 08 Mar")
		require.Contains(t, confirm.Text, "Sabzi Mandi: onion, tomato")
		require.Empty(t, env.expenses.all(), "nothing is saved before confirmation")

		data := receiptButton(t, confirm, "receipt:save:")
		b.handleReceiptCallbackCore(ctx, mockBot, mocks.CallbackQueryUpdate(testManagerID, testManagerID, 1000, data))

		require.Equal(t, "Saved", mockBot.Answers()[0].Text)
		require.Contains(t, mockBot.LastEditedMessage().Text, "✅ Expense #1 recorded")
		all := env.expenses.all()
		require.Len(t, all, 1)
		require.Equal(t, "bill", all[0].ReceiptFileID)
		require.Equal(t, testTime(2026, 3, 8, 0, 0).Format("2006-01-02"), all[0].Date.Format("2006-01-02"))
		require.True(t, all[0].Amount.Equal(parsed.Amount))

		// The receipt is consumed by the first press.
		b.handleReceiptCallbackCore(ctx, mockBot, mocks.CallbackQueryUpdate(testManagerID, testManagerID, 1000, data))
		require.Equal(t, "⌛ Receipt expired. Please send the photo again.", mockBot.LastEditedMessage().Text)
		require.Len(t, env.expenses.all(), 1)
	})

	t.Run("cancel discards", func(t *testing.T) {
		t.Parallel()
		b, env, mockBot := setup(t, &fakeReceipts{data: parsed})

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))
		data := receiptButton(t, mockBot.LastSentMessage(), "receipt:cancel:")
		b.handleReceiptCallbackCore(ctx, mockBot, mocks.CallbackQueryUpdate(testManagerID, testManagerID, 1000, data))

		require.Equal(t, "❌ Receipt discarded.", mockBot.LastEditedMessage().Text)
		require.Empty(t, env.expenses.all())
	})

	t.Run("future receipt date falls back to today", func(t *testing.T) {
		t.Parallel()
		future := *parsed
		future.Date = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		b, _, mockBot := setup(t, &fakeReceipts{data: &future})

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))

		require.Contains(t, mockBot.LastSentMessage().Text, "Date: Tue 10 Mar")
	})

	t.Run("staff cannot confirm", func(t *testing.T) {
		t.Parallel()
		b, env, mockBot := setup(t, &fakeReceipts{data: parsed})

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))
		data := receiptButton(t, mockBot.LastSentMessage(), "receipt:save:")
		b.handleReceiptCallbackCore(ctx, mockBot, mocks.CallbackQueryUpdate(testStaffID, testStaffID, 1000, data))

		require.Equal(t, "⛔ Only managers can do this", mockBot.Answers()[0].Text)
		require.Empty(t, env.expenses.all())
	})

	t.Run("parse timeout", func(t *testing.T) {
		t.Parallel()
		b, _, mockBot := setup(t, &fakeReceipts{err: gemini.ErrParseTimeout})

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))

		require.Contains(t, mockBot.LastSentMessage().Text, "⏱️ Receipt processing timed out.")
	})

	t.Run("no total", func(t *testing.T) {
		t.Parallel()
		b, _, mockBot := setup(t, &fakeReceipts{data: &gemini.ReceiptData{Vendor: "Kirana"}})

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))

		require.Contains(t, mockBot.LastSentMessage().Text, "No total found")
	})

	t.Run("download failure", func(t *testing.T) {
		t.Parallel()
		b, _, mockBot := setup(t, &fakeReceipts{data: parsed})
		mockBot.GetFileError = errStoreDown

		b.handlePhotoCore(ctx, mockBot, mocks.PhotoUpdate(testManagerID, testManagerID, "bill"))

		require.Equal(t, "❌ Failed to download photo. Please try again.", mockBot.LastSentMessage().Text)
	})

	t.Run("invalid callback data", func(t *testing.T) {
		t.Parallel()
		b, _, mockBot := setup(t, &fakeReceipts{data: parsed})

		b.handleReceiptCallbackCore(ctx, mockBot, mocks.CallbackQueryUpdate(testManagerID, testManagerID, 1000, "receipt:edit:abc"))

		require.Equal(t, "❌ Invalid action", mockBot.Answers()[0].Text)
	})
}

func TestStoreReceiptDropsExpired(t *testing.T) {
	t.Parallel()

	b, _ := setupTestBot(t, testTime(2026, 3, 10, 9, 0))
	start := testTime(2026, 3, 10, 9, 0)

	oldKey := b.storeReceipt(&pendingReceipt{createdAt: start})
	newKey := b.storeReceipt(&pendingReceipt{createdAt: start.Add(pendingReceiptTTL + time.Minute)})

	_, ok := b.takeReceipt(oldKey)
	require.False(t, ok)
	_, ok = b.takeReceipt(newKey)
	require.True(t, ok)
}
