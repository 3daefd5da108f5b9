package mocks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandUpdate(t *testing.T) {
	t.Parallel()

	update := CommandUpdate(300, 301, "/meals tomorrow")
	require.Equal(t, int64(300), update.Message.Chat.ID)
	require.Equal(t, "private", string(update.Message.Chat.Type))
	require.Equal(t, int64(301), update.Message.From.ID)
	require.Equal(t, DefaultUsername, update.Message.From.Username)
	require.Equal(t, "/meals tomorrow", update.Message.Text)
	require.Nil(t, update.CallbackQuery)
}

func TestCallbackQueryUpdate(t *testing.T) {
	t.Parallel()

	update := CallbackQueryUpdate(300, 300, 55, "meal:2026-03-10:dinner:OFF")
	q := update.CallbackQuery
	require.Equal(t, CallbackQueryID, q.ID)
	require.Equal(t, int64(300), q.From.ID)
	require.Equal(t, 55, q.Message.Message.ID)
	require.Equal(t, int64(300), q.Message.Message.Chat.ID)
	require.Equal(t, "meal:2026-03-10:dinner:OFF", q.Data)
	require.Nil(t, update.Message)
}

func TestUpdateBuilder_WithFrom(t *testing.T) {
	t.Parallel()

	msg := NewUpdateBuilder().WithMessage(1, 2, "/serve").WithFrom(2, "cook", "Cook", "").Build()
	require.Equal(t, "cook", msg.Message.From.Username)
	require.Equal(t, "Cook", msg.Message.From.FirstName)

	cb := NewUpdateBuilder().WithCallbackQuery("q", 1, 2, 10, "receipt:save:k").WithFrom(2, "boss", "Boss", "").Build()
	require.Equal(t, "boss", cb.CallbackQuery.From.Username)
}

func TestPhotoUpdates(t *testing.T) {
	t.Parallel()

	t.Run("largest size carries the file ID", func(t *testing.T) {
		t.Parallel()
		update := PhotoUpdate(100, 100, "bill")
		photos := update.Message.Photo
		require.Len(t, photos, 2)
		require.Equal(t, "bill", photos[len(photos)-1].FileID)
		require.Greater(t, photos[1].Width, photos[0].Width)
		require.Empty(t, update.Message.Caption)
	})

	t.Run("payment proof has the /pay caption", func(t *testing.T) {
		t.Parallel()
		update := PaymentProofUpdate(300, 300, "upi-shot", "/pay 1500")
		require.Equal(t, "/pay 1500", update.Message.Caption)
		require.Empty(t, update.Message.Text)
		require.Equal(t, "upi-shot", update.Message.Photo[1].FileID)
	})

	t.Run("photo without a message starts one", func(t *testing.T) {
		t.Parallel()
		update := NewUpdateBuilder().WithCaption("/pay 10").WithPhoto("p").Build()
		require.NotNil(t, update.Message)
		require.Equal(t, "/pay 10", update.Message.Caption)
	})
}
