package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

func createTestBoarder(t *testing.T, repo *BoarderRepository, room, name string) *models.Boarder {
	t.Helper()

	b := &models.Boarder{Name: name, Room: room, Preference: models.PreferenceVeg}
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}
