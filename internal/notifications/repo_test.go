package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payouts-backend/pkg/db/dbtest"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

func seedNotification(t *testing.T, repo Repository, recipient Recipient, createdAt time.Time) models.Notification {
	t.Helper()
	n := models.Notification{
		EventID:        uuid.New(),
		OrganizationID: recipient.OrganizationID,
		UserID:         recipient.UserID,
		Type:           enums.NotificationTypePayout,
		EntityID:       uuid.New(),
		Title:          "title",
		Message:        "message",
		CreatedAt:      createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), &n))
	return n
}

func TestRepositoryScopesByRecipient(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	org := OrganizationRecipient(uuid.New())
	user := UserRecipient(uuid.New())
	for i := range 3 {
		seedNotification(t, repo, org, now.Add(-time.Duration(i)*time.Minute))
	}
	userNote := seedNotification(t, repo, user, now)

	page, next, err := repo.List(ctx, listQuery{Recipient: org, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)

	rest, next, err := repo.List(ctx, listQuery{Recipient: org, Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Nil(t, next)

	found, err := repo.MarkRead(ctx, org, userNote.ID, now)
	require.NoError(t, err)
	require.False(t, found)

	found, err = repo.MarkRead(ctx, user, userNote.ID, now)
	require.NoError(t, err)
	require.True(t, found)

	found, err = repo.MarkRead(ctx, user, userNote.ID, now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, found)
	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", userNote.ID).Error)
	require.WithinDuration(t, now, *stored.ReadAt, time.Second)

	unreadOrg, err := repo.CountUnread(ctx, org)
	require.NoError(t, err)
	require.Equal(t, int64(3), unreadOrg)

	unread, _, err := repo.List(ctx, listQuery{Recipient: user, UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unread)

	updated, err := repo.MarkAllRead(ctx, org, now)
	require.NoError(t, err)
	require.Equal(t, int64(3), updated)
}

func TestRepositoryDeleteOlderThan(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	org := OrganizationRecipient(uuid.New())

	seedNotification(t, repo, org, now.Add(-40*24*time.Hour))
	seedNotification(t, repo, org, now.Add(-time.Hour))

	deleted, err := repo.DeleteOlderThan(context.Background(), nil, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)
}
