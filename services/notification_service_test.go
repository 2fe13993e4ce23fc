package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

func TestNotifyPushesNotificationAndUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.notifications.Notify(ctx, f.buyer.ID, models.NotificationSystem, "Hello", "Welcome aboard", "/")
	require.NoError(t, err)
	assert.NotZero(t, n.ID)
	assert.False(t, n.IsRead)

	pushed := f.pusher.sent[f.buyer.ID]
	require.Len(t, pushed, 2)
	assert.Equal(t, realtime.EventNotification, pushed[0].Event)
	assert.Equal(t, realtime.EventUnreadCount, pushed[1].Event)
	assert.Equal(t, map[string]int64{"count": 1}, pushed[1].Data)
}

func TestNotificationReadLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := utils.PageRequest{Page: 1, Limit: 10}

	first, err := f.notifications.Notify(ctx, f.buyer.ID, models.NotificationSystem, "One", "first", "")
	require.NoError(t, err)
	_, err = f.notifications.Notify(ctx, f.buyer.ID, models.NotificationSystem, "Two", "second", "")
	require.NoError(t, err)
	other, err := f.notifications.Notify(ctx, f.agentA.ID, models.NotificationSystem, "Other", "not yours", "")
	require.NoError(t, err)

	count, err := f.notifications.UnreadCount(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	read, err := f.notifications.MarkRead(ctx, f.buyer.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	unread, total, err := f.notifications.List(ctx, f.buyer.ID, true, page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Two", unread[0].Title)

	_, total, err = f.notifications.List(ctx, f.buyer.ID, false, page)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = f.notifications.MarkRead(ctx, f.buyer.ID, other.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
	assert.Equal(t, http.StatusNotFound, statusOf(f.notifications.Delete(ctx, f.buyer.ID, other.ID)))

	changed, err := f.notifications.MarkAllRead(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	count, err = f.notifications.UnreadCount(ctx, f.agentA.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "other users are untouched")

	require.NoError(t, f.notifications.Delete(ctx, f.buyer.ID, first.ID))
	_, total, _ = f.notifications.List(ctx, f.buyer.ID, false, page)
	assert.Equal(t, int64(1), total)
}

func TestSendSystemTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.notifications.SendSystem(ctx, SystemNotificationInput{Role: models.RoleAgent, Title: "Policy", Message: "New commission rules"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.notifications.SendSystem(ctx, SystemNotificationInput{UserID: &f.buyer.ID, Title: "Hi", Message: "Just you"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, f.db.Model(f.buyer).Update("is_active", false).Error)
	n, err = f.notifications.SendSystem(ctx, SystemNotificationInput{Title: "All", Message: "Everyone active"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.notifications.SendSystem(ctx, SystemNotificationInput{UserID: ptr(uint(9999)), Title: "x", Message: "y"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	_, err = f.notifications.SendSystem(ctx, SystemNotificationInput{Message: "no title"})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
}

func TestPruneReadKeepsUnreadAndRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := time.Now().Add(-100 * 24 * time.Hour)

	rows := []models.Notification{
		{UserID: f.buyer.ID, Title: "old read", Message: "m", Type: models.NotificationSystem, IsRead: true, CreatedAt: old},
		{UserID: f.buyer.ID, Title: "old unread", Message: "m", Type: models.NotificationSystem, CreatedAt: old},
		{UserID: f.buyer.ID, Title: "new read", Message: "m", Type: models.NotificationSystem, IsRead: true},
	}
	require.NoError(t, f.db.Create(&rows).Error)

	removed, err := f.notifications.PruneRead(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var titles []string
	f.db.Model(&models.Notification{}).Order("id").Pluck("title", &titles)
	assert.Equal(t, []string{"old unread", "new read"}, titles)
}
