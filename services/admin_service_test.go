package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashpalsanam/foresite-sub001/models"
)

func TestDashboardAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f.admin.now = func() time.Time { return now }

	popular := f.createProperty(t, f.agentA, sampleInput("Popular"))
	quiet := f.createProperty(t, f.agentB, sampleInput("Quiet"))
	require.NoError(t, f.db.Model(&models.Property{}).Where("id = ?", popular.ID).Update("view_count", 12).Error)
	require.NoError(t, f.db.Model(&models.Property{}).Where("id = ?", quiet.ID).Update("view_count", 3).Error)

	require.NoError(t, f.db.Create(&[]models.PropertyView{
		{PropertyID: popular.ID, CreatedAt: now.Add(-time.Hour)},
		{PropertyID: popular.ID, CreatedAt: now.Add(-2 * time.Hour)},
		{PropertyID: quiet.ID, CreatedAt: now.AddDate(0, 0, -2)},
		{PropertyID: quiet.ID, CreatedAt: now.AddDate(0, 0, -30)},
	}).Error)

	_, err := f.inquiries.CreatePublic(ctx, InquiryInput{PropertyID: popular.ID, Email: "v@example.com", Message: "hi"})
	require.NoError(t, err)

	d, err := f.admin.Dashboard(ctx, actorFor(f.adminUser))
	require.NoError(t, err)

	assert.Equal(t, int64(2), d.Properties.Total)
	assert.Equal(t, int64(1), d.Inquiries.Total)
	assert.Equal(t, map[string]int64{"admin": 1, "agent": 2, "user": 1}, d.UsersByRole)
	assert.Equal(t, int64(1), d.UnreadNotifications)

	require.Len(t, d.ViewsLast7Days, 7)
	assert.Equal(t, "2026-03-04", d.ViewsLast7Days[0].Date)
	assert.Equal(t, "2026-03-10", d.ViewsLast7Days[6].Date)
	assert.Equal(t, int64(2), d.ViewsLast7Days[6].Views)
	assert.Equal(t, int64(1), d.ViewsLast7Days[4].Views)

	require.Len(t, d.TopViewed, 2)
	assert.Equal(t, "Popular", d.TopViewed[0].Title)
	assert.Equal(t, int64(12), d.TopViewed[0].ViewCount)
	assert.Equal(t, "Austin", d.TopViewed[0].City)
}

func TestPropertyReportRendersPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProperty(t, f.agentA, sampleInput("Café on the corner"))
	draft := sampleInput("Draft")
	draft.Status = models.StatusDraft
	f.createProperty(t, f.agentA, draft)

	rows, err := f.admin.ReportRows(ctx, "draft")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Agent)

	rows, err = f.admin.ReportRows(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	pdf, err := RenderPropertyReport(rows, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}
