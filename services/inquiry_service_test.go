package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

func TestPublicInquiryWithoutEmailIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProperty(t, f.agentA, sampleInput("Listing"))

	_, err := f.inquiries.CreatePublic(ctx, InquiryInput{PropertyID: p.ID, Name: "Visitor", Message: "Is it available?"})
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	appErr := err.(*utils.AppError)
	require.NotEmpty(t, appErr.Fields)
	assert.Equal(t, "email", appErr.Fields[0].Field)

	var count int64
	f.db.Model(&models.Inquiry{}).Count(&count)
	assert.Zero(t, count)
	assert.Empty(t, f.emails.jobs)

	_, err = f.inquiries.CreatePublic(ctx, InquiryInput{PropertyID: p.ID, Email: "not-an-email", Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
}

func TestPublicInquiryNotifiesAgentAndSendsEmails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProperty(t, f.agentA, sampleInput("Listing"))

	key := cache.Key(cache.NamespaceInquiries, "admin", "/api/inquiries", nil)
	require.NoError(t, f.cache.Set(ctx, key, []byte(`[]`), time.Minute))

	inq, err := f.inquiries.CreatePublic(ctx, InquiryInput{
		PropertyID:  p.ID,
		Name:        "Visitor",
		Email:       "visitor@example.com",
		Message:     "Can I see it Saturday?",
		InquiryType: models.InquiryViewing,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InquiryPending, inq.Status)
	assert.Equal(t, models.InquiryViewing, inq.InquiryType)
	assert.Nil(t, inq.UserID)

	var notes []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", f.agentA.ID).Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationNewInquiry, notes[0].Type)
	assert.Contains(t, notes[0].Message, "Visitor")

	pushed := f.pusher.sent[f.agentA.ID]
	require.NotEmpty(t, pushed)
	assert.Equal(t, realtime.EventNotification, pushed[0].Event)

	assert.ElementsMatch(t, []string{"visitor@example.com", f.agentA.Email}, f.emails.recipients())

	_, hit, _ := f.cache.Get(ctx, key)
	assert.False(t, hit)
}

func TestInquiryOnHiddenPropertyIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := sampleInput("Draft")
	draft.Status = models.StatusDraft
	p := f.createProperty(t, f.agentA, draft)

	_, err := f.inquiries.CreatePublic(ctx, InquiryInput{PropertyID: p.ID, Email: "v@example.com", Message: "hi"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	_, err = f.inquiries.CreatePublic(ctx, InquiryInput{PropertyID: 4242, Email: "v@example.com", Message: "hi"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestAuthenticatedInquiryDefaultsToProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProperty(t, f.agentA, sampleInput("Listing"))

	inq, err := f.inquiries.Create(ctx, InquiryInput{PropertyID: p.ID, Message: "Interested"}, actorFor(f.buyer))
	require.NoError(t, err)
	assert.Equal(t, f.buyer.Email, inq.Email)
	assert.Equal(t, f.buyer.Name, inq.Name)
	require.NotNil(t, inq.UserID)
	assert.Equal(t, f.buyer.ID, *inq.UserID)
	assert.Equal(t, models.InquiryGeneral, inq.InquiryType)

	_, err = f.inquiries.Create(ctx, InquiryInput{PropertyID: p.ID, Message: "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestInquiryStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProperty(t, f.agentA, sampleInput("Listing"))
	inq, err := f.inquiries.Create(ctx, InquiryInput{PropertyID: p.ID, Message: "Interested"}, actorFor(f.buyer))
	require.NoError(t, err)
	f.emails.jobs = nil

	updated, err := f.inquiries.Update(ctx, inq.ID, InquiryUpdateInput{
		Status: ptr(models.InquiryContacted),
		Notes:  ptr("Called back on Monday"),
	}, actorFor(f.agentA))
	require.NoError(t, err)
	assert.Equal(t, models.InquiryContacted, updated.Status)
	assert.Equal(t, "Called back on Monday", updated.Notes)

	var statusNotes []models.Notification
	f.db.Where("user_id = ? AND type = ?", f.buyer.ID, models.NotificationInquiryStatus).Find(&statusNotes)
	require.Len(t, statusNotes, 1)
	assert.Contains(t, statusNotes[0].Message, "contacted")
	assert.Equal(t, []string{f.buyer.Email}, f.emails.recipients())

	_, err = f.inquiries.Update(ctx, inq.ID, InquiryUpdateInput{Status: ptr(models.InquiryPending)}, actorFor(f.agentA))
	assert.Equal(t, http.StatusConflict, statusOf(err))

	_, err = f.inquiries.Update(ctx, inq.ID, InquiryUpdateInput{Status: ptr(models.InquiryContacted)}, actorFor(f.agentA))
	assert.NoError(t, err, "setting the current status again is a no-op")

	_, err = f.inquiries.Update(ctx, inq.ID, InquiryUpdateInput{Status: ptr(models.InquiryCompleted)}, actorFor(f.adminUser))
	require.NoError(t, err)
	_, err = f.inquiries.Update(ctx, inq.ID, InquiryUpdateInput{Status: ptr(models.InquiryCancelled)}, actorFor(f.adminUser))
	assert.Equal(t, http.StatusConflict, statusOf(err))

	_, err = f.inquiries.Update(ctx, inq.ID, InquiryUpdateInput{Status: ptr(models.InquiryStatus("lost"))}, actorFor(f.adminUser))
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
}

func TestInquiryAccessIsScopedToTheListingAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pa := f.createProperty(t, f.agentA, sampleInput("Alice's"))
	pb := f.createProperty(t, f.agentB, sampleInput("Bob's"))

	ia, err := f.inquiries.CreatePublic(ctx, InquiryInput{PropertyID: pa.ID, Email: "a@example.com", Message: "hi", InquiryType: models.InquiryPrice})
	require.NoError(t, err)
	_, err = f.inquiries.CreatePublic(ctx, InquiryInput{PropertyID: pb.ID, Email: "b@example.com", Message: "hi"})
	require.NoError(t, err)

	page := utils.PageRequest{Page: 1, Limit: 10}

	list, total, err := f.inquiries.List(ctx, InquiryFilter{}, page, actorFor(f.agentA))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, ia.ID, list[0].ID)

	_, total, err = f.inquiries.List(ctx, InquiryFilter{}, page, actorFor(f.adminUser))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = f.inquiries.List(ctx, InquiryFilter{InquiryType: "price"}, page, actorFor(f.adminUser))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, _, err = f.inquiries.List(ctx, InquiryFilter{}, page, actorFor(f.buyer))
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	_, err = f.inquiries.Update(ctx, ia.ID, InquiryUpdateInput{Notes: ptr("mine now")}, actorFor(f.agentB))
	assert.Equal(t, http.StatusForbidden, statusOf(err))
	_, err = f.inquiries.GetByID(ctx, ia.ID, actorFor(f.agentB))
	assert.Equal(t, http.StatusForbidden, statusOf(err))
	assert.Equal(t, http.StatusForbidden, statusOf(f.inquiries.Delete(ctx, ia.ID, actorFor(f.agentB))))

	stats, err := f.inquiries.Stats(ctx, actorFor(f.agentB))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByType["general"])
	assert.Zero(t, stats.ByType["price"])

	stats, err = f.inquiries.Stats(ctx, actorFor(f.adminUser))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus["pending"])

	require.NoError(t, f.inquiries.Delete(ctx, ia.ID, actorFor(f.agentA)))
	_, err = f.inquiries.GetByID(ctx, ia.ID, actorFor(f.adminUser))
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestSubmitterSeesInquiryWithoutNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProperty(t, f.agentA, sampleInput("Listing"))
	inq, err := f.inquiries.Create(ctx, InquiryInput{PropertyID: p.ID, Message: "Interested"}, actorFor(f.buyer))
	require.NoError(t, err)
	_, err = f.inquiries.Update(ctx, inq.ID, InquiryUpdateInput{Notes: ptr("lowball buyer")}, actorFor(f.agentA))
	require.NoError(t, err)

	own, err := f.inquiries.GetByID(ctx, inq.ID, actorFor(f.buyer))
	require.NoError(t, err)
	assert.Empty(t, own.Notes)

	mine, total, err := f.inquiries.MyInquiries(ctx, utils.PageRequest{Page: 1, Limit: 10}, actorFor(f.buyer))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Empty(t, mine[0].Notes)
	require.NotNil(t, mine[0].Property)
	assert.Equal(t, p.ID, mine[0].Property.ID)

	managed, err := f.inquiries.GetByID(ctx, inq.ID, actorFor(f.agentA))
	require.NoError(t, err)
	assert.Equal(t, "lowball buyer", managed.Notes)

	stranger := createUser(t, f.db, models.RoleUser, "stranger@example.com")
	_, err = f.inquiries.GetByID(ctx, inq.ID, actorFor(stranger))
	assert.Equal(t, http.StatusForbidden, statusOf(err))
}
