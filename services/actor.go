package services

import (
	"context"
	"fmt"

	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/queue"
	"github.com/yashpalsanam/foresite-sub001/realtime"
)

// Actor is the authenticated caller. A nil *Actor is an anonymous visitor.
type Actor struct {
	UserID uint
	Role   models.Role
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == models.RoleAdmin
}

func (a *Actor) IsAgent() bool {
	return a != nil && a.Role == models.RoleAgent
}

func (a *Actor) IsStaff() bool {
	return a != nil && a.Role.IsStaff()
}

// PropertyScope is the cache scope for listing reads: staff see drafts, everyone else doesn't.
func (a *Actor) PropertyScope() string {
	if a.IsStaff() {
		return "staff"
	}
	return "public"
}

// InquiryScope is the cache scope for inquiry reads: admins share one, each agent has their own.
func (a *Actor) InquiryScope() string {
	switch {
	case a.IsAdmin():
		return "admin"
	case a.IsAgent():
		return fmt.Sprintf("agent-%d", a.UserID)
	case a != nil:
		return fmt.Sprintf("user-%d", a.UserID)
	}
	return "public"
}

// EmailEnqueuer is the part of the email queue services need.
type EmailEnqueuer interface {
	Enqueue(ctx context.Context, job queue.EmailJob) (string, error)
}

// Pusher delivers live events to connected users.
type Pusher interface {
	SendToUser(userID uint, msg realtime.Message) int
}

// ViewSink receives property view events.
type ViewSink interface {
	Record(view models.PropertyView)
}
