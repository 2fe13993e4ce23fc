package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

type NotificationService struct {
	db  *gorm.DB
	hub Pusher
}

func NewNotificationService(db *gorm.DB, hub Pusher) *NotificationService {
	return &NotificationService{db: db, hub: hub}
}

type SystemNotificationInput struct {
	UserID  *uint       `json:"user_id"`
	Role    models.Role `json:"role" binding:"omitempty,oneof=admin agent user"`
	Title   string      `json:"title" binding:"required,max=150"`
	Message string      `json:"message" binding:"required"`
	Link    string      `json:"link" binding:"omitempty,max=255"`
}

// Notify stores a notification and pushes it to the recipient's live connections.
func (s *NotificationService) Notify(ctx context.Context, userID uint, typ models.NotificationType, title, message, link string) (*models.Notification, error) {
	n := models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    typ,
		Link:    link,
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, utils.Internal(err)
	}
	s.push(ctx, &n)
	return &n, nil
}

func (s *NotificationService) push(ctx context.Context, n *models.Notification) {
	if s.hub == nil {
		return
	}
	delivered := s.hub.SendToUser(n.UserID, realtime.Message{Event: realtime.EventNotification, Data: n})
	if delivered == 0 {
		return
	}
	if count, err := s.UnreadCount(ctx, n.UserID); err == nil {
		s.hub.SendToUser(n.UserID, realtime.Message{Event: realtime.EventUnreadCount, Data: map[string]int64{"count": count}})
	}
}

// SendSystem sends an admin-authored notification to one user, every user of a role,
// or every active user. It returns how many notifications were created.
func (s *NotificationService) SendSystem(ctx context.Context, in SystemNotificationInput) (int, error) {
	if err := utils.ValidateStruct(&in); err != nil {
		return 0, err
	}

	var recipients []uint
	if in.UserID != nil {
		var user models.User
		if err := s.db.WithContext(ctx).First(&user, *in.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, utils.NotFound("user")
			}
			return 0, utils.Internal(err)
		}
		recipients = []uint{user.ID}
	} else {
		q := s.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true)
		if in.Role != "" {
			q = q.Where("role = ?", in.Role)
		}
		if err := q.Pluck("id", &recipients).Error; err != nil {
			return 0, utils.Internal(err)
		}
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	batch := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		batch = append(batch, models.Notification{
			UserID:  id,
			Title:   in.Title,
			Message: in.Message,
			Type:    models.NotificationSystem,
			Link:    in.Link,
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&batch, 200).Error; err != nil {
		return 0, utils.Internal(err)
	}
	for i := range batch {
		s.push(ctx, &batch[i])
	}

	utils.InfoLogger.WithFields(logrus.Fields{"recipients": len(batch), "title": in.Title}).Info("System notification sent")
	return len(batch), nil
}

func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, page utils.PageRequest) ([]models.Notification, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.Internal(err)
	}

	notifications := []models.Notification{}
	err := q.Order("created_at DESC, id DESC").Offset(page.Offset()).Limit(page.Limit).Find(&notifications).Error
	if err != nil {
		return nil, 0, utils.Internal(err)
	}
	return notifications, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Count(&count).Error
	if err != nil {
		return 0, utils.Internal(err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications read. Other users' notifications are not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	n, err := s.own(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !n.IsRead {
		if err := s.db.WithContext(ctx).Model(n).Update("is_read", true).Error; err != nil {
			return nil, utils.Internal(err)
		}
		n.IsRead = true
	}
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Update("is_read", true)
	if res.Error != nil {
		return 0, utils.Internal(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uint) error {
	n, err := s.own(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(n).Error; err != nil {
		return utils.Internal(err)
	}
	return nil
}

// PruneRead removes read notifications older than age.
func (s *NotificationService) PruneRead(ctx context.Context, age time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, time.Now().Add(-age)).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (s *NotificationService) own(ctx context.Context, userID, id uint) (*models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("notification")
	}
	if err != nil {
		return nil, utils.Internal(err)
	}
	return &n, nil
}
