package models

import (
	"time"
)

type NotificationType string

const (
	NotificationNewInquiry     NotificationType = "new_inquiry"
	NotificationInquiryStatus  NotificationType = "inquiry_status"
	NotificationPropertyUpdate NotificationType = "property_update"
	NotificationSystem         NotificationType = "system"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    uint             `gorm:"not null;index" json:"user_id"`
	User      *User            `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Title     string           `gorm:"type:varchar(150);not null" json:"title"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	Type      NotificationType `gorm:"type:varchar(30);not null;default:'system'" json:"type"`
	Link      string           `gorm:"type:varchar(255)" json:"link,omitempty"`
	IsRead    bool             `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt time.Time        `gorm:"not null;index" json:"created_at"`
}
