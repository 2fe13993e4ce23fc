package models

import "time"

type InquiryType string

const (
	InquiryGeneral      InquiryType = "general"
	InquiryViewing      InquiryType = "viewing"
	InquiryPrice        InquiryType = "price"
	InquiryAvailability InquiryType = "availability"
)

type InquiryStatus string

const (
	InquiryPending   InquiryStatus = "pending"
	InquiryContacted InquiryStatus = "contacted"
	InquiryScheduled InquiryStatus = "scheduled"
	InquiryCompleted InquiryStatus = "completed"
	InquiryCancelled InquiryStatus = "cancelled"
)

var inquiryTransitions = map[InquiryStatus][]InquiryStatus{
	InquiryPending:   {InquiryContacted, InquiryScheduled, InquiryCompleted, InquiryCancelled},
	InquiryContacted: {InquiryScheduled, InquiryCompleted, InquiryCancelled},
	InquiryScheduled: {InquiryCompleted, InquiryCancelled},
}

// CanTransition reports whether an inquiry may move from s to next.
// Completed and cancelled inquiries are terminal.
func (s InquiryStatus) CanTransition(next InquiryStatus) bool {
	for _, allowed := range inquiryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Inquiry struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	PropertyID  uint          `gorm:"not null;index" json:"property_id"`
	Property    *Property     `gorm:"foreignKey:PropertyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"property,omitempty"`
	UserID      *uint         `gorm:"index" json:"user_id"`
	Name        string        `gorm:"type:varchar(255)" json:"name"`
	Email       string        `gorm:"type:varchar(255);not null" json:"email"`
	Phone       string        `gorm:"type:varchar(50)" json:"phone,omitempty"`
	Message     string        `gorm:"type:text;not null" json:"message"`
	InquiryType InquiryType   `gorm:"type:varchar(20);not null;default:'general'" json:"inquiry_type"`
	Status      InquiryStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes       string        `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
