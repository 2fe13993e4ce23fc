package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

// Notifier is the part of NotificationService inquiries use.
type Notifier interface {
	Notify(ctx context.Context, userID uint, typ models.NotificationType, title, message, link string) (*models.Notification, error)
}

type InquiryService struct {
	db        *gorm.DB
	cache     cache.Invalidator
	notifier  Notifier
	emails    EmailEnqueuer
	publicURL string
}

func NewInquiryService(db *gorm.DB, inv cache.Invalidator, notifier Notifier, emails EmailEnqueuer, publicURL string) *InquiryService {
	return &InquiryService{db: db, cache: inv, notifier: notifier, emails: emails, publicURL: strings.TrimRight(publicURL, "/")}
}

type InquiryInput struct {
	PropertyID  uint               `json:"property_id" binding:"required"`
	Name        string             `json:"name" binding:"omitempty,max=255"`
	Email       string             `json:"email" binding:"omitempty,email,max=255"`
	Phone       string             `json:"phone" binding:"omitempty,max=50"`
	Message     string             `json:"message" binding:"required,max=5000"`
	InquiryType models.InquiryType `json:"inquiry_type" binding:"omitempty,oneof=general viewing price availability"`
}

type InquiryUpdateInput struct {
	Status *models.InquiryStatus `json:"status" binding:"omitempty,oneof=pending contacted scheduled completed cancelled"`
	Notes  *string               `json:"notes" binding:"omitempty,max=5000"`
}

type InquiryFilter struct {
	Status      string `form:"status" json:"status" binding:"omitempty,oneof=pending contacted scheduled completed cancelled"`
	InquiryType string `form:"inquiry_type" json:"inquiry_type" binding:"omitempty,oneof=general viewing price availability"`
	PropertyID  *uint  `form:"property_id" json:"property_id"`
}

type InquiryStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	ByType   map[string]int64 `json:"by_type"`
}

// CreatePublic accepts an inquiry from an anonymous visitor. Email is mandatory here
// since there is no profile to fall back on.
func (s *InquiryService) CreatePublic(ctx context.Context, in InquiryInput) (*models.Inquiry, error) {
	if err := s.validate(&in, true); err != nil {
		return nil, err
	}
	return s.create(ctx, in, nil)
}

// Create accepts an inquiry from a signed-in user; name and email default to the profile.
func (s *InquiryService) Create(ctx context.Context, in InquiryInput, actor *Actor) (*models.Inquiry, error) {
	if actor == nil {
		return nil, utils.Unauthorized(errors.New("no authenticated user"))
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, actor.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.Unauthorized(err)
		}
		return nil, utils.Internal(err)
	}
	if strings.TrimSpace(in.Name) == "" {
		in.Name = user.Name
	}
	if strings.TrimSpace(in.Email) == "" {
		in.Email = user.Email
	}
	if strings.TrimSpace(in.Phone) == "" {
		in.Phone = user.Phone
	}
	if err := s.validate(&in, true); err != nil {
		return nil, err
	}
	uid := user.ID
	return s.create(ctx, in, &uid)
}

func (s *InquiryService) validate(in *InquiryInput, requireEmail bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)

	var missing []utils.FieldError
	if requireEmail && in.Email == "" {
		missing = append(missing, utils.FieldError{Field: "email", Message: "is required"})
	}
	if err := utils.ValidateStruct(in); err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			appErr.Fields = append(missing, appErr.Fields...)
			return appErr
		}
		return err
	}
	if len(missing) > 0 {
		return utils.ValidationError("validation failed", missing...)
	}
	return nil
}

func (s *InquiryService) create(ctx context.Context, in InquiryInput, userID *uint) (*models.Inquiry, error) {
	var prop models.Property
	err := s.db.WithContext(ctx).Preload("Agent").First(&prop, in.PropertyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !prop.Status.IsPublic()) {
		return nil, utils.NotFound("property")
	}
	if err != nil {
		return nil, utils.Internal(err)
	}

	inq := models.Inquiry{
		PropertyID:  prop.ID,
		UserID:      userID,
		Name:        in.Name,
		Email:       in.Email,
		Phone:       strings.TrimSpace(in.Phone),
		Message:     in.Message,
		InquiryType: in.InquiryType,
		Status:      models.InquiryPending,
	}
	if inq.InquiryType == "" {
		inq.InquiryType = models.InquiryGeneral
	}
	if err := s.db.WithContext(ctx).Omit("Property").Create(&inq).Error; err != nil {
		return nil, utils.Internal(err)
	}
	s.invalidate(ctx)

	utils.InfoLogger.WithFields(logrus.Fields{
		"inquiry_id":  inq.ID,
		"property_id": prop.ID,
		"type":        inq.InquiryType,
	}).Info("Inquiry received")

	if s.notifier != nil {
		_, err := s.notifier.Notify(ctx, prop.AgentID, models.NotificationNewInquiry,
			"New inquiry",
			fmt.Sprintf("%s sent a %s inquiry about %s", displayName(&inq), inq.InquiryType, prop.Title),
			fmt.Sprintf("/inquiries/%d", inq.ID))
		if err != nil {
			utils.ErrorLogger.WithField("inquiry_id", inq.ID).WithError(err).Error("Failed to notify agent")
		}
	}
	enqueueEmail(ctx, s.emails, inquiryConfirmationEmail(&inq, &prop, s.publicURL))
	if prop.Agent != nil {
		enqueueEmail(ctx, s.emails, agentInquiryEmail(prop.Agent, &inq, &prop, s.publicURL))
	}

	inq.Property = &prop
	return &inq, nil
}

// scoped restricts a query to inquiries the actor manages. Callers must have checked
// that the actor is staff.
func (s *InquiryService) scoped(db *gorm.DB, actor *Actor) *gorm.DB {
	if actor.IsAdmin() {
		return db
	}
	owned := s.db.Model(&models.Property{}).Select("id").Where("agent_id = ?", actor.UserID)
	return db.Where("property_id IN (?)", owned)
}

func (s *InquiryService) List(ctx context.Context, f InquiryFilter, page utils.PageRequest, actor *Actor) ([]models.Inquiry, int64, error) {
	if !actor.IsStaff() {
		return nil, 0, utils.Forbidden(errors.New("staff role required"))
	}
	if err := utils.ValidateStruct(&f); err != nil {
		return nil, 0, err
	}

	q := s.scoped(s.db.WithContext(ctx).Model(&models.Inquiry{}), actor)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.InquiryType != "" {
		q = q.Where("inquiry_type = ?", f.InquiryType)
	}
	if f.PropertyID != nil {
		q = q.Where("property_id = ?", *f.PropertyID)
	}
	return s.page(q.Session(&gorm.Session{}), page, true)
}

func (s *InquiryService) MyInquiries(ctx context.Context, page utils.PageRequest, actor *Actor) ([]models.Inquiry, int64, error) {
	if actor == nil {
		return nil, 0, utils.Unauthorized(errors.New("no authenticated user"))
	}
	q := s.db.WithContext(ctx).Model(&models.Inquiry{}).Where("user_id = ?", actor.UserID).Session(&gorm.Session{})
	return s.page(q, page, false)
}

func (s *InquiryService) page(q *gorm.DB, page utils.PageRequest, withNotes bool) ([]models.Inquiry, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.Internal(err)
	}
	inquiries := []models.Inquiry{}
	err := q.Preload("Property").Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).Find(&inquiries).Error
	if err != nil {
		return nil, 0, utils.Internal(err)
	}
	if !withNotes {
		for i := range inquiries {
			inquiries[i].Notes = ""
		}
	}
	return inquiries, total, nil
}

// GetByID is open to staff managing the property and to the user who submitted it.
// Staff notes are hidden from the submitter.
func (s *InquiryService) GetByID(ctx context.Context, id uint, actor *Actor) (*models.Inquiry, error) {
	if actor == nil {
		return nil, utils.Unauthorized(errors.New("no authenticated user"))
	}
	inq, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.canManage(inq, actor) {
		return inq, nil
	}
	if inq.UserID != nil && *inq.UserID == actor.UserID {
		inq.Notes = ""
		return inq, nil
	}
	return nil, utils.Forbidden(errors.New("inquiry belongs to another agent"))
}

func (s *InquiryService) Update(ctx context.Context, id uint, in InquiryUpdateInput, actor *Actor) (*models.Inquiry, error) {
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	inq, err := s.loadManaged(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	previous := inq.Status
	updates := map[string]interface{}{}
	if in.Status != nil && *in.Status != inq.Status {
		if !inq.Status.CanTransition(*in.Status) {
			return nil, utils.Conflict(fmt.Sprintf("inquiry cannot move from %s to %s", inq.Status, *in.Status))
		}
		updates["status"] = *in.Status
		inq.Status = *in.Status
	}
	if in.Notes != nil {
		updates["notes"] = *in.Notes
		inq.Notes = *in.Notes
	}
	if len(updates) == 0 {
		return inq, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Inquiry{}).Where("id = ?", inq.ID).Updates(updates).Error; err != nil {
		return nil, utils.Internal(err)
	}
	s.invalidate(ctx)

	if inq.Status != previous {
		utils.InfoLogger.WithFields(logrus.Fields{
			"inquiry_id": inq.ID,
			"from":       previous,
			"to":         inq.Status,
			"actor_id":   actor.UserID,
		}).Info("Inquiry status changed")
		s.announceStatus(ctx, inq)
	}
	return s.load(ctx, inq.ID)
}

func (s *InquiryService) announceStatus(ctx context.Context, inq *models.Inquiry) {
	title := "your listing"
	prop := inq.Property
	if prop != nil {
		title = prop.Title
	}
	if inq.UserID != nil && s.notifier != nil {
		_, err := s.notifier.Notify(ctx, *inq.UserID, models.NotificationInquiryStatus,
			"Inquiry updated",
			fmt.Sprintf("Your inquiry about %s is now %s", title, inq.Status),
			fmt.Sprintf("/inquiries/%d", inq.ID))
		if err != nil {
			utils.ErrorLogger.WithField("inquiry_id", inq.ID).WithError(err).Error("Failed to notify inquirer")
		}
	}
	if prop != nil {
		enqueueEmail(ctx, s.emails, inquiryStatusEmail(inq, prop, s.publicURL))
	}
}

func (s *InquiryService) Delete(ctx context.Context, id uint, actor *Actor) error {
	inq, err := s.loadManaged(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Inquiry{}, inq.ID).Error; err != nil {
		return utils.Internal(err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *InquiryService) Stats(ctx context.Context, actor *Actor) (*InquiryStats, error) {
	if !actor.IsStaff() {
		return nil, utils.Forbidden(errors.New("staff role required"))
	}
	db := s.db.WithContext(ctx)
	scope := func(q *gorm.DB) *gorm.DB { return s.scoped(q, actor) }

	stats := &InquiryStats{}
	if err := scope(db.Model(&models.Inquiry{})).Count(&stats.Total).Error; err != nil {
		return nil, utils.Internal(err)
	}
	var err error
	if stats.ByStatus, err = countBy(db, &models.Inquiry{}, "status", scope); err != nil {
		return nil, utils.Internal(err)
	}
	if stats.ByType, err = countBy(db, &models.Inquiry{}, "inquiry_type", scope); err != nil {
		return nil, utils.Internal(err)
	}
	return stats, nil
}

func (s *InquiryService) load(ctx context.Context, id uint) (*models.Inquiry, error) {
	var inq models.Inquiry
	err := s.db.WithContext(ctx).Preload("Property").First(&inq, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("inquiry")
	}
	if err != nil {
		return nil, utils.Internal(err)
	}
	return &inq, nil
}

func (s *InquiryService) loadManaged(ctx context.Context, id uint, actor *Actor) (*models.Inquiry, error) {
	if !actor.IsStaff() {
		return nil, utils.Forbidden(errors.New("staff role required"))
	}
	inq, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canManage(inq, actor) {
		return nil, utils.Forbidden(errors.New("inquiry belongs to another agent"))
	}
	return inq, nil
}

func (s *InquiryService) canManage(inq *models.Inquiry, actor *Actor) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsAgent() && inq.Property != nil && inq.Property.AgentID == actor.UserID
}

func (s *InquiryService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateNamespace(ctx, cache.NamespaceInquiries); err != nil {
		utils.ErrorLogger.WithError(err).Error("Cache invalidation failed")
	}
}

func displayName(inq *models.Inquiry) string {
	if inq.Name != "" {
		return inq.Name
	}
	return inq.Email
}
