package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

type UserService struct {
	db        *gorm.DB
	emails    EmailEnqueuer
	publicURL string
}

func NewUserService(db *gorm.DB, emails EmailEnqueuer, publicURL string) *UserService {
	return &UserService{db: db, emails: emails, publicURL: strings.TrimRight(publicURL, "/")}
}

type RegisterInput struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Phone    string `json:"phone" binding:"omitempty,max=50"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
}

type UserCreateInput struct {
	Name     string      `json:"name" binding:"required,max=255"`
	Email    string      `json:"email" binding:"required,email,max=255"`
	Password string      `json:"password" binding:"required,min=8,max=72"`
	Phone    string      `json:"phone" binding:"omitempty,max=50"`
	Role     models.Role `json:"role" binding:"required,oneof=admin agent user"`
}

type UserUpdateInput struct {
	Name     *string      `json:"name" binding:"omitempty,min=1,max=255"`
	Phone    *string      `json:"phone" binding:"omitempty,max=50"`
	Role     *models.Role `json:"role" binding:"omitempty,oneof=admin agent user"`
	IsActive *bool        `json:"is_active"`
}

type UserFilter struct {
	Role     string `form:"role" json:"role" binding:"omitempty,oneof=admin agent user"`
	IsActive *bool  `form:"is_active" json:"is_active"`
	Q        string `form:"q" json:"q" binding:"omitempty,max=100"`
}

// Session is what a successful register or login returns.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a plain user account; the role cannot be chosen here.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	user, err := s.insert(ctx, in.Name, in.Email, in.Password, in.Phone, models.RoleUser)
	if err != nil {
		return nil, err
	}
	enqueueEmail(ctx, s.emails, welcomeEmail(user, s.publicURL))
	return s.session(user)
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", in.Email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.Internal(err)
	}
	if err != nil || !utils.CheckPassword(user.Password, in.Password) {
		return nil, utils.Unauthorized(errors.New("invalid credentials"))
	}
	if !user.IsActive {
		return nil, utils.Forbidden(errors.New("account is deactivated"))
	}

	utils.InfoLogger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("Login successful")
	return s.session(&user)
}

func (s *UserService) session(user *models.User) (*Session, error) {
	token, err := utils.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, utils.Internal(err)
	}
	return &Session{Token: token, User: user}, nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	if err := utils.ValidateStruct(&in); err != nil {
		return err
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(user.Password, in.CurrentPassword) {
		return utils.ValidationError("validation failed", utils.FieldError{Field: "current_password", Message: "is incorrect"})
	}
	hashed, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return utils.Internal(err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return utils.Internal(err)
	}
	return nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("user")
	}
	if err != nil {
		return nil, utils.Internal(err)
	}
	return &user, nil
}

// Authenticate resolves token claims to an active account.
func (s *UserService) Authenticate(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) && appErr.Status == 404 {
			return nil, utils.Unauthorized(err)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, utils.Unauthorized(errors.New("account is deactivated"))
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, f UserFilter, page utils.PageRequest) ([]models.User, int64, error) {
	if err := utils.ValidateStruct(&f); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if term := strings.TrimSpace(f.Q); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(email) LIKE ?)", like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.Internal(err)
	}
	users := []models.User{}
	if err := q.Order("id ASC").Offset(page.Offset()).Limit(page.Limit).Find(&users).Error; err != nil {
		return nil, 0, utils.Internal(err)
	}
	return users, total, nil
}

func (s *UserService) Create(ctx context.Context, in UserCreateInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	return s.insert(ctx, in.Name, in.Email, in.Password, in.Phone, in.Role)
}

func (s *UserService) insert(ctx context.Context, name, email, password, phone string, role models.Role) (*models.User, error) {
	email = normalizeEmail(email)
	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, utils.Internal(err)
	}
	if existing > 0 {
		return nil, utils.Conflict("email is already registered")
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, utils.Internal(err)
	}
	user := models.User{
		Name:     strings.TrimSpace(name),
		Email:    email,
		Password: hashed,
		Phone:    strings.TrimSpace(phone),
		Role:     role,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, utils.Internal(err)
	}
	utils.InfoLogger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("User created")
	return &user, nil
}

func (s *UserService) Update(ctx context.Context, id uint, in UserUpdateInput, actor *Actor) (*models.User, error) {
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.UserID == user.ID {
		if (in.Role != nil && *in.Role != user.Role) || (in.IsActive != nil && !*in.IsActive) {
			return nil, utils.ValidationError("validation failed", utils.FieldError{Field: "role", Message: "you cannot demote or deactivate your own account"})
		}
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Role != nil {
		updates["role"] = *in.Role
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, utils.Internal(err)
		}
	}
	return s.Get(ctx, id)
}

// Delete removes a user. Agents that still own listings must have them reassigned first.
func (s *UserService) Delete(ctx context.Context, id uint, actor *Actor) error {
	if actor != nil && actor.UserID == id {
		return utils.ValidationError("you cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var listings int64
	if err := s.db.WithContext(ctx).Model(&models.Property{}).Where("agent_id = ?", user.ID).Count(&listings).Error; err != nil {
		return utils.Internal(err)
	}
	if listings > 0 {
		return utils.Conflict("user still owns listings; reassign them first")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Inquiry{}).Where("user_id = ?", user.ID).Update("user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PropertyView{}).Where("user_id = ?", user.ID).Update("user_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if err != nil {
		return utils.Internal(err)
	}
	utils.InfoLogger.WithField("user_id", user.ID).Info("User deleted")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
