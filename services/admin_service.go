package services

import (
	"context"
	"time"

	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

const topViewedLimit = 5

type DailyViews struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

type TopProperty struct {
	ID        uint   `json:"id"`
	Title     string `json:"title"`
	City      string `json:"city"`
	ViewCount int64  `json:"view_count"`
}

type Dashboard struct {
	Properties          *PropertyStats   `json:"properties"`
	Inquiries           *InquiryStats    `json:"inquiries"`
	UsersByRole         map[string]int64 `json:"users_by_role"`
	UnreadNotifications int64            `json:"unread_notifications"`
	ViewsLast7Days      []DailyViews     `json:"views_last_7_days"`
	TopViewed           []TopProperty    `json:"top_viewed"`
}

type AdminService struct {
	db         *gorm.DB
	properties *PropertyService
	inquiries  *InquiryService
	now        func() time.Time
}

func NewAdminService(db *gorm.DB, properties *PropertyService, inquiries *InquiryService) *AdminService {
	return &AdminService{db: db, properties: properties, inquiries: inquiries, now: time.Now}
}

func (s *AdminService) Dashboard(ctx context.Context, actor *Actor) (*Dashboard, error) {
	propStats, err := s.properties.Stats(ctx)
	if err != nil {
		return nil, err
	}
	inqStats, err := s.inquiries.Stats(ctx, actor)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	users, err := countBy(db, &models.User{}, "role")
	if err != nil {
		return nil, utils.Internal(err)
	}

	var unread int64
	if err := db.Model(&models.Notification{}).Where("is_read = ?", false).Count(&unread).Error; err != nil {
		return nil, utils.Internal(err)
	}

	views, err := s.viewsByDay(ctx, 7)
	if err != nil {
		return nil, err
	}

	top, err := s.TopViewed(ctx, topViewedLimit)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Properties:          propStats,
		Inquiries:           inqStats,
		UsersByRole:         users,
		UnreadNotifications: unread,
		ViewsLast7Days:      views,
		TopViewed:           top,
	}, nil
}

// viewsByDay counts views per UTC day, oldest first, including today. One ranged count
// per day keeps the query portable across the supported databases.
func (s *AdminService) viewsByDay(ctx context.Context, days int) ([]DailyViews, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]DailyViews, 0, days)
	for i := days - 1; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		end := start.AddDate(0, 0, 1)
		var n int64
		err := s.db.WithContext(ctx).Model(&models.PropertyView{}).
			Where("created_at >= ? AND created_at < ?", start, end).Count(&n).Error
		if err != nil {
			return nil, utils.Internal(err)
		}
		out = append(out, DailyViews{Date: start.Format("2006-01-02"), Views: n})
	}
	return out, nil
}

func (s *AdminService) TopViewed(ctx context.Context, limit int) ([]TopProperty, error) {
	var props []models.Property
	err := s.db.WithContext(ctx).Select("id", "title", "address_city", "view_count").
		Order("view_count DESC, id ASC").Limit(limit).Find(&props).Error
	if err != nil {
		return nil, utils.Internal(err)
	}
	out := make([]TopProperty, 0, len(props))
	for _, p := range props {
		out = append(out, TopProperty{ID: p.ID, Title: p.Title, City: p.Address.City, ViewCount: p.ViewCount})
	}
	return out, nil
}

// ReportRows returns every listing for the PDF report, newest first.
func (s *AdminService) ReportRows(ctx context.Context, status string) ([]models.Property, error) {
	q := s.db.WithContext(ctx).Preload("Agent").Order("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var props []models.Property
	if err := q.Find(&props).Error; err != nil {
		return nil, utils.Internal(err)
	}
	return props, nil
}
