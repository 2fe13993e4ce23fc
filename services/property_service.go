package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/umahmood/haversine"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/media"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultNearbyRadiusKm = 10.0
	MaxNearbyRadiusKm     = 100.0
	defaultNearbyLimit    = 20
	maxNearbyLimit        = 100
	defaultFeaturedLimit  = 6
	maxFeaturedLimit      = 50

	kmPerDegreeLat = 111.045
)

var errNotOwner = errors.New("property belongs to another agent")

type PropertyService struct {
	db      *gorm.DB
	storage media.Storage
	cache   cache.Invalidator
	views   ViewSink
}

func NewPropertyService(db *gorm.DB, storage media.Storage, inv cache.Invalidator, views ViewSink) *PropertyService {
	return &PropertyService{db: db, storage: storage, cache: inv, views: views}
}

type PropertyFilter struct {
	Type        string   `form:"type" json:"type" binding:"omitempty,oneof=house apartment condo townhouse land commercial"`
	Status      string   `form:"status" json:"status" binding:"omitempty,oneof=draft available pending sold rented inactive"`
	ListingType string   `form:"listing_type" json:"listing_type" binding:"omitempty,oneof=sale rent"`
	MinPrice    *float64 `form:"min_price" json:"min_price" binding:"omitempty,gte=0"`
	MaxPrice    *float64 `form:"max_price" json:"max_price" binding:"omitempty,gte=0"`
	City        string   `form:"city" json:"city"`
	State       string   `form:"state" json:"state"`
	Country     string   `form:"country" json:"country"`
	Bedrooms    *int     `form:"bedrooms" json:"bedrooms" binding:"omitempty,gte=0"`
	Bathrooms   *int     `form:"bathrooms" json:"bathrooms" binding:"omitempty,gte=0"`
	AgentID     *uint    `form:"agent_id" json:"agent_id"`
	Featured    *bool    `form:"featured" json:"featured"`
	Q           string   `form:"q" json:"q" binding:"omitempty,max=100"`
	Sort        string   `form:"sort" json:"sort" binding:"omitempty,oneof=newest oldest price_asc price_desc views"`
}

var propertySorts = map[string]string{
	"newest":     "created_at DESC, id DESC",
	"oldest":     "created_at ASC, id ASC",
	"price_asc":  "price ASC, id ASC",
	"price_desc": "price DESC, id DESC",
	"views":      "view_count DESC, id DESC",
}

type AddressInput struct {
	Street  string `json:"street" binding:"required,max=255"`
	City    string `json:"city" binding:"required,max=100"`
	State   string `json:"state" binding:"required,max=100"`
	ZipCode string `json:"zip_code" binding:"required,max=20"`
	Country string `json:"country" binding:"required,max=100"`
}

type LocationInput struct {
	Lat *float64 `json:"lat" binding:"required,lat"`
	Lng *float64 `json:"lng" binding:"required,lng"`
}

type FeaturesInput struct {
	Bedrooms  int     `json:"bedrooms" binding:"gte=0"`
	Bathrooms int     `json:"bathrooms" binding:"gte=0"`
	Area      float64 `json:"area" binding:"gte=0"`
	AreaUnit  string  `json:"area_unit" binding:"omitempty,oneof=sqft sqm"`
}

type PropertyInput struct {
	Title       string                `json:"title" binding:"required,max=255"`
	Description string                `json:"description"`
	Type        models.PropertyType   `json:"type" binding:"required,oneof=house apartment condo townhouse land commercial"`
	Status      models.PropertyStatus `json:"status" binding:"omitempty,oneof=draft available pending sold rented inactive"`
	ListingType models.ListingType    `json:"listing_type" binding:"omitempty,oneof=sale rent"`
	Price       *float64              `json:"price" binding:"required,gte=0"`
	Address     AddressInput          `json:"address"`
	Location    LocationInput         `json:"location"`
	Features    FeaturesInput         `json:"features"`
	Amenities   []string              `json:"amenities" binding:"omitempty,dive,max=100"`
	IsFeatured  bool                  `json:"is_featured"`
	AgentID     *uint                 `json:"agent_id"`
}

type PropertyUpdateInput struct {
	Title       *string                `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string                `json:"description"`
	Type        *models.PropertyType   `json:"type" binding:"omitempty,oneof=house apartment condo townhouse land commercial"`
	Status      *models.PropertyStatus `json:"status" binding:"omitempty,oneof=draft available pending sold rented inactive"`
	ListingType *models.ListingType    `json:"listing_type" binding:"omitempty,oneof=sale rent"`
	Price       *float64               `json:"price" binding:"omitempty,gte=0"`
	Address     *AddressInput          `json:"address"`
	Location    *LocationInput         `json:"location"`
	Features    *FeaturesInput         `json:"features"`
	Amenities   *[]string              `json:"amenities"`
	IsFeatured  *bool                  `json:"is_featured"`
	AgentID     *uint                  `json:"agent_id"`
}

type NearbyQuery struct {
	Lat      *float64 `form:"lat" json:"lat" binding:"required,lat"`
	Lng      *float64 `form:"lng" json:"lng" binding:"required,lng"`
	RadiusKm float64  `form:"radius" json:"radius" binding:"omitempty,gt=0"`
	Limit    int      `form:"limit" json:"limit" binding:"omitempty,gte=1"`
	Type     string   `form:"type" json:"type" binding:"omitempty,oneof=house apartment condo townhouse land commercial"`
}

// ViewerInfo describes who opened a property detail page.
type ViewerInfo struct {
	IP        string
	UserAgent string
}

type PropertyStats struct {
	Total         int64            `json:"total"`
	ByStatus      map[string]int64 `json:"by_status"`
	ByType        map[string]int64 `json:"by_type"`
	ByListingType map[string]int64 `json:"by_listing_type"`
	Featured      int64            `json:"featured"`
	AveragePrice  float64          `json:"average_price"`
}

func (s *PropertyService) withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Images", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC, id ASC")
	}).Preload("Agent")
}

func (s *PropertyService) List(ctx context.Context, f PropertyFilter, page utils.PageRequest, actor *Actor) ([]models.Property, int64, error) {
	if err := utils.ValidateStruct(&f); err != nil {
		return nil, 0, err
	}
	properties := []models.Property{}

	q := s.db.WithContext(ctx).Model(&models.Property{})
	if f.Status != "" {
		status := models.PropertyStatus(f.Status)
		if !status.IsPublic() && !actor.IsStaff() {
			return properties, 0, nil
		}
		q = q.Where("status = ?", status)
	} else if !actor.IsStaff() {
		q = q.Where("status IN ?", models.PublicStatuses)
	}

	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.ListingType != "" {
		q = q.Where("listing_type = ?", f.ListingType)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.City != "" {
		q = q.Where("LOWER(address_city) = ?", strings.ToLower(strings.TrimSpace(f.City)))
	}
	if f.State != "" {
		q = q.Where("LOWER(address_state) = ?", strings.ToLower(strings.TrimSpace(f.State)))
	}
	if f.Country != "" {
		q = q.Where("LOWER(address_country) = ?", strings.ToLower(strings.TrimSpace(f.Country)))
	}
	if f.Bedrooms != nil {
		q = q.Where("bedrooms >= ?", *f.Bedrooms)
	}
	if f.Bathrooms != nil {
		q = q.Where("bathrooms >= ?", *f.Bathrooms)
	}
	if f.AgentID != nil {
		q = q.Where("agent_id = ?", *f.AgentID)
	}
	if f.Featured != nil {
		q = q.Where("is_featured = ?", *f.Featured)
	}
	if term := strings.TrimSpace(f.Q); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(address_city) LIKE ?)", like, like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.Internal(err)
	}

	order, ok := propertySorts[f.Sort]
	if !ok {
		order = propertySorts["newest"]
	}
	err := s.withRelations(q).Order(order).Offset(page.Offset()).Limit(page.Limit).Find(&properties).Error
	if err != nil {
		return nil, 0, utils.Internal(err)
	}
	return properties, total, nil
}

// GetByID returns one property and records the view. Listings that are not public are
// reported as missing to anyone but staff.
func (s *PropertyService) GetByID(ctx context.Context, id uint, actor *Actor, viewer ViewerInfo) (*models.Property, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.IsPublic() && !actor.IsStaff() {
		return nil, utils.NotFound("property")
	}

	if s.views != nil {
		view := models.PropertyView{PropertyID: p.ID, IP: viewer.IP, UserAgent: truncate(viewer.UserAgent, 255)}
		if actor != nil {
			uid := actor.UserID
			view.UserID = &uid
		}
		s.views.Record(view)
	}
	return p, nil
}

func (s *PropertyService) load(ctx context.Context, id uint) (*models.Property, error) {
	var p models.Property
	err := s.withRelations(s.db.WithContext(ctx)).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("property")
	}
	if err != nil {
		return nil, utils.Internal(err)
	}
	return &p, nil
}

// loadOwned loads a property the actor may modify: admins any, agents only their own.
func (s *PropertyService) loadOwned(ctx context.Context, id uint, actor *Actor) (*models.Property, error) {
	if !actor.IsStaff() {
		return nil, utils.Forbidden(errors.New("staff role required"))
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && p.AgentID != actor.UserID {
		return nil, utils.Forbidden(errNotOwner)
	}
	return p, nil
}

func (s *PropertyService) Create(ctx context.Context, in PropertyInput, actor *Actor) (*models.Property, error) {
	if !actor.IsStaff() {
		return nil, utils.Forbidden(errors.New("staff role required"))
	}
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}

	ownerID := actor.UserID
	if in.AgentID != nil && *in.AgentID != actor.UserID {
		if !actor.IsAdmin() {
			return nil, utils.Forbidden(errors.New("only admins can assign listings"))
		}
		if err := s.checkAssignable(ctx, *in.AgentID); err != nil {
			return nil, err
		}
		ownerID = *in.AgentID
	}
	if in.IsFeatured && !actor.IsAdmin() {
		return nil, utils.Forbidden(errors.New("only admins can feature listings"))
	}

	amenities, err := encodeAmenities(in.Amenities)
	if err != nil {
		return nil, err
	}

	p := models.Property{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Type:        in.Type,
		Status:      in.Status,
		ListingType: in.ListingType,
		Price:       *in.Price,
		Address:     addressFromInput(in.Address),
		Location:    models.Location{Lat: *in.Location.Lat, Lng: *in.Location.Lng},
		Features:    featuresFromInput(in.Features),
		Amenities:   amenities,
		IsFeatured:  in.IsFeatured,
		AgentID:     ownerID,
	}
	if p.Status == "" {
		p.Status = models.StatusAvailable
	}
	if p.ListingType == "" {
		p.ListingType = models.ListingSale
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&p).Error; err != nil {
		return nil, utils.Internal(err)
	}
	s.invalidate(ctx, cache.NamespaceProperties)

	utils.InfoLogger.WithFields(logrus.Fields{"property_id": p.ID, "agent_id": p.AgentID}).Info("Property created")
	return s.load(ctx, p.ID)
}

func (s *PropertyService) Update(ctx context.Context, id uint, in PropertyUpdateInput, actor *Actor) (*models.Property, error) {
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	p, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if in.AgentID != nil && *in.AgentID != p.AgentID {
		if !actor.IsAdmin() {
			return nil, utils.Forbidden(errors.New("only admins can reassign listings"))
		}
		if err := s.checkAssignable(ctx, *in.AgentID); err != nil {
			return nil, err
		}
		p.AgentID = *in.AgentID
		p.Agent = nil
	}
	if in.IsFeatured != nil && *in.IsFeatured != p.IsFeatured {
		if !actor.IsAdmin() {
			return nil, utils.Forbidden(errors.New("only admins can feature listings"))
		}
		p.IsFeatured = *in.IsFeatured
	}

	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Type != nil {
		p.Type = *in.Type
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.ListingType != nil {
		p.ListingType = *in.ListingType
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Address != nil {
		p.Address = addressFromInput(*in.Address)
	}
	if in.Location != nil {
		p.Location = models.Location{Lat: *in.Location.Lat, Lng: *in.Location.Lng}
	}
	if in.Features != nil {
		p.Features = featuresFromInput(*in.Features)
	}
	if in.Amenities != nil {
		amenities, err := encodeAmenities(*in.Amenities)
		if err != nil {
			return nil, err
		}
		p.Amenities = amenities
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error; err != nil {
		return nil, utils.Internal(err)
	}
	s.invalidate(ctx, cache.NamespaceProperties)
	// Inquiry pages embed the property summary and are scoped by the owning agent.
	s.invalidate(ctx, cache.NamespaceInquiries)
	return s.load(ctx, p.ID)
}

// Delete removes the property with its images, inquiries and view history, then the
// uploaded files. File removal failures are logged only.
func (s *PropertyService) Delete(ctx context.Context, id uint, actor *Actor) error {
	p, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("property_id = ?", p.ID).Delete(&models.PropertyImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("property_id = ?", p.ID).Delete(&models.Inquiry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("property_id = ?", p.ID).Delete(&models.PropertyView{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Property{}, p.ID).Error
	})
	if err != nil {
		return utils.Internal(err)
	}

	for _, img := range p.Images {
		s.removeFile(ctx, img.URL)
	}
	s.invalidate(ctx, cache.NamespaceProperties)
	s.invalidate(ctx, cache.NamespaceInquiries)

	utils.InfoLogger.WithFields(logrus.Fields{"property_id": p.ID, "actor_id": actor.UserID}).Info("Property deleted")
	return nil
}

// UploadImages validates every file before storing any of them. New images are appended
// after the existing ones; primaryIndex, when set, makes that new image the only primary.
func (s *PropertyService) UploadImages(ctx context.Context, id uint, files []*multipart.FileHeader, primaryIndex *int, actor *Actor) (*models.Property, error) {
	p, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, utils.ValidationError("validation failed", utils.FieldError{Field: "images", Message: "at least one image is required"})
	}
	if len(files) > media.MaxFilesPerUpload {
		return nil, utils.ValidationError("validation failed", utils.FieldError{
			Field:   "images",
			Message: fmt.Sprintf("at most %d files per upload", media.MaxFilesPerUpload),
		})
	}
	if primaryIndex != nil && (*primaryIndex < 0 || *primaryIndex >= len(files)) {
		return nil, utils.ValidationError("validation failed", utils.FieldError{
			Field:   "primary_index",
			Message: fmt.Sprintf("must be between 0 and %d", len(files)-1),
		})
	}

	var invalid []utils.FieldError
	for i, fh := range files {
		if _, err := media.Validate(fh, media.ImageTypes); err != nil {
			var fe *media.FileError
			if !errors.As(err, &fe) {
				return nil, utils.Internal(err)
			}
			invalid = append(invalid, utils.FieldError{Field: fmt.Sprintf("images[%d]", i), Message: fe.Error()})
		}
	}
	if len(invalid) > 0 {
		return nil, utils.ValidationError("one or more files were rejected", invalid...)
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		url, err := s.saveFile(ctx, fh)
		if err != nil {
			for _, u := range urls {
				s.removeFile(ctx, u)
			}
			return nil, utils.Upstream("media storage", err)
		}
		urls = append(urls, url)
	}

	nextPos := 0
	for _, img := range p.Images {
		if img.Position >= nextPos {
			nextPos = img.Position + 1
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if primaryIndex != nil {
			if err := tx.Model(&models.PropertyImage{}).Where("property_id = ?", p.ID).Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		images := make([]models.PropertyImage, 0, len(urls))
		for i, url := range urls {
			images = append(images, models.PropertyImage{
				PropertyID: p.ID,
				URL:        url,
				IsPrimary:  primaryIndex != nil && *primaryIndex == i,
				Position:   nextPos + i,
			})
		}
		return tx.Create(&images).Error
	})
	if err != nil {
		for _, u := range urls {
			s.removeFile(ctx, u)
		}
		return nil, utils.Internal(err)
	}

	s.invalidate(ctx, cache.NamespaceProperties)
	return s.load(ctx, p.ID)
}

func (s *PropertyService) saveFile(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.storage.Save(ctx, fh.Filename, f)
}

func (s *PropertyService) SetPrimaryImage(ctx context.Context, id, imageID uint, actor *Actor) (*models.Property, error) {
	p, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if findImage(p, imageID) == nil {
		return nil, utils.NotFound("image")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PropertyImage{}).Where("property_id = ?", p.ID).Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.PropertyImage{}).Where("id = ?", imageID).Update("is_primary", true).Error
	})
	if err != nil {
		return nil, utils.Internal(err)
	}
	s.invalidate(ctx, cache.NamespaceProperties)
	return s.load(ctx, p.ID)
}

func (s *PropertyService) DeleteImage(ctx context.Context, id, imageID uint, actor *Actor) (*models.Property, error) {
	p, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	img := findImage(p, imageID)
	if img == nil {
		return nil, utils.NotFound("image")
	}
	url := img.URL

	if err := s.db.WithContext(ctx).Delete(&models.PropertyImage{}, imageID).Error; err != nil {
		return nil, utils.Internal(err)
	}
	s.removeFile(ctx, url)
	s.invalidate(ctx, cache.NamespaceProperties)
	return s.load(ctx, p.ID)
}

// Nearby returns public listings within the radius ordered by great-circle distance.
func (s *PropertyService) Nearby(ctx context.Context, in NearbyQuery) ([]models.Property, error) {
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	radius := in.RadiusKm
	if radius <= 0 {
		radius = DefaultNearbyRadiusKm
	}
	if radius > MaxNearbyRadiusKm {
		radius = MaxNearbyRadiusKm
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultNearbyLimit
	}
	if limit > maxNearbyLimit {
		limit = maxNearbyLimit
	}
	lat, lng := *in.Lat, *in.Lng

	// Bounding box prefilter; the exact distance check happens below.
	latDelta := radius / kmPerDegreeLat
	q := s.db.WithContext(ctx).Model(&models.Property{}).
		Where("status IN ?", models.PublicStatuses).
		Where("lat BETWEEN ? AND ?", lat-latDelta, lat+latDelta)
	if cos := math.Cos(lat * math.Pi / 180); cos > 0.01 {
		lngDelta := radius / (kmPerDegreeLat * cos)
		if lngDelta < 180 {
			minLng, maxLng := lng-lngDelta, lng+lngDelta
			switch {
			case minLng < -180:
				q = q.Where("(lng >= ? OR lng <= ?)", minLng+360, maxLng)
			case maxLng > 180:
				q = q.Where("(lng >= ? OR lng <= ?)", minLng, maxLng-360)
			default:
				q = q.Where("lng BETWEEN ? AND ?", minLng, maxLng)
			}
		}
	}
	if in.Type != "" {
		q = q.Where("type = ?", in.Type)
	}

	var candidates []models.Property
	if err := s.withRelations(q).Find(&candidates).Error; err != nil {
		return nil, utils.Internal(err)
	}

	origin := haversine.Coord{Lat: lat, Lon: lng}
	result := make([]models.Property, 0, len(candidates))
	for _, p := range candidates {
		_, km := haversine.Distance(origin, haversine.Coord{Lat: p.Location.Lat, Lon: p.Location.Lng})
		if km > radius {
			continue
		}
		d := math.Round(km*100) / 100
		p.DistanceKm = &d
		result = append(result, p)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return *result[i].DistanceKm < *result[j].DistanceKm
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *PropertyService) Featured(ctx context.Context, limit int) ([]models.Property, error) {
	if limit <= 0 {
		limit = defaultFeaturedLimit
	}
	if limit > maxFeaturedLimit {
		limit = maxFeaturedLimit
	}
	properties := []models.Property{}
	err := s.withRelations(s.db.WithContext(ctx)).
		Where("is_featured = ? AND status IN ?", true, models.PublicStatuses).
		Order("created_at DESC, id DESC").Limit(limit).Find(&properties).Error
	if err != nil {
		return nil, utils.Internal(err)
	}
	return properties, nil
}

type groupCount struct {
	Grp string
	Cnt int64
}

func (s *PropertyService) Stats(ctx context.Context) (*PropertyStats, error) {
	db := s.db.WithContext(ctx)
	stats := &PropertyStats{}

	if err := db.Model(&models.Property{}).Count(&stats.Total).Error; err != nil {
		return nil, utils.Internal(err)
	}
	var err error
	if stats.ByStatus, err = countBy(db, &models.Property{}, "status"); err != nil {
		return nil, utils.Internal(err)
	}
	if stats.ByType, err = countBy(db, &models.Property{}, "type"); err != nil {
		return nil, utils.Internal(err)
	}
	if stats.ByListingType, err = countBy(db, &models.Property{}, "listing_type"); err != nil {
		return nil, utils.Internal(err)
	}
	if err := db.Model(&models.Property{}).Where("is_featured = ?", true).Count(&stats.Featured).Error; err != nil {
		return nil, utils.Internal(err)
	}

	var avg *float64
	row := db.Model(&models.Property{}).Select("AVG(price)").Where("status = ?", models.StatusAvailable).Row()
	if err := row.Scan(&avg); err != nil {
		return nil, utils.Internal(err)
	}
	if avg != nil {
		stats.AveragePrice = math.Round(*avg*100) / 100
	}
	return stats, nil
}

// countBy groups model rows by column. column is always a constant from this package.
func countBy(db *gorm.DB, model interface{}, column string, conds ...func(*gorm.DB) *gorm.DB) (map[string]int64, error) {
	q := db.Model(model).Select(column + " AS grp, COUNT(*) AS cnt").Group(column)
	for _, cond := range conds {
		q = cond(q)
	}
	var rows []groupCount
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Grp] = r.Cnt
	}
	return out, nil
}

func (s *PropertyService) checkAssignable(ctx context.Context, userID uint) error {
	var agent models.User
	err := s.db.WithContext(ctx).First(&agent, userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Internal(err)
	}
	if err != nil || !agent.IsActive || !agent.Role.IsStaff() {
		return utils.ValidationError("validation failed", utils.FieldError{
			Field:   "agent_id",
			Message: "must reference an active admin or agent",
		})
	}
	return nil
}

func (s *PropertyService) invalidate(ctx context.Context, namespace string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateNamespace(ctx, namespace); err != nil {
		utils.ErrorLogger.WithField("namespace", namespace).WithError(err).Error("Cache invalidation failed")
	}
}

func (s *PropertyService) removeFile(ctx context.Context, url string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Delete(ctx, url); err != nil {
		utils.ErrorLogger.WithField("url", url).WithError(err).Warn("Failed to delete uploaded file")
	}
}

func findImage(p *models.Property, imageID uint) *models.PropertyImage {
	for i := range p.Images {
		if p.Images[i].ID == imageID {
			return &p.Images[i]
		}
	}
	return nil
}

func addressFromInput(in AddressInput) models.Address {
	return models.Address{
		Street:  strings.TrimSpace(in.Street),
		City:    strings.TrimSpace(in.City),
		State:   strings.TrimSpace(in.State),
		ZipCode: strings.TrimSpace(in.ZipCode),
		Country: strings.TrimSpace(in.Country),
	}
}

func featuresFromInput(in FeaturesInput) models.Features {
	unit := in.AreaUnit
	if unit == "" {
		unit = "sqft"
	}
	return models.Features{Bedrooms: in.Bedrooms, Bathrooms: in.Bathrooms, Area: in.Area, AreaUnit: unit}
}

func encodeAmenities(amenities []string) (datatypes.JSON, error) {
	cleaned := make([]string, 0, len(amenities))
	seen := make(map[string]struct{}, len(amenities))
	for _, a := range amenities {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(a)]; dup {
			continue
		}
		seen[strings.ToLower(a)] = struct{}{}
		cleaned = append(cleaned, a)
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return nil, utils.Internal(err)
	}
	return datatypes.JSON(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
