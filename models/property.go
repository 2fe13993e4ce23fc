package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PropertyType string

const (
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeCondo      PropertyType = "condo"
	PropertyTypeTownhouse  PropertyType = "townhouse"
	PropertyTypeLand       PropertyType = "land"
	PropertyTypeCommercial PropertyType = "commercial"
)

type PropertyStatus string

const (
	StatusDraft     PropertyStatus = "draft"
	StatusAvailable PropertyStatus = "available"
	StatusPending   PropertyStatus = "pending"
	StatusSold      PropertyStatus = "sold"
	StatusRented    PropertyStatus = "rented"
	StatusInactive  PropertyStatus = "inactive"
)

// PublicStatuses are the statuses anonymous visitors and plain users may browse.
var PublicStatuses = []PropertyStatus{StatusAvailable, StatusPending, StatusSold, StatusRented}

func (s PropertyStatus) IsPublic() bool {
	for _, ps := range PublicStatuses {
		if s == ps {
			return true
		}
	}
	return false
}

type ListingType string

const (
	ListingSale ListingType = "sale"
	ListingRent ListingType = "rent"
)

type Address struct {
	Street  string `gorm:"type:varchar(255);not null" json:"street"`
	City    string `gorm:"type:varchar(100);not null;index" json:"city"`
	State   string `gorm:"type:varchar(100);not null" json:"state"`
	ZipCode string `gorm:"type:varchar(20);not null" json:"zip_code"`
	Country string `gorm:"type:varchar(100);not null" json:"country"`
}

type Location struct {
	Lat float64 `gorm:"column:lat;index:idx_properties_geo" json:"lat"`
	Lng float64 `gorm:"column:lng;index:idx_properties_geo" json:"lng"`
}

type Features struct {
	Bedrooms  int     `gorm:"not null;default:0" json:"bedrooms"`
	Bathrooms int     `gorm:"not null;default:0" json:"bathrooms"`
	Area      float64 `gorm:"not null;default:0" json:"area"`
	AreaUnit  string  `gorm:"type:varchar(10);not null;default:'sqft'" json:"area_unit"`
}

type Property struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Type        PropertyType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status      PropertyStatus `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
	ListingType ListingType    `gorm:"type:varchar(10);not null;default:'sale'" json:"listing_type"`
	Price       float64        `gorm:"type:decimal(14,2);not null;index" json:"price"`
	Address     Address        `gorm:"embedded;embeddedPrefix:address_" json:"address"`
	Location    Location       `gorm:"embedded" json:"location"`
	Features    Features       `gorm:"embedded" json:"features"`
	Amenities   datatypes.JSON `json:"amenities"`
	IsFeatured  bool           `gorm:"not null;default:false;index" json:"is_featured"`
	ViewCount   int64          `gorm:"not null;default:0" json:"view_count"`

	AgentID uint  `gorm:"not null;index" json:"agent_id"`
	Agent   *User `gorm:"foreignKey:AgentID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`

	Images []PropertyImage `gorm:"foreignKey:PropertyID;constraint:OnDelete:CASCADE" json:"images"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AgentInfo    *UserSummary `gorm:"-" json:"agent,omitempty"`
	PrimaryImage string       `gorm:"-" json:"primary_image"`
	DistanceKm   *float64     `gorm:"-" json:"distance_km,omitempty"`
}

// DisplayImage returns the image marked primary, falling back to the first image in
// insertion order. Images must already be ordered by position.
func (p *Property) DisplayImage() *PropertyImage {
	for i := range p.Images {
		if p.Images[i].IsPrimary {
			return &p.Images[i]
		}
	}
	if len(p.Images) > 0 {
		return &p.Images[0]
	}
	return nil
}

func (p *Property) AfterFind(tx *gorm.DB) error {
	p.FillDerived()
	return nil
}

// FillDerived populates the computed JSON fields from loaded associations.
func (p *Property) FillDerived() {
	p.PrimaryImage = ""
	if img := p.DisplayImage(); img != nil {
		p.PrimaryImage = img.URL
	}
	if p.Agent != nil {
		summary := p.Agent.Summary()
		p.AgentInfo = &summary
	}
	if p.Images == nil {
		p.Images = []PropertyImage{}
	}
}

type PropertyImage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PropertyID uint      `gorm:"not null;index" json:"property_id"`
	URL        string    `gorm:"type:varchar(500);not null" json:"url"`
	IsPrimary  bool      `gorm:"not null;default:false" json:"is_primary"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// PropertyView is one detail-page view, written asynchronously.
type PropertyView struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PropertyID uint      `gorm:"not null;index" json:"property_id"`
	UserID     *uint     `gorm:"index" json:"user_id,omitempty"`
	IP         string    `gorm:"type:varchar(64)" json:"ip"`
	UserAgent  string    `gorm:"type:varchar(255)" json:"user_agent"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
