package database

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SeedAdmin creates the bootstrap admin when no account uses that email. It reports
// whether a user was created.
func SeedAdmin(ctx context.Context, db *gorm.DB, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, errors.New("admin email and password are required")
	}

	var existing models.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := models.User{Name: "Administrator", Email: email, Password: hashed, Role: models.RoleAdmin, IsActive: true}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return false, err
	}
	utils.InfoLogger.WithField("email", email).Info("Admin account seeded")
	return true, nil
}

// SeedDemo inserts a demo agent with a handful of listings. It does nothing when the
// demo agent already exists.
func SeedDemo(ctx context.Context, db *gorm.DB) error {
	const agentEmail = "agent@foresite.local"

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", agentEmail).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		utils.InfoLogger.Info("Demo data already present")
		return nil
	}

	hashed, err := utils.HashPassword("agent-password")
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		agent := models.User{Name: "Dana Agent", Email: agentEmail, Password: hashed, Phone: "+1 512 555 0101", Role: models.RoleAgent, IsActive: true}
		if err := tx.Create(&agent).Error; err != nil {
			return err
		}

		listings := []models.Property{
			{
				Title: "Craftsman bungalow near Zilker Park", Description: "Renovated 1930s bungalow with a deep porch.",
				Type: models.PropertyTypeHouse, Status: models.StatusAvailable, ListingType: models.ListingSale, Price: 689000,
				Address:  models.Address{Street: "1804 Kinney Ave", City: "Austin", State: "TX", ZipCode: "78704", Country: "USA"},
				Location: models.Location{Lat: 30.2551, Lng: -97.7700},
				Features: models.Features{Bedrooms: 3, Bathrooms: 2, Area: 1650, AreaUnit: "sqft"},
				Amenities: datatypes.JSON(`["porch","garden","garage"]`), IsFeatured: true,
			},
			{
				Title: "Downtown loft with skyline views", Description: "Open plan loft two blocks from Congress Ave.",
				Type: models.PropertyTypeApartment, Status: models.StatusAvailable, ListingType: models.ListingRent, Price: 2850,
				Address:  models.Address{Street: "200 Congress Ave #18B", City: "Austin", State: "TX", ZipCode: "78701", Country: "USA"},
				Location: models.Location{Lat: 30.2646, Lng: -97.7447},
				Features: models.Features{Bedrooms: 1, Bathrooms: 1, Area: 900, AreaUnit: "sqft"},
				Amenities: datatypes.JSON(`["gym","pool","concierge"]`),
			},
			{
				Title: "Hill Country acreage", Description: "Twelve wooded acres with a seasonal creek.",
				Type: models.PropertyTypeLand, Status: models.StatusDraft, ListingType: models.ListingSale, Price: 415000,
				Address:  models.Address{Street: "RR 12", City: "Wimberley", State: "TX", ZipCode: "78676", Country: "USA"},
				Location: models.Location{Lat: 29.9974, Lng: -98.0986},
				Features: models.Features{Area: 48562, AreaUnit: "sqm"},
				Amenities: datatypes.JSON(`[]`),
			},
		}
		for i := range listings {
			listings[i].AgentID = agent.ID
		}
		if err := tx.Create(&listings).Error; err != nil {
			return err
		}
		utils.InfoLogger.WithFields(logrus.Fields{"agent_id": agent.ID, "listings": len(listings)}).Info("Demo data seeded")
		return nil
	})
}
