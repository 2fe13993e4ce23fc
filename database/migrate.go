package database

import (
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

// Models lists every persisted model in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Property{},
		&models.PropertyImage{},
		&models.PropertyView{},
		&models.Inquiry{},
		&models.Notification{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	utils.InfoLogger.Info("AutoMigrate completed")

	// Rows written before amenities existed have NULL there; the API always returns a list.
	if err := db.Exec("UPDATE properties SET amenities = '[]' WHERE amenities IS NULL").Error; err != nil {
		utils.ErrorLogger.WithError(err).Warn("Backfill of empty amenities failed")
	}
	return nil
}
