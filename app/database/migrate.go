package database

import (
	"hailuo-batch/app/model"

	"gorm.io/gorm"
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.VideoTask{},
		&model.VideoBatch{},
	)
}
