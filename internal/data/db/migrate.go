package db

import (
	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Model registry
		&types.ModelVersion{},

		// Ingested raw files
		&types.DatasetFile{},
	)
}

func (s *Service) AutoMigrateAll() error {
	return AutoMigrateAll(s.db)
}
