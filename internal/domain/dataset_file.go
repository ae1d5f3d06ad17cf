package domain

import (
	"time"

	"github.com/google/uuid"
)

// DatasetFile records one ingested raw file and the lineage it fed.
type DatasetFile struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	PumpSeries string `gorm:"column:pump_series;not null;index:idx_dataset_file_lineage,priority:1" json:"pump_series"`
	TestType   string `gorm:"column:test_type;not null;index:idx_dataset_file_lineage,priority:2" json:"test_type"`
	FileType   string `gorm:"column:file_type;not null;index:idx_dataset_file_lineage,priority:3" json:"file_type"`

	FilePath string `gorm:"column:file_path;not null" json:"file_path"`
	FileSize int64  `gorm:"column:file_size" json:"file_size"`
	Checksum string `gorm:"column:checksum" json:"checksum"`

	ProcessedAt time.Time `gorm:"column:processed_at;not null" json:"processed_at"`
}

func (DatasetFile) TableName() string { return "dataset_files" }
