package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LineageKey identifies one independent model history. Two keys that
// differ in any field never share weights or scaler state.
type LineageKey struct {
	PumpSeries string `json:"pump_series"`
	TestType   string `json:"test_type"`
	FileType   string `json:"file_type"`
}

func (k LineageKey) String() string {
	return k.PumpSeries + "/" + k.TestType + "/" + k.FileType
}

// ModelVersion is one immutable trained artifact bundle for a lineage.
// Rows are append-only; the newest version per key is "latest".
type ModelVersion struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	PumpSeries string `gorm:"column:pump_series;not null;index:idx_model_version,unique,priority:1" json:"pump_series"`
	TestType   string `gorm:"column:test_type;not null;index:idx_model_version,unique,priority:2" json:"test_type"`
	FileType   string `gorm:"column:file_type;not null;index:idx_model_version,unique,priority:3" json:"file_type"`
	Version    int    `gorm:"column:version;not null;index:idx_model_version,unique,priority:4" json:"version"`

	TrainedAt time.Time `gorm:"column:trained_at;not null" json:"trained_at"`
	FileCount int       `gorm:"column:file_count;not null" json:"file_count"`
	InputDim  int       `gorm:"column:input_dim;not null" json:"input_dim"`
	HiddenDim int       `gorm:"column:hidden_dim;not null" json:"hidden_dim"`

	MetricsJSON     datatypes.JSON `gorm:"column:metrics_json" json:"metrics_json"`
	SourceFilesJSON datatypes.JSON `gorm:"column:source_files_json" json:"source_files_json"`

	ModelPath    string `gorm:"column:model_path;not null" json:"model_path"`
	ScalerPath   string `gorm:"column:scaler_path;not null" json:"scaler_path"`
	MetadataPath string `gorm:"column:metadata_path;not null" json:"metadata_path"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ModelVersion) TableName() string { return "model_versions" }

func (m *ModelVersion) Key() LineageKey {
	return LineageKey{PumpSeries: m.PumpSeries, TestType: m.TestType, FileType: m.FileType}
}

// TrainingMetrics is the metrics payload stored in MetricsJSON.
type TrainingMetrics struct {
	TrainingLoss            float64 `json:"training_loss"`
	ReconstructionErrorMean float64 `json:"reconstruction_error_mean"`
	ReconstructionErrorStd  float64 `json:"reconstruction_error_std"`
}
