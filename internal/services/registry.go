package services

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/benchwatch-backend/internal/data/repos/registry"
	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

// VersionSummary is the listing view of one published version, newest
// first, with the stored metrics decoded for display.
type VersionSummary struct {
	Version   int                   `json:"version"`
	TrainedAt time.Time             `json:"trained_at"`
	FileCount int                   `json:"file_count"`
	InputDim  int                   `json:"input_dim"`
	HiddenDim int                   `json:"hidden_dim"`
	Metrics   types.TrainingMetrics `json:"metrics"`
	IsLatest  bool                  `json:"is_latest"`
}

type RegistryService interface {
	ListVersions(dbc dbctx.Context, key types.LineageKey, limit int) ([]VersionSummary, error)
	ListDatasetFiles(dbc dbctx.Context, key types.LineageKey) ([]*types.DatasetFile, error)
}

type registryService struct {
	db       *gorm.DB
	log      *logger.Logger
	versions registry.ModelVersionRepo
	files    registry.DatasetFileRepo
}

func NewRegistryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	versions registry.ModelVersionRepo,
	files registry.DatasetFileRepo,
) RegistryService {
	return &registryService{
		db:       db,
		log:      baseLog.With("service", "RegistryService"),
		versions: versions,
		files:    files,
	}
}

func (rs *registryService) ListVersions(dbc dbctx.Context, key types.LineageKey, limit int) ([]VersionSummary, error) {
	rows, err := rs.versions.ListByKey(dbc, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions for %s: %w", key, err)
	}
	out := make([]VersionSummary, 0, len(rows))
	for i, row := range rows {
		summary := VersionSummary{
			Version:   row.Version,
			TrainedAt: row.TrainedAt,
			FileCount: row.FileCount,
			InputDim:  row.InputDim,
			HiddenDim: row.HiddenDim,
			IsLatest:  i == 0,
		}
		if len(row.MetricsJSON) > 0 {
			if jerr := json.Unmarshal(row.MetricsJSON, &summary.Metrics); jerr != nil {
				rs.log.Warn("Unreadable metrics for version", "key", key.String(), "version", row.Version, "error", jerr)
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

func (rs *registryService) ListDatasetFiles(dbc dbctx.Context, key types.LineageKey) ([]*types.DatasetFile, error) {
	return rs.files.ListByKey(dbc, key)
}
