package registry

import (
	"errors"

	"gorm.io/gorm"

	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

type DatasetFileRepo interface {
	Register(dbc dbctx.Context, row *types.DatasetFile) error
	ListByKey(dbc dbctx.Context, key types.LineageKey) ([]*types.DatasetFile, error)
	CountByKey(dbc dbctx.Context, key types.LineageKey) (int64, error)
}

type datasetFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetFileRepo(db *gorm.DB, baseLog *logger.Logger) DatasetFileRepo {
	return &datasetFileRepo{db: db, log: baseLog.With("repo", "DatasetFileRepo")}
}

func (r *datasetFileRepo) Register(dbc dbctx.Context, row *types.DatasetFile) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || !keyValid(types.LineageKey{PumpSeries: row.PumpSeries, TestType: row.TestType, FileType: row.FileType}) {
		return errors.New("dataset file row missing lineage key")
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *datasetFileRepo) ListByKey(dbc dbctx.Context, key types.LineageKey) ([]*types.DatasetFile, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.DatasetFile{}
	if !keyValid(key) {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("pump_series = ? AND test_type = ? AND file_type = ?", key.PumpSeries, key.TestType, key.FileType).
		Order("processed_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *datasetFileRepo) CountByKey(dbc dbctx.Context, key types.LineageKey) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if !keyValid(key) {
		return 0, nil
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&types.DatasetFile{}).
		Where("pump_series = ? AND test_type = ? AND file_type = ?", key.PumpSeries, key.TestType, key.FileType).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
