package registry

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

// ModelVersionRepo is the registry store for trained versions. Published
// rows are immutable; only appends happen here. The unique
// (lineage, version) index is what serializes racing writers.
type ModelVersionRepo interface {
	Append(dbc dbctx.Context, row *types.ModelVersion) error
	GetLatestByKey(dbc dbctx.Context, key types.LineageKey) (*types.ModelVersion, error)
	GetByKeyAndVersion(dbc dbctx.Context, key types.LineageKey, version int) (*types.ModelVersion, error)
	ListByKey(dbc dbctx.Context, key types.LineageKey, limit int) ([]*types.ModelVersion, error)
}

type modelVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModelVersionRepo(db *gorm.DB, baseLog *logger.Logger) ModelVersionRepo {
	return &modelVersionRepo{db: db, log: baseLog.With("repo", "ModelVersionRepo")}
}

func keyValid(key types.LineageKey) bool {
	return strings.TrimSpace(key.PumpSeries) != "" &&
		strings.TrimSpace(key.TestType) != "" &&
		strings.TrimSpace(key.FileType) != ""
}

func (r *modelVersionRepo) Append(dbc dbctx.Context, row *types.ModelVersion) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || !keyValid(row.Key()) {
		return errors.New("model version row missing lineage key")
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return mlerr.ErrRegistryConflict
		}
		return err
	}
	return nil
}

func (r *modelVersionRepo) GetLatestByKey(dbc dbctx.Context, key types.LineageKey) (*types.ModelVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if !keyValid(key) {
		return nil, nil
	}
	row := &types.ModelVersion{}
	if err := t.WithContext(dbc.Ctx).
		Where("pump_series = ? AND test_type = ? AND file_type = ?", key.PumpSeries, key.TestType, key.FileType).
		Order("version DESC").
		Limit(1).
		First(row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *modelVersionRepo) GetByKeyAndVersion(dbc dbctx.Context, key types.LineageKey, version int) (*types.ModelVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if !keyValid(key) || version <= 0 {
		return nil, nil
	}
	row := &types.ModelVersion{}
	if err := t.WithContext(dbc.Ctx).
		Where("pump_series = ? AND test_type = ? AND file_type = ? AND version = ?",
			key.PumpSeries, key.TestType, key.FileType, version).
		First(row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *modelVersionRepo) ListByKey(dbc dbctx.Context, key types.LineageKey, limit int) ([]*types.ModelVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.ModelVersion{}
	if !keyValid(key) {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if err := t.WithContext(dbc.Ctx).
		Where("pump_series = ? AND test_type = ? AND file_type = ?", key.PumpSeries, key.TestType, key.FileType).
		Order("version DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// isUniqueViolation matches the duplicate-key errors of both backing
// drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// sqlite reports constraint failures as plain strings.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
