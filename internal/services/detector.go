package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/benchwatch-backend/internal/artifacts"
	"github.com/yungbote/benchwatch-backend/internal/data/repos/registry"
	"github.com/yungbote/benchwatch-backend/internal/dataset"
	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/ml/detect"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/apierr"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

// ComparisonSide holds one model's detection output within a two-model
// comparison. A side whose model cannot score the data is skipped
// rather than failing the whole comparison.
type ComparisonSide struct {
	Version int            `json:"version"`
	Result  *detect.Result `json:"result,omitempty"`
	Skipped bool           `json:"skipped"`
	Warning string         `json:"warning,omitempty"`
}

type Comparison struct {
	A ComparisonSide `json:"a"`
	B ComparisonSide `json:"b"`
}

// DetectorService scores datasets against published model versions.
// Detection never mutates scaler or model state.
type DetectorService interface {
	Detect(dbc dbctx.Context, filePath string, key types.LineageKey, version int, policy detect.ThresholdPolicy, custom float64) (*detect.Result, error)
	Compare(dbc dbctx.Context, filePath string, key types.LineageKey, versionA, versionB int, policy detect.ThresholdPolicy, custom float64) (*Comparison, error)
	ExportAnomalies(dbc dbctx.Context, filePath string, key types.LineageKey, version int, policy detect.ThresholdPolicy, custom float64, w io.Writer) error
}

type detectorService struct {
	db       *gorm.DB
	log      *logger.Logger
	loaders  *dataset.Registry
	versions registry.ModelVersionRepo
	store    artifacts.Store
}

func NewDetectorService(
	db *gorm.DB,
	baseLog *logger.Logger,
	loaders *dataset.Registry,
	versions registry.ModelVersionRepo,
	store artifacts.Store,
) DetectorService {
	return &detectorService{
		db:       db,
		log:      baseLog.With("service", "DetectorService"),
		loaders:  loaders,
		versions: versions,
		store:    store,
	}
}

// resolveVersion finds the requested version, or the latest when
// version is zero or negative.
func (ds *detectorService) resolveVersion(dbc dbctx.Context, key types.LineageKey, version int) (*types.ModelVersion, error) {
	var (
		row *types.ModelVersion
		err error
	)
	if version <= 0 {
		row, err = ds.versions.GetLatestByKey(dbc, key)
	} else {
		row, err = ds.versions.GetByKeyAndVersion(dbc, key, version)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup version for %s: %w", key, err)
	}
	if row == nil {
		return nil, mlerr.ErrModelNotFound
	}
	return row, nil
}

// scoreAgainst runs one model over an already loaded matrix.
func (ds *detectorService) scoreAgainst(dbc dbctx.Context, m *dataset.Matrix, row *types.ModelVersion, policy detect.ThresholdPolicy, custom float64) (*detect.Result, error) {
	if row.InputDim != m.NumCols() {
		return nil, &mlerr.DimensionError{Want: row.InputDim, Got: m.NumCols()}
	}
	sc, net, err := loadModelBundle(dbc.Ctx, ds.store, row)
	if err != nil {
		return nil, err
	}
	scaled, err := sc.Transform(m)
	if err != nil {
		return nil, err
	}
	errs := net.ReconstructionError(scaled)
	return detect.Evaluate(errs, policy, custom, row.Version)
}

func (ds *detectorService) Detect(dbc dbctx.Context, filePath string, key types.LineageKey, version int, policy detect.ThresholdPolicy, custom float64) (*detect.Result, error) {
	loader, fileType, err := ds.loaders.ForPath(filePath)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "unsupported_file_type", err)
	}
	if key.FileType == "" {
		key.FileType = fileType
	}
	ctx, span := tracer.Start(dbc.Ctx, "detector.Detect",
		trace.WithAttributes(attribute.String("lineage", key.String())))
	defer span.End()
	dbc.Ctx = ctx

	m, err := loader.Load(filePath)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", filePath, err)
	}

	row, err := ds.resolveVersion(dbc, key, version)
	if err != nil {
		return nil, err
	}
	res, err := ds.scoreAgainst(dbc, m, row, policy, custom)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("model.version", row.Version),
		attribute.Int("detect.anomaly_count", res.Stats.AnomalyCount),
	)
	ds.log.Info("Detection complete",
		"key", key.String(),
		"version", row.Version,
		"policy", policy.String(),
		"threshold", res.Threshold,
		"anomalies", res.Stats.AnomalyCount,
		"total", res.Stats.TotalPoints,
	)
	return res, nil
}

// Compare scores the same dataset against two versions of a lineage.
// The sides run concurrently. A side whose input dimension no longer
// matches the data is reported as skipped with a warning; the
// comparison fails only when neither side can score.
func (ds *detectorService) Compare(dbc dbctx.Context, filePath string, key types.LineageKey, versionA, versionB int, policy detect.ThresholdPolicy, custom float64) (*Comparison, error) {
	loader, fileType, err := ds.loaders.ForPath(filePath)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "unsupported_file_type", err)
	}
	if key.FileType == "" {
		key.FileType = fileType
	}
	m, err := loader.Load(filePath)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", filePath, err)
	}

	rowA, err := ds.resolveVersion(dbc, key, versionA)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", versionA, err)
	}
	rowB, err := ds.resolveVersion(dbc, key, versionB)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", versionB, err)
	}

	cmp := &Comparison{
		A: ComparisonSide{Version: rowA.Version},
		B: ComparisonSide{Version: rowB.Version},
	}
	sides := []struct {
		row *types.ModelVersion
		out *ComparisonSide
	}{
		{rowA, &cmp.A},
		{rowB, &cmp.B},
	}

	g, gctx := errgroup.WithContext(dbc.Ctx)
	for _, side := range sides {
		side := side
		g.Go(func() error {
			sideDbc := dbctx.Context{Ctx: gctx, Tx: dbc.Tx}
			res, serr := ds.scoreAgainst(sideDbc, m, side.row, policy, custom)
			if serr != nil {
				var dimErr *mlerr.DimensionError
				if errors.As(serr, &dimErr) {
					side.out.Skipped = true
					side.out.Warning = serr.Error()
					ds.log.Warn("Skipping comparison side",
						"key", key.String(),
						"version", side.row.Version,
						"reason", serr.Error(),
					)
					return nil
				}
				return serr
			}
			side.out.Result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if cmp.A.Skipped && cmp.B.Skipped {
		return nil, &mlerr.DimensionError{Want: rowA.InputDim, Got: m.NumCols()}
	}
	return cmp, nil
}

// ExportAnomalies writes the anomalous rows of a dataset as CSV, with
// the row index and reconstruction error prepended to the original
// columns.
func (ds *detectorService) ExportAnomalies(dbc dbctx.Context, filePath string, key types.LineageKey, version int, policy detect.ThresholdPolicy, custom float64, w io.Writer) error {
	loader, fileType, err := ds.loaders.ForPath(filePath)
	if err != nil {
		return apierr.New(http.StatusBadRequest, "unsupported_file_type", err)
	}
	if key.FileType == "" {
		key.FileType = fileType
	}
	m, err := loader.Load(filePath)
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", filePath, err)
	}

	row, err := ds.resolveVersion(dbc, key, version)
	if err != nil {
		return err
	}
	res, err := ds.scoreAgainst(dbc, m, row, policy, custom)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := append([]string{"data_point_index", "reconstruction_error"}, m.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, idx := range res.AnomalyIndices {
		record := make([]string, 0, len(header))
		record = append(record,
			strconv.Itoa(idx),
			strconv.FormatFloat(res.ReconstructionErrors[idx], 'g', -1, 64),
		)
		for _, v := range m.Rows[idx] {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write export row %d: %w", idx, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
