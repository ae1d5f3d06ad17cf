package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/benchwatch-backend/internal/artifacts"
	"github.com/yungbote/benchwatch-backend/internal/config"
	"github.com/yungbote/benchwatch-backend/internal/data/repos/registry"
	"github.com/yungbote/benchwatch-backend/internal/dataset"
	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/ml/autoencoder"
	"github.com/yungbote/benchwatch-backend/internal/ml/scaler"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/apierr"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

const publishRetries = 3

var tracer = otel.Tracer("github.com/yungbote/benchwatch-backend/internal/services")

// TrainerService ingests one dataset file at a time and folds it into
// the lineage's model, publishing a new immutable version per file.
type TrainerService interface {
	HandleNewDataset(dbc dbctx.Context, filePath string, key types.LineageKey) (*types.ModelVersion, error)
}

type trainerService struct {
	db       *gorm.DB
	log      *logger.Logger
	loaders  *dataset.Registry
	versions registry.ModelVersionRepo
	files    registry.DatasetFileRepo
	store    artifacts.Store
	trainCfg config.TrainingConfig

	mu      sync.Mutex
	lineage map[string]*sync.Mutex
}

func NewTrainerService(
	db *gorm.DB,
	baseLog *logger.Logger,
	loaders *dataset.Registry,
	versions registry.ModelVersionRepo,
	files registry.DatasetFileRepo,
	store artifacts.Store,
	trainCfg config.TrainingConfig,
) TrainerService {
	return &trainerService{
		db:       db,
		log:      baseLog.With("service", "TrainerService"),
		loaders:  loaders,
		versions: versions,
		files:    files,
		store:    store,
		trainCfg: trainCfg,
		lineage:  map[string]*sync.Mutex{},
	}
}

// lineageLock serializes training per lineage inside this process.
// Cross-process races are caught by the registry's unique index.
func (ts *trainerService) lineageLock(key types.LineageKey) *sync.Mutex {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	m, ok := ts.lineage[key.String()]
	if !ok {
		m = &sync.Mutex{}
		ts.lineage[key.String()] = m
	}
	return m
}

// versionMetadata is the metadata artifact written next to every
// published model and scaler.
type versionMetadata struct {
	PumpSeries        string                `json:"pump_series"`
	TestType          string                `json:"test_type"`
	FileType          string                `json:"file_type"`
	Version           int                   `json:"version"`
	TrainedAt         time.Time             `json:"trained_at"`
	FileCount         int                   `json:"file_count"`
	InputDim          int                   `json:"input_dim"`
	HiddenDim         int                   `json:"hidden_dim"`
	Columns           []string              `json:"columns"`
	Metrics           types.TrainingMetrics `json:"metrics"`
	SourceFiles       []string              `json:"source_files"`
	ArchitectureReset bool                  `json:"architecture_reset"`
}

func (ts *trainerService) HandleNewDataset(dbc dbctx.Context, filePath string, key types.LineageKey) (*types.ModelVersion, error) {
	loader, fileType, err := ts.loaders.ForPath(filePath)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "unsupported_file_type", err)
	}
	if key.FileType == "" {
		key.FileType = fileType
	}

	ctx, span := tracer.Start(dbc.Ctx, "trainer.HandleNewDataset",
		trace.WithAttributes(attribute.String("lineage", key.String())))
	defer span.End()
	dbc.Ctx = ctx

	m, err := loader.Load(filePath)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", filePath, err)
	}

	checksum, fileSize, err := fileDigest(filePath)
	if err != nil {
		return nil, fmt.Errorf("digest dataset %s: %w", filePath, err)
	}

	lock := ts.lineageLock(key)
	lock.Lock()
	defer lock.Unlock()

	latest, err := ts.versions.GetLatestByKey(dbc, key)
	if err != nil {
		return nil, fmt.Errorf("lookup latest version for %s: %w", key, err)
	}

	var (
		sc          *scaler.Scaler
		net         *autoencoder.Network
		nextVersion = 1
		fileCount   = 1
		sourceFiles []string
		reset       bool
	)
	switch {
	case latest == nil:
		sc = scaler.New(m.NumCols())
		net = autoencoder.New(m.NumCols(), autoencoder.HiddenSizeFor(m.NumCols()), ts.trainCfg.Seed)
		ts.log.Info("Starting new model lineage", "key", key.String(), "input_dim", m.NumCols())
	case latest.InputDim != m.NumCols():
		// Incompatible feature count. Accumulated weights and scaler
		// state are unusable, so the lineage restarts from scratch
		// while the version counter keeps advancing.
		reset = true
		nextVersion = latest.Version + 1
		sc = scaler.New(m.NumCols())
		net = autoencoder.New(m.NumCols(), autoencoder.HiddenSizeFor(m.NumCols()), ts.trainCfg.Seed)
		ts.log.Warn("Architecture reset: feature count changed",
			"key", key.String(),
			"previous_input_dim", latest.InputDim,
			"new_input_dim", m.NumCols(),
			"previous_version", latest.Version,
		)
	default:
		nextVersion = latest.Version + 1
		fileCount = latest.FileCount + 1
		sc, net, err = ts.loadBundle(dbc, latest)
		if err != nil {
			return nil, err
		}
		if len(latest.SourceFilesJSON) > 0 {
			if jerr := json.Unmarshal(latest.SourceFilesJSON, &sourceFiles); jerr != nil {
				ts.log.Warn("Discarding unreadable source file list", "key", key.String(), "error", jerr)
				sourceFiles = nil
			}
		}
	}

	if err := sc.PartialFit(m); err != nil {
		return nil, fmt.Errorf("update scaler for %s: %w", key, err)
	}
	scaled, err := sc.Transform(m)
	if err != nil {
		return nil, fmt.Errorf("scale dataset for %s: %w", key, err)
	}

	loss, err := net.Train(scaled, autoencoder.TrainConfig{
		Epochs:       ts.trainCfg.Epochs,
		BatchSize:    ts.trainCfg.BatchSize,
		LearningRate: ts.trainCfg.LearningRate,
		Seed:         ts.trainCfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("train model for %s: %w", key, err)
	}

	errMean, errStd := populationMeanStd(net.ReconstructionError(scaled))
	metrics := types.TrainingMetrics{
		TrainingLoss:            loss,
		ReconstructionErrorMean: errMean,
		ReconstructionErrorStd:  errStd,
	}
	sourceFiles = append(sourceFiles, filePath)

	row, err := ts.publish(dbc, key, nextVersion, fileCount, m.Columns, sc, net, metrics, sourceFiles, reset)
	if err != nil {
		return nil, err
	}

	if err := ts.files.Register(dbc, &types.DatasetFile{
		ID:          uuid.New(),
		PumpSeries:  key.PumpSeries,
		TestType:    key.TestType,
		FileType:    key.FileType,
		FilePath:    filePath,
		FileSize:    fileSize,
		Checksum:    checksum,
		ProcessedAt: time.Now(),
	}); err != nil {
		// The version is already published; losing the provenance row
		// is not worth failing the whole ingest.
		ts.log.Error("Dataset file registration failed", "key", key.String(), "path", filePath, "error", err)
	}

	span.SetAttributes(
		attribute.Int("model.version", row.Version),
		attribute.Int("model.input_dim", row.InputDim),
		attribute.Bool("model.architecture_reset", reset),
	)
	ts.log.Info("Published model version",
		"key", key.String(),
		"version", row.Version,
		"file_count", row.FileCount,
		"training_loss", metrics.TrainingLoss,
		"architecture_reset", reset,
	)
	return row, nil
}

func (ts *trainerService) loadBundle(dbc dbctx.Context, row *types.ModelVersion) (*scaler.Scaler, *autoencoder.Network, error) {
	return loadModelBundle(dbc.Ctx, ts.store, row)
}

// publish writes the versioned artifacts, appends the registry row, then
// moves the latest aliases. On a version conflict it re-reads the
// counter and retries with backoff.
func (ts *trainerService) publish(
	dbc dbctx.Context,
	key types.LineageKey,
	version int,
	fileCount int,
	columns []string,
	sc *scaler.Scaler,
	net *autoencoder.Network,
	metrics types.TrainingMetrics,
	sourceFiles []string,
	reset bool,
) (*types.ModelVersion, error) {
	modelRaw, err := net.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	scalerRaw, err := sc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode scaler: %w", err)
	}
	metricsRaw, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	sourcesRaw, err := json.Marshal(sourceFiles)
	if err != nil {
		return nil, fmt.Errorf("encode source files: %w", err)
	}

	for attempt := 0; attempt < publishRetries; attempt++ {
		trainedAt := time.Now()
		metaRaw, err := json.Marshal(versionMetadata{
			PumpSeries:        key.PumpSeries,
			TestType:          key.TestType,
			FileType:          key.FileType,
			Version:           version,
			TrainedAt:         trainedAt,
			FileCount:         fileCount,
			InputDim:          net.InputDim,
			HiddenDim:         net.HiddenDim,
			Columns:           columns,
			Metrics:           metrics,
			SourceFiles:       sourceFiles,
			ArchitectureReset: reset,
		})
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}

		modelKey := artifacts.VersionKey(key, version, artifacts.KindModel)
		scalerKey := artifacts.VersionKey(key, version, artifacts.KindScaler)
		metaKey := artifacts.VersionKey(key, version, artifacts.KindMetadata)
		if err := ts.store.Write(dbc.Ctx, modelKey, modelRaw); err != nil {
			return nil, err
		}
		if err := ts.store.Write(dbc.Ctx, scalerKey, scalerRaw); err != nil {
			return nil, err
		}
		if err := ts.store.Write(dbc.Ctx, metaKey, metaRaw); err != nil {
			return nil, err
		}

		row := &types.ModelVersion{
			ID:              uuid.New(),
			PumpSeries:      key.PumpSeries,
			TestType:        key.TestType,
			FileType:        key.FileType,
			Version:         version,
			TrainedAt:       trainedAt,
			FileCount:       fileCount,
			InputDim:        net.InputDim,
			HiddenDim:       net.HiddenDim,
			MetricsJSON:     datatypes.JSON(metricsRaw),
			SourceFilesJSON: datatypes.JSON(sourcesRaw),
			ModelPath:       modelKey,
			ScalerPath:      scalerKey,
			MetadataPath:    metaKey,
		}
		err = ts.versions.Append(dbc, row)
		if err == nil {
			// Aliases move only after the registry accepted the row, so
			// "latest" never points at an unpublished version.
			if err := ts.store.Write(dbc.Ctx, artifacts.LatestKey(key, artifacts.KindModel), modelRaw); err != nil {
				return nil, err
			}
			if err := ts.store.Write(dbc.Ctx, artifacts.LatestKey(key, artifacts.KindScaler), scalerRaw); err != nil {
				return nil, err
			}
			if err := ts.store.Write(dbc.Ctx, artifacts.LatestKey(key, artifacts.KindMetadata), metaRaw); err != nil {
				return nil, err
			}
			return row, nil
		}
		if !errors.Is(err, mlerr.ErrRegistryConflict) {
			return nil, fmt.Errorf("append version %d for %s: %w", version, key, err)
		}

		latest, lerr := ts.versions.GetLatestByKey(dbc, key)
		if lerr != nil {
			return nil, fmt.Errorf("re-read latest after conflict for %s: %w", key, lerr)
		}
		if latest != nil && latest.Version >= version {
			version = latest.Version + 1
		} else {
			version++
		}
		ts.log.Warn("Registry conflict on publish, retrying",
			"key", key.String(),
			"next_version", version,
			"attempt", attempt+1,
		)
		time.Sleep(time.Duration(50<<attempt) * time.Millisecond)
	}
	return nil, mlerr.ErrRegistryConflict
}

func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func populationMeanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(vals)))
}
