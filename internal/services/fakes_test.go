package services

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/yungbote/benchwatch-backend/internal/artifacts"
	"github.com/yungbote/benchwatch-backend/internal/config"
	"github.com/yungbote/benchwatch-backend/internal/dataset"
	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

// memVersionRepo is an in-memory stand-in for the registry that
// reproduces the append-only, unique (lineage, version) semantics.
type memVersionRepo struct {
	mu sync.Mutex
	// forcedConflicts makes the next N appends fail with a conflict to
	// exercise the retry path.
	forcedConflicts int
	rows            []*types.ModelVersion
}

func (r *memVersionRepo) Append(dbc dbctx.Context, row *types.ModelVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forcedConflicts > 0 {
		r.forcedConflicts--
		return mlerr.ErrRegistryConflict
	}
	for _, existing := range r.rows {
		if existing.Key() == row.Key() && existing.Version == row.Version {
			return mlerr.ErrRegistryConflict
		}
	}
	cp := *row
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memVersionRepo) GetLatestByKey(dbc dbctx.Context, key types.LineageKey) (*types.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.ModelVersion
	for _, row := range r.rows {
		if row.Key() != key {
			continue
		}
		if latest == nil || row.Version > latest.Version {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memVersionRepo) GetByKeyAndVersion(dbc dbctx.Context, key types.LineageKey, version int) (*types.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Key() == key && row.Version == version {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memVersionRepo) ListByKey(dbc dbctx.Context, key types.LineageKey, limit int) ([]*types.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.ModelVersion{}
	for _, row := range r.rows {
		if row.Key() == key {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memFileRepo struct {
	mu   sync.Mutex
	rows []*types.DatasetFile
}

func (r *memFileRepo) Register(dbc dbctx.Context, row *types.DatasetFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *row
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memFileRepo) ListByKey(dbc dbctx.Context, key types.LineageKey) ([]*types.DatasetFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.DatasetFile{}
	for _, row := range r.rows {
		if (types.LineageKey{PumpSeries: row.PumpSeries, TestType: row.TestType, FileType: row.FileType}) == key {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memFileRepo) CountByKey(dbc dbctx.Context, key types.LineageKey) (int64, error) {
	rows, _ := r.ListByKey(dbc, key)
	return int64(len(rows)), nil
}

// testEnv wires a trainer and detector against in-memory repos and a
// local artifact store in a temp dir.
type testEnv struct {
	trainer  TrainerService
	detector DetectorService
	versions *memVersionRepo
	files    *memFileRepo
	store    artifacts.Store
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	dir := t.TempDir()
	store, err := artifacts.NewLocalStore(log, filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("init local store: %v", err)
	}
	versions := &memVersionRepo{}
	files := &memFileRepo{}
	loaders := dataset.NewRegistry()
	trainCfg := config.TrainingConfig{Epochs: 5, BatchSize: 16, LearningRate: 0.01, Seed: 42}
	return &testEnv{
		trainer:  NewTrainerService(nil, log, loaders, versions, files, store, trainCfg),
		detector: NewDetectorService(nil, log, loaders, versions, store),
		versions: versions,
		files:    files,
		store:    store,
		dir:      dir,
	}
}

func (e *testEnv) writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
