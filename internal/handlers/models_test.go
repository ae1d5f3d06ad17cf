package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/ml/detect"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
	"github.com/yungbote/benchwatch-backend/internal/services"
)

type stubTrainer struct {
	row *types.ModelVersion
	err error
}

func (s *stubTrainer) HandleNewDataset(dbc dbctx.Context, filePath string, key types.LineageKey) (*types.ModelVersion, error) {
	return s.row, s.err
}

type stubDetector struct {
	result *detect.Result
	cmp    *services.Comparison
	err    error
}

func (s *stubDetector) Detect(dbc dbctx.Context, filePath string, key types.LineageKey, version int, policy detect.ThresholdPolicy, custom float64) (*detect.Result, error) {
	return s.result, s.err
}

func (s *stubDetector) Compare(dbc dbctx.Context, filePath string, key types.LineageKey, versionA, versionB int, policy detect.ThresholdPolicy, custom float64) (*services.Comparison, error) {
	return s.cmp, s.err
}

func (s *stubDetector) ExportAnomalies(dbc dbctx.Context, filePath string, key types.LineageKey, version int, policy detect.ThresholdPolicy, custom float64, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, werr := w.Write([]byte("data_point_index,reconstruction_error\n"))
	return werr
}

type stubRegistry struct {
	versions []services.VersionSummary
	files    []*types.DatasetFile
	err      error
}

func (s *stubRegistry) ListVersions(dbc dbctx.Context, key types.LineageKey, limit int) ([]services.VersionSummary, error) {
	return s.versions, s.err
}

func (s *stubRegistry) ListDatasetFiles(dbc dbctx.Context, key types.LineageKey) ([]*types.DatasetFile, error) {
	return s.files, s.err
}

func newTestHandler(t *testing.T, trainer services.TrainerService, detector services.DetectorService, reg services.RegistryService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	h := NewModelsHandler(log, trainer, detector, reg)
	router := gin.New()
	router.POST("/api/models/train", h.Train)
	router.POST("/api/models/detect", h.Detect)
	router.POST("/api/models/compare", h.Compare)
	router.GET("/api/models/versions", h.ListVersions)
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTrainEndpoint(t *testing.T) {
	trainer := &stubTrainer{row: &types.ModelVersion{Version: 4, FileCount: 4, InputDim: 3}}
	router := newTestHandler(t, trainer, &stubDetector{}, &stubRegistry{})

	w := postJSON(router, "/api/models/train",
		`{"file_path":"/data/run.csv","pump_series":"X200","test_type":"endurance"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var row types.ModelVersion
	if err := json.Unmarshal(w.Body.Bytes(), &row); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if row.Version != 4 {
		t.Fatalf("version=%d, want 4", row.Version)
	}
}

func TestTrainEndpointRejectsMissingFields(t *testing.T) {
	router := newTestHandler(t, &stubTrainer{}, &stubDetector{}, &stubRegistry{})
	w := postJSON(router, "/api/models/train", `{"file_path":"/data/run.csv"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
}

func TestDetectEndpointMapsNotFound(t *testing.T) {
	router := newTestHandler(t, &stubTrainer{}, &stubDetector{err: mlerr.ErrModelNotFound}, &stubRegistry{})
	w := postJSON(router, "/api/models/detect",
		`{"file_path":"/data/run.csv","pump_series":"X200","test_type":"endurance"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Code != "model_not_found" {
		t.Fatalf("error code=%q", env.Error.Code)
	}
}

func TestDetectEndpointMapsDimensionMismatch(t *testing.T) {
	router := newTestHandler(t, &stubTrainer{},
		&stubDetector{err: &mlerr.DimensionError{Want: 3, Got: 2}}, &stubRegistry{})
	w := postJSON(router, "/api/models/detect",
		`{"file_path":"/data/run.csv","pump_series":"X200","test_type":"endurance"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", w.Code)
	}
}

func TestDetectEndpointRejectsUnknownPolicy(t *testing.T) {
	router := newTestHandler(t, &stubTrainer{}, &stubDetector{}, &stubRegistry{})
	w := postJSON(router, "/api/models/detect",
		`{"file_path":"/data/run.csv","pump_series":"X200","test_type":"endurance","threshold_policy":"median"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
}

func TestCompareEndpoint(t *testing.T) {
	cmp := &services.Comparison{
		A: services.ComparisonSide{Version: 1, Skipped: true, Warning: "data has 2 columns but model expects 3"},
		B: services.ComparisonSide{Version: 2, Result: &detect.Result{Version: 2}},
	}
	router := newTestHandler(t, &stubTrainer{}, &stubDetector{cmp: cmp}, &stubRegistry{})
	w := postJSON(router, "/api/models/compare",
		`{"file_path":"/data/run.csv","pump_series":"X200","test_type":"endurance","version_a":1,"version_b":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got services.Comparison
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.A.Skipped || got.B.Result == nil {
		t.Fatalf("comparison=%+v", got)
	}
}

func TestListVersionsEndpoint(t *testing.T) {
	reg := &stubRegistry{versions: []services.VersionSummary{
		{Version: 2, IsLatest: true},
		{Version: 1},
	}}
	router := newTestHandler(t, &stubTrainer{}, &stubDetector{}, reg)

	req := httptest.NewRequest(http.MethodGet,
		"/api/models/versions?pump_series=X200&test_type=endurance&file_type=csv", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body struct {
		Versions []services.VersionSummary `json:"versions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Versions) != 2 || !body.Versions[0].IsLatest {
		t.Fatalf("versions=%+v", body.Versions)
	}
}
