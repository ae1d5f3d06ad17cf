package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/ml/detect"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
	"github.com/yungbote/benchwatch-backend/internal/services"
)

type ModelsHandler struct {
	log             *logger.Logger
	trainerService  services.TrainerService
	detectorService services.DetectorService
	registryService services.RegistryService
}

func NewModelsHandler(
	log *logger.Logger,
	trainerService services.TrainerService,
	detectorService services.DetectorService,
	registryService services.RegistryService,
) *ModelsHandler {
	return &ModelsHandler{
		log:             log.With("handler", "ModelsHandler"),
		trainerService:  trainerService,
		detectorService: detectorService,
		registryService: registryService,
	}
}

type lineageRequest struct {
	FilePath   string `json:"file_path" binding:"required"`
	PumpSeries string `json:"pump_series" binding:"required"`
	TestType   string `json:"test_type" binding:"required"`
	FileType   string `json:"file_type"`
}

func (r lineageRequest) key() types.LineageKey {
	return types.LineageKey{
		PumpSeries: r.PumpSeries,
		TestType:   r.TestType,
		FileType:   r.FileType,
	}
}

type detectRequest struct {
	lineageRequest
	Version         int     `json:"version"`
	ThresholdPolicy string  `json:"threshold_policy"`
	CustomThreshold float64 `json:"custom_threshold"`
}

func (r detectRequest) policy() (detect.ThresholdPolicy, error) {
	if r.ThresholdPolicy == "" {
		return detect.DefaultPolicy, nil
	}
	return detect.ParsePolicy(r.ThresholdPolicy)
}

// POST /api/models/train
// Ingest one dataset file and publish a new model version for its lineage.
func (h *ModelsHandler) Train(c *gin.Context) {
	var req lineageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	row, err := h.trainerService.HandleNewDataset(dbc, req.FilePath, req.key())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, row)
}

// POST /api/models/detect
// Score a dataset against one published version (latest when version is 0).
func (h *ModelsHandler) Detect(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	policy, err := req.policy()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_policy", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	res, err := h.detectorService.Detect(dbc, req.FilePath, req.key(), req.Version, policy, req.CustomThreshold)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, res)
}

type compareRequest struct {
	lineageRequest
	VersionA        int     `json:"version_a"`
	VersionB        int     `json:"version_b"`
	ThresholdPolicy string  `json:"threshold_policy"`
	CustomThreshold float64 `json:"custom_threshold"`
}

// POST /api/models/compare
// Score a dataset against two versions of a lineage side by side.
func (h *ModelsHandler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	policy := detect.DefaultPolicy
	if req.ThresholdPolicy != "" {
		var perr error
		policy, perr = detect.ParsePolicy(req.ThresholdPolicy)
		if perr != nil {
			RespondError(c, http.StatusBadRequest, "invalid_policy", perr)
			return
		}
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	cmp, err := h.detectorService.Compare(dbc, req.FilePath, req.key(), req.VersionA, req.VersionB, policy, req.CustomThreshold)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, cmp)
}

// POST /api/models/anomalies/export
// Stream anomalous rows as CSV with the row index and reconstruction
// error prepended.
func (h *ModelsHandler) ExportAnomalies(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	policy, err := req.policy()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_policy", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="anomalies.csv"`)
	if err := h.detectorService.ExportAnomalies(dbc, req.FilePath, req.key(), req.Version, policy, req.CustomThreshold, c.Writer); err != nil {
		RespondDomainError(c, err)
		return
	}
}

// GET /api/models/versions?pump_series=&test_type=&file_type=&limit=
func (h *ModelsHandler) ListVersions(c *gin.Context) {
	key := types.LineageKey{
		PumpSeries: c.Query("pump_series"),
		TestType:   c.Query("test_type"),
		FileType:   c.Query("file_type"),
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = v
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	versions, err := h.registryService.ListVersions(dbc, key, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"versions": versions})
}

// GET /api/models/files?pump_series=&test_type=&file_type=
func (h *ModelsHandler) ListDatasetFiles(c *gin.Context) {
	key := types.LineageKey{
		PumpSeries: c.Query("pump_series"),
		TestType:   c.Query("test_type"),
		FileType:   c.Query("file_type"),
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	files, err := h.registryService.ListDatasetFiles(dbc, key)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"files": files})
}
