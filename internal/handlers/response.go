package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps pipeline errors onto HTTP statuses.
func RespondDomainError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	var dimErr *mlerr.DimensionError
	var artErr *mlerr.ArtifactError
	switch {
	case errors.As(err, &apiErr):
		RespondError(c, apiErr.Status, apiErr.Code, apiErr)
	case errors.Is(err, mlerr.ErrModelNotFound):
		RespondError(c, http.StatusNotFound, "model_not_found", err)
	case errors.Is(err, mlerr.ErrRegistryConflict):
		RespondError(c, http.StatusConflict, "registry_conflict", err)
	case errors.Is(err, mlerr.ErrSchema):
		RespondError(c, http.StatusUnprocessableEntity, "schema_error", err)
	case errors.As(err, &dimErr):
		RespondError(c, http.StatusUnprocessableEntity, "dimension_mismatch", err)
	case errors.As(err, &artErr):
		RespondError(c, http.StatusInternalServerError, "artifact_error", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
