package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	datasetdomain "github.com/smallbiznis/incentiva/internal/dataset/domain"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrConflict           = errors.New("conflict")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware maps domain errors queued on the gin context to
// one JSON error shape. Handlers call AbortWithError and never write error
// bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, submissiondomain.ErrSubmissionNotFound),
		errors.Is(err, campaigndomain.ErrCampaignNotFound),
		errors.Is(err, organizationdomain.ErrSellerNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, datasetdomain.ErrDatasetNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, submissiondomain.ErrDuplicateSubmission),
		errors.Is(err, submissiondomain.ErrNotOverridable),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}

	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, submissiondomain.ErrInvalidSubmission),
		errors.Is(err, submissiondomain.ErrInvalidOrderNumber),
		errors.Is(err, submissiondomain.ErrInvalidRejectReason),
		errors.Is(err, submissiondomain.ErrCampaignNotActive),
		errors.Is(err, submissiondomain.ErrRequirementNotInCamp),
		errors.Is(err, campaigndomain.ErrInvalidCampaign),
		errors.Is(err, datasetdomain.ErrInvalidDataset),
		errors.Is(err, datasetdomain.ErrEmptyDataset),
		errors.Is(err, reconciledomain.ErrMissingOrderMapping),
		errors.Is(err, reconciledomain.ErrMissingOrgMapping),
		errors.Is(err, reconciledomain.ErrNoRows):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}
