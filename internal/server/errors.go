package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	approval "github.com/smallbiznis/stitchboard/internal/approval/domain"
	audit "github.com/smallbiznis/stitchboard/internal/audit/domain"
	"github.com/smallbiznis/stitchboard/internal/authorization"
	dailyagg "github.com/smallbiznis/stitchboard/internal/dailyagg/domain"
	finance "github.com/smallbiznis/stitchboard/internal/finance/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"github.com/smallbiznis/stitchboard/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels are reported as 400s. The first match names the code.
var validationSentinels = []error{
	analytics.ErrInvalidMetric,
	analytics.ErrInvalidGroupBy,
	analytics.ErrInvalidGranularity,
	analytics.ErrInvalidFilter,
	analytics.ErrMetricUnavailable,
	finance.ErrInvalidRange,
	approval.ErrInvalidEntity,
	approval.ErrInvalidStatus,
	approval.ErrInvalidPayload,
	audit.ErrInvalidTimeRange,
	audit.ErrInvalidAction,
	dailyagg.ErrRangeTooLarge,
	dailyagg.ErrInvalidRequest,
	masterdata.ErrInvalidAmount,
	masterdata.ErrInvalidRequest,
	production.ErrReturnedExceeds,
	production.ErrInvalidRequest,
	ErrInvalidRequest,
}

var notFoundSentinels = []error{
	ErrNotFound,
	masterdata.ErrTenantNotFound,
	masterdata.ErrVendorNotFound,
	masterdata.ErrStyleNotFound,
	masterdata.ErrTailorNotFound,
	production.ErrJobNotFound,
	approval.ErrApprovalNotFound,
	approval.ErrTargetNotFound,
	gorm.ErrRecordNotFound,
}

var conflictSentinels = []error{
	ErrConflict,
	masterdata.ErrDuplicateCode,
	production.ErrInvalidTransition,
	approval.ErrNotPending,
	dailyagg.ErrRefreshInProgress,
	gorm.ErrDuplicatedKey,
}

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
		c.Header("Content-Type", "application/json")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := matchSentinel(err, validationSentinels); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  validationDetails(err, code),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, analytics.ErrUnauthorized),
		errors.Is(err, principal.ErrUnauthenticated):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, analytics.ErrForbidden),
		errors.Is(err, finance.ErrForbidden),
		errors.Is(err, approval.ErrSelfReview),
		errors.Is(err, audit.ErrInvalidTenant),
		errors.Is(err, principal.ErrMissingTenant),
		errors.Is(err, principal.ErrMissingScope),
		errors.Is(err, principal.ErrInvalidRole):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isSentinel(err, conflictSentinels), db.IsDuplicateKeyErr(err):
		code, ok := matchSentinel(err, conflictSentinels)
		if !ok {
			code = "conflict"
		}
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: code,
		}
	case isSentinel(err, notFoundSentinels):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationDetails lists validator field failures when present, otherwise
// one entry for the sentinel code.
func validationDetails(err error, code string) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Field:   fe.Field(),
				Code:    fe.Tag(),
				Message: "invalid value",
			})
		}
		return out
	}
	return []ValidationError{{
		Field:   validationErrorField(code),
		Code:    code,
		Message: validationErrorMessage(code),
	}}
}

func matchSentinel(err error, sentinels []error) (string, bool) {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isSentinel(err error, sentinels []error) bool {
	_, ok := matchSentinel(err, sentinels)
	return ok
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_range", "refresh_range_too_large":
		return "date"
	case "invalid_group_by":
		return "groupBy"
	case "metric_unavailable_for_scope":
		return "metric"
	case "invalid_target_entity":
		return "entity"
	case "returned_exceeds_issued":
		return "returned_pcs"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "metric_unavailable_for_scope":
		return "metric is not available for this scope"
	case "returned_exceeds_issued":
		return "returned pieces exceed issued pieces"
	default:
		return "invalid value"
	}
}
