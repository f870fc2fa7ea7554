package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/authorization"
	billingdomain "github.com/craftcv/craftcv/internal/billing/domain"
	"github.com/craftcv/craftcv/internal/governance"
	orgdomain "github.com/craftcv/craftcv/internal/organization/domain"
	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Detail  map[string]any    `json:"detail,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	// Limit denials carry the counter, current usage, and limit so callers
	// can render an upgrade prompt.
	var limitErr *usagedomain.LimitExceededError
	if errors.As(err, &limitErr) {
		return http.StatusForbidden, errorPayload{
			Type:    "limit_exceeded",
			Message: limitErr.Error(),
			Detail: map[string]any{
				"counter_type": string(limitErr.CounterType),
				"current":      limitErr.Current,
				"limit":        limitErr.Limit,
			},
		}
	}

	var forbiddenErr *plandomain.ForbiddenError
	if errors.As(err, &forbiddenErr) {
		return http.StatusForbidden, errorPayload{
			Type:    "limit_exceeded",
			Message: forbiddenErr.Error(),
			Detail: map[string]any{
				"current": forbiddenErr.Result.Current,
				"limit":   forbiddenErr.Result.Limit,
			},
		}
	}

	var conflictErr *lockdomain.ConflictError
	if errors.As(err, &conflictErr) {
		return http.StatusConflict, errorPayload{
			Type:    "lock_conflict",
			Message: conflictErr.Error(),
			Detail: map[string]any{
				"requested_type": string(conflictErr.Requested),
				"held_type":      string(conflictErr.Held),
			},
		}
	}

	var lockDenied *governance.LockDeniedError
	if errors.As(err, &lockDenied) {
		payload := errorPayload{
			Type:    "lock_conflict",
			Message: lockDenied.Reason,
		}
		if lockDenied.Lock != nil {
			payload.Detail = map[string]any{
				"held_type": string(lockDenied.Lock.LockType),
			}
		}
		return http.StatusConflict, payload
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, orgdomain.ErrMemberExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, usagedomain.ErrInvalidOrganization),
		errors.Is(err, usagedomain.ErrInvalidCounterType),
		errors.Is(err, usagedomain.ErrInvalidPeriod),
		errors.Is(err, usagedomain.ErrInvalidAmount),
		errors.Is(err, plandomain.ErrInvalidOrganization),
		errors.Is(err, plandomain.ErrInvalidOperation),
		errors.Is(err, plandomain.ErrInvalidAmount),
		errors.Is(err, lockdomain.ErrInvalidOrganization),
		errors.Is(err, lockdomain.ErrInvalidUser),
		errors.Is(err, lockdomain.ErrInvalidVariant),
		errors.Is(err, lockdomain.ErrInvalidLockType),
		errors.Is(err, lockdomain.ErrInvalidDuration),
		errors.Is(err, lockdomain.ErrNotOwner),
		errors.Is(err, lockdomain.ErrAlreadyReleased),
		errors.Is(err, orgdomain.ErrInvalidOrganization),
		errors.Is(err, orgdomain.ErrInvalidUser),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidRole),
		errors.Is(err, billingdomain.ErrInvalidOrganization):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, lockdomain.ErrNotFound),
		errors.Is(err, plandomain.ErrRecordNotFound),
		errors.Is(err, orgdomain.ErrNotFound),
		errors.Is(err, orgdomain.ErrMemberNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "invalid_") {
		return "invalid value"
	}
	return msg
}
