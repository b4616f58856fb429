package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/medledger/internal/apperr"
	"github.com/geocoder89/medledger/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if s := ctx.GetString(middlewares.CtxRequestID); s != "" {
		return s
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusForbidden, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// RespondAppError maps an error kind to its status. Internal causes are logged,
// never sent.
func RespondAppError(ctx *gin.Context, err error) {
	appErr := apperr.As(err)

	status := http.StatusInternalServerError

	switch {
	case errors.Is(appErr, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(appErr, apperr.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(appErr, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(appErr, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(appErr, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(appErr, apperr.ErrLedgerUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(ctx.Request.Context(), "request failed",
			"code", appErr.Code,
			"err", err,
			"request_id", requestIDFrom(ctx),
		)
	}

	RespondError(ctx, status, appErr.Code, appErr.Message, nil)
}
