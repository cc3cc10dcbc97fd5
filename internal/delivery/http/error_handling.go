package http

import (
	"errors"
	"net/http"

	"ambient-novel/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Коды ошибок API
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeSceneNotFound   = "scene_not_found"
	ErrCodeInvalidChoice   = "invalid_choice"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeInternal        = "internal_error"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeSessionNotFound, Message: "Session not found"}
	case errors.Is(err, domain.ErrUnknownScene):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeSceneNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidChoice):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: ErrCodeInvalidChoice, Message: err.Error()}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		_ = c.Error(err)
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: err.Error()})
}
