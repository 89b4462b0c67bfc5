package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colonyops/hivesync/internal/board"
	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
	"github.com/colonyops/hivesync/internal/data/stores"
)

// Machine-readable error codes returned in API error bodies.
const (
	CodeAlreadySending    = "already_sending"
	CodeNothingToQueue    = "nothing_to_queue"
	CodeNothingToSend     = "nothing_to_send"
	CodeAttemptNotRunning = "attempt_not_running"
	CodeNotFound          = "not_found"
	CodeDispatchFailed    = "dispatch_failed"
	CodeInvalidInput      = "invalid_input"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, draft.ErrSendInProgress):
		return http.StatusConflict, CodeAlreadySending
	case errors.Is(err, draft.ErrNothingToQueue):
		return http.StatusUnprocessableEntity, CodeNothingToQueue
	case errors.Is(err, draft.ErrNothingToSend):
		return http.StatusUnprocessableEntity, CodeNothingToSend
	case errors.Is(err, draft.ErrNotRunning):
		return http.StatusConflict, CodeAttemptNotRunning
	case errors.Is(err, draft.ErrDispatchFailed):
		return http.StatusBadGateway, CodeDispatchFailed
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, task.ErrAttemptNotFound),
		errors.Is(err, execution.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, board.ErrInvalidInput),
		errors.Is(err, task.ErrInvalidStatus),
		errors.Is(err, stream.ErrUnknownKind):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, draft.ErrClosed), stores.IsBusyError(err):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// bind decodes the JSON body into v, reporting failures as invalid input.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidInput})
		return false
	}
	return true
}
