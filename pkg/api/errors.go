package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newsloom/newsloom/pkg/jobs"
	"github.com/newsloom/newsloom/pkg/llm"
	"github.com/newsloom/newsloom/pkg/store"
)

// writeError maps service-layer errors to HTTP error responses. Validation
// messages are echoed verbatim; everything unexpected collapses to a
// generic 500 so internals never leak.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidParams) || errors.Is(err, store.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, jobs.ErrNotFound) || errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "resource not found"})
	case errors.Is(err, llm.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "llm backend rate limited, retry later"})
	case errors.Is(err, jobs.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "job runner is shutting down"})
	default:
		slog.Error("unexpected handler error", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
