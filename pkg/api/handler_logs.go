package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newsloom/newsloom/pkg/logstream"
)

// getLogsHandler handles GET /logs. Entries come back newest-first.
func (s *Server) getLogsHandler(c *gin.Context) {
	limit, err := intQuery(c, "limit", 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	entries, err := s.deps.Logs.GetLogs(c.Request.Context(), logstream.Query{
		Limit:     limit,
		SessionID: c.Query("session_id"),
		Level:     c.Query("level"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// clearLogsHandler handles DELETE /logs. Without session_id everything
// goes; with it only that session's entries.
func (s *Server) clearLogsHandler(c *gin.Context) {
	removed, err := s.deps.Logs.ClearLogs(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	s.logger.Info("logs cleared", "removed", removed, "session_id", c.Query("session_id"))
	c.JSON(http.StatusOK, ClearLogsResponse{Removed: removed})
}

// logSessionsHandler handles GET /logs/sessions.
func (s *Server) logSessionsHandler(c *gin.Context) {
	sessions, err := s.deps.Logs.ActiveSessions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionsResponse{Sessions: sessions})
}
