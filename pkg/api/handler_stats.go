package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// statisticsHandler handles GET /statistics.
func (s *Server) statisticsHandler(c *gin.Context) {
	stats, err := s.deps.Stats.CollectStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
