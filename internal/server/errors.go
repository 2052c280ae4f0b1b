package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/property-verifier/internal/common"
)

// handleError answers with {"detail": message} and the mapped status.
func (s *Server) handleError(c *gin.Context, err error) {
	appErr := common.MapError(err)
	logger := common.LoggerFromContext(c.Request.Context(), s.logger)
	if appErr.Code >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.FullPath(), "error", err)
	} else {
		logger.Debug("request rejected", "path", c.FullPath(), "status", appErr.Code, "error", err)
	}
	c.AbortWithStatusJSON(appErr.Code, gin.H{"detail": appErr.Message})
}
