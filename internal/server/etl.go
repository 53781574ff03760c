package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RefreshAggregates is called by the external cron with the shared secret.
// Without tenantId every active tenant is refreshed; one failing tenant
// does not stop the others.
func (s *Server) RefreshAggregates(c *gin.Context) {
	date := s.clock.Now().UTC().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	ctx := c.Request.Context()
	if raw := strings.TrimSpace(c.Query("tenantId")); raw != "" {
		tenantID, err := parseSnowflakeID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("tenantId", "invalid_id", "invalid tenant id"))
			return
		}
		result, err := s.rollupSvc.Refresh(ctx, tenantID, date)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	batch, err := s.rollupSvc.RefreshAll(ctx, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("etl refresh finished",
		zap.String("date", date.Format(time.DateOnly)),
		zap.Int("tenants", len(batch.Tenants)),
		zap.Int("failed", batch.Failed()),
	)
	c.JSON(http.StatusOK, batch)
}
