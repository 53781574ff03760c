package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	audit "github.com/smallbiznis/stitchboard/internal/audit/domain"
)

// recordAudit writes a best-effort audit entry. A failed write never fails
// the request that made the change.
func (s *Server) recordAudit(c *gin.Context, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(c.Request.Context(), action, targetType, targetID, metadata)
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	page, err := parsePage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req := audit.ListAuditLogRequest{
		Page:       page,
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("targetType")),
		TargetID:   strings.TrimSpace(c.Query("targetId")),
	}
	if start := parseDate(c.Query("start")); !start.IsZero() {
		req.StartAt = &start
	}
	if end := parseDate(c.Query("end")); !end.IsZero() {
		if end.Equal(end.Truncate(24 * time.Hour)) {
			// A bare date includes the whole day.
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		req.EndAt = &end
	}

	result, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
