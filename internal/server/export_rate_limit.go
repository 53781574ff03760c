package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

// exportRateLimit throttles PDF and XLSX exports per caller.
func (s *Server) exportRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := callerFromContext(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		result := s.exportLimiter.Allow(c.Request.Context(), p.TenantID.String(), p.UserID.String())
		if result != nil && !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
