package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/stitchboard/internal/principal"
)

// authorize checks the casbin policy for the caller set by PrincipalRequired.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := principal.FromContext(c.Request.Context())
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), p, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func callerFromContext(c *gin.Context) (principal.Principal, error) {
	p, err := principal.FromContext(c.Request.Context())
	if err != nil {
		return principal.Principal{}, ErrUnauthorized
	}
	return p, nil
}
