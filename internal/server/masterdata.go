package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/stitchboard/internal/audit/masking"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
)

type listResponse[T any] struct {
	Data []T `json:"data"`
}

func (s *Server) ListVendors(c *gin.Context) {
	vendors, err := s.masterdataSvc.ListVendors(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse[masterdata.Vendor]{Data: vendors})
}

func (s *Server) CreateVendor(c *gin.Context) {
	var req masterdata.CreateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	vendor, err := s.masterdataSvc.CreateVendor(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "vendor.create", "vendor", vendor.ID, masking.Fields(map[string]any{
		"name":          vendor.Name,
		"code":          vendor.Code,
		"contact_email": vendor.ContactEmail,
	}, "contact_email"))

	c.JSON(http.StatusCreated, vendor)
}

func (s *Server) ListStyles(c *gin.Context) {
	req := masterdata.ListStylesRequest{Search: strings.TrimSpace(c.Query("search"))}
	if raw := strings.TrimSpace(c.Query("vendorId")); raw != "" {
		id, err := parseSnowflakeID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("vendorId", "invalid_id", "invalid vendor id"))
			return
		}
		req.VendorID = id
	}

	styles, err := s.masterdataSvc.ListStyles(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse[masterdata.Style]{Data: styles})
}

func (s *Server) CreateStyle(c *gin.Context) {
	var req masterdata.CreateStyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	style, err := s.masterdataSvc.CreateStyle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "style.create", "style", style.ID, map[string]any{
		"vendor_id": style.VendorID.String(),
		"code":      style.Code,
	})

	c.JSON(http.StatusCreated, style)
}

func (s *Server) GetStyle(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid style id"))
		return
	}

	style, err := s.masterdataSvc.GetStyle(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, style)
}

func (s *Server) ListRates(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid style id"))
		return
	}

	rates, err := s.masterdataSvc.ListRates(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse[masterdata.Rate]{Data: rates})
}

func (s *Server) ListTailors(c *gin.Context) {
	tailors, err := s.masterdataSvc.ListTailors(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse[masterdata.Tailor]{Data: tailors})
}

func (s *Server) CreateTailor(c *gin.Context) {
	var req masterdata.CreateTailorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	tailor, err := s.masterdataSvc.CreateTailor(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "tailor.create", "tailor", tailor.ID, masking.Fields(map[string]any{
		"name":  tailor.Name,
		"phone": tailor.Phone,
	}, "phone"))

	c.JSON(http.StatusCreated, tailor)
}

func (s *Server) CreateRate(c *gin.Context) {
	var req masterdata.CreateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rate, err := s.masterdataSvc.CreateRate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "rate.create", "rate", rate.ID, map[string]any{
		"style_id":       rate.StyleID.String(),
		"kind":           string(rate.Kind),
		"amount":         rate.Amount.String(),
		"effective_date": rate.EffectiveDate.Format(time.DateOnly),
	})

	c.JSON(http.StatusCreated, rate)
}
