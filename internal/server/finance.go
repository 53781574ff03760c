package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	finance "github.com/smallbiznis/stitchboard/internal/finance/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
)

type revenueResponse struct {
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	Revenue decimal.Decimal `json:"revenue"`
}

type costsResponse struct {
	Start time.Time             `json:"start"`
	End   time.Time             `json:"end"`
	Costs finance.CostBreakdown `json:"costs"`
}

// financeRange resolves start, end and preset with the same rules as the
// dashboards, so a P&L and a dashboard over the same parameters agree.
func (s *Server) financeRange(c *gin.Context) (principal.Principal, time.Time, time.Time, error) {
	p, err := callerFromContext(c)
	if err != nil {
		return p, time.Time{}, time.Time{}, err
	}
	req, err := parseFilterRequest(c)
	if err != nil {
		return p, time.Time{}, time.Time{}, err
	}
	filter, err := analytics.NewFilter(p, req, s.clock.Now(), s.analyticsCfg.Get().DefaultWindowDays)
	if err != nil {
		return p, time.Time{}, time.Time{}, err
	}
	return p, filter.Start(), filter.End(), nil
}

func (s *Server) GetRevenue(c *gin.Context) {
	p, start, end, err := s.financeRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	revenue, err := s.financeSvc.CalculateRevenue(c.Request.Context(), p.TenantID, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, revenueResponse{Start: start, End: end, Revenue: revenue})
}

func (s *Server) GetCosts(c *gin.Context) {
	p, start, end, err := s.financeRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	costs, err := s.financeSvc.CalculateCosts(c.Request.Context(), p.TenantID, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, costsResponse{Start: start, End: end, Costs: costs})
}

func (s *Server) GetPLStatement(c *gin.Context) {
	p, start, end, err := s.financeRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	statement, err := s.financeSvc.CalculatePLStatement(c.Request.Context(), p.TenantID, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, statement)
}

func (s *Server) GetPLStatementPDF(c *gin.Context) {
	p, start, end, err := s.financeRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	statement, err := s.financeSvc.CalculatePLStatement(ctx, p.TenantID, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := s.financeSvc.RenderPLStatementPDF(ctx, statement)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("pl_%s_%s.pdf",
		start.Format(time.DateOnly),
		end.AddDate(0, 0, -1).Format(time.DateOnly),
	)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}
