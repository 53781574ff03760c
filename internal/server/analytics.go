package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type kpiResponse struct {
	Start time.Time           `json:"start"`
	End   time.Time           `json:"end"`
	Cards []analytics.KPICard `json:"cards"`
}

type trendResponse struct {
	Metric      analytics.Metric       `json:"metric"`
	Granularity analytics.Granularity  `json:"granularity"`
	Points      []analytics.TrendPoint `json:"points"`
}

type breakdownResponse struct {
	Metric  analytics.Metric           `json:"metric"`
	GroupBy analytics.GroupBy          `json:"groupBy"`
	Entries []analytics.BreakdownEntry `json:"entries"`
}

// analyticsFilter scopes the query parameters to the caller. Role scoping
// happens here, before the service sees anything.
func (s *Server) analyticsFilter(c *gin.Context) (analytics.Filter, error) {
	p, err := callerFromContext(c)
	if err != nil {
		return analytics.Filter{}, err
	}
	req, err := parseFilterRequest(c)
	if err != nil {
		return analytics.Filter{}, err
	}
	return analytics.NewFilter(p, req, s.clock.Now(), s.analyticsCfg.Get().DefaultWindowDays)
}

func (s *Server) GetKPICards(c *gin.Context) {
	filter, err := s.analyticsFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cards, err := s.analyticsSvc.GetKPICards(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, kpiResponse{Start: filter.Start(), End: filter.End(), Cards: cards})
}

func (s *Server) GetTrend(c *gin.Context) {
	filter, err := s.analyticsFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	metric, err := analytics.ParseMetric(c.Query("metric"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	granularity, err := analytics.ParseGranularity(c.Query("granularity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	points, err := s.analyticsSvc.GetTrendData(c.Request.Context(), metric, filter, granularity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, trendResponse{Metric: metric, Granularity: granularity, Points: points})
}

func (s *Server) GetBreakdown(c *gin.Context) {
	filter, err := s.analyticsFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	metric, err := analytics.ParseMetric(c.Query("metric"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	groupBy, err := analytics.ParseGroupBy(c.Query("groupBy"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.analyticsSvc.GetBreakdown(c.Request.Context(), metric, groupBy, filter, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdownResponse{Metric: metric, GroupBy: groupBy, Entries: entries})
}

func (s *Server) GetDrilldown(c *gin.Context) {
	filter, err := s.analyticsFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, err := parsePage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.analyticsSvc.GetDrilldownTable(c.Request.Context(), filter, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportDrilldown renders the whole workbook before writing, so a failure
// still produces a JSON error instead of a truncated file.
func (s *Server) ExportDrilldown(c *gin.Context) {
	filter, err := s.analyticsFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, err := parsePage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	rows, err := s.analyticsSvc.ExportDrilldown(c.Request.Context(), filter, page, &buf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("drilldown_%s_%s.xlsx",
		filter.Start().Format(time.DateOnly),
		filter.End().AddDate(0, 0, -1).Format(time.DateOnly),
	)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Export-Rows", fmt.Sprintf("%d", rows))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
