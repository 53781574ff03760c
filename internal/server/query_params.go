package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	"github.com/smallbiznis/stitchboard/pkg/db/pagination"
)

var errInvalidID = errors.New("invalid_snowflake_id")

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

func parseSnowflakeID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, errInvalidID
	}
	return parsed, nil
}

// parseIDList reads a comma-separated id list. Blank entries are skipped.
func parseIDList(value string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := parseSnowflakeID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseDate accepts an ISO date or an RFC3339 timestamp. Anything else is
// the zero time, which the filter treats as missing.
func parseDate(value string) time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.DateOnly, trimmed); err == nil {
		return parsed
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC()
	}
	return time.Time{}
}

func parseFilterRequest(c *gin.Context) (analytics.FilterRequest, error) {
	req := analytics.FilterRequest{
		Start:  parseDate(c.Query("start")),
		End:    parseDate(c.Query("end")),
		Preset: analytics.Preset(strings.ToLower(strings.TrimSpace(c.Query("preset")))),
		Search: c.Query("search"),
	}

	var err error
	if req.StyleIDs, err = parseIDList(c.Query("styleIds")); err != nil {
		return req, newValidationError("styleIds", "invalid_id", "invalid id list")
	}
	if req.VendorIDs, err = parseIDList(c.Query("vendorIds")); err != nil {
		return req, newValidationError("vendorIds", "invalid_id", "invalid id list")
	}
	if req.TailorIDs, err = parseIDList(c.Query("tailorIds")); err != nil {
		return req, newValidationError("tailorIds", "invalid_id", "invalid id list")
	}
	return req, nil
}

func parsePage(c *gin.Context) (pagination.Page, error) {
	var page pagination.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		return page, newValidationError("page", "invalid_page", "limit and skip must be integers")
	}
	return page, nil
}

func parseLimit(c *gin.Context) (int, error) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		return 0, newValidationError("limit", "invalid_limit", "limit must be an integer")
	}
	return limit, nil
}
