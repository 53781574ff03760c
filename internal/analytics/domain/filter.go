package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stitchboard/internal/principal"
)

type Preset string

const (
	PresetToday      Preset = "today"
	Preset7Days      Preset = "7d"
	Preset30Days     Preset = "30d"
	PresetMonthToday Preset = "mtd"
	PresetYearToday  Preset = "ytd"
)

// FilterRequest is the client-supplied, untrusted half of a Filter.
type FilterRequest struct {
	Start     time.Time
	End       time.Time
	Preset    Preset
	StyleIDs  []snowflake.ID
	VendorIDs []snowflake.ID
	TailorIDs []snowflake.ID
	Search    string
}

// Filter is the scoped, immutable query context for one request. The zero
// value is unusable; build one with NewFilter.
type Filter struct {
	tenantID  snowflake.ID
	role      principal.Role
	start     time.Time
	end       time.Time
	styleIDs  []snowflake.ID
	vendorIDs []snowflake.ID
	tailorIDs []snowflake.ID
	search    string
}

// NewFilter applies role scoping before anything else: a vendor only ever
// sees its own vendor and a tailor only its own jobs, whatever the request
// asked for. Invalid principals fail closed.
//
// The range is [start, end) over whole UTC days. Missing or inverted dates
// fall back to the trailing windowDays ending today.
func NewFilter(p principal.Principal, req FilterRequest, now time.Time, windowDays int) (Filter, error) {
	if err := p.Validate(); err != nil {
		if errors.Is(err, principal.ErrUnauthenticated) {
			return Filter{}, ErrUnauthorized
		}
		return Filter{}, errors.Join(ErrForbidden, err)
	}

	f := Filter{
		tenantID:  p.TenantID,
		role:      p.Role,
		styleIDs:  normalizeIDs(req.StyleIDs),
		vendorIDs: normalizeIDs(req.VendorIDs),
		tailorIDs: normalizeIDs(req.TailorIDs),
		search:    strings.ToLower(strings.TrimSpace(req.Search)),
	}
	switch p.Role {
	case principal.RoleVendor:
		f.vendorIDs = []snowflake.ID{p.VendorID}
	case principal.RoleTailor:
		f.tailorIDs = []snowflake.ID{p.TailorID}
	}

	f.start, f.end = resolveRange(req, now, windowDays)
	return f, nil
}

func resolveRange(req FilterRequest, now time.Time, windowDays int) (time.Time, time.Time) {
	today := truncateToDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	if windowDays <= 0 {
		windowDays = 30
	}

	switch req.Preset {
	case PresetToday:
		return today, tomorrow
	case Preset7Days:
		return today.AddDate(0, 0, -6), tomorrow
	case Preset30Days:
		return today.AddDate(0, 0, -29), tomorrow
	case PresetMonthToday:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), tomorrow
	case PresetYearToday:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), tomorrow
	}

	if req.Start.IsZero() || req.End.IsZero() || req.End.Before(req.Start) {
		return today.AddDate(0, 0, -(windowDays - 1)), tomorrow
	}
	// End is inclusive on the wire.
	return truncateToDay(req.Start), truncateToDay(req.End).AddDate(0, 0, 1)
}

func (f Filter) TenantID() snowflake.ID    { return f.tenantID }
func (f Filter) Role() principal.Role      { return f.role }
func (f Filter) Start() time.Time          { return f.start }
func (f Filter) End() time.Time            { return f.end }
func (f Filter) Search() string            { return f.search }
func (f Filter) StyleIDs() []snowflake.ID  { return slices.Clone(f.styleIDs) }
func (f Filter) VendorIDs() []snowflake.ID { return slices.Clone(f.vendorIDs) }
func (f Filter) TailorIDs() []snowflake.ID { return slices.Clone(f.tailorIDs) }

// Valid reports whether f came from NewFilter.
func (f Filter) Valid() bool {
	return f.tenantID != 0 && f.role != "" && f.end.After(f.start)
}

// TailorScoped reports whether the filter narrows by tailor. The rollup has
// no tailor dimension, so such filters must be answered from raw jobs.
func (f Filter) TailorScoped() bool {
	return len(f.tailorIDs) > 0
}

// Days is the number of whole days in the range.
func (f Filter) Days() int {
	return int(f.end.Sub(f.start).Hours() / 24)
}

// Previous returns the same filter over the immediately preceding period of
// equal length.
func (f Filter) Previous() Filter {
	days := f.Days()
	prev := f
	prev.start = f.start.AddDate(0, 0, -days)
	prev.end = f.start
	return prev
}

// CacheKey identifies the scoped filter. Two callers share a key only when
// they would see exactly the same rows.
func (f Filter) CacheKey(parts ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%s|r=%s|s=%d|e=%d|q=%s", f.tenantID, f.role, f.start.Unix(), f.end.Unix(), f.search)
	writeIDs(&b, "st", f.styleIDs)
	writeIDs(&b, "v", f.vendorIDs)
	writeIDs(&b, "tl", f.tailorIDs)
	for _, part := range parts {
		b.WriteString("|")
		b.WriteString(part)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeIDs(b *strings.Builder, label string, ids []snowflake.ID) {
	fmt.Fprintf(b, "|%s=", label)
	for i, id := range ids {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(id.String())
	}
}

func normalizeIDs(ids []snowflake.ID) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func truncateToDay(value time.Time) time.Time {
	value = value.UTC()
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
