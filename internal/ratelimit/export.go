package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/stitchboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyExport = "stitchboard:ratelimit:export:%s:%s"

// ExportLimiter throttles file exports per tenant and user. Exports scan raw
// records, so one caller looping on them can starve dashboard queries.
type ExportLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
	rate   float64
	burst  int
}

type ExportLimiterParams struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Client *redis.Client `optional:"true"`
}

// NewExportLimiter returns nil when redis or the limit is not configured;
// a nil limiter admits everything.
func NewExportLimiter(p ExportLimiterParams) *ExportLimiter {
	limit := p.Cfg.ExportRateLimit
	if p.Client == nil || limit.PerMinute <= 0 || limit.Burst <= 0 {
		return nil
	}
	return &ExportLimiter{
		bucket: NewTokenBucket(p.Client),
		log:    p.Log.Named("ratelimit.export"),
		rate:   limit.PerMinute / 60,
		burst:  limit.Burst,
	}
}

// Allow reports whether the caller may start another export. A redis failure
// admits the request; exports stay available when the limiter store is down.
func (l *ExportLimiter) Allow(ctx context.Context, tenantID, userID string) *Result {
	if l == nil {
		return &Result{Allowed: true}
	}
	key := fmt.Sprintf(keyExport, strings.TrimSpace(tenantID), strings.TrimSpace(userID))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("export rate limit check failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return &Result{Allowed: true, Limit: l.burst}
	}
	return res
}
