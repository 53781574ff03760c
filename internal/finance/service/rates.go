package service

import (
	"context"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
)

// rateBook holds one tenant's rates of a single kind, newest first per style.
type rateBook map[snowflake.ID][]masterdata.Rate

func (s *Service) loadRates(ctx context.Context, tenantID snowflake.ID, kind masterdata.RateKind, asOf time.Time) (rateBook, error) {
	var rates []masterdata.Rate
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND kind = ? AND effective_date < ?", tenantID, kind, asOf).
		Find(&rates).Error; err != nil {
		return nil, err
	}

	book := make(rateBook)
	for _, rate := range rates {
		book[rate.StyleID] = append(book[rate.StyleID], rate)
	}
	for _, styleRates := range book {
		slices.SortFunc(styleRates, compareRates)
	}
	return book, nil
}

// compareRates orders newest first: later effective date, then later
// creation, then higher id. Equal effective dates resolve to the most
// recently entered rate.
func compareRates(a, b masterdata.Rate) int {
	if c := b.EffectiveDate.Compare(a.EffectiveDate); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	default:
		return 0
	}
}

// effective returns the latest rate with EffectiveDate <= at.
func (b rateBook) effective(styleID snowflake.ID, at time.Time) (masterdata.Rate, bool) {
	for _, rate := range b[styleID] {
		if !rate.EffectiveDate.After(at) {
			return rate, true
		}
	}
	return masterdata.Rate{}, false
}
