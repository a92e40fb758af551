package personnel

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/personnel-engine/generic"
)

// Dashboard is the read-only overview shown to administrators.
type Dashboard struct {
	Counts         Counts
	ConversionRate decimal.Decimal
	Recent         []generic.AuditEntry
	Trend          []TrendPoint
}

// TrendPoint is the number of records created on one day.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

const recentAuditEntries = 5

// ConversionRate is the share of interns ever admitted that were converted:
// conversions / (conversions + current live interns), rounded to 4 places.
func ConversionRate(conversions, interns int) decimal.Decimal {
	total := conversions + interns
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(conversions)).
		Div(decimal.NewFromInt(int64(total))).
		Round(4)
}

// Dashboard gathers counts, recent activity and a creation trend covering
// the last trendDays days (today included).
func (s *Service) Dashboard(ctx context.Context, trendDays int) (Dashboard, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := s.store.QueryAudit(ctx, generic.AuditFilter{Limit: recentAuditEntries})
	if err != nil {
		return Dashboard{}, err
	}

	if trendDays <= 0 {
		trendDays = 30
	}
	today := generic.Today(s.clock)
	since := today.AddDays(-(trendDays - 1))
	byDay, err := s.store.CreationTrend(ctx, since)
	if err != nil {
		return Dashboard{}, err
	}
	trend := make([]TrendPoint, 0, trendDays)
	for d := since; !d.After(today); d = d.AddDays(1) {
		trend = append(trend, TrendPoint{Date: d.String(), Count: byDay[d.String()]})
	}

	return Dashboard{
		Counts:         counts,
		ConversionRate: ConversionRate(counts.Conversions, counts.Interns),
		Recent:         recent,
		Trend:          trend,
	}, nil
}

// PublishedWarnings reads back the last published warning feed. It returns
// an empty list when no feed is configured.
func (s *Service) PublishedWarnings(ctx context.Context) ([]Warning, error) {
	if s.feed == nil {
		return []Warning{}, nil
	}
	return s.feed.Latest(ctx)
}
