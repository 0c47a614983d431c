package profile

import (
	"context"
	"time"

	"github.com/ashita-ai/ichiba/internal/indicator"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/state"
)

// StockState is the agent's cheapest wide view of a symbol: the indicator,
// fundamental, and news sections fetched concurrently, then reduced to
// status dashboards. interval steers the indicator series ("" means daily).
// Sections that could not be fetched are listed in Unavailable with their
// failure; the state itself never fails.
func (s *Service) StockState(ctx context.Context, symbol, interval string) model.StockState {
	symbol = normalizeSymbol(symbol)
	interval = normalizeInterval(interval)
	sections := []model.Section{model.SectionIndicators, model.SectionFundamentals, model.SectionNews}
	results := s.fanOut(ctx, symbol, sections, interval)

	st := model.StockState{
		Symbol:      symbol,
		Interval:    interval,
		Unavailable: make(map[model.Section]string),
		GeneratedAt: time.Now().UTC(),
	}
	for _, section := range sections {
		result := results[section]
		if !result.Ok() {
			st.Unavailable[section] = result.Failure.Error()
			continue
		}
		switch section {
		case model.SectionIndicators:
			set, ok := result.Payload.(indicator.Set)
			if !ok {
				st.Unavailable[section] = "unexpected payload shape"
				continue
			}
			st.Technical = state.Technical(set)
		case model.SectionFundamentals:
			report, ok := result.Payload.(model.FundamentalsReport)
			if !ok {
				st.Unavailable[section] = "unexpected payload shape"
				continue
			}
			st.Fundamental = state.Fundamental(report)
		case model.SectionNews:
			digest, ok := result.Payload.(model.NewsDigest)
			if !ok {
				st.Unavailable[section] = "unexpected payload shape"
				continue
			}
			st.News = state.News(digest.Items)
		}
	}
	if len(st.Unavailable) == 0 {
		st.Unavailable = nil
	}
	return st
}
