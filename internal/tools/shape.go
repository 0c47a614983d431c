package tools

import (
	"math"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/service/profile"
)

// Model-facing payload caps. Full series and article bodies burn context
// without helping the model; the newest slice carries the signal.
const (
	maxCandles   = 30
	maxNewsItems = 8
	maxNewsRunes = 280
	maxMatches   = 10
)

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func shapePriceSeries(series model.PriceSeries) map[string]any {
	candles := series.Candles
	if len(candles) > maxCandles {
		candles = candles[len(candles)-maxCandles:]
	}
	shaped := make([]map[string]any, len(candles))
	for i, c := range candles {
		shaped[i] = map[string]any{
			"t": c.Timestamp.Format(time.RFC3339),
			"o": round2(c.Open),
			"h": round2(c.High),
			"l": round2(c.Low),
			"c": round2(c.Close),
			"v": c.Volume,
		}
	}
	out := map[string]any{
		"symbol":       series.Symbol,
		"interval":     series.Interval,
		"candle_count": len(series.Candles),
		"candles":      shaped,
	}
	if last, ok := series.Latest(); ok {
		out["latest_close"] = round2(last.Close)
		out["latest_at"] = last.Timestamp.Format(time.RFC3339)
	}
	return out
}

func shapeFundamentals(r model.FundamentalsReport) map[string]any {
	m := r.Metrics
	income := make([]map[string]any, len(r.Income))
	for i, stmt := range r.Income {
		income[i] = map[string]any{
			"date":       stmt.Date,
			"period":     stmt.Period,
			"revenue":    stmt.Revenue,
			"net_income": stmt.NetIncome,
			"eps":        round2(stmt.EPS),
		}
	}
	out := map[string]any{
		"symbol":   r.Symbol,
		"period":   r.Period,
		"quarters": r.Quarters,
		"metrics": map[string]any{
			"gross_margin":        round4(m.GrossMargin),
			"operating_margin":    round4(m.OperatingMargin),
			"net_margin":          round4(m.NetMargin),
			"revenue_growth_qoq":  round4(m.RevenueGrowthQoQ),
			"revenue_growth_year": round4(m.RevenueGrowthYear),
			"earnings_growth_qoq": round4(m.EarningsGrowthQoQ),
			"roe":                 round4(m.ROE),
			"debt_to_equity":      round4(m.DebtToEquity),
			"current_ratio":       round4(m.CurrentRatio),
			"free_cash_flow":      m.FreeCashFlow,
			"operating_cash_flow": m.OperatingCashFlow,
		},
		"income":      income,
		"reported_at": r.ReportedAt.Format(time.RFC3339),
	}
	if r.Quote != nil {
		out["quote"] = shapeQuote(*r.Quote)
	}
	return out
}

func shapeQuote(q model.Quote) map[string]any {
	out := map[string]any{
		"symbol":     q.Symbol,
		"price":      round2(q.Price),
		"change":     round2(q.Change),
		"change_pct": round2(q.ChangePct),
	}
	if q.Name != "" {
		out["name"] = q.Name
	}
	if q.PE != 0 {
		out["pe"] = round4(q.PE)
	}
	if q.EPS != 0 {
		out["eps"] = round2(q.EPS)
	}
	if q.MarketCap != 0 {
		out["market_cap"] = q.MarketCap
	}
	if q.Volume != 0 {
		out["volume"] = q.Volume
	}
	if !q.AsOf.IsZero() {
		out["as_of"] = q.AsOf.Format(time.RFC3339)
	}
	return out
}

func shapeNews(d model.NewsDigest) map[string]any {
	items := d.Items
	if len(items) > maxNewsItems {
		items = items[:maxNewsItems]
	}
	shaped := make([]map[string]any, len(items))
	for i, item := range items {
		entry := map[string]any{
			"title": item.Title,
			"url":   item.URL,
		}
		if body := truncateRunes(item.Content, maxNewsRunes); body != "" {
			entry["content"] = body
		}
		if item.Source != "" {
			entry["source"] = item.Source
		}
		if !item.PublishedAt.IsZero() {
			entry["published_at"] = item.PublishedAt.Format(time.RFC3339)
		}
		shaped[i] = entry
	}
	return map[string]any{
		"symbol":       d.Symbol,
		"days":         d.Days,
		"result_count": len(d.Items),
		"items":        shaped,
	}
}

func shapeMatches(matches []model.SymbolMatch) map[string]any {
	capped := matches
	if len(capped) > maxMatches {
		capped = capped[:maxMatches]
	}
	return map[string]any{
		"match_count": len(matches),
		"matches":     capped,
	}
}

func shapeMarketSummary(summary model.MarketSummary) map[string]any {
	quotes := make([]map[string]any, 0, len(summary.Quotes))
	for _, symbol := range profile.MarketETFs() {
		result, ok := summary.Quotes[symbol]
		if !ok {
			continue
		}
		if !result.Ok() {
			quotes = append(quotes, map[string]any{"symbol": symbol, "error": result.Failure.Error()})
			continue
		}
		quote, ok := result.Payload.(model.Quote)
		if !ok {
			quotes = append(quotes, map[string]any{"symbol": symbol, "error": "unexpected payload shape"})
			continue
		}
		quotes = append(quotes, shapeQuote(quote))
	}
	return map[string]any{
		"as_of":  summary.FetchedAt.Format(time.RFC3339),
		"quotes": quotes,
	}
}

// truncateRunes shortens s to at most n runes, marking the cut with an
// ellipsis.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
