package model

import "time"

// Section names one slice of an aggregated stock profile.
type Section string

const (
	SectionPrice        Section = "price"
	SectionFundamentals Section = "fundamentals"
	SectionNews         Section = "news"
	SectionIndicators   Section = "indicators"
)

// AllSections lists every valid profile section in canonical order.
func AllSections() []Section {
	return []Section{SectionPrice, SectionFundamentals, SectionNews, SectionIndicators}
}

// ValidSection reports whether s names a known profile section.
func ValidSection(s Section) bool {
	switch s {
	case SectionPrice, SectionFundamentals, SectionNews, SectionIndicators:
		return true
	}
	return false
}

// Intervals lists the candle intervals the price provider accepts; these
// double as the allowed analysis timeframes.
func Intervals() []string {
	return []string{"1min", "5min", "15min", "30min", "45min", "1h", "2h", "4h", "1day", "1week", "1month"}
}

// ValidInterval reports whether s is an accepted candle interval.
func ValidInterval(s string) bool {
	for _, v := range Intervals() {
		if s == v {
			return true
		}
	}
	return false
}

// Candle is one OHLCV bar, normalized from any upstream field naming.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// PriceSeries is an ordered (oldest first) series of candles for one symbol.
type PriceSeries struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`
}

// Latest returns the most recent candle, or false when the series is empty.
func (p PriceSeries) Latest() (Candle, bool) {
	if len(p.Candles) == 0 {
		return Candle{}, false
	}
	return p.Candles[len(p.Candles)-1], true
}

// Quote is a point-in-time market snapshot for one symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	MarketCap float64   `json:"market_cap,omitempty"`
	PE        float64   `json:"pe,omitempty"`
	EPS       float64   `json:"eps,omitempty"`
	Volume    int64     `json:"volume,omitempty"`
	AvgVolume int64     `json:"avg_volume,omitempty"`
	YearHigh  float64   `json:"year_high,omitempty"`
	YearLow   float64   `json:"year_low,omitempty"`
	AsOf      time.Time `json:"as_of"`
}

// IncomeStatement holds the income-statement line items used downstream.
// Only the items the derived metrics need are kept; unexpected upstream
// fields are dropped at the adapter boundary.
type IncomeStatement struct {
	Date            string  `json:"date"`
	Period          string  `json:"period"`
	Revenue         float64 `json:"revenue"`
	GrossProfit     float64 `json:"gross_profit"`
	OperatingIncome float64 `json:"operating_income"`
	NetIncome       float64 `json:"net_income"`
	EPS             float64 `json:"eps"`
}

// BalanceSheet holds the balance-sheet line items used downstream.
type BalanceSheet struct {
	Date                    string  `json:"date"`
	Period                  string  `json:"period"`
	TotalAssets             float64 `json:"total_assets"`
	TotalLiabilities        float64 `json:"total_liabilities"`
	TotalEquity             float64 `json:"total_equity"`
	CashAndEquivalents      float64 `json:"cash_and_equivalents"`
	TotalDebt               float64 `json:"total_debt"`
	TotalCurrentAssets      float64 `json:"total_current_assets"`
	TotalCurrentLiabilities float64 `json:"total_current_liabilities"`
}

// CashFlowStatement holds the cash-flow line items used downstream.
type CashFlowStatement struct {
	Date               string  `json:"date"`
	Period             string  `json:"period"`
	OperatingCashFlow  float64 `json:"operating_cash_flow"`
	CapitalExpenditure float64 `json:"capital_expenditure"`
	FreeCashFlow       float64 `json:"free_cash_flow"`
}

// FundamentalMetrics are ratios and growth rates derived from the newest
// statements. Growth compares the latest quarter to the previous one (QoQ)
// and to the oldest quarter in the fetched window (YearBack).
type FundamentalMetrics struct {
	GrossMargin       float64 `json:"gross_margin"`
	OperatingMargin   float64 `json:"operating_margin"`
	NetMargin         float64 `json:"net_margin"`
	RevenueGrowthQoQ  float64 `json:"revenue_growth_qoq"`
	RevenueGrowthYear float64 `json:"revenue_growth_year"`
	EarningsGrowthQoQ float64 `json:"earnings_growth_qoq"`
	ROE               float64 `json:"roe"`
	DebtToEquity      float64 `json:"debt_to_equity"`
	CurrentRatio      float64 `json:"current_ratio"`
	FreeCashFlow      float64 `json:"free_cash_flow"`
	OperatingCashFlow float64 `json:"operating_cash_flow"`
}

// FundamentalsReport bundles the raw quarterly statements with derived
// metrics and the valuation snapshot for one symbol.
type FundamentalsReport struct {
	Symbol     string              `json:"symbol"`
	Period     string              `json:"period"`
	Income     []IncomeStatement   `json:"income"`
	Balance    []BalanceSheet      `json:"balance"`
	CashFlow   []CashFlowStatement `json:"cash_flow"`
	Quote      *Quote              `json:"quote,omitempty"`
	Metrics    FundamentalMetrics  `json:"metrics"`
	Quarters   int                 `json:"quarters"`
	ReportedAt time.Time           `json:"reported_at"`
}

// NewsItem is one normalized news search hit.
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	Source      string    `json:"source,omitempty"`
	Score       float64   `json:"score,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// NewsDigest is the normalized result of one news search.
type NewsDigest struct {
	Symbol string     `json:"symbol"`
	Query  string     `json:"query"`
	Days   int        `json:"days"`
	Items  []NewsItem `json:"items"`
}

// SymbolMatch is one symbol-search hit.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// AggregatedProfile is the fan-out result for one symbol. Sections always
// contains exactly the requested section set; individual sections may be
// failures, the profile itself never is.
type AggregatedProfile struct {
	Symbol    string             `json:"symbol"`
	Sections  map[Section]Result `json:"sections"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// MarketSummary reports quotes for the broad-market index ETFs. Like a
// profile, it is partial by design: failed quotes carry their failure.
type MarketSummary struct {
	Quotes    map[string]Result `json:"quotes"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// AnalysisBias enumerates the allowed top-line calls of an analysis report.
const (
	BiasBullish         = "Bullish"
	BiasBearish         = "Bearish"
	BiasNeutral         = "Neutral"
	BiasBullishCautious = "Bullish (Cautious)"
	BiasBearishCautious = "Bearish (Cautious)"
)

// ValidBias reports whether s is an allowed analysis bias value.
func ValidBias(s string) bool {
	switch s {
	case BiasBullish, BiasBearish, BiasNeutral, BiasBullishCautious, BiasBearishCautious:
		return true
	}
	return false
}

// AnalysisReport is the structured output of the AI analysis service.
type AnalysisReport struct {
	Symbol             string    `json:"symbol"`
	Timeframe          string    `json:"timeframe"`
	OverallBias        string    `json:"overall_bias"`
	TechnicalSummary   string    `json:"technical_summary"`
	FundamentalSummary string    `json:"fundamental_summary"`
	RiskFactors        []string  `json:"risk_factors"`
	GeneratedAt        time.Time `json:"generated_at"`
}
