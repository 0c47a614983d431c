package ichiba

import (
	"encoding/json"
	"fmt"
	"time"
)

// Profile section names accepted by Client.Profile.
const (
	SectionPrice        = "price"
	SectionFundamentals = "fundamentals"
	SectionNews         = "news"
	SectionIndicators   = "indicators"
)

// Chat termination reasons reported in ChatResponse.Reason.
const (
	ReasonFinalText           = "final_text"
	ReasonToolBudgetExhausted = "tool_budget_exhausted"
	ReasonDeadlineExhausted   = "deadline_exhausted"
	ReasonModelUnavailable    = "model_unavailable"
)

// Message roles for chat history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Failure describes why a section or request could not be served. Kind is
// one of the server's failure kinds (InvalidArguments, UpstreamUnavailable,
// RateLimited, Timeout, InvalidUpstreamResponse, ModelUnavailable).
type Failure struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// Result is one section of a profile or market summary: exactly one of
// Payload or Failure is set. Payload stays raw so callers can decode it
// into the type the section calls for; StockProfile and MarketSummary
// carry typed accessors that do this.
type Result struct {
	Payload   json.RawMessage `json:"payload,omitempty"`
	FetchedAt time.Time       `json:"fetched_at,omitempty"`
	Failure   *Failure        `json:"failure,omitempty"`
}

func decodeResult(sections map[string]Result, name string, dest any) error {
	res, ok := sections[name]
	if !ok {
		return fmt.Errorf("ichiba: section %q not in response", name)
	}
	if res.Failure != nil {
		return fmt.Errorf("ichiba: section %q failed: %s: %s", name, res.Failure.Kind, res.Failure.Message)
	}
	if err := json.Unmarshal(res.Payload, dest); err != nil {
		return fmt.Errorf("ichiba: decode section %q: %w", name, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// PriceSeries is a symbol's candle history, oldest first.
type PriceSeries struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`
}

// Quote is a point-in-time price snapshot.
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

// IncomeStatement is one reported quarter of income data.
type IncomeStatement struct {
	Date            string  `json:"date"`
	Period          string  `json:"period"`
	Revenue         float64 `json:"revenue"`
	GrossProfit     float64 `json:"gross_profit"`
	OperatingIncome float64 `json:"operating_income"`
	NetIncome       float64 `json:"net_income"`
	EPS             float64 `json:"eps"`
}

// BalanceSheet is one reported quarter of balance sheet data.
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

// CashFlowStatement is one reported quarter of cash flow data.
type CashFlowStatement struct {
	Date               string  `json:"date"`
	Period             string  `json:"period"`
	OperatingCashFlow  float64 `json:"operating_cash_flow"`
	CapitalExpenditure float64 `json:"capital_expenditure"`
	FreeCashFlow       float64 `json:"free_cash_flow"`
}

// FundamentalMetrics are ratios derived from the latest statements.
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

// FundamentalsReport bundles statements, derived metrics, and the
// valuation quote. Statements are newest first.
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

// NewsItem is one news article.
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	Source      string    `json:"source,omitempty"`
	Score       float64   `json:"score,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// NewsDigest is recent news for a symbol.
type NewsDigest struct {
	Symbol string     `json:"symbol"`
	Query  string     `json:"query"`
	Days   int        `json:"days"`
	Items  []NewsItem `json:"items"`
}

// SymbolMatch is one symbol search hit.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// StockProfile aggregates the requested sections of a symbol's profile.
// The profile itself never fails: sections that could not be fetched
// carry a Failure in their Result.
type StockProfile struct {
	Symbol    string            `json:"symbol"`
	Sections  map[string]Result `json:"sections"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Price decodes the profile's price section.
func (p *StockProfile) Price() (*PriceSeries, error) {
	var series PriceSeries
	if err := decodeResult(p.Sections, SectionPrice, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// Fundamentals decodes the profile's fundamentals section.
func (p *StockProfile) Fundamentals() (*FundamentalsReport, error) {
	var report FundamentalsReport
	if err := decodeResult(p.Sections, SectionFundamentals, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// News decodes the profile's news section.
func (p *StockProfile) News() (*NewsDigest, error) {
	var digest NewsDigest
	if err := decodeResult(p.Sections, SectionNews, &digest); err != nil {
		return nil, err
	}
	return &digest, nil
}

// Indicators decodes the profile's indicators section.
func (p *StockProfile) Indicators() (*IndicatorSet, error) {
	var set IndicatorSet
	if err := decodeResult(p.Sections, SectionIndicators, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// MarketSummary is a snapshot of the major index ETFs, partial like a
// profile.
type MarketSummary struct {
	Quotes    map[string]Result `json:"quotes"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Quote decodes the summary entry for one ETF symbol.
func (m *MarketSummary) Quote(symbol string) (*Quote, error) {
	var quote Quote
	if err := decodeResult(m.Quotes, symbol, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// ---------------------------------------------------------------------------
// Indicators
// ---------------------------------------------------------------------------

// Point is one timestamped indicator value.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Marker annotates a chart event (crossover, squeeze, divergence).
type Marker struct {
	Timestamp time.Time `json:"timestamp"`
	Position  string    `json:"position"`
	Shape     string    `json:"shape"`
	Color     string    `json:"color"`
	Text      string    `json:"text"`
}

// RSIDivergence pairs the price move and the RSI move that disagree.
type RSIDivergence struct {
	PriceStart Point `json:"price_start"`
	PriceEnd   Point `json:"price_end"`
	RSIStart   Point `json:"rsi_start"`
	RSIEnd     Point `json:"rsi_end"`
}

// MACD is the moving average convergence/divergence series.
type MACD struct {
	Line        []Point  `json:"line"`
	Signal      []Point  `json:"signal"`
	Histogram   []Point  `json:"histogram"`
	Crossovers  []Marker `json:"crossovers,omitempty"`
	Divergences []Marker `json:"divergences,omitempty"`
}

// RSI is the relative strength index series.
type RSI struct {
	Period             int             `json:"period"`
	Values             []Point         `json:"values"`
	BullishDivergences []RSIDivergence `json:"bullish_divergences,omitempty"`
	BearishDivergences []RSIDivergence `json:"bearish_divergences,omitempty"`
}

// Bollinger is the Bollinger band series with detected events.
type Bollinger struct {
	Period    int      `json:"period"`
	Middle    []Point  `json:"middle"`
	Upper     []Point  `json:"upper"`
	Lower     []Point  `json:"lower"`
	Bandwidth []Point  `json:"bandwidth"`
	PercentB  []Point  `json:"percent_b"`
	Squeezes  []Marker `json:"squeezes,omitempty"`
	Walks     []Marker `json:"walks,omitempty"`
	Extremes  []Marker `json:"extremes,omitempty"`
}

// IndicatorSet bundles the computed indicators for one symbol/interval.
type IndicatorSet struct {
	Symbol    string     `json:"symbol"`
	Interval  string     `json:"interval"`
	MACD      *MACD      `json:"macd,omitempty"`
	RSI       *RSI       `json:"rsi,omitempty"`
	Bollinger *Bollinger `json:"bollinger,omitempty"`
}

// ---------------------------------------------------------------------------
// Stock state and analysis
// ---------------------------------------------------------------------------

// StatusEntry is one colored status cell in a state dashboard.
type StatusEntry struct {
	Status string `json:"status"`
	Color  string `json:"color"`
	Detail string `json:"detail,omitempty"`
}

// TechnicalState summarizes the indicator picture.
type TechnicalState struct {
	MACD         StatusEntry `json:"macd"`
	RSI          StatusEntry `json:"rsi"`
	Bollinger    StatusEntry `json:"bollinger"`
	Volatility   StatusEntry `json:"volatility"`
	OverallTrend StatusEntry `json:"overall_trend"`
	Divergences  []string    `json:"divergences,omitempty"`
}

// FundamentalState summarizes the latest statements.
type FundamentalState struct {
	Profitability StatusEntry `json:"profitability"`
	Growth        StatusEntry `json:"growth"`
	CashFlow      StatusEntry `json:"cash_flow"`
	BalanceSheet  StatusEntry `json:"balance_sheet"`
	Valuation     StatusEntry `json:"valuation"`
}

// NewsState summarizes recent headline sentiment.
type NewsState struct {
	Sentiment    StatusEntry `json:"sentiment"`
	ArticleCount int         `json:"article_count"`
	Significant  []string    `json:"significant,omitempty"`
}

// StockState is the derived dashboard for one symbol. Partial by design:
// sections that could not be derived are listed in Unavailable with the
// failure text, never as request errors.
type StockState struct {
	Symbol      string            `json:"symbol"`
	Interval    string            `json:"interval"`
	Technical   *TechnicalState   `json:"technical,omitempty"`
	Fundamental *FundamentalState `json:"fundamental,omitempty"`
	News        *NewsState        `json:"news,omitempty"`
	Unavailable map[string]string `json:"unavailable,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// AnalysisReport is a model-generated read of a symbol's state.
// OverallBias is one of Bullish, Bearish, Neutral, "Bullish (Cautious)",
// "Bearish (Cautious)".
type AnalysisReport struct {
	Symbol             string    `json:"symbol"`
	Timeframe          string    `json:"timeframe"`
	OverallBias        string    `json:"overall_bias"`
	TechnicalSummary   string    `json:"technical_summary"`
	FundamentalSummary string    `json:"fundamental_summary"`
	RiskFactors        []string  `json:"risk_factors"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

// Message is one turn in a conversation. The server keeps no conversation
// state; pass the Messages from the previous ChatResponse back as history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSpec describes one model-callable tool.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolTraceEntry records one tool call made during a chat turn.
type ToolTraceEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration_ns,omitempty"`
	Skipped   bool            `json:"skipped,omitempty"`
}

// ChatResponse is the outcome of one chat turn.
type ChatResponse struct {
	Reply     string           `json:"reply"`
	Reason    string           `json:"reason"`
	ToolTrace []ToolTraceEntry `json:"tool_trace"`
	Messages  []Message        `json:"messages,omitempty"`
}

// HealthResponse reports server health. Status is "healthy" or
// "degraded"; Cache is "memory" or "redis"; Archive is "connected" or
// "disconnected".
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Cache   string `json:"cache,omitempty"`
	Archive string `json:"archive,omitempty"`
	Uptime  int64  `json:"uptime_seconds"`
}
