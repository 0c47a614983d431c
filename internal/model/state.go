package model

import "time"

// Status colors used by UI consumers. Gray means the underlying data was
// unavailable, not that the signal is neutral.
const (
	ColorGreen  = "#10B981"
	ColorOrange = "#F59E0B"
	ColorRed    = "#EF4444"
	ColorGray   = "#9CA3AF"
)

// StatusEntry is one labeled signal with its display color.
type StatusEntry struct {
	Status string `json:"status"`
	Color  string `json:"color"`
	Detail string `json:"detail,omitempty"`
}

// TechnicalState summarizes the indicator set for one symbol.
type TechnicalState struct {
	MACD         StatusEntry `json:"macd"`
	RSI          StatusEntry `json:"rsi"`
	Bollinger    StatusEntry `json:"bollinger"`
	Volatility   StatusEntry `json:"volatility"`
	OverallTrend StatusEntry `json:"overall_trend"`
	Divergences  []string    `json:"divergences,omitempty"`
}

// FundamentalState summarizes the derived fundamental metrics.
type FundamentalState struct {
	Profitability StatusEntry `json:"profitability"`
	Growth        StatusEntry `json:"growth"`
	CashFlow      StatusEntry `json:"cash_flow"`
	BalanceSheet  StatusEntry `json:"balance_sheet"`
	Valuation     StatusEntry `json:"valuation"`
}

// NewsState summarizes recent coverage: a majority sentiment plus the
// headlines that moved the classification.
type NewsState struct {
	Sentiment    StatusEntry `json:"sentiment"`
	ArticleCount int         `json:"article_count"`
	Significant  []string    `json:"significant,omitempty"`
}

// StockState is the compact cross-section view the agent reaches for first:
// every signal for one symbol, derived from whatever profile sections were
// available. Missing sections degrade to gray statuses rather than failing
// the whole state.
type StockState struct {
	Symbol      string             `json:"symbol"`
	Interval    string             `json:"interval"`
	Technical   *TechnicalState    `json:"technical,omitempty"`
	Fundamental *FundamentalState  `json:"fundamental,omitempty"`
	News        *NewsState         `json:"news,omitempty"`
	Unavailable map[Section]string `json:"unavailable,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}
