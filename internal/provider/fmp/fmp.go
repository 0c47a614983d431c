// Package fmp adapts the Financial Modeling Prep REST API: quarterly
// financial statements and point-in-time quotes.
package fmp

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/provider"
)

// Name is the provider name used for rate-limit and cache keys.
const Name = "fmp"

// DefaultQuarters is how many quarterly statements one report covers. Four
// quarters is the minimum for a year-back growth comparison.
const DefaultQuarters = 4

// Client calls the Financial Modeling Prep API through a shared
// provider.Runner.
type Client struct {
	runner  *provider.Runner
	baseURL string
	apiKey  string
}

// New creates an FMP client. baseURL defaults to the public stable API.
func New(runner *provider.Runner, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://financialmodelingprep.com/stable"
	}
	return &Client{runner: runner, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (c *Client) get(ctx context.Context, op, endpoint string, params url.Values, out any) error {
	params.Set("apikey", c.apiKey)
	return c.runner.GetJSON(ctx, op, c.baseURL+"/"+endpoint+"?"+params.Encode(), out)
}

func statementParams(symbol string, limit int) url.Values {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("period", "quarter")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

type incomeStatement struct {
	Date            string  `json:"date"`
	Period          string  `json:"period"`
	Revenue         float64 `json:"revenue"`
	GrossProfit     float64 `json:"grossProfit"`
	OperatingIncome float64 `json:"operatingIncome"`
	NetIncome       float64 `json:"netIncome"`
	EPS             float64 `json:"eps"`
}

// IncomeStatements fetches up to limit quarterly income statements, newest
// first as the upstream reports them. An empty result is not a failure;
// callers decide how many quarters they need.
func (c *Client) IncomeStatements(ctx context.Context, symbol string, limit int) ([]model.IncomeStatement, error) {
	var raw []incomeStatement
	if err := c.get(ctx, "income_statement", "income-statement", statementParams(symbol, limit), &raw); err != nil {
		return nil, err
	}

	out := make([]model.IncomeStatement, 0, len(raw))
	for _, s := range raw {
		out = append(out, model.IncomeStatement{
			Date:            s.Date,
			Period:          s.Period,
			Revenue:         s.Revenue,
			GrossProfit:     s.GrossProfit,
			OperatingIncome: s.OperatingIncome,
			NetIncome:       s.NetIncome,
			EPS:             s.EPS,
		})
	}
	return out, nil
}

type balanceSheet struct {
	Date                    string  `json:"date"`
	Period                  string  `json:"period"`
	TotalAssets             float64 `json:"totalAssets"`
	TotalLiabilities        float64 `json:"totalLiabilities"`
	TotalEquity             float64 `json:"totalEquity"`
	CashAndCashEquivalents  float64 `json:"cashAndCashEquivalents"`
	TotalDebt               float64 `json:"totalDebt"`
	TotalCurrentAssets      float64 `json:"totalCurrentAssets"`
	TotalCurrentLiabilities float64 `json:"totalCurrentLiabilities"`
}

// BalanceSheets fetches up to limit quarterly balance sheets, newest first.
func (c *Client) BalanceSheets(ctx context.Context, symbol string, limit int) ([]model.BalanceSheet, error) {
	var raw []balanceSheet
	if err := c.get(ctx, "balance_sheet", "balance-sheet-statement", statementParams(symbol, limit), &raw); err != nil {
		return nil, err
	}

	out := make([]model.BalanceSheet, 0, len(raw))
	for _, s := range raw {
		out = append(out, model.BalanceSheet{
			Date:                    s.Date,
			Period:                  s.Period,
			TotalAssets:             s.TotalAssets,
			TotalLiabilities:        s.TotalLiabilities,
			TotalEquity:             s.TotalEquity,
			CashAndEquivalents:      s.CashAndCashEquivalents,
			TotalDebt:               s.TotalDebt,
			TotalCurrentAssets:      s.TotalCurrentAssets,
			TotalCurrentLiabilities: s.TotalCurrentLiabilities,
		})
	}
	return out, nil
}

type cashFlowStatement struct {
	Date               string  `json:"date"`
	Period             string  `json:"period"`
	OperatingCashFlow  float64 `json:"netCashProvidedByOperatingActivities"`
	CapitalExpenditure float64 `json:"capitalExpenditure"`
	FreeCashFlow       float64 `json:"freeCashFlow"`
}

// CashFlows fetches up to limit quarterly cash-flow statements, newest first.
func (c *Client) CashFlows(ctx context.Context, symbol string, limit int) ([]model.CashFlowStatement, error) {
	var raw []cashFlowStatement
	if err := c.get(ctx, "cash_flow", "cash-flow-statement", statementParams(symbol, limit), &raw); err != nil {
		return nil, err
	}

	out := make([]model.CashFlowStatement, 0, len(raw))
	for _, s := range raw {
		out = append(out, model.CashFlowStatement{
			Date:               s.Date,
			Period:             s.Period,
			OperatingCashFlow:  s.OperatingCashFlow,
			CapitalExpenditure: s.CapitalExpenditure,
			FreeCashFlow:       s.FreeCashFlow,
		})
	}
	return out, nil
}

type quote struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	Change           float64 `json:"change"`
	ChangePercentage float64 `json:"changePercentage"`
	MarketCap        float64 `json:"marketCap"`
	PE               float64 `json:"pe"`
	EPS              float64 `json:"eps"`
	Volume           int64   `json:"volume"`
	AvgVolume        int64   `json:"avgVolume"`
	YearHigh         float64 `json:"yearHigh"`
	YearLow          float64 `json:"yearLow"`
	Timestamp        int64   `json:"timestamp"`
}

// Quote fetches the current quote for symbol. The upstream returns a list
// even for a single symbol; an empty list means the symbol is unknown.
func (c *Client) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var raw []quote
	if err := c.get(ctx, "quote", "quote", q, &raw); err != nil {
		return model.Quote{}, err
	}
	if len(raw) == 0 {
		return model.Quote{}, model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"fmp: no quote for %s", symbol)
	}

	first := raw[0]
	var asOf time.Time
	if first.Timestamp > 0 {
		asOf = time.Unix(first.Timestamp, 0).UTC()
	}
	return model.Quote{
		Symbol:    first.Symbol,
		Name:      first.Name,
		Price:     first.Price,
		Change:    first.Change,
		ChangePct: first.ChangePercentage,
		MarketCap: first.MarketCap,
		PE:        first.PE,
		EPS:       first.EPS,
		Volume:    first.Volume,
		AvgVolume: first.AvgVolume,
		YearHigh:  first.YearHigh,
		YearLow:   first.YearLow,
		AsOf:      asOf,
	}, nil
}
