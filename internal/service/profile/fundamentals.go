package profile

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/ichiba/internal/cache"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/provider/fmp"
)

// Fundamentals returns the composed quarterly report for symbol: the three
// statement sets, the valuation quote, and the derived metrics.
func (s *Service) Fundamentals(ctx context.Context, symbol string) (model.FundamentalsReport, error) {
	report, _, err := s.fundamentals(ctx, symbol)
	return report, err
}

func (s *Service) fundamentals(ctx context.Context, symbol string) (model.FundamentalsReport, time.Time, error) {
	symbol = normalizeSymbol(symbol)
	spec := cache.KeySpec{
		Provider:  fmp.Name,
		Operation: "fundamentals",
		Params: map[string]string{
			"symbol": symbol,
			"period": "quarter",
			"limit":  strconv.Itoa(s.cfg.Quarters),
		},
	}
	return fetchCached[model.FundamentalsReport](ctx, s, spec, s.cfg.FundamentalTTL, func(ctx context.Context) (any, error) {
		return s.buildFundamentals(ctx, symbol)
	})
}

// buildFundamentals fetches the three statement sets concurrently. Any
// statement failure fails the report, as do all-empty statements (FMP
// returns empty lists for unknown symbols); a missing quote only degrades
// it (valuation reads as unknown downstream).
func (s *Service) buildFundamentals(ctx context.Context, symbol string) (model.FundamentalsReport, error) {
	var (
		income   []model.IncomeStatement
		balance  []model.BalanceSheet
		cashFlow []model.CashFlowStatement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, err = s.funds.IncomeStatements(gctx, symbol, s.cfg.Quarters)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = s.funds.BalanceSheets(gctx, symbol, s.cfg.Quarters)
		return err
	})
	g.Go(func() error {
		var err error
		cashFlow, err = s.funds.CashFlows(gctx, symbol, s.cfg.Quarters)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.FundamentalsReport{}, err
	}
	if len(income) == 0 && len(balance) == 0 && len(cashFlow) == 0 {
		return model.FundamentalsReport{}, model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"fmp: no quarterly statements for %s", symbol)
	}

	report := model.FundamentalsReport{
		Symbol:     symbol,
		Period:     "quarter",
		Income:     income,
		Balance:    balance,
		CashFlow:   cashFlow,
		Metrics:    deriveMetrics(income, balance, cashFlow),
		Quarters:   s.cfg.Quarters,
		ReportedAt: time.Now().UTC(),
	}

	quote, err := s.Quote(ctx, symbol)
	if err != nil {
		s.logger.Warn("fundamentals quote unavailable", "symbol", symbol, "error", err)
	} else {
		report.Quote = &quote
	}

	s.archiveFundamentals(ctx, report)
	return report, nil
}

// deriveMetrics computes ratios and growth from statements ordered newest
// first. Ratios whose denominator is zero or whose statements are missing
// stay at their zero value.
func deriveMetrics(income []model.IncomeStatement, balance []model.BalanceSheet, cashFlow []model.CashFlowStatement) model.FundamentalMetrics {
	var m model.FundamentalMetrics

	if len(income) > 0 && income[0].Revenue != 0 {
		m.GrossMargin = income[0].GrossProfit / income[0].Revenue
		m.OperatingMargin = income[0].OperatingIncome / income[0].Revenue
		m.NetMargin = income[0].NetIncome / income[0].Revenue
	}
	if len(income) >= 2 {
		if income[1].Revenue != 0 {
			m.RevenueGrowthQoQ = (income[0].Revenue - income[1].Revenue) / income[1].Revenue
		}
		if income[1].NetIncome != 0 {
			m.EarningsGrowthQoQ = (income[0].NetIncome - income[1].NetIncome) / income[1].NetIncome
		}
	}
	// Four quarters of data puts index 3 at the same quarter one year back.
	if len(income) >= 4 && income[3].Revenue != 0 {
		m.RevenueGrowthYear = (income[0].Revenue - income[3].Revenue) / income[3].Revenue
	}

	if len(balance) > 0 {
		if balance[0].TotalEquity != 0 {
			if len(income) > 0 {
				m.ROE = income[0].NetIncome / balance[0].TotalEquity
			}
			m.DebtToEquity = balance[0].TotalDebt / balance[0].TotalEquity
		}
		if balance[0].TotalCurrentLiabilities != 0 {
			m.CurrentRatio = balance[0].TotalCurrentAssets / balance[0].TotalCurrentLiabilities
		}
	}

	if len(cashFlow) > 0 {
		m.FreeCashFlow = cashFlow[0].FreeCashFlow
		m.OperatingCashFlow = cashFlow[0].OperatingCashFlow
	}
	return m
}
