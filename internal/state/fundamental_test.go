package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/ichiba/internal/model"
)

func healthyReport() model.FundamentalsReport {
	return model.FundamentalsReport{
		Symbol: "AAPL",
		Income: []model.IncomeStatement{
			{Date: "2024-03-31", Revenue: 100e9, NetIncome: 25e9},
			{Date: "2023-12-31", Revenue: 92e9, NetIncome: 22e9},
		},
		Balance: []model.BalanceSheet{
			{Date: "2024-03-31", TotalEquity: 80e9, TotalDebt: 40e9},
		},
		CashFlow: []model.CashFlowStatement{
			{Date: "2024-03-31", FreeCashFlow: 20e9},
		},
		Quote: &model.Quote{Symbol: "AAPL", PE: 12},
		Metrics: model.FundamentalMetrics{
			NetMargin:        0.25,
			RevenueGrowthQoQ: 0.087,
			FreeCashFlow:     20e9,
			DebtToEquity:     0.5,
		},
	}
}

func TestFundamentalHealthyProfile(t *testing.T) {
	fs := Fundamental(healthyReport())

	assert.Equal(t, "Healthy", fs.Profitability.Status)
	assert.Equal(t, "Growing", fs.Growth.Status)
	assert.Equal(t, "Positive", fs.CashFlow.Status)
	assert.Equal(t, "Solid", fs.BalanceSheet.Status)
	assert.Equal(t, "Attractive", fs.Valuation.Status)
	for _, entry := range []model.StatusEntry{
		fs.Profitability, fs.Growth, fs.CashFlow, fs.BalanceSheet, fs.Valuation,
	} {
		assert.Equal(t, model.ColorGreen, entry.Color)
	}
	assert.Equal(t, "net margin 25.0%", fs.Profitability.Detail)
	assert.Equal(t, "revenue +8.7% QoQ", fs.Growth.Detail)
}

func TestFundamentalWeakProfile(t *testing.T) {
	report := healthyReport()
	report.Metrics = model.FundamentalMetrics{
		NetMargin:        -0.05,
		RevenueGrowthQoQ: -0.12,
		FreeCashFlow:     -3e9,
		DebtToEquity:     2.5,
	}
	report.Quote = &model.Quote{Symbol: "AAPL", PE: 45}

	fs := Fundamental(report)

	assert.Equal(t, "Weak", fs.Profitability.Status)
	assert.Equal(t, "Contracting", fs.Growth.Status)
	assert.Equal(t, "Negative", fs.CashFlow.Status)
	assert.Equal(t, "Leveraged", fs.BalanceSheet.Status)
	assert.Equal(t, "Rich", fs.Valuation.Status)
	for _, entry := range []model.StatusEntry{
		fs.Profitability, fs.Growth, fs.CashFlow, fs.BalanceSheet, fs.Valuation,
	} {
		assert.Equal(t, model.ColorRed, entry.Color)
	}
}

func TestFundamentalMiddleBands(t *testing.T) {
	report := healthyReport()
	report.Metrics = model.FundamentalMetrics{
		NetMargin:        0.05,
		RevenueGrowthQoQ: 0.0,
		FreeCashFlow:     0,
		DebtToEquity:     1.5,
	}
	report.Quote = &model.Quote{Symbol: "AAPL", PE: 20}

	fs := Fundamental(report)

	assert.Equal(t, "Moderate", fs.Profitability.Status)
	assert.Equal(t, "Stable", fs.Growth.Status)
	assert.Equal(t, "Flat", fs.CashFlow.Status)
	assert.Equal(t, "Moderate", fs.BalanceSheet.Status)
	assert.Equal(t, "Fair", fs.Valuation.Status)
	for _, entry := range []model.StatusEntry{
		fs.Profitability, fs.Growth, fs.CashFlow, fs.BalanceSheet, fs.Valuation,
	} {
		assert.Equal(t, model.ColorOrange, entry.Color)
	}
}

func TestFundamentalEmptyReport(t *testing.T) {
	fs := Fundamental(model.FundamentalsReport{Symbol: "AAPL"})

	for _, entry := range []model.StatusEntry{
		fs.Profitability, fs.Growth, fs.CashFlow, fs.BalanceSheet, fs.Valuation,
	} {
		assert.Equal(t, "unknown", entry.Status)
		assert.Equal(t, model.ColorGray, entry.Color)
	}
}

func TestFundamentalNegativeEquity(t *testing.T) {
	report := healthyReport()
	report.Balance[0].TotalEquity = -5e9

	fs := Fundamental(report)

	assert.Equal(t, "Leveraged", fs.BalanceSheet.Status)
	assert.Equal(t, model.ColorRed, fs.BalanceSheet.Color)
	assert.Equal(t, "negative equity", fs.BalanceSheet.Detail)
}

func TestFundamentalNegativePE(t *testing.T) {
	report := healthyReport()
	report.Quote = &model.Quote{Symbol: "AAPL", PE: -8}

	fs := Fundamental(report)

	assert.Equal(t, "unknown", fs.Valuation.Status)
	assert.Equal(t, model.ColorGray, fs.Valuation.Color)
}

func TestFundamentalSingleQuarter(t *testing.T) {
	report := healthyReport()
	report.Income = report.Income[:1]

	fs := Fundamental(report)

	assert.Equal(t, "Healthy", fs.Profitability.Status)
	assert.Equal(t, "unknown", fs.Growth.Status)
}

func TestFundamentalZeroRevenue(t *testing.T) {
	report := healthyReport()
	report.Income[0].Revenue = 0

	fs := Fundamental(report)

	assert.Equal(t, "unknown", fs.Profitability.Status)
}
