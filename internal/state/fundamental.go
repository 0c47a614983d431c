package state

import (
	"fmt"

	"github.com/ashita-ai/ichiba/internal/model"
)

// Fundamental derives the five-dimension fundamental status from a report.
// Dimensions whose underlying statements are missing come back gray.
func Fundamental(report model.FundamentalsReport) *model.FundamentalState {
	return &model.FundamentalState{
		Profitability: assessProfitability(report),
		Growth:        assessGrowth(report),
		CashFlow:      assessCashFlow(report),
		BalanceSheet:  assessBalanceSheet(report),
		Valuation:     assessValuation(report),
	}
}

func assessProfitability(report model.FundamentalsReport) model.StatusEntry {
	if len(report.Income) == 0 || report.Income[0].Revenue <= 0 {
		return unknownEntry("no income statement")
	}
	margin := report.Metrics.NetMargin
	detail := fmt.Sprintf("net margin %.1f%%", margin*100)
	switch {
	case margin > 0.10:
		return model.StatusEntry{Status: "Healthy", Color: model.ColorGreen, Detail: detail}
	case margin > 0:
		return model.StatusEntry{Status: "Moderate", Color: model.ColorOrange, Detail: detail}
	default:
		return model.StatusEntry{Status: "Weak", Color: model.ColorRed, Detail: detail}
	}
}

func assessGrowth(report model.FundamentalsReport) model.StatusEntry {
	if len(report.Income) < 2 {
		return unknownEntry("needs two quarters")
	}
	growth := report.Metrics.RevenueGrowthQoQ
	detail := fmt.Sprintf("revenue %+.1f%% QoQ", growth*100)
	switch {
	case growth > 0.05:
		return model.StatusEntry{Status: "Growing", Color: model.ColorGreen, Detail: detail}
	case growth > -0.05:
		return model.StatusEntry{Status: "Stable", Color: model.ColorOrange, Detail: detail}
	default:
		return model.StatusEntry{Status: "Contracting", Color: model.ColorRed, Detail: detail}
	}
}

func assessCashFlow(report model.FundamentalsReport) model.StatusEntry {
	if len(report.CashFlow) == 0 {
		return unknownEntry("no cash flow statement")
	}
	fcf := report.Metrics.FreeCashFlow
	detail := fmt.Sprintf("fcf %.2g", fcf)
	switch {
	case fcf > 0:
		return model.StatusEntry{Status: "Positive", Color: model.ColorGreen, Detail: detail}
	case fcf < 0:
		return model.StatusEntry{Status: "Negative", Color: model.ColorRed, Detail: detail}
	default:
		return model.StatusEntry{Status: "Flat", Color: model.ColorOrange, Detail: detail}
	}
}

func assessBalanceSheet(report model.FundamentalsReport) model.StatusEntry {
	if len(report.Balance) == 0 {
		return unknownEntry("no balance sheet")
	}
	if report.Balance[0].TotalEquity <= 0 {
		return model.StatusEntry{Status: "Leveraged", Color: model.ColorRed, Detail: "negative equity"}
	}
	de := report.Metrics.DebtToEquity
	detail := fmt.Sprintf("debt/equity %.2f", de)
	switch {
	case de < 1:
		return model.StatusEntry{Status: "Solid", Color: model.ColorGreen, Detail: detail}
	case de < 2:
		return model.StatusEntry{Status: "Moderate", Color: model.ColorOrange, Detail: detail}
	default:
		return model.StatusEntry{Status: "Leveraged", Color: model.ColorRed, Detail: detail}
	}
}

func assessValuation(report model.FundamentalsReport) model.StatusEntry {
	// Negative earnings make the ratio meaningless, not attractive.
	if report.Quote == nil || report.Quote.PE <= 0 {
		return unknownEntry("no positive p/e")
	}
	pe := report.Quote.PE
	detail := fmt.Sprintf("p/e %.1f", pe)
	switch {
	case pe < 15:
		return model.StatusEntry{Status: "Attractive", Color: model.ColorGreen, Detail: detail}
	case pe < 30:
		return model.StatusEntry{Status: "Fair", Color: model.ColorOrange, Detail: detail}
	default:
		return model.StatusEntry{Status: "Rich", Color: model.ColorRed, Detail: detail}
	}
}
