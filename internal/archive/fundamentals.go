package archive

import (
	"context"
	"fmt"

	"github.com/ashita-ai/ichiba/internal/model"
)

// SaveFundamentals stores the report's statements across the three
// statement tables inside one transaction. Rows already archived for the
// same (symbol, date) are skipped.
func (a *Archive) SaveFundamentals(ctx context.Context, report model.FundamentalsReport) error {
	if len(report.Income) == 0 && len(report.Balance) == 0 && len(report.CashFlow) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin fundamentals tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range report.Income {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO income_statements
				(symbol, date, period, revenue, gross_profit, operating_income, net_income, eps)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, report.Symbol, st.Date, st.Period,
			st.Revenue, st.GrossProfit, st.OperatingIncome, st.NetIncome, st.EPS,
		); err != nil {
			return fmt.Errorf("archive: insert income statement %s %s: %w", report.Symbol, st.Date, err)
		}
	}

	for _, st := range report.Balance {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO balance_sheets
				(symbol, date, period, total_assets, total_liabilities, total_equity,
				 cash_and_equivalents, total_debt, total_current_assets, total_current_liabilities)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, report.Symbol, st.Date, st.Period,
			st.TotalAssets, st.TotalLiabilities, st.TotalEquity,
			st.CashAndEquivalents, st.TotalDebt, st.TotalCurrentAssets, st.TotalCurrentLiabilities,
		); err != nil {
			return fmt.Errorf("archive: insert balance sheet %s %s: %w", report.Symbol, st.Date, err)
		}
	}

	for _, st := range report.CashFlow {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO cash_flow_statements
				(symbol, date, period, operating_cash_flow, capital_expenditure, free_cash_flow)
			VALUES (?, ?, ?, ?, ?, ?)
		`, report.Symbol, st.Date, st.Period,
			st.OperatingCashFlow, st.CapitalExpenditure, st.FreeCashFlow,
		); err != nil {
			return fmt.Errorf("archive: insert cash flow %s %s: %w", report.Symbol, st.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit fundamentals tx: %w", err)
	}
	return nil
}

// IncomeStatements returns up to limit archived income statements for
// symbol, newest first.
func (a *Archive) IncomeStatements(ctx context.Context, symbol string, limit int) ([]model.IncomeStatement, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT date, period, revenue, gross_profit, operating_income, net_income, eps
		FROM income_statements
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query income statements: %w", err)
	}
	defer rows.Close()

	var out []model.IncomeStatement
	for rows.Next() {
		var st model.IncomeStatement
		if err := rows.Scan(&st.Date, &st.Period, &st.Revenue, &st.GrossProfit,
			&st.OperatingIncome, &st.NetIncome, &st.EPS); err != nil {
			return nil, fmt.Errorf("archive: scan income statement: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate income statements: %w", err)
	}
	return out, nil
}

// BalanceSheets returns up to limit archived balance sheets for symbol,
// newest first.
func (a *Archive) BalanceSheets(ctx context.Context, symbol string, limit int) ([]model.BalanceSheet, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT date, period, total_assets, total_liabilities, total_equity,
		       cash_and_equivalents, total_debt, total_current_assets, total_current_liabilities
		FROM balance_sheets
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query balance sheets: %w", err)
	}
	defer rows.Close()

	var out []model.BalanceSheet
	for rows.Next() {
		var st model.BalanceSheet
		if err := rows.Scan(&st.Date, &st.Period, &st.TotalAssets, &st.TotalLiabilities,
			&st.TotalEquity, &st.CashAndEquivalents, &st.TotalDebt,
			&st.TotalCurrentAssets, &st.TotalCurrentLiabilities); err != nil {
			return nil, fmt.Errorf("archive: scan balance sheet: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate balance sheets: %w", err)
	}
	return out, nil
}

// CashFlows returns up to limit archived cash flow statements for symbol,
// newest first.
func (a *Archive) CashFlows(ctx context.Context, symbol string, limit int) ([]model.CashFlowStatement, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT date, period, operating_cash_flow, capital_expenditure, free_cash_flow
		FROM cash_flow_statements
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query cash flows: %w", err)
	}
	defer rows.Close()

	var out []model.CashFlowStatement
	for rows.Next() {
		var st model.CashFlowStatement
		if err := rows.Scan(&st.Date, &st.Period, &st.OperatingCashFlow,
			&st.CapitalExpenditure, &st.FreeCashFlow); err != nil {
			return nil, fmt.Errorf("archive: scan cash flow: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate cash flows: %w", err)
	}
	return out, nil
}
