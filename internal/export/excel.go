// Package export renders group settlement snapshots as XLSX workbooks.
package export

import (
	"fmt"
	"sort"
	"time"

	"splitledger/internal/models"
	"splitledger/internal/money"

	"github.com/xuri/excelize/v2"
)

// SettlementWorkbook builds a two-sheet workbook: per-user net balances and
// the open bills behind them, then the netted transaction plan. Amounts are
// rendered as decimal strings so spreadsheet users never see minor units.
func SettlementWorkbook(group models.Group, bills []models.SplitBill, plan models.SettlementPlan) (*excelize.File, string, error) {
	f := excelize.NewFile()

	if err := writeSummarySheet(f, group, bills, plan); err != nil {
		return nil, "", err
	}
	if err := writePlanSheet(f, plan); err != nil {
		return nil, "", err
	}
	f.DeleteSheet("Sheet1")

	filename := fmt.Sprintf("settlement_%s_%s.xlsx", group.ID, time.Now().UTC().Format("2006-01-02"))
	return f, filename, nil
}

func writeSummarySheet(f *excelize.File, group models.Group, bills []models.SplitBill, plan models.SettlementPlan) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	index, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	setRow(f, sheet, 1, "Group", group.Name)
	setRow(f, sheet, 2, "Exported", time.Now().UTC().Format(time.RFC3339))

	row := 4
	setRow(f, sheet, row, "User", "Net Balance")
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
	row++

	userIDs := make([]string, 0, len(plan.NetBalances))
	for userID := range plan.NetBalances {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	for _, userID := range userIDs {
		setRow(f, sheet, row, userID, money.FormatMinor(plan.NetBalances[userID]))
		row++
	}

	row += 2
	setRow(f, sheet, row, "Bill", "Total", "Currency", "Split Type", "Settled", "Created")
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row), headerStyle)
	row++
	for _, bill := range bills {
		setRow(f, sheet, row,
			bill.Description,
			money.FormatMinor(bill.TotalAmount),
			bill.Currency,
			bill.SplitType,
			bill.IsSettled,
			bill.CreatedAt.Format("2006-01-02"),
		)
		row++
	}

	_ = f.SetColWidth(sheet, "A", "F", 20)
	return nil
}

func writePlanSheet(f *excelize.File, plan models.SettlementPlan) error {
	const sheet = "Settlement Plan"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	setRow(f, sheet, 1, "From", "To", "Amount")
	_ = f.SetCellStyle(sheet, "A1", "C1", headerStyle)

	for i, transaction := range plan.Transactions {
		setRow(f, sheet, i+2,
			transaction.FromUserID,
			transaction.ToUserID,
			money.FormatMinor(transaction.Amount),
		)
	}

	_ = f.SetColWidth(sheet, "A", "C", 20)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, value := range values {
		cell := fmt.Sprintf("%s%d", string(rune('A'+i)), row)
		_ = f.SetCellValue(sheet, cell, value)
	}
}
