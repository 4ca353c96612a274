package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	billing "careledger/internal/billing/domain"
	"careledger/internal/clients"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// reportRow is one display line of a statement report. Balance is the
// running credit-minus-debit total accumulated in canonical ledger order.
type reportRow struct {
	index       int
	date        string
	description string
	credit      string
	debit       string
	balance     string
}

// buildRows walks the full ledger in the order given, accumulating the
// running balance over every entry, and emits display rows for the entries
// inside the optional [start, end] window. Filtering never resets the
// balance; a windowed report shows the same balances as the full one.
func buildRows(entries []billing.Statement, start, end *time.Time) ([]reportRow, decimal.Decimal) {
	var rows []reportRow
	balance := decimal.Zero
	for i := range entries {
		balance = balance.Add(entries[i].Credit).Sub(entries[i].Debit)
		if start != nil && !entries[i].Date.IsZero() && entries[i].Date.Before(*start) {
			continue
		}
		if end != nil && !entries[i].Date.IsZero() && entries[i].Date.After(*end) {
			continue
		}
		date := ""
		if !entries[i].Date.IsZero() {
			date = billing.FormatDateUK(entries[i].Date)
		}
		rows = append(rows, reportRow{
			index:       len(rows) + 1,
			date:        date,
			description: entries[i].Description,
			credit:      entries[i].Credit.StringFixed(2),
			debit:       entries[i].Debit.StringFixed(2),
			balance:     balance.StringFixed(2),
		})
	}
	return rows, balance
}

// BuildStatementPDF renders a statement report for a service.
func BuildStatementPDF(client *clients.Client, svc *billing.Service, entries []billing.Statement) ([]byte, error) {
	rows, balance := buildRows(entries, nil, nil)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Statement of Account")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Client ID: %s", client.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Client Name: %s", client.FullName()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Service: %s", svc.ServiceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Balance Up To Date: %s", balance.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(12, 6, "S.No", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(78, 6, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "Credit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "Debit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Balance", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		pdf.CellFormat(12, 6, fmt.Sprintf("%d", row.index), "1", 0, "C", false, 0, "")
		pdf.CellFormat(24, 6, row.date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(78, 6, row.description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(24, 6, row.credit, "1", 0, "R", false, 0, "")
		pdf.CellFormat(24, 6, row.debit, "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, row.balance, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementCSV renders a statement report as CSV: a small client header
// block followed by the tabular rows. start and end optionally window the
// rows without changing the balances.
func BuildStatementCSV(client *clients.Client, svc *billing.Service, entries []billing.Statement, start, end *time.Time) ([]byte, error) {
	rows, balance := buildRows(entries, start, end)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	records := [][]string{
		{"Client ID", client.ID},
		{"Client Name", client.FullName()},
		{"Service", svc.ServiceID},
		{"Balance Up To Date", balance.StringFixed(2)},
		{},
		{"S.No", "Date", "Description", "Credit", "Debit", "Balance"},
	}
	for _, row := range rows {
		records = append(records, []string{
			fmt.Sprintf("%d", row.index), row.date, row.description, row.credit, row.debit, row.balance,
		})
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a statement report as a workbook.
func BuildStatementXLSX(client *clients.Client, svc *billing.Service, entries []billing.Statement) ([]byte, error) {
	rows, balance := buildRows(entries, nil, nil)

	f := excelize.NewFile()
	sheet := "statement"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Client ID")
	_ = f.SetCellValue(sheet, "B1", client.ID)
	_ = f.SetCellValue(sheet, "A2", "Client Name")
	_ = f.SetCellValue(sheet, "B2", client.FullName())
	_ = f.SetCellValue(sheet, "A3", "Service")
	_ = f.SetCellValue(sheet, "B3", svc.ServiceID)
	_ = f.SetCellValue(sheet, "A4", "Balance Up To Date")
	_ = f.SetCellValue(sheet, "B4", balance.StringFixed(2))

	headers := []string{"S.No", "Date", "Description", "Credit", "Debit", "Balance"}
	for i, name := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 6)
		_ = f.SetCellValue(sheet, cell, name)
	}
	for i, row := range rows {
		values := []any{row.index, row.date, row.description, row.credit, row.debit, row.balance}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+7)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
