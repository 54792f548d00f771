package reports

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/models"
	"github.com/xuri/excelize/v2"
)

const XlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExcelExporter interface {
	GetCellValues() []interface{}
}

type journalRow struct {
	entry *models.AccountingEntry
	line  models.AccountingEntryLine
}

func (r journalRow) GetCellValues() []interface{} {
	debit, credit := "", ""
	amount := r.line.Amount.StringFixed(2)
	if r.line.Direction == models.EntryDirectionDebit {
		debit = amount
	} else {
		credit = amount
	}
	return []interface{}{
		string(r.entry.Journal),
		r.entry.Date.Format("02/01/2006"),
		r.entry.Numero,
		r.entry.SourceRef,
		r.line.Account,
		r.line.Label,
		debit,
		credit,
		r.line.LetteringCode,
		string(r.entry.Status),
	}
}

type projectionRow YearProjection

func optionalDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	return d.InexactFloat64()
}

func (r projectionRow) GetCellValues() []interface{} {
	return []interface{}{
		r.CalendarYear,
		r.Revenue.InexactFloat64(),
		r.FlowIncome.InexactFloat64(),
		r.Costs.InexactFloat64(),
		r.FlowExpense.InexactFloat64(),
		r.EBITDA.InexactFloat64(),
		r.Depreciation.InexactFloat64(),
		r.Interest.InexactFloat64(),
		r.Principal.InexactFloat64(),
		r.TaxableResult.InexactFloat64(),
		r.CorporateTax.InexactFloat64(),
		r.NetResult.InexactFloat64(),
		r.CashFlow.InexactFloat64(),
		r.CumulativeCash.InexactFloat64(),
		optionalDecimal(r.DSCR),
	}
}

func writeSheet(f *excelize.File, sheetName string, data []ExcelExporter, headings ...string) error {
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for rowNo, d := range data {
		for i, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func newWorkbook(sheetName string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteJournalXlsx writes one row per entry line, in the usual journal layout.
func WriteJournalXlsx(w io.Writer, entries []*models.AccountingEntry) error {
	const sheet = "Journal"
	f, err := newWorkbook(sheet)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := make([]ExcelExporter, 0)
	for _, e := range entries {
		for _, l := range e.Lines {
			rows = append(rows, journalRow{entry: e, line: l})
		}
	}
	err = writeSheet(f, sheet, rows,
		"Journal", "Date", "Ecriture", "Piece", "Compte", "Libelle", "Debit", "Credit", "Lettrage", "Statut")
	if err != nil {
		return err
	}
	return f.Write(w)
}

// WriteProjectionXlsx writes the yearly table and a summary sheet.
func WriteProjectionXlsx(w io.Writer, p *Projection) error {
	const sheet = "Plan previsionnel"
	f, err := newWorkbook(sheet)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := make([]ExcelExporter, 0, len(p.Years))
	for _, y := range p.Years {
		rows = append(rows, projectionRow(y))
	}
	err = writeSheet(f, sheet, rows,
		"Annee", "Recettes", "Flux entrants", "Charges", "Flux sortants", "EBE", "Amortissements",
		"Interets", "Capital rembourse", "Resultat fiscal", "IS", "Resultat net", "Flux de tresorerie",
		"Tresorerie cumulee", "DSCR")
	if err != nil {
		return err
	}

	const summary = "Synthese"
	if _, err := f.NewSheet(summary); err != nil {
		return err
	}
	values := [][]interface{}{
		{"Societe", p.Company},
		{"DSCR minimum", optionalDecimal(p.Summary.MinDSCR)},
		{"DSCR moyen", optionalDecimal(p.Summary.AvgDSCR)},
		{"Annee de retour", p.Summary.PaybackYear},
		{"Tresorerie finale", p.Summary.FinalCumulativeCash.InexactFloat64()},
		{"Total IS", p.Summary.TotalCorporateTax.InexactFloat64()},
		{"Total resultat net", p.Summary.TotalNetResult.InexactFloat64()},
	}
	for i, v := range values {
		if err := f.SetSheetRow(summary, fmt.Sprintf("A%d", i+1), &v); err != nil {
			return err
		}
	}
	return f.Write(w)
}
