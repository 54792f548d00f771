package reports_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/models/reports"
	"github.com/xuri/excelize/v2"
)

func line(account string, direction models.EntryDirection, amount string) models.NewAccountingEntryLine {
	return models.NewAccountingEntryLine{Account: account, Label: "ligne " + account, Direction: direction, Amount: dec(amount)}
}

// seedEntries books a validated sale, a draft bank receipt and a validated purchase of the previous year.
func seedEntries(t *testing.T, ctx context.Context) []*models.AccountingEntry {
	t.Helper()
	inputs := []*models.NewAccountingEntry{
		{Date: day(2025, 4, 30), Journal: models.JournalSales, Label: "Vente", Lines: []models.NewAccountingEntryLine{
			line("411000", models.EntryDirectionDebit, "1200"),
			line("706000", models.EntryDirectionCredit, "1000"),
			line("445710", models.EntryDirectionCredit, "200"),
		}},
		{Date: day(2025, 5, 15), Journal: models.JournalBank, Label: "Encaissement", Lines: []models.NewAccountingEntryLine{
			line("512000", models.EntryDirectionDebit, "1200"),
			line("411000", models.EntryDirectionCredit, "1200"),
		}},
		{Date: day(2024, 12, 31), Journal: models.JournalPurchases, Label: "Fournitures", Lines: []models.NewAccountingEntryLine{
			line("606000", models.EntryDirectionDebit, "50"),
			line("512000", models.EntryDirectionCredit, "50"),
		}},
	}
	entries := make([]*models.AccountingEntry, 0, len(inputs))
	for _, in := range inputs {
		e, err := models.CreateAccountingEntry(ctx, in)
		if err != nil {
			t.Fatalf("CreateAccountingEntry(%s): %v", in.Label, err)
		}
		entries = append(entries, e)
	}
	for _, i := range []int{0, 2} {
		if _, err := models.ValidateEntry(ctx, entries[i].ID); err != nil {
			t.Fatalf("ValidateEntry: %v", err)
		}
	}
	return entries
}

func TestGetTrialBalance(t *testing.T) {
	ctx := setupTestDB(t)
	seedEntries(t, ctx)

	type row struct{ debit, credit, balance string }
	check := func(name string, got []*reports.AccountBalance, want map[string]row) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("%s: expected %d accounts, got %d", name, len(want), len(got))
		}
		for i, b := range got {
			w, ok := want[b.Account]
			if !ok {
				t.Fatalf("%s: unexpected account %s", name, b.Account)
			}
			if i > 0 && got[i-1].Account >= b.Account {
				t.Fatalf("%s: accounts not sorted", name)
			}
			assertDecimal(t, name+" debit "+b.Account, b.Debit, w.debit)
			assertDecimal(t, name+" credit "+b.Account, b.Credit, w.credit)
			assertDecimal(t, name+" balance "+b.Account, b.Balance, w.balance)
		}
	}

	all, err := reports.GetTrialBalance(ctx, nil, nil, false)
	if err != nil {
		t.Fatalf("GetTrialBalance: %v", err)
	}
	check("all", all, map[string]row{
		"411000": {"1200", "1200", "0"},
		"445710": {"0", "200", "-200"},
		"512000": {"1200", "50", "1150"},
		"606000": {"50", "0", "50"},
		"706000": {"0", "1000", "-1000"},
	})

	validated, err := reports.GetTrialBalance(ctx, nil, nil, true)
	if err != nil {
		t.Fatalf("GetTrialBalance: %v", err)
	}
	check("validated", validated, map[string]row{
		"411000": {"1200", "0", "1200"},
		"445710": {"0", "200", "-200"},
		"512000": {"0", "50", "-50"},
		"606000": {"50", "0", "50"},
		"706000": {"0", "1000", "-1000"},
	})

	from, to := day(2025, 1, 1), day(2025, 4, 30)
	period, err := reports.GetTrialBalance(ctx, &from, &to, false)
	if err != nil {
		t.Fatalf("GetTrialBalance: %v", err)
	}
	check("period", period, map[string]row{
		"411000": {"1200", "0", "1200"},
		"445710": {"0", "200", "-200"},
		"706000": {"0", "1000", "-1000"},
	})
}

func TestGetAccountLedger(t *testing.T) {
	ctx := setupTestDB(t)
	entries := seedEntries(t, ctx)

	ledger, err := reports.GetAccountLedger(ctx, "512000", nil, nil)
	if err != nil {
		t.Fatalf("GetAccountLedger: %v", err)
	}
	if len(ledger.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(ledger.Lines))
	}
	// date order puts last year's purchase first
	if ledger.Lines[0].EntryId != entries[2].ID || ledger.Lines[1].EntryId != entries[1].ID {
		t.Fatalf("lines not in date order: %+v", ledger.Lines)
	}
	assertDecimal(t, "running balance 1", ledger.Lines[0].Balance, "-50")
	assertDecimal(t, "running balance 2", ledger.Lines[1].Balance, "1150")
	assertDecimal(t, "debit", ledger.Debit, "1200")
	assertDecimal(t, "credit", ledger.Credit, "50")
	assertDecimal(t, "balance", ledger.Balance, "1150")
	if ledger.Lines[1].Numero != entries[1].Numero || ledger.Lines[1].Journal != string(models.JournalBank) {
		t.Fatalf("entry columns not carried: %+v", ledger.Lines[1])
	}

	from := day(2025, 1, 1)
	recent, err := reports.GetAccountLedger(ctx, "512000", &from, nil)
	if err != nil {
		t.Fatalf("GetAccountLedger: %v", err)
	}
	if len(recent.Lines) != 1 {
		t.Fatalf("expected 1 line from 2025, got %d", len(recent.Lines))
	}

	empty, err := reports.GetAccountLedger(ctx, "999999", nil, nil)
	if err != nil || len(empty.Lines) != 0 || !empty.Balance.IsZero() {
		t.Fatalf("unknown account should give an empty ledger, got %+v (%v)", empty, err)
	}
}

func TestWriteJournalXlsx(t *testing.T) {
	ctx := setupTestDB(t)
	seedEntries(t, ctx)
	entries, err := models.ListAccountingEntries(ctx, models.AccountingEntryFilter{Journal: models.JournalSales})
	if err != nil {
		t.Fatalf("ListAccountingEntries: %v", err)
	}

	var buf bytes.Buffer
	if err := reports.WriteJournalXlsx(&buf, entries); err != nil {
		t.Fatalf("WriteJournalXlsx: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Journal")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 lines, got %d rows", len(rows))
	}
	want := []string{"VE", "30/04/2025", entries[0].Numero, "", "411000", "ligne 411000", "1200.00"}
	for i, w := range want {
		if rows[1][i] != w {
			t.Fatalf("column %d: expected %q, got %q", i, w, rows[1][i])
		}
	}
}

func TestGetReceivableAging(t *testing.T) {
	ctx := setupTestDB(t)
	asOf := day(2025, 6, 30)

	first, err := models.CreateClient(ctx, &models.NewClient{Company: "Centrale Nord", Email: "nord@pv.fr", PaymentTermsDays: 30})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	second, err := models.CreateClient(ctx, &models.NewClient{Company: "Centrale Sud", Email: "sud@pv.fr", PaymentTermsDays: 30})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	issue := func(clientId string, due time.Time, status models.InvoiceStatus) *models.Invoice {
		t.Helper()
		price, rate := dec("100"), dec("20")
		inv, err := models.CreateInvoice(ctx, &models.NewInvoice{
			ClientId:  clientId,
			IssueDate: day(2025, 3, 1),
			DueDate:   &due,
			Status:    status,
			Lines:     []models.NewDocumentLine{{Designation: "Nettoyage", Quantity: dec("1"), UnitPrice: &price, VatRate: &rate}},
		})
		if err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}
		return inv
	}

	issue(first.ID, day(2025, 7, 10), "")  // not yet due
	issue(first.ID, day(2025, 6, 20), "")  // 10 days
	issue(first.ID, day(2025, 6, 5), "")   // 25 days
	issue(first.ID, day(2025, 5, 20), "")  // 41 days
	issue(first.ID, day(2025, 4, 1), "")   // 90 days
	issue(first.ID, day(2025, 4, 1), models.InvoiceStatusDraft)
	paid := issue(first.ID, day(2025, 4, 1), "")
	if _, err := models.AddInvoicePayment(ctx, paid.ID, &models.NewInvoicePayment{Amount: dec("120")}); err != nil {
		t.Fatalf("AddInvoicePayment: %v", err)
	}
	partial := issue(second.ID, day(2025, 7, 30), "")
	if _, err := models.AddInvoicePayment(ctx, partial.ID, &models.NewInvoicePayment{Amount: dec("50")}); err != nil {
		t.Fatalf("AddInvoicePayment: %v", err)
	}

	aging, err := reports.GetReceivableAging(ctx, asOf)
	if err != nil {
		t.Fatalf("GetReceivableAging: %v", err)
	}
	if len(aging) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(aging))
	}
	byClient := map[string]*reports.ReceivableAging{}
	for _, a := range aging {
		byClient[a.ClientId] = a
	}

	north := byClient[first.ID]
	if north == nil || north.InvoiceCount != 5 {
		t.Fatalf("unexpected aging for the first client: %+v", north)
	}
	assertDecimal(t, "total", north.Total, "600")
	assertDecimal(t, "current", north.Current, "120")
	assertDecimal(t, "1-15", north.Int1to15, "120")
	assertDecimal(t, "16-30", north.Int16to30, "120")
	assertDecimal(t, "31-45", north.Int31to45, "120")
	assertDecimal(t, "46+", north.Int46plus, "120")

	south := byClient[second.ID]
	if south == nil || south.InvoiceCount != 1 {
		t.Fatalf("unexpected aging for the second client: %+v", south)
	}
	assertDecimal(t, "partial remaining", south.Current, "70")
}
