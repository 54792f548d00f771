package models_test

import (
	"errors"
	"testing"

	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
)

func entryLine(account string, direction models.EntryDirection, amount string) models.NewAccountingEntryLine {
	return models.NewAccountingEntryLine{Account: account, Direction: direction, Amount: dec(amount)}
}

func salesEntry() *models.NewAccountingEntry {
	return &models.NewAccountingEntry{
		Date:      day(2025, 4, 30),
		Journal:   models.JournalSales,
		Label:     "Facture FAC-2025-012",
		SourceRef: "FAC-2025-012",
		Lines: []models.NewAccountingEntryLine{
			entryLine("411000", models.EntryDirectionDebit, "1200"),
			entryLine("706000", models.EntryDirectionCredit, "1000"),
			entryLine("445710", models.EntryDirectionCredit, "200"),
		},
	}
}

func TestEntryBalance(t *testing.T) {
	tests := []struct {
		name     string
		lines    []models.NewAccountingEntryLine
		debit    string
		credit   string
		balanced bool
	}{
		{"balanced", salesEntry().Lines, "1200", "1200", true},
		{"rounded to the cent", []models.NewAccountingEntryLine{
			entryLine("512000", models.EntryDirectionDebit, "10.004"),
			entryLine("411000", models.EntryDirectionCredit, "10"),
		}, "10", "10", true},
		{"off by one cent", []models.NewAccountingEntryLine{
			entryLine("512000", models.EntryDirectionDebit, "10.01"),
			entryLine("411000", models.EntryDirectionCredit, "10"),
		}, "10.01", "10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			debit, credit, balanced := models.EntryBalance(tt.lines)
			assertDecimal(t, "debit", debit, tt.debit)
			assertDecimal(t, "credit", credit, tt.credit)
			if balanced != tt.balanced {
				t.Fatalf("expected balanced=%v", tt.balanced)
			}
		})
	}
}

func TestCreateAccountingEntry_RejectsInvalidEntries(t *testing.T) {
	ctx := setupTestDB(t)

	unbalanced := salesEntry()
	unbalanced.Lines[2].Amount = dec("199.99")
	oneLine := salesEntry()
	oneLine.Lines = oneLine.Lines[:1]
	zeroAmount := salesEntry()
	zeroAmount.Lines[1].Amount = dec("0")
	badJournal := salesEntry()
	badJournal.Journal = "XX"
	noAccount := salesEntry()
	noAccount.Lines[0].Account = " "

	tests := []struct {
		name  string
		input *models.NewAccountingEntry
		want  error
	}{
		{"unbalanced", unbalanced, models.ErrUnbalancedEntry},
		{"single line", oneLine, models.ErrEntryTooFewLines},
		{"zero amount", zeroAmount, models.ErrInvalidEntryLine},
		{"unknown journal", badJournal, models.ErrInvalidJournal},
		{"missing account", noAccount, models.ErrInvalidEntryLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := models.CreateAccountingEntry(ctx, tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	var entries, sequences int64
	config.GetDB().Model(&models.AccountingEntry{}).Count(&entries)
	config.GetDB().Model(&models.DocumentSequence{}).Count(&sequences)
	if entries != 0 || sequences != 0 {
		t.Fatalf("rejected entries left %d entries and %d sequences behind", entries, sequences)
	}

	entry, err := models.CreateAccountingEntry(ctx, salesEntry())
	if err != nil {
		t.Fatalf("CreateAccountingEntry: %v", err)
	}
	if entry.Numero != "EC-2025-0001" {
		t.Fatalf("rejected entries consumed numbers: got %s", entry.Numero)
	}
}

func TestAccountingEntryLifecycle(t *testing.T) {
	ctx := setupTestDB(t)
	entry, err := models.CreateAccountingEntry(ctx, salesEntry())
	if err != nil {
		t.Fatalf("CreateAccountingEntry: %v", err)
	}
	if entry.Status != models.EntryStatusDraft || !entry.Balanced() {
		t.Fatalf("unexpected new entry %+v", entry)
	}

	replaced, err := models.ReplaceEntryLines(ctx, entry.ID, []models.NewAccountingEntryLine{
		entryLine("411000", models.EntryDirectionDebit, "600"),
		entryLine("706000", models.EntryDirectionCredit, "500"),
		entryLine("445710", models.EntryDirectionCredit, "100"),
	})
	if err != nil {
		t.Fatalf("ReplaceEntryLines: %v", err)
	}
	assertDecimal(t, "debit after replace", replaced.TotalDebit, "600")

	if _, err := models.ReplaceEntryLines(ctx, entry.ID, []models.NewAccountingEntryLine{
		entryLine("411000", models.EntryDirectionDebit, "600"),
		entryLine("706000", models.EntryDirectionCredit, "500"),
	}); !errors.Is(err, models.ErrUnbalancedEntry) {
		t.Fatalf("expected ErrUnbalancedEntry, got %v", err)
	}

	validated, err := models.ValidateEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("ValidateEntry: %v", err)
	}
	if validated.Status != models.EntryStatusValidated || validated.ValidatedAt == nil {
		t.Fatalf("entry not validated: %+v", validated)
	}
	if _, err := models.ValidateEntry(ctx, entry.ID); !errors.Is(err, models.ErrEntryValidated) {
		t.Fatalf("expected ErrEntryValidated, got %v", err)
	}
	if _, err := models.ReplaceEntryLines(ctx, entry.ID, salesEntry().Lines); !errors.Is(err, models.ErrEntryValidated) {
		t.Fatalf("expected ErrEntryValidated on replace, got %v", err)
	}

	stored, err := models.GetAccountingEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetAccountingEntry: %v", err)
	}
	if len(stored.Lines) != 3 || stored.Lines[0].Position != 1 || stored.Lines[0].Account != "411000" {
		t.Fatalf("unexpected stored lines %+v", stored.Lines)
	}

	if _, err := models.DeleteAccountingEntry(ctx, entry.ID); err != nil {
		t.Fatalf("deleting a validated entry: %v", err)
	}
	var lines int64
	config.GetDB().Model(&models.AccountingEntryLine{}).Where("entry_id = ?", entry.ID).Count(&lines)
	if lines != 0 {
		t.Fatalf("%d lines left after delete", lines)
	}
}

func TestLetterEntryLines(t *testing.T) {
	ctx := setupTestDB(t)
	sale, err := models.CreateAccountingEntry(ctx, salesEntry())
	if err != nil {
		t.Fatalf("CreateAccountingEntry: %v", err)
	}
	payment, err := models.CreateAccountingEntry(ctx, &models.NewAccountingEntry{
		Date:    day(2025, 5, 15),
		Journal: models.JournalBank,
		Label:   "Règlement FAC-2025-012",
		Lines: []models.NewAccountingEntryLine{
			entryLine("512000", models.EntryDirectionDebit, "1200"),
			entryLine("411000", models.EntryDirectionCredit, "1200"),
		},
	})
	if err != nil {
		t.Fatalf("CreateAccountingEntry: %v", err)
	}
	if _, err := models.ValidateEntry(ctx, sale.ID); err != nil {
		t.Fatalf("ValidateEntry: %v", err)
	}
	saleLine, bankLine, paymentLine := sale.Lines[0].ID, payment.Lines[0].ID, payment.Lines[1].ID

	if _, err := models.LetterEntryLines(ctx, []int{saleLine, paymentLine}, "  "); !errors.Is(err, models.ErrLetteringCode) {
		t.Fatalf("expected ErrLetteringCode, got %v", err)
	}
	if _, err := models.LetterEntryLines(ctx, []int{saleLine, bankLine}, "a"); !errors.Is(err, models.ErrLetteringAccount) {
		t.Fatalf("expected ErrLetteringAccount, got %v", err)
	}
	if _, err := models.LetterEntryLines(ctx, []int{saleLine, 9999}, "a"); !errors.Is(err, models.ErrEntryLineNotFound) {
		t.Fatalf("expected ErrEntryLineNotFound, got %v", err)
	}

	lettered, err := models.LetterEntryLines(ctx, []int{saleLine, paymentLine, saleLine}, "aa")
	if err != nil {
		t.Fatalf("LetterEntryLines: %v", err)
	}
	if len(lettered) != 2 {
		t.Fatalf("expected 2 lettered lines, got %d", len(lettered))
	}
	for _, l := range lettered {
		if l.LetteringCode != "AA" || l.LetteredAt == nil {
			t.Fatalf("line not lettered: %+v", l)
		}
	}

	entries, err := models.ListAccountingEntries(ctx, models.AccountingEntryFilter{Account: "512000"})
	if err != nil || len(entries) != 1 || entries[0].ID != payment.ID {
		t.Fatalf("account filter returned %v (%v)", entries, err)
	}

	if err := models.UnletterEntryLines(ctx, []int{saleLine, paymentLine}); err != nil {
		t.Fatalf("UnletterEntryLines: %v", err)
	}
	if err := models.UnletterEntryLines(ctx, []int{9999}); !errors.Is(err, models.ErrEntryLineNotFound) {
		t.Fatalf("expected ErrEntryLineNotFound, got %v", err)
	}
	stored, _ := models.GetAccountingEntry(ctx, sale.ID)
	if stored.Lines[0].LetteringCode != "" {
		t.Fatalf("line still lettered after unlettering")
	}
}
