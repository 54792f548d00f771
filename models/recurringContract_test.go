package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solarclean/backoffice/models"
)

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name       string
		current    time.Time
		frequency  models.ContractFrequency
		billingDay int
		want       time.Time
	}{
		{"monthly clamps to february", day(2025, 1, 31), models.FrequencyMonthly, 31, day(2025, 2, 28)},
		{"monthly goes back to the 31st", day(2025, 2, 28), models.FrequencyMonthly, 31, day(2025, 3, 31)},
		{"leap year", day(2024, 1, 31), models.FrequencyMonthly, 31, day(2024, 2, 29)},
		{"quarterly clamps", day(2025, 11, 30), models.FrequencyQuarterly, 30, day(2026, 2, 28)},
		{"weekly", day(2025, 3, 10), models.FrequencyWeekly, 0, day(2025, 3, 17)},
		{"semi monthly", day(2025, 3, 10), models.FrequencySemiMonthly, 0, day(2025, 3, 25)},
		{"annual keeps the day", day(2025, 6, 15), models.FrequencyAnnual, 0, day(2026, 6, 15)},
		{"semi annual from the 31st", day(2025, 8, 31), models.FrequencySemiAnnual, 0, day(2026, 2, 28)},
		{"four monthly", day(2025, 1, 5), models.FrequencyFourMonthly, 5, day(2025, 5, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.NextBillingDate(tt.current, tt.frequency, tt.billingDay)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		})
	}

	if _, err := models.NextBillingDate(day(2025, 1, 1), "journalier", 1); !errors.Is(err, models.ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if _, err := models.NextBillingDate(day(2025, 1, 1), models.FrequencyMonthly, 32); !errors.Is(err, models.ErrInvalidBillingDay) {
		t.Fatalf("expected ErrInvalidBillingDay, got %v", err)
	}
}

func TestEstimateAnnualRevenue(t *testing.T) {
	tests := []struct {
		amount    string
		frequency models.ContractFrequency
		want      string
	}{
		{"250", models.FrequencyQuarterly, "1000"},
		{"100", models.FrequencyWeekly, "5200"},
		{"99.99", models.FrequencySemiMonthly, "2399.76"},
		{"1200", models.FrequencyAnnual, "1200"},
	}
	for _, tt := range tests {
		got, err := models.EstimateAnnualRevenue(dec(tt.amount), tt.frequency)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.amount, tt.frequency, err)
		}
		assertDecimal(t, string(tt.frequency), got, tt.want)
	}
}

func newContract(t *testing.T, ctx context.Context, input models.NewRecurringContract) *models.RecurringContract {
	t.Helper()
	if input.Label == "" {
		input.Label = "Entretien"
	}
	if len(input.Lines) == 0 {
		input.Lines = []models.NewDocumentLine{serviceLine("Nettoyage mensuel", "1", "300", "20")}
	}
	if input.Frequency == "" {
		input.Frequency = models.FrequencyMonthly
	}
	contract, err := models.CreateRecurringContract(ctx, &input)
	if err != nil {
		t.Fatalf("CreateRecurringContract: %v", err)
	}
	return contract
}

func TestCreateRecurringContract_Validation(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "validation@pv.fr")
	line := []models.NewDocumentLine{serviceLine("Nettoyage", "1", "100", "20")}
	end := day(2024, 12, 31)

	tests := []struct {
		name  string
		input models.NewRecurringContract
		want  error
	}{
		{"no lines", models.NewRecurringContract{ClientId: client.ID, Label: "x", Frequency: models.FrequencyMonthly, StartDate: day(2025, 1, 1)}, models.ErrContractWithoutLine},
		{"bad frequency", models.NewRecurringContract{ClientId: client.ID, Label: "x", Frequency: "journalier", StartDate: day(2025, 1, 1), Lines: line}, models.ErrInvalidFrequency},
		{"bad renewal", models.NewRecurringContract{ClientId: client.ID, Label: "x", Frequency: models.FrequencyMonthly, Renewal: "auto", StartDate: day(2025, 1, 1), Lines: line}, models.ErrInvalidRenewal},
		{"end before start", models.NewRecurringContract{ClientId: client.ID, Label: "x", Frequency: models.FrequencyMonthly, StartDate: day(2025, 1, 1), EndDate: &end, Lines: line}, models.ErrInvalidContractEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if _, err := models.CreateRecurringContract(ctx, &input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGenerateInvoiceFromContract_AdvancesSchedule(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "contrat@pv.fr")
	contract := newContract(t, ctx, models.NewRecurringContract{
		ClientId:   client.ID,
		BillingDay: 31,
		StartDate:  day(2025, 1, 15),
	})
	if !contract.NextBillingDate.Equal(day(2025, 1, 31)) {
		t.Fatalf("expected first billing on 2025-01-31, got %s", contract.NextBillingDate)
	}
	if contract.Renewal != models.RenewalManual || contract.UpcomingBillingDays != 7 || contract.ContractEndDays != 30 {
		t.Fatalf("defaults not applied: %+v", contract)
	}
	assertDecimal(t, "amount HT", contract.AmountHT, "300")
	assertDecimal(t, "estimated revenue", contract.EstimatedRevenue, "3600")

	if _, err := models.GenerateInvoiceFromContract(ctx, contract.ID, day(2025, 1, 20)); !errors.Is(err, models.ErrContractNotDue) {
		t.Fatalf("expected ErrContractNotDue, got %v", err)
	}

	invoice, err := models.GenerateInvoiceFromContract(ctx, contract.ID, day(2025, 2, 1))
	if err != nil {
		t.Fatalf("GenerateInvoiceFromContract: %v", err)
	}
	if invoice.Subject != "Entretien - 01/2025" {
		t.Fatalf("unexpected subject %q", invoice.Subject)
	}
	if !invoice.IssueDate.Equal(day(2025, 1, 31)) || invoice.ContractId == nil || *invoice.ContractId != contract.ID {
		t.Fatalf("invoice not issued on the billing date for the contract: %+v", invoice)
	}
	assertDecimal(t, "invoice TTC", invoice.TotalTTC, "360")

	updated, err := models.GetRecurringContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("GetRecurringContract: %v", err)
	}
	if !updated.NextBillingDate.Equal(day(2025, 2, 28)) {
		t.Fatalf("expected next billing on 2025-02-28, got %s", updated.NextBillingDate)
	}
	if updated.LastBilledAt == nil || !updated.LastBilledAt.Equal(day(2025, 1, 31)) {
		t.Fatalf("last billed date not recorded: %v", updated.LastBilledAt)
	}
	if _, err := models.GenerateInvoiceFromContract(ctx, contract.ID, day(2025, 2, 1)); !errors.Is(err, models.ErrContractNotDue) {
		t.Fatalf("contract billed twice for the same period: %v", err)
	}

	due, err := models.ListDueContracts(ctx, day(2025, 3, 1))
	if err != nil || len(due) != 1 || due[0].ID != contract.ID {
		t.Fatalf("expected the contract to be due, got %v (%v)", due, err)
	}
	if _, err := models.SetRecurringContractActive(ctx, contract.ID, false); err != nil {
		t.Fatalf("SetRecurringContractActive: %v", err)
	}
	if _, err := models.GenerateInvoiceFromContract(ctx, contract.ID, day(2025, 3, 1)); !errors.Is(err, models.ErrContractInactive) {
		t.Fatalf("expected ErrContractInactive, got %v", err)
	}
	due, _ = models.ListDueContracts(ctx, day(2025, 3, 1))
	if len(due) != 0 {
		t.Fatalf("inactive contract listed as due")
	}
}

func TestGenerateInvoiceFromContract_EndAndRenewal(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "fin@pv.fr")
	end := day(2025, 2, 5)

	manual := newContract(t, ctx, models.NewRecurringContract{ClientId: client.ID, StartDate: day(2025, 1, 10), EndDate: &end})
	tacit := newContract(t, ctx, models.NewRecurringContract{ClientId: client.ID, StartDate: day(2025, 1, 10), EndDate: &end, Renewal: models.RenewalTacit})

	for _, c := range []*models.RecurringContract{manual, tacit} {
		if _, err := models.GenerateInvoiceFromContract(ctx, c.ID, day(2025, 1, 10)); err != nil {
			t.Fatalf("first invoice of contract %d: %v", c.ID, err)
		}
	}

	if _, err := models.GenerateInvoiceFromContract(ctx, manual.ID, day(2025, 2, 10)); !errors.Is(err, models.ErrContractEnded) {
		t.Fatalf("expected ErrContractEnded, got %v", err)
	}
	stopped, _ := models.GetRecurringContract(ctx, manual.ID)
	if stopped.Active() {
		t.Fatalf("ended contract still active")
	}
	if _, err := models.GenerateInvoiceFromContract(ctx, manual.ID, day(2025, 2, 10)); !errors.Is(err, models.ErrContractInactive) {
		t.Fatalf("expected ErrContractInactive, got %v", err)
	}

	invoice, err := models.GenerateInvoiceFromContract(ctx, tacit.ID, day(2025, 2, 10))
	if err != nil {
		t.Fatalf("tacit renewal: %v", err)
	}
	if !invoice.IssueDate.Equal(day(2025, 2, 10)) {
		t.Fatalf("unexpected issue date %s", invoice.IssueDate)
	}
	renewed, _ := models.GetRecurringContract(ctx, tacit.ID)
	if renewed.EndDate == nil || !renewed.EndDate.Equal(day(2026, 2, 5)) {
		t.Fatalf("expected end date pushed to 2026-02-05, got %v", renewed.EndDate)
	}
}

func TestGenerateInvoiceFromContract_AutoAppliesCreditNotes(t *testing.T) {
	t.Setenv("AUTO_APPLY_CREDIT_NOTES", "true")
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "auto@pv.fr")
	contract := newContract(t, ctx, models.NewRecurringContract{ClientId: client.ID, StartDate: today()})

	creditNote, err := models.CreateCreditNote(ctx, &models.NewCreditNote{
		ClientId:  client.ID,
		Reason:    "Passage annulé",
		UsageType: models.CreditNoteUsageDeduction,
		Lines:     []models.NewCreditNoteLine{{Designation: "Passage annulé", Quantity: dec("1"), UnitPrice: dec("50"), VatRate: dec("20")}},
	})
	if err != nil {
		t.Fatalf("CreateCreditNote: %v", err)
	}
	if _, err := models.SendCreditNote(ctx, creditNote.ID); err != nil {
		t.Fatalf("SendCreditNote: %v", err)
	}

	invoice, err := models.GenerateInvoiceFromContract(ctx, contract.ID, today())
	if err != nil {
		t.Fatalf("GenerateInvoiceFromContract: %v", err)
	}
	assertDecimal(t, "remaining", invoice.RemainingBalance, "300")
	applied, _ := models.GetCreditNote(ctx, creditNote.ID)
	if applied.Status != models.CreditNoteStatusApplied {
		t.Fatalf("credit note not applied, status %s", applied.Status)
	}
}

func TestComputeContractAlerts(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "alertes@pv.fr")
	asOf := day(2025, 6, 1)
	end := day(2025, 6, 20)

	// billing on 5 June and ending within the default 30 days
	newContract(t, ctx, models.NewRecurringContract{ClientId: client.ID, Label: "Court", StartDate: day(2025, 6, 5), EndDate: &end})

	billed := newContract(t, ctx, models.NewRecurringContract{
		ClientId:         client.ID,
		Label:            "Centrale",
		StartDate:        day(2025, 3, 1),
		LatePaymentDays:  5,
		RevenueThreshold: dec("500"),
	})
	var invoices []*models.Invoice
	for _, asOfBilling := range []time.Time{day(2025, 3, 1), day(2025, 4, 1), day(2025, 5, 1)} {
		inv, err := models.GenerateInvoiceFromContract(ctx, billed.ID, asOfBilling)
		if err != nil {
			t.Fatalf("GenerateInvoiceFromContract %s: %v", asOfBilling.Format("2006-01-02"), err)
		}
		invoices = append(invoices, inv)
	}
	if _, err := models.AddInvoicePayment(ctx, invoices[1].ID, &models.NewInvoicePayment{Amount: dec("360")}); err != nil {
		t.Fatalf("AddInvoicePayment: %v", err)
	}

	stopped := newContract(t, ctx, models.NewRecurringContract{ClientId: client.ID, Label: "Suspendu", StartDate: day(2025, 6, 2)})
	if _, err := models.SetRecurringContractActive(ctx, stopped.ID, false); err != nil {
		t.Fatalf("SetRecurringContractActive: %v", err)
	}

	alerts, err := models.ComputeContractAlerts(ctx, asOf)
	if err != nil {
		t.Fatalf("ComputeContractAlerts: %v", err)
	}
	counts := map[models.AlertType]int{}
	for _, a := range alerts {
		if a.ContractId == stopped.ID {
			t.Fatalf("alert raised for an inactive contract: %+v", a)
		}
		counts[a.Type]++
		switch a.Type {
		case models.AlertLatePayment:
			if a.InvoiceId == nil || *a.InvoiceId != invoices[0].ID {
				t.Fatalf("late alert on the wrong invoice: %+v", a)
			}
		case models.AlertRevenueThreshold:
			assertDecimal(t, "billed this year", a.Amount, "900")
		}
	}
	want := map[models.AlertType]int{
		models.AlertUpcomingBilling:  2,
		models.AlertLatePayment:      1,
		models.AlertContractEnd:      1,
		models.AlertRevenueThreshold: 1,
	}
	for alertType, n := range want {
		if counts[alertType] != n {
			t.Fatalf("expected %d %s alerts, got %d (%+v)", n, alertType, counts[alertType], alerts)
		}
	}
}
