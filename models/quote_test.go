package models_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/models"
)

func newAcceptedQuote(t *testing.T, ctx context.Context, clientId string) *models.Quote {
	t.Helper()
	quote, err := models.CreateQuote(ctx, &models.NewQuote{
		ClientId:  clientId,
		Subject:   "Nettoyage annuel centrale 250 kWc",
		IssueDate: today(),
		Lines: []models.NewDocumentLine{
			serviceLine("Nettoyage panneaux", "2", "500", "20"),
			serviceLine("Contrôle visuel", "1", "200", "10"),
		},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if _, err := models.SendQuote(ctx, quote.ID); err != nil {
		t.Fatalf("SendQuote: %v", err)
	}
	accepted, err := models.AcceptQuote(ctx, quote.ID)
	if err != nil {
		t.Fatalf("AcceptQuote: %v", err)
	}
	return accepted
}

func TestQuoteLifecycle(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "devis@pv.fr")

	quote, err := models.CreateQuote(ctx, &models.NewQuote{
		ClientId:  client.ID,
		IssueDate: today(),
		Lines:     []models.NewDocumentLine{serviceLine("Nettoyage", "1", "100", "20")},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if want := fmt.Sprintf("DEV-%d-001", today().Year()); quote.Numero != want {
		t.Fatalf("expected numero %s, got %s", want, quote.Numero)
	}
	if !quote.ValidUntil.Equal(today().AddDate(0, 0, 30)) {
		t.Fatalf("expected 30 days validity, got %s", quote.ValidUntil)
	}
	if _, err := models.AcceptQuote(ctx, quote.ID); !errors.Is(err, models.ErrInvalidStatusTransition) {
		t.Fatalf("accepting a draft: expected ErrInvalidStatusTransition, got %v", err)
	}

	updated, err := models.UpdateQuote(ctx, quote.ID, &models.NewQuote{
		ClientId:     client.ID,
		IssueDate:    today(),
		ValidityDays: 15,
		Lines:        []models.NewDocumentLine{serviceLine("Nettoyage", "2", "100", "20")},
	})
	if err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}
	if updated.Numero != quote.Numero {
		t.Fatalf("update changed the number: %s -> %s", quote.Numero, updated.Numero)
	}
	assertDecimal(t, "updated TTC", updated.TotalTTC, "240")

	if _, err := models.SendQuote(ctx, quote.ID); err != nil {
		t.Fatalf("SendQuote: %v", err)
	}
	if _, err := models.UpdateQuote(ctx, quote.ID, &models.NewQuote{
		ClientId: client.ID,
		Lines:    []models.NewDocumentLine{serviceLine("Nettoyage", "1", "1", "20")},
	}); !errors.Is(err, models.ErrQuoteNotEditable) {
		t.Fatalf("expected ErrQuoteNotEditable, got %v", err)
	}
	if _, err := models.DeleteQuote(ctx, quote.ID); !errors.Is(err, models.ErrQuoteNotEditable) {
		t.Fatalf("expected ErrQuoteNotEditable on delete, got %v", err)
	}
	if _, err := models.AcceptQuote(ctx, quote.ID); err != nil {
		t.Fatalf("AcceptQuote: %v", err)
	}
	if _, err := models.ValidateQuoteOrder(ctx, quote.ID, "  "); !errors.Is(err, models.ErrPurchaseOrderRequired) {
		t.Fatalf("expected ErrPurchaseOrderRequired, got %v", err)
	}
	validated, err := models.ValidateQuoteOrder(ctx, quote.ID, "BC-2025-42")
	if err != nil {
		t.Fatalf("ValidateQuoteOrder: %v", err)
	}
	if validated.Status != models.QuoteStatusOrderValidated || validated.PurchaseOrderRef != "BC-2025-42" {
		t.Fatalf("unexpected validated quote %+v", validated)
	}
	if _, err := models.RefuseQuote(ctx, quote.ID); !errors.Is(err, models.ErrInvalidStatusTransition) {
		t.Fatalf("refusing a validated quote: expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestDeleteQuote_Draft(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "suppr@pv.fr")
	quote, err := models.CreateQuote(ctx, &models.NewQuote{
		ClientId: client.ID,
		Lines:    []models.NewDocumentLine{serviceLine("Nettoyage", "1", "100", "20")},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if _, err := models.DeleteQuote(ctx, quote.ID); err != nil {
		t.Fatalf("DeleteQuote: %v", err)
	}
	if _, err := models.GetQuote(ctx, quote.ID); err == nil {
		t.Fatalf("quote still readable after delete")
	}
}

func TestQuoteToInvoice_DeductsPaidDeposit(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "acompte@pv.fr")
	quote := newAcceptedQuote(t, ctx, client.ID)
	assertDecimal(t, "quote TTC", quote.TotalTTC, "1420")

	for _, bad := range []string{"0", "100.5", "-10"} {
		if _, err := models.CreateDepositInvoiceFromQuote(ctx, quote.ID, dec(bad)); !errors.Is(err, models.ErrInvalidDepositPercent) {
			t.Fatalf("percent %s: expected ErrInvalidDepositPercent, got %v", bad, err)
		}
	}

	deposit, err := models.CreateDepositInvoiceFromQuote(ctx, quote.ID, decimal.NewFromInt(30))
	if err != nil {
		t.Fatalf("CreateDepositInvoiceFromQuote: %v", err)
	}
	if !deposit.IsDeposit || deposit.QuoteId == nil || *deposit.QuoteId != quote.ID {
		t.Fatalf("deposit not linked to the quote: %+v", deposit)
	}
	lines := deposit.LineList()
	if len(lines) != 2 {
		t.Fatalf("expected one deposit line per VAT rate, got %d", len(lines))
	}
	if !strings.Contains(lines[0].Designation, "TVA 10%") || !strings.Contains(lines[1].Designation, "TVA 20%") {
		t.Fatalf("unexpected deposit designations %q / %q", lines[0].Designation, lines[1].Designation)
	}
	assertDecimal(t, "deposit HT", deposit.TotalHT, "360")
	assertDecimal(t, "deposit TTC", deposit.TotalTTC, "426")

	if _, err := models.AddInvoicePayment(ctx, deposit.ID, &models.NewInvoicePayment{Amount: dec("426")}); err != nil {
		t.Fatalf("AddInvoicePayment: %v", err)
	}

	final, err := models.ConvertQuoteToInvoice(ctx, quote.ID, nil)
	if err != nil {
		t.Fatalf("ConvertQuoteToInvoice: %v", err)
	}
	assertDecimal(t, "final TTC", final.TotalTTC, "1420")
	assertDecimal(t, "deposit deducted", final.DepositDeducted, "426")
	assertDecimal(t, "final remaining", final.RemainingBalance, "994")
	if final.DepositInvoiceId == nil || *final.DepositInvoiceId != deposit.ID {
		t.Fatalf("final invoice does not reference the deposit")
	}
	if final.Status != models.InvoiceStatusSent {
		t.Fatalf("expected envoyee, got %s", final.Status)
	}

	if _, err := models.ConvertQuoteToInvoice(ctx, quote.ID, nil); !errors.Is(err, models.ErrQuoteAlreadyInvoiced) {
		t.Fatalf("expected ErrQuoteAlreadyInvoiced, got %v", err)
	}
	_, err = models.CreateInvoice(ctx, &models.NewInvoice{
		ClientId:         client.ID,
		DepositInvoiceId: &deposit.ID,
		Lines:            []models.NewDocumentLine{serviceLine("Complément", "1", "10", "20")},
	})
	if !errors.Is(err, models.ErrDepositAlreadyUsed) {
		t.Fatalf("expected ErrDepositAlreadyUsed, got %v", err)
	}
}

func TestQuoteToInvoice_UnpaidDepositDeductsNothing(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "impaye@pv.fr")
	quote := newAcceptedQuote(t, ctx, client.ID)
	if _, err := models.CreateDepositInvoiceFromQuote(ctx, quote.ID, dec("50")); err != nil {
		t.Fatalf("CreateDepositInvoiceFromQuote: %v", err)
	}
	final, err := models.ConvertQuoteToInvoice(ctx, quote.ID, nil)
	if err != nil {
		t.Fatalf("ConvertQuoteToInvoice: %v", err)
	}
	assertDecimal(t, "deposit deducted", final.DepositDeducted, "0")
	assertDecimal(t, "remaining", final.RemainingBalance, "1420")
}

func TestQuoteToInvoice_RequiresAcceptedQuoteAndDepositInvoice(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "regles@pv.fr")
	draft, err := models.CreateQuote(ctx, &models.NewQuote{
		ClientId: client.ID,
		Lines:    []models.NewDocumentLine{serviceLine("Nettoyage", "1", "100", "20")},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if _, err := models.ConvertQuoteToInvoice(ctx, draft.ID, nil); !errors.Is(err, models.ErrQuoteNotAccepted) {
		t.Fatalf("expected ErrQuoteNotAccepted, got %v", err)
	}
	if _, err := models.CreateDepositInvoiceFromQuote(ctx, draft.ID, dec("30")); !errors.Is(err, models.ErrQuoteNotAccepted) {
		t.Fatalf("expected ErrQuoteNotAccepted, got %v", err)
	}

	quote := newAcceptedQuote(t, ctx, client.ID)
	plain := newSentInvoice(t, ctx, client.ID, today(), "50")
	if _, err := models.ConvertQuoteToInvoice(ctx, quote.ID, &plain.ID); !errors.Is(err, models.ErrNotADepositInvoice) {
		t.Fatalf("expected ErrNotADepositInvoice, got %v", err)
	}
}

func TestCreateQuote_TotalsSumRoundedLines(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "totaux@pv.fr")

	quote, err := models.CreateQuote(ctx, &models.NewQuote{
		ClientId:  client.ID,
		IssueDate: today(),
		Lines: []models.NewDocumentLine{
			serviceLine("Nettoyage panneaux", "3", "100", "20"),
			serviceLine("Déplacement", "1", "50", "20"),
		},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	assertDecimal(t, "total HT", quote.TotalHT, "350")
	assertDecimal(t, "total TVA", quote.TotalVAT, "70")
	assertDecimal(t, "total TTC", quote.TotalTTC, "420")

	lines := quote.LineList()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	assertDecimal(t, "line 1 HT", lines[0].AmountHT, "300")
	assertDecimal(t, "line 1 TTC", lines[0].AmountTTC, "360")
	assertDecimal(t, "line 2 TVA", lines[1].AmountVAT, "10")
}
