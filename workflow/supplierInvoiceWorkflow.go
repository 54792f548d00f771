package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// PostSupplierInvoice books a draft supplier invoice: stock receipts for every
// line tied to a stock article, and the purchase entry in the AC journal.
// Either everything is written or nothing is.
func PostSupplierInvoice(ctx context.Context, id int) (*models.SupplierInvoice, error) {
	ctx, span := tracer.Start(ctx, "PostSupplierInvoice")
	defer span.End()
	span.SetAttributes(attribute.Int("supplier_invoice.id", id))

	logger := config.GetLogger()
	var invoice *models.SupplierInvoice
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = postSupplierInvoice(ctx, tx, logger, id)
		return err
	})
	if err != nil {
		failSpan(span, err)
		config.LogError(logger, "supplierInvoiceWorkflow.go", "PostSupplierInvoice", "post", id, err)
		return nil, err
	}
	return invoice, nil
}

func postSupplierInvoice(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, id int) (*models.SupplierInvoice, error) {
	invoice, err := models.LockSupplierInvoice(tx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.SupplierInvoiceStatusPosted {
		return nil, models.ErrSupplierInvoicePosted
	}

	for _, line := range invoice.LineList() {
		if line.StockArticleId == nil {
			continue
		}
		_, _, err := models.ApplyStockMovementTx(ctx, tx, &models.NewStockMovement{
			ArticleId: *line.StockArticleId,
			Type:      models.MovementTypeIn,
			Quantity:  line.Quantity,
			DestDepot: line.Depot,
			Reason:    fmt.Sprintf("Facture %s %s", invoice.Supplier, invoice.Numero),
			Date:      invoice.Date,
		}, models.MovementSourceSupplierInvoice, &invoice.ID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line.Position, err)
		}
	}

	entry, err := models.CreateAccountingEntryTx(ctx, tx, purchaseEntry(invoice))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	invoice.Status = models.SupplierInvoiceStatusPosted
	invoice.EntryId = &entry.ID
	invoice.PostedAt = &now
	if err := tx.Model(invoice).Select("status", "entry_id", "posted_at", "updated_at").Updates(invoice).Error; err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"supplier_invoice": invoice.Numero,
		"supplier":         invoice.Supplier,
		"entry":            entry.Numero,
	}).Info("supplier invoice posted")
	return invoice, nil
}

// purchaseEntry is debit purchases HT, debit deductible VAT, credit supplier TTC.
func purchaseEntry(invoice *models.SupplierInvoice) *models.NewAccountingEntry {
	label := fmt.Sprintf("%s %s", invoice.Supplier, invoice.Numero)
	lines := []models.NewAccountingEntryLine{{
		Account:   models.AccountPurchases,
		Label:     label,
		Direction: models.EntryDirectionDebit,
		Amount:    invoice.TotalHT,
	}}
	if invoice.TotalVAT.IsPositive() {
		lines = append(lines, models.NewAccountingEntryLine{
			Account:   models.AccountVATOnInputs,
			Label:     label,
			Direction: models.EntryDirectionDebit,
			Amount:    invoice.TotalVAT,
		})
	}
	lines = append(lines, models.NewAccountingEntryLine{
		Account:   models.AccountSuppliers,
		Label:     label,
		Direction: models.EntryDirectionCredit,
		Amount:    invoice.TotalTTC,
	})
	return &models.NewAccountingEntry{
		Date:              invoice.Date,
		Journal:           models.JournalPurchases,
		Label:             "Facture fournisseur " + label,
		SourceRef:         invoice.Numero,
		SupplierInvoiceId: &invoice.ID,
		Lines:             lines,
	}
}

// ReverseSupplierInvoiceMovements undoes a posting: every open receipt gets a
// compensating sortie tagged as a reversal of the invoice, and the purchase entry is
// reversed. Receipts are left as written. The invoice returns to draft and can then
// be edited or deleted.
func ReverseSupplierInvoiceMovements(ctx context.Context, id int) (*models.SupplierInvoice, error) {
	ctx, span := tracer.Start(ctx, "ReverseSupplierInvoiceMovements")
	defer span.End()
	span.SetAttributes(attribute.Int("supplier_invoice.id", id))

	logger := config.GetLogger()
	var invoice *models.SupplierInvoice
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = reverseSupplierInvoice(ctx, tx, logger, id)
		return err
	})
	if err != nil {
		failSpan(span, err)
		config.LogError(logger, "supplierInvoiceWorkflow.go", "ReverseSupplierInvoiceMovements", "reverse", id, err)
		return nil, err
	}
	return invoice, nil
}

func reverseSupplierInvoice(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, id int) (*models.SupplierInvoice, error) {
	invoice, err := models.LockSupplierInvoice(tx, id)
	if err != nil {
		return nil, err
	}
	movements, err := models.SupplierInvoiceOpenReceipts(tx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.SupplierInvoiceStatusPosted && len(movements) == 0 {
		return nil, models.ErrSupplierInvoiceNotPosted
	}

	reason := fmt.Sprintf("Extourne facture %s %s", invoice.Supplier, invoice.Numero)
	for _, m := range movements {
		_, _, err := models.ApplyStockMovementTx(ctx, tx, &models.NewStockMovement{
			ArticleId:   m.ArticleId,
			Type:        models.MovementTypeOut,
			Quantity:    m.Quantity,
			SourceDepot: m.DestDepot,
			Reason:      reason,
			Date:        time.Now(),
		}, models.MovementSourceSupplierInvoiceReversal, &invoice.ID)
		if err != nil {
			return nil, err
		}
	}

	if invoice.EntryId != nil {
		var original models.AccountingEntry
		if err := tx.Preload("Lines").First(&original, *invoice.EntryId).Error; err == nil {
			if _, err := models.CreateAccountingEntryTx(ctx, tx, reversalEntry(&original, invoice)); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		} else {
			logger.WithFields(logrus.Fields{
				"supplier_invoice": invoice.Numero,
				"entry_id":         *invoice.EntryId,
			}).Warn("purchase entry already deleted; nothing to reverse")
		}
	}

	invoice.Status = models.SupplierInvoiceStatusDraft
	invoice.EntryId = nil
	invoice.PostedAt = nil
	if err := tx.Model(invoice).Select("status", "entry_id", "posted_at", "updated_at").Updates(invoice).Error; err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"supplier_invoice": invoice.Numero,
		"movements":        len(movements),
	}).Info("supplier invoice reversed")
	return invoice, nil
}

func reversalEntry(original *models.AccountingEntry, invoice *models.SupplierInvoice) *models.NewAccountingEntry {
	lines := make([]models.NewAccountingEntryLine, 0, len(original.Lines))
	for _, l := range original.Lines {
		direction := models.EntryDirectionDebit
		if l.Direction == models.EntryDirectionDebit {
			direction = models.EntryDirectionCredit
		}
		lines = append(lines, models.NewAccountingEntryLine{
			Account:   l.Account,
			Label:     l.Label,
			Direction: direction,
			Amount:    l.Amount,
		})
	}
	return &models.NewAccountingEntry{
		Date:              time.Now(),
		Journal:           original.Journal,
		Label:             "Extourne " + original.Numero,
		SourceRef:         invoice.Numero,
		SupplierInvoiceId: &invoice.ID,
		Lines:             lines,
	}
}

// UploadSupplierInvoicePdf stores the scanned invoice at its conventional path.
func UploadSupplierInvoicePdf(ctx context.Context, store utils.BlobStorage, id int, data []byte) (string, error) {
	if err := requirePdf(data); err != nil {
		return "", err
	}
	invoice, err := models.GetSupplierInvoice(ctx, id)
	if err != nil {
		return "", err
	}
	objectPath := utils.SupplierInvoicePath(invoice.Numero)
	if err := store.Upload(ctx, objectPath, "application/pdf", data); err != nil {
		config.LogError(config.GetLogger(), "supplierInvoiceWorkflow.go", "UploadSupplierInvoicePdf", "upload", objectPath, err)
		return "", err
	}
	if err := models.SetSupplierInvoicePdfPath(ctx, id, objectPath); err != nil {
		return "", err
	}
	return objectPath, nil
}
