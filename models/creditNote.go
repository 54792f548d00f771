package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMotifRequired          = errors.New("credit note reason is required")
	ErrInvalidUsageType       = errors.New("usage type must be deduction or remboursement")
	ErrCreditNoteWithoutLines = errors.New("credit note must have at least one line")
	ErrCreditNoteNotSent      = errors.New("credit note must be sent first")
	ErrCreditNoteWrongUsage   = errors.New("operation does not match the credit note usage type")
	ErrRefundModeRequired     = errors.New("refund mode must be virement or cheque")
	ErrCreditLineVatOnly      = errors.New("a line with montant_tva needs montant_ht or montant_ttc")
)

// CreditNote amounts are always stored as -abs(x).
type CreditNote struct {
	ID               int                               `gorm:"primary_key" json:"id"`
	Numero           string                            `gorm:"size:30;not null;uniqueIndex" json:"numero"`
	ClientId         string                            `gorm:"size:191;index;not null" json:"client_id"`
	InvoiceId        *int                              `gorm:"index" json:"facture_id"`
	Reason           string                            `gorm:"type:text;not null" json:"motif"`
	UsageType        CreditNoteUsage                   `gorm:"size:20;not null" json:"utilisation_type"`
	IssueDate        time.Time                         `gorm:"not null" json:"date_emission"`
	Status           CreditNoteStatus                  `gorm:"size:20;not null;index" json:"statut"`
	Lines            datatypes.JSONType[DocumentLines] `gorm:"not null" json:"lignes"`
	TotalHT          decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_ht"`
	TotalVAT         decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_tva"`
	TotalTTC         decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_ttc"`
	AppliedInvoiceId *int                              `json:"facture_imputee_id"`
	AppliedAt        *time.Time                        `json:"date_imputation"`
	RefundedAt       *time.Time                        `json:"date_remboursement"`
	RefundMode       PaymentMode                       `gorm:"size:20" json:"mode_remboursement"`
	RefundReference  string                            `gorm:"size:100" json:"reference_remboursement"`
	SentAt           *time.Time                        `json:"date_envoi"`
	CreatedBy        string                            `gorm:"size:100" json:"cree_par"`
	CreatedAt        time.Time                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                         `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewCreditNoteLine takes either explicit amounts or quantity and price.
type NewCreditNoteLine struct {
	Designation string           `json:"designation"`
	Quantity    decimal.Decimal  `json:"quantite"`
	UnitPrice   decimal.Decimal  `json:"prix_unitaire"`
	VatRate     decimal.Decimal  `json:"taux_tva"`
	AmountHT    *decimal.Decimal `json:"montant_ht"`
	AmountVAT   *decimal.Decimal `json:"montant_tva"`
	AmountTTC   *decimal.Decimal `json:"montant_ttc"`
}

type NewCreditNote struct {
	ClientId  string              `json:"client_id"`
	InvoiceId *int                `json:"facture_id"`
	Reason    string              `json:"motif"`
	UsageType CreditNoteUsage     `json:"utilisation_type"`
	IssueDate time.Time           `json:"date_emission"`
	Lines     []NewCreditNoteLine `json:"lignes"`
}

type NewCreditNoteRefund struct {
	Mode      PaymentMode `json:"mode" validate:"required"`
	Reference string      `json:"reference"`
	Date      time.Time   `json:"date"`
}

type CreditNoteFilter struct {
	ClientId  string           `form:"client_id"`
	InvoiceId int              `form:"facture_id"`
	Status    CreditNoteStatus `form:"statut"`
}

func (CreditNote) TableName() string {
	return "avoirs"
}

func (cn CreditNote) LineList() DocumentLines {
	return cn.Lines.Data()
}

func (l NewCreditNoteLine) toDocumentLine(position int) DocumentLine {
	amounts := utils.CalculateLineAmounts(l.Quantity.Abs(), l.UnitPrice.Abs(), l.VatRate.Abs())
	hundred := decimal.NewFromInt(100)
	switch {
	case l.AmountHT != nil:
		amounts.HT = utils.RoundCents(*l.AmountHT)
		amounts.VAT = utils.RoundCents(amounts.HT.Abs().Mul(l.VatRate.Abs()).Div(hundred))
		if l.AmountVAT != nil {
			amounts.VAT = utils.RoundCents(*l.AmountVAT)
		}
		amounts.TTC = amounts.HT.Abs().Add(amounts.VAT.Abs())
		if l.AmountTTC != nil {
			amounts.TTC = utils.RoundCents(*l.AmountTTC)
		}
	case l.AmountTTC != nil:
		// HT is derived from TTC, through the given VAT when present, else through the rate.
		amounts.TTC = utils.RoundCents(*l.AmountTTC)
		if l.AmountVAT != nil {
			amounts.VAT = utils.RoundCents(*l.AmountVAT)
			amounts.HT = amounts.TTC.Abs().Sub(amounts.VAT.Abs())
		} else {
			amounts.HT = utils.RoundCents(amounts.TTC.Abs().Mul(hundred).Div(hundred.Add(l.VatRate.Abs())))
			amounts.VAT = amounts.TTC.Abs().Sub(amounts.HT)
		}
	}
	return DocumentLine{
		Position:    position,
		Designation: l.Designation,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice,
		VatRate:     l.VatRate,
		AmountHT:    amounts.HT,
		AmountVAT:   amounts.VAT,
		AmountTTC:   amounts.TTC,
	}
}

func (input *NewCreditNote) validate() error {
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return ErrMotifRequired
	}
	if !input.UsageType.IsValid() {
		return ErrInvalidUsageType
	}
	if len(input.Lines) == 0 {
		return ErrCreditNoteWithoutLines
	}
	for i, l := range input.Lines {
		if strings.TrimSpace(l.Designation) == "" {
			return fmt.Errorf("line %d: %w", i+1, ErrDesignationEmpty)
		}
		if l.AmountHT == nil && l.AmountTTC == nil && l.AmountVAT != nil {
			return fmt.Errorf("line %d: %w", i+1, ErrCreditLineVatOnly)
		}
	}
	return nil
}

func CreateCreditNote(ctx context.Context, input *NewCreditNote) (*CreditNote, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var creditNote *CreditNote
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		creditNote, err = createCreditNoteTx(ctx, tx, input)
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "CreditNote", "CreateCreditNote", "create credit note", input.ClientId, err)
		return nil, err
	}
	return creditNote, nil
}

func createCreditNoteTx(ctx context.Context, tx *gorm.DB, input *NewCreditNote) (*CreditNote, error) {
	clientId := input.ClientId
	if input.InvoiceId != nil {
		var source Invoice
		if err := tx.First(&source, *input.InvoiceId).Error; err != nil {
			return nil, notFoundOr(err)
		}
		if clientId == "" {
			clientId = source.ClientId
		} else if clientId != source.ClientId {
			return nil, ErrClientMismatch
		}
	}
	if _, err := activeClient(tx, clientId); err != nil {
		return nil, err
	}

	lines := make(DocumentLines, 0, len(input.Lines))
	for i, l := range input.Lines {
		lines = append(lines, l.toDocumentLine(i+1))
	}
	lines = lines.Negated()
	totals := lines.Totals()

	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}
	issueDate = utils.TruncateToDay(issueDate)
	creditNote := CreditNote{
		ClientId:  clientId,
		InvoiceId: input.InvoiceId,
		Reason:    input.Reason,
		UsageType: input.UsageType,
		IssueDate: issueDate,
		Status:    CreditNoteStatusDraft,
		Lines:     lines.Column(),
		TotalHT:   totals.HT,
		TotalVAT:  totals.VAT,
		TotalTTC:  totals.TTC,
		CreatedBy: utils.UsernameOrSystem(ctx),
	}
	numero, err := NextDocumentNumber(tx, DocumentFamilyCreditNote, issueDate.Year())
	if err != nil {
		return nil, err
	}
	creditNote.Numero = numero
	if err := tx.Create(&creditNote).Error; err != nil {
		return nil, err
	}
	return &creditNote, nil
}

// CreateCreditNoteFromInvoice credits every line of the invoice.
func CreateCreditNoteFromInvoice(ctx context.Context, invoiceId int, reason string, usage CreditNoteUsage) (*CreditNote, error) {
	invoice, err := utils.FetchModel[Invoice](ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	lines := invoice.LineList()
	inputs := make([]NewCreditNoteLine, 0, len(lines))
	for _, l := range lines {
		ht, vat, ttc := l.AmountHT, l.AmountVAT, l.AmountTTC
		inputs = append(inputs, NewCreditNoteLine{
			Designation: l.Designation,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			VatRate:     l.VatRate,
			AmountHT:    &ht,
			AmountVAT:   &vat,
			AmountTTC:   &ttc,
		})
	}
	return CreateCreditNote(ctx, &NewCreditNote{
		ClientId:  invoice.ClientId,
		InvoiceId: &invoice.ID,
		Reason:    reason,
		UsageType: usage,
		Lines:     inputs,
	})
}

func lockCreditNote(tx *gorm.DB, id int) (*CreditNote, error) {
	var creditNote CreditNote
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&creditNote, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &creditNote, nil
}

func SendCreditNote(ctx context.Context, id int) (*CreditNote, error) {
	db := config.GetDB()
	var creditNote *CreditNote
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if creditNote, err = lockCreditNote(tx, id); err != nil {
			return err
		}
		if creditNote.Status != CreditNoteStatusDraft {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, creditNote.Status, CreditNoteStatusSent)
		}
		now := time.Now()
		creditNote.Status = CreditNoteStatusSent
		creditNote.SentAt = &now
		return tx.Save(creditNote).Error
	})
	if err != nil {
		return nil, err
	}
	return creditNote, nil
}

// ApplyCreditNote records a payment of mode avoir for abs(TTC) on the invoice.
func ApplyCreditNote(ctx context.Context, id int, invoiceId int) (*CreditNote, *Invoice, error) {
	db := config.GetDB()
	var creditNote *CreditNote
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if creditNote, err = lockCreditNote(tx, id); err != nil {
			return err
		}
		invoice, err = applyCreditNoteTx(ctx, tx, creditNote, invoiceId)
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "CreditNote", "ApplyCreditNote", "apply credit note", map[string]int{"avoir": id, "facture": invoiceId}, err)
		return nil, nil, err
	}
	return creditNote, invoice, nil
}

func applyCreditNoteTx(ctx context.Context, tx *gorm.DB, creditNote *CreditNote, invoiceId int) (*Invoice, error) {
	if creditNote.UsageType != CreditNoteUsageDeduction {
		return nil, ErrCreditNoteWrongUsage
	}
	if creditNote.Status != CreditNoteStatusSent {
		return nil, ErrCreditNoteNotSent
	}
	var target Invoice
	if err := tx.First(&target, invoiceId).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if target.ClientId != creditNote.ClientId {
		return nil, ErrClientMismatch
	}
	now := time.Now()
	invoice, err := addPaymentTx(ctx, tx, invoiceId, &NewInvoicePayment{
		Amount:    creditNote.TotalTTC.Abs(),
		Date:      now,
		Mode:      PaymentModeCreditNote,
		Reference: creditNote.Numero,
	}, &creditNote.ID)
	if err != nil {
		return nil, err
	}
	creditNote.Status = CreditNoteStatusApplied
	creditNote.AppliedInvoiceId = &invoiceId
	creditNote.AppliedAt = &now
	if err := tx.Save(creditNote).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

// RefundCreditNote marks a remboursement credit note as refunded. A draft may be refunded directly.
func RefundCreditNote(ctx context.Context, id int, input *NewCreditNoteRefund) (*CreditNote, error) {
	if input.Mode != PaymentModeTransfer && input.Mode != PaymentModeCheque {
		return nil, ErrRefundModeRequired
	}
	db := config.GetDB()
	var creditNote *CreditNote
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if creditNote, err = lockCreditNote(tx, id); err != nil {
			return err
		}
		if creditNote.UsageType != CreditNoteUsageRefund {
			return ErrCreditNoteWrongUsage
		}
		if creditNote.Status != CreditNoteStatusDraft && creditNote.Status != CreditNoteStatusSent {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, creditNote.Status, CreditNoteStatusRefunded)
		}
		date := input.Date
		if date.IsZero() {
			date = time.Now()
		}
		creditNote.Status = CreditNoteStatusRefunded
		creditNote.RefundedAt = &date
		creditNote.RefundMode = input.Mode
		creditNote.RefundReference = input.Reference
		return tx.Save(creditNote).Error
	})
	if err != nil {
		return nil, err
	}
	return creditNote, nil
}

func GetCreditNote(ctx context.Context, id int) (*CreditNote, error) {
	return utils.FetchModel[CreditNote](ctx, id)
}

func ListCreditNotes(ctx context.Context, filter CreditNoteFilter) ([]*CreditNote, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.ClientId != "" {
		db = db.Where("client_id = ?", filter.ClientId)
	}
	if filter.InvoiceId > 0 {
		db = db.Where("invoice_id = ?", filter.InvoiceId)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	var results []*CreditNote
	if err := db.Order("issue_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListApplicableCreditNotes returns the sent deduction credit notes of a client, oldest first.
func ListApplicableCreditNotes(ctx context.Context, clientId string) ([]*CreditNote, error) {
	var results []*CreditNote
	err := config.GetDB().WithContext(ctx).
		Where("client_id = ? AND usage_type = ? AND status = ?", clientId, CreditNoteUsageDeduction, CreditNoteStatusSent).
		Order("issue_date, id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
