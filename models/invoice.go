package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvoiceWithoutLines   = errors.New("invoice must have at least one line")
	ErrInvalidPaymentAmount  = errors.New("payment amount must be greater than zero")
	ErrInvalidPaymentMode    = errors.New("invalid payment mode")
	ErrInvoiceCancelled      = errors.New("invoice is cancelled")
	ErrInvoiceHasPayments    = errors.New("invoice has payments, remove them or issue a credit note")
	ErrInvoiceNothingDue     = errors.New("invoice has no remaining balance")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrNotADepositInvoice    = errors.New("referenced invoice is not a deposit invoice")
	ErrDepositAlreadyUsed    = errors.New("deposit invoice is already deducted by another invoice")
	ErrInvalidInvoiceStatus  = errors.New("invalid invoice status")
	ErrDunningNotAllowed     = errors.New("dunning letters only apply to issued unpaid invoices")
	ErrClientMismatch        = errors.New("documents belong to different clients")
	ErrInitialStatusNotValid = errors.New("an invoice is created as brouillon or envoyee")
	ErrDepositCannotDeduct   = errors.New("a deposit invoice cannot deduct another deposit")
)

type Invoice struct {
	ID               int                               `gorm:"primary_key" json:"id"`
	Numero           string                            `gorm:"size:30;not null;uniqueIndex" json:"numero"`
	ClientId         string                            `gorm:"size:191;index;not null" json:"client_id"`
	ContractId       *int                              `gorm:"index" json:"contrat_id"`
	QuoteId          *int                              `gorm:"index" json:"devis_id"`
	Subject          string                            `gorm:"size:255" json:"objet"`
	IssueDate        time.Time                         `gorm:"not null" json:"date_emission"`
	DueDate          time.Time                         `gorm:"not null;index" json:"date_echeance"`
	Status           InvoiceStatus                     `gorm:"size:30;not null;index" json:"statut"`
	IsDeposit        bool                              `gorm:"not null;default:false" json:"est_acompte"`
	DepositInvoiceId *int                              `gorm:"index" json:"facture_acompte_id"`
	DepositDeducted  decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"acompte_deduit"`
	Lines            datatypes.JSONType[DocumentLines] `gorm:"not null" json:"lignes"`
	TotalHT          decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_ht"`
	TotalVAT         decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_tva"`
	TotalTTC         decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_ttc"`
	AmountPaid       decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"montant_paye"`
	RemainingBalance decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"reste_a_payer"`
	PaymentDate      *time.Time                        `json:"date_paiement"`
	PurchaseOrderRef string                            `gorm:"size:100" json:"reference_bon_commande"`
	Notes            string                            `gorm:"type:text" json:"notes"`
	ReportPath       string                            `gorm:"size:255" json:"rapport_pdf"`
	CancelReason     string                            `gorm:"size:255" json:"motif_annulation"`
	Payments         []InvoicePayment                  `gorm:"foreignKey:InvoiceId" json:"paiements"`
	DunningLetters   []DunningLetter                   `gorm:"foreignKey:InvoiceId" json:"relances"`
	CreatedBy        string                            `gorm:"size:100" json:"cree_par"`
	CreatedAt        time.Time                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                         `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoicePayment is append-only; removing it deletes the row.
type InvoicePayment struct {
	ID           int             `gorm:"primary_key" json:"id"`
	InvoiceId    int             `gorm:"index;not null" json:"facture_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"montant"`
	Date         time.Time       `gorm:"not null" json:"date"`
	Mode         PaymentMode     `gorm:"size:20;not null" json:"mode"`
	Reference    string          `gorm:"size:100" json:"reference"`
	CreditNoteId *int            `gorm:"index" json:"avoir_id"`
	CreatedBy    string          `gorm:"size:100" json:"cree_par"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type DunningLetter struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"facture_id"`
	Level     int             `gorm:"not null" json:"niveau"`
	Date      time.Time       `gorm:"not null" json:"date"`
	Channel   string          `gorm:"size:20;not null" json:"canal"`
	AmountDue decimal.Decimal `gorm:"type:decimal(20,2)" json:"montant_du"`
	Comment   string          `gorm:"type:text" json:"commentaire"`
	CreatedBy string          `gorm:"size:100" json:"cree_par"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewInvoice struct {
	ClientId         string            `json:"client_id" validate:"required"`
	Subject          string            `json:"objet"`
	IssueDate        time.Time         `json:"date_emission"`
	DueDate          *time.Time        `json:"date_echeance"`
	Status           InvoiceStatus     `json:"statut"`
	IsDeposit        bool              `json:"est_acompte"`
	DepositInvoiceId *int              `json:"facture_acompte_id"`
	QuoteId          *int              `json:"devis_id"`
	ContractId       *int              `json:"contrat_id"`
	PurchaseOrderRef string            `json:"reference_bon_commande"`
	Notes            string            `json:"notes"`
	Lines            []NewDocumentLine `json:"lignes"`
}

type NewInvoicePayment struct {
	Amount    decimal.Decimal `json:"montant"`
	Date      time.Time       `json:"date"`
	Mode      PaymentMode     `json:"mode"`
	Reference string          `json:"reference"`
}

type NewDunningLetter struct {
	Date    time.Time `json:"date"`
	Channel string    `json:"canal" validate:"omitempty,oneof=email courrier telephone"`
	Comment string    `json:"commentaire"`
}

type InvoiceFilter struct {
	ClientId   string        `form:"client_id"`
	ContractId int           `form:"contrat_id"`
	Status     InvoiceStatus `form:"statut"`
	From       *time.Time    `form:"du" time_format:"2006-01-02"`
	To         *time.Time    `form:"au" time_format:"2006-01-02"`
}

func (Invoice) TableName() string {
	return "factures"
}

func (InvoicePayment) TableName() string {
	return "paiements_factures"
}

func (DunningLetter) TableName() string {
	return "relances_factures"
}

// DeriveInvoiceStatus computes the status from the balance. brouillon and annulee are never overridden.
func DeriveInvoiceStatus(current InvoiceStatus, remaining decimal.Decimal, paid decimal.Decimal, dueDate time.Time, now time.Time) InvoiceStatus {
	if current.IsSticky() {
		return current
	}
	if remaining.LessThanOrEqual(decimal.Zero) {
		return InvoiceStatusPaid
	}
	if paid.GreaterThan(decimal.Zero) {
		return InvoiceStatusPartiallyPaid
	}
	if isPastDue(dueDate, now) {
		return InvoiceStatusOverdue
	}
	return InvoiceStatusSent
}

func isPastDue(dueDate time.Time, now time.Time) bool {
	return utils.TruncateToDay(now).After(utils.TruncateToDay(dueDate))
}

// SumPayments does not depend on the order payments were recorded in.
func SumPayments(payments []InvoicePayment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// recompute refreshes the paid amount, the balance and the status from the payments.
func (inv *Invoice) recompute(now time.Time) {
	inv.AmountPaid = SumPayments(inv.Payments)
	inv.RemainingBalance = utils.RoundCents(inv.TotalTTC.Sub(inv.DepositDeducted).Sub(inv.AmountPaid))
	inv.Status = DeriveInvoiceStatus(inv.Status, inv.RemainingBalance, inv.AmountPaid, inv.DueDate, now)
}

// refreshOverdue marks an issued invoice overdue once its due date passed. It never writes.
func (inv *Invoice) refreshOverdue(now time.Time) {
	if inv.Status == InvoiceStatusSent && inv.RemainingBalance.IsPositive() && isPastDue(inv.DueDate, now) {
		inv.Status = InvoiceStatusOverdue
	}
}

func (inv *Invoice) setLines(lines DocumentLines) {
	totals := lines.Totals()
	inv.Lines = lines.Column()
	inv.TotalHT, inv.TotalVAT, inv.TotalTTC = totals.HT, totals.VAT, totals.TTC
}

func (inv Invoice) LineList() DocumentLines {
	return inv.Lines.Data()
}

var invoiceBalanceColumns = []string{"amount_paid", "remaining_balance", "status", "payment_date"}

func lockInvoice(tx *gorm.DB, id int) (*Invoice, error) {
	var invoice Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&invoice, id).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	if err := tx.Where("invoice_id = ?", id).Order("date, id").Find(&invoice.Payments).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (input *NewInvoice) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if len(input.Lines) == 0 {
		return ErrInvoiceWithoutLines
	}
	if input.Status != "" && input.Status != InvoiceStatusDraft && input.Status != InvoiceStatusSent {
		return ErrInitialStatusNotValid
	}
	if input.IsDeposit && input.DepositInvoiceId != nil {
		return ErrDepositCannotDeduct
	}
	return nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = createInvoiceTx(ctx, tx, input)
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Invoice", "CreateInvoice", "create invoice", input.ClientId, err)
		return nil, err
	}
	return invoice, nil
}

// createInvoiceTx numbers and stores an invoice in the caller's transaction.
func createInvoiceTx(ctx context.Context, tx *gorm.DB, input *NewInvoice) (*Invoice, error) {
	client, err := activeClient(tx, input.ClientId)
	if err != nil {
		return nil, err
	}
	lines, err := buildDocumentLines(tx, client, input.Lines)
	if err != nil {
		return nil, err
	}

	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}
	issueDate = utils.TruncateToDay(issueDate)
	dueDate := dueDateFor(issueDate, client.PaymentTermsDays)
	if input.DueDate != nil {
		dueDate = utils.TruncateToDay(*input.DueDate)
	}
	status := input.Status
	if status == "" {
		status = InvoiceStatusSent
	}

	invoice := Invoice{
		ClientId:         client.ID,
		ContractId:       input.ContractId,
		QuoteId:          input.QuoteId,
		Subject:          input.Subject,
		IssueDate:        issueDate,
		DueDate:          dueDate,
		Status:           status,
		IsDeposit:        input.IsDeposit,
		DepositInvoiceId: input.DepositInvoiceId,
		PurchaseOrderRef: input.PurchaseOrderRef,
		Notes:            input.Notes,
		CreatedBy:        utils.UsernameOrSystem(ctx),
	}
	invoice.setLines(lines)

	if input.DepositInvoiceId != nil {
		deducted, err := depositDeduction(tx, *input.DepositInvoiceId, client.ID)
		if err != nil {
			return nil, err
		}
		invoice.DepositDeducted = deducted
	}
	invoice.recompute(time.Now())

	numero, err := NextDocumentNumber(tx, DocumentFamilyInvoice, issueDate.Year())
	if err != nil {
		return nil, err
	}
	invoice.Numero = numero
	if err := tx.Omit("Payments", "DunningLetters").Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// depositDeduction returns what was actually paid on the deposit invoice.
func depositDeduction(tx *gorm.DB, depositId int, clientId string) (decimal.Decimal, error) {
	deposit, err := lockInvoice(tx, depositId)
	if err != nil {
		return decimal.Zero, err
	}
	if !deposit.IsDeposit {
		return decimal.Zero, ErrNotADepositInvoice
	}
	if deposit.ClientId != clientId {
		return decimal.Zero, ErrClientMismatch
	}
	if deposit.Status == InvoiceStatusCancelled {
		return decimal.Zero, ErrInvoiceCancelled
	}
	var used int64
	err = tx.Model(&Invoice{}).
		Where("deposit_invoice_id = ? AND status <> ?", depositId, InvoiceStatusCancelled).
		Count(&used).Error
	if err != nil {
		return decimal.Zero, err
	}
	if used > 0 {
		return decimal.Zero, ErrDepositAlreadyUsed
	}
	return SumPayments(deposit.Payments), nil
}

func AddInvoicePayment(ctx context.Context, invoiceId int, input *NewInvoicePayment) (*Invoice, error) {
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidPaymentAmount
	}
	if input.Mode == "" {
		input.Mode = PaymentModeTransfer
	}
	if !input.Mode.IsValid() {
		return nil, ErrInvalidPaymentMode
	}
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = addPaymentTx(ctx, tx, invoiceId, input, nil)
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Invoice", "AddInvoicePayment", "add payment", invoiceId, err)
		return nil, err
	}
	return invoice, nil
}

func addPaymentTx(ctx context.Context, tx *gorm.DB, invoiceId int, input *NewInvoicePayment, creditNoteId *int) (*Invoice, error) {
	invoice, err := lockInvoice(tx, invoiceId)
	if err != nil {
		return nil, err
	}
	if invoice.Status == InvoiceStatusCancelled {
		return nil, ErrInvoiceCancelled
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}
	payment := InvoicePayment{
		InvoiceId:    invoice.ID,
		Amount:       utils.RoundCents(input.Amount),
		Date:         utils.TruncateToDay(date),
		Mode:         input.Mode,
		Reference:    input.Reference,
		CreditNoteId: creditNoteId,
		CreatedBy:    utils.UsernameOrSystem(ctx),
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, err
	}
	invoice.Payments = append(invoice.Payments, payment)
	invoice.recompute(time.Now())
	if !invoice.RemainingBalance.IsPositive() {
		paidOn := payment.Date
		invoice.PaymentDate = &paidOn
	}
	if err := tx.Model(invoice).Select(invoiceBalanceColumns).Updates(invoice).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

// RemoveInvoicePayment always clears the payment date, even if the invoice stays settled.
func RemoveInvoicePayment(ctx context.Context, invoiceId int, paymentId int) (*Invoice, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	tx := db.WithContext(ctx).Begin()
	invoice, err := lockInvoice(tx, invoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	var removed *InvoicePayment
	remaining := make([]InvoicePayment, 0, len(invoice.Payments))
	for i := range invoice.Payments {
		if invoice.Payments[i].ID == paymentId {
			removed = &invoice.Payments[i]
			continue
		}
		remaining = append(remaining, invoice.Payments[i])
	}
	if removed == nil {
		tx.Rollback()
		return nil, ErrPaymentNotFound
	}
	if err := tx.Delete(&InvoicePayment{}, removed.ID).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "Invoice", "RemoveInvoicePayment", "delete payment", paymentId, err)
		return nil, err
	}
	// an applied credit note becomes available again
	if removed.CreditNoteId != nil {
		err := tx.Model(&CreditNote{}).Where("id = ?", *removed.CreditNoteId).
			Updates(map[string]interface{}{"status": CreditNoteStatusSent, "applied_invoice_id": nil, "applied_at": nil}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	invoice.Payments = remaining
	invoice.recompute(time.Now())
	invoice.PaymentDate = nil
	if err := tx.Model(invoice).Select(invoiceBalanceColumns).Updates(invoice).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "Invoice", "RemoveInvoicePayment", "update invoice", invoiceId, err)
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

// UpdateInvoiceStatus stores status as given, without derivation.
func UpdateInvoiceStatus(ctx context.Context, id int, status InvoiceStatus) (*Invoice, error) {
	if !status.IsValid() {
		return nil, ErrInvalidInvoiceStatus
	}
	db := config.GetDB()
	invoice, err := GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := invoice.Status
	if err := db.WithContext(ctx).Model(&Invoice{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return nil, err
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module":   "Invoice",
		"funcName": "UpdateInvoiceStatus",
		"invoice":  invoice.Numero,
		"from":     previous,
		"to":       status,
		"user":     utils.UsernameOrSystem(ctx),
	}).Info("invoice status overridden")
	invoice.Status = status
	return invoice, nil
}

// SendInvoice issues a draft; the status is then derived from its payments.
func SendInvoice(ctx context.Context, id int) (*Invoice, error) {
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusDraft {
			return ErrInvalidStatusTransition
		}
		invoice.Status = InvoiceStatusSent
		invoice.recompute(time.Now())
		return tx.Model(invoice).Select(invoiceBalanceColumns).Updates(invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func CancelInvoice(ctx context.Context, id int, reason string) (*Invoice, error) {
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if invoice.Status == InvoiceStatusCancelled {
			return ErrInvoiceCancelled
		}
		if len(invoice.Payments) > 0 {
			return ErrInvoiceHasPayments
		}
		invoice.Status = InvoiceStatusCancelled
		invoice.CancelReason = reason
		return tx.Model(invoice).Select("status", "cancel_reason").Updates(invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func AddDunningLetter(ctx context.Context, invoiceId int, input *NewDunningLetter) (*Invoice, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoice(tx, invoiceId)
		if err != nil {
			return err
		}
		now := time.Now()
		invoice.refreshOverdue(now)
		switch invoice.Status {
		case InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
		default:
			return ErrDunningNotAllowed
		}
		if !invoice.RemainingBalance.IsPositive() {
			return ErrInvoiceNothingDue
		}
		var count int64
		if err := tx.Model(&DunningLetter{}).Where("invoice_id = ?", invoiceId).Count(&count).Error; err != nil {
			return err
		}
		date := input.Date
		if date.IsZero() {
			date = now
		}
		channel := input.Channel
		if channel == "" {
			channel = "email"
		}
		letter := DunningLetter{
			InvoiceId: invoiceId,
			Level:     int(count) + 1,
			Date:      utils.TruncateToDay(date),
			Channel:   channel,
			AmountDue: invoice.RemainingBalance,
			Comment:   input.Comment,
			CreatedBy: utils.UsernameOrSystem(ctx),
		}
		return tx.Create(&letter).Error
	})
	if err != nil {
		return nil, err
	}
	return GetInvoice(ctx, invoiceId)
}

// SetInvoiceReportPath records where the intervention report PDF was stored.
func SetInvoiceReportPath(ctx context.Context, id int, path string) error {
	return config.GetDB().WithContext(ctx).Model(&Invoice{}).Where("id = ?", id).Update("report_path", path).Error
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	db := config.GetDB()
	var invoice Invoice
	err := db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("date, id") }).
		Preload("DunningLetters", func(db *gorm.DB) *gorm.DB { return db.Order("level") }).
		First(&invoice, id).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	invoice.refreshOverdue(time.Now())
	return &invoice, nil
}

func ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*Invoice, error) {
	db := config.GetDB().WithContext(ctx)
	today := utils.TruncateToDay(time.Now())
	if filter.ClientId != "" {
		db = db.Where("client_id = ?", filter.ClientId)
	}
	if filter.ContractId > 0 {
		db = db.Where("contract_id = ?", filter.ContractId)
	}
	switch filter.Status {
	case "":
	case InvoiceStatusOverdue:
		db = db.Where("status = ? OR (status = ? AND due_date < ? AND remaining_balance > 0)",
			InvoiceStatusOverdue, InvoiceStatusSent, today)
	case InvoiceStatusSent:
		db = db.Where("status = ? AND NOT (due_date < ? AND remaining_balance > 0)", InvoiceStatusSent, today)
	default:
		db = db.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		db = db.Where("issue_date >= ?", utils.TruncateToDay(*filter.From))
	}
	if filter.To != nil {
		db = db.Where("issue_date < ?", utils.TruncateToDay(*filter.To).AddDate(0, 0, 1))
	}
	var results []*Invoice
	if err := db.Order("issue_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	now := time.Now()
	for _, inv := range results {
		inv.refreshOverdue(now)
	}
	return results, nil
}

// ListUnpaidInvoicesOfContract returns issued invoices of a contract that still have a balance.
func ListUnpaidInvoicesOfContract(ctx context.Context, contractId int) ([]*Invoice, error) {
	var results []*Invoice
	err := config.GetDB().WithContext(ctx).
		Where("contract_id = ? AND remaining_balance > 0 AND status NOT IN ?", contractId,
			[]InvoiceStatus{InvoiceStatusDraft, InvoiceStatusCancelled}).
		Order("due_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (inv Invoice) String() string {
	return fmt.Sprintf("%s (%s)", inv.Numero, inv.ClientId)
}
