package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
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
	ErrQuoteWithoutLines     = errors.New("quote must have at least one line")
	ErrQuoteNotEditable      = errors.New("only a draft quote can be modified")
	ErrPurchaseOrderRequired = errors.New("purchase order reference is required")
	ErrQuoteNotAccepted      = errors.New("quote must be accepted before invoicing")
	ErrQuoteAlreadyInvoiced  = errors.New("quote is already invoiced")
	ErrInvalidDepositPercent = errors.New("deposit percentage must be between 0 and 100")
	ErrQuoteHasDeposit       = errors.New("quote already has a deposit invoice")
)

const defaultQuoteValidityDays = 30

type Quote struct {
	ID               int                               `gorm:"primary_key" json:"id"`
	Numero           string                            `gorm:"size:30;not null;uniqueIndex" json:"numero"`
	ClientId         string                            `gorm:"size:191;index;not null" json:"client_id"`
	Subject          string                            `gorm:"size:255" json:"objet"`
	IssueDate        time.Time                         `gorm:"not null" json:"date_emission"`
	ValidUntil       time.Time                         `gorm:"not null" json:"date_validite"`
	Status           QuoteStatus                       `gorm:"size:20;not null;index" json:"statut"`
	Lines            datatypes.JSONType[DocumentLines] `gorm:"not null" json:"lignes"`
	TotalHT          decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_ht"`
	TotalVAT         decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_tva"`
	TotalTTC         decimal.Decimal                   `gorm:"type:decimal(20,2);default:0" json:"total_ttc"`
	PurchaseOrderRef string                            `gorm:"size:100" json:"reference_bon_commande"`
	Notes            string                            `gorm:"type:text" json:"notes"`
	SentAt           *time.Time                        `json:"date_envoi"`
	DecidedAt        *time.Time                        `json:"date_decision"`
	DepositInvoiceId *int                              `json:"facture_acompte_id"`
	InvoiceId        *int                              `json:"facture_id"`
	CreatedBy        string                            `gorm:"size:100" json:"cree_par"`
	CreatedAt        time.Time                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewQuote struct {
	ClientId     string            `json:"client_id" validate:"required"`
	Subject      string            `json:"objet"`
	IssueDate    time.Time         `json:"date_emission"`
	ValidityDays int               `json:"validite_jours" validate:"gte=0"`
	Notes        string            `json:"notes"`
	Lines        []NewDocumentLine `json:"lignes"`
}

type QuoteFilter struct {
	ClientId string      `form:"client_id"`
	Status   QuoteStatus `form:"statut"`
}

func (Quote) TableName() string {
	return "devis"
}

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusDraft:    {QuoteStatusSent},
	QuoteStatusSent:     {QuoteStatusAccepted, QuoteStatusRefused},
	QuoteStatusAccepted: {QuoteStatusOrderValidated},
}

func (s QuoteStatus) CanMoveTo(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (q Quote) LineList() DocumentLines {
	return q.Lines.Data()
}

func (q *Quote) setLines(lines DocumentLines) {
	totals := lines.Totals()
	q.Lines = lines.Column()
	q.TotalHT, q.TotalVAT, q.TotalTTC = totals.HT, totals.VAT, totals.TTC
}

func (input *NewQuote) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if len(input.Lines) == 0 {
		return ErrQuoteWithoutLines
	}
	return nil
}

func (input *NewQuote) dates() (time.Time, time.Time) {
	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}
	issueDate = utils.TruncateToDay(issueDate)
	days := input.ValidityDays
	if days == 0 {
		days = defaultQuoteValidityDays
	}
	return issueDate, issueDate.AddDate(0, 0, days)
}

func CreateQuote(ctx context.Context, input *NewQuote) (*Quote, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	logger := config.GetLogger()

	tx := db.WithContext(ctx).Begin()
	client, err := activeClient(tx, input.ClientId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	lines, err := buildDocumentLines(tx, client, input.Lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	issueDate, validUntil := input.dates()
	quote := Quote{
		ClientId:   client.ID,
		Subject:    input.Subject,
		IssueDate:  issueDate,
		ValidUntil: validUntil,
		Status:     QuoteStatusDraft,
		Notes:      input.Notes,
		CreatedBy:  utils.UsernameOrSystem(ctx),
	}
	quote.setLines(lines)

	quote.Numero, err = NextDocumentNumber(tx, DocumentFamilyQuote, issueDate.Year())
	if err != nil {
		tx.Rollback()
		config.LogError(logger, "Quote", "CreateQuote", "next number", nil, err)
		return nil, err
	}
	if err := tx.Create(&quote).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "Quote", "CreateQuote", "create quote", quote.Numero, err)
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// UpdateQuote rebuilds the lines of a draft quote; the number is kept.
func UpdateQuote(ctx context.Context, id int, input *NewQuote) (*Quote, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var quote Quote
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&quote, id).Error; err != nil {
			return notFoundOr(err)
		}
		if quote.Status != QuoteStatusDraft {
			return ErrQuoteNotEditable
		}
		client, err := activeClient(tx, input.ClientId)
		if err != nil {
			return err
		}
		lines, err := buildDocumentLines(tx, client, input.Lines)
		if err != nil {
			return err
		}
		quote.ClientId = client.ID
		quote.Subject = input.Subject
		quote.Notes = input.Notes
		quote.IssueDate, quote.ValidUntil = input.dates()
		quote.setLines(lines)
		return tx.Save(&quote).Error
	})
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func transitionQuote(ctx context.Context, id int, next QuoteStatus, mutate func(q *Quote) error) (*Quote, error) {
	db := config.GetDB()
	var quote Quote
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&quote, id).Error; err != nil {
			return notFoundOr(err)
		}
		if !quote.Status.CanMoveTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, quote.Status, next)
		}
		quote.Status = next
		if mutate != nil {
			if err := mutate(&quote); err != nil {
				return err
			}
		}
		return tx.Save(&quote).Error
	})
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func SendQuote(ctx context.Context, id int) (*Quote, error) {
	return transitionQuote(ctx, id, QuoteStatusSent, func(q *Quote) error {
		now := time.Now()
		q.SentAt = &now
		return nil
	})
}

func AcceptQuote(ctx context.Context, id int) (*Quote, error) {
	return transitionQuote(ctx, id, QuoteStatusAccepted, func(q *Quote) error {
		now := time.Now()
		q.DecidedAt = &now
		return nil
	})
}

func RefuseQuote(ctx context.Context, id int) (*Quote, error) {
	return transitionQuote(ctx, id, QuoteStatusRefused, func(q *Quote) error {
		now := time.Now()
		q.DecidedAt = &now
		return nil
	})
}

// ValidateQuoteOrder attaches the client purchase order to an accepted quote.
func ValidateQuoteOrder(ctx context.Context, id int, purchaseOrderRef string) (*Quote, error) {
	ref := strings.TrimSpace(purchaseOrderRef)
	if ref == "" {
		return nil, ErrPurchaseOrderRequired
	}
	return transitionQuote(ctx, id, QuoteStatusOrderValidated, func(q *Quote) error {
		q.PurchaseOrderRef = ref
		return nil
	})
}

func DeleteQuote(ctx context.Context, id int) (*Quote, error) {
	db := config.GetDB().WithContext(ctx)
	var quote Quote
	if err := db.First(&quote, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if quote.Status != QuoteStatusDraft {
		return nil, ErrQuoteNotEditable
	}
	if err := db.Delete(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func GetQuote(ctx context.Context, id int) (*Quote, error) {
	return utils.FetchModel[Quote](ctx, id)
}

func ListQuotes(ctx context.Context, filter QuoteFilter) ([]*Quote, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.ClientId != "" {
		db = db.Where("client_id = ?", filter.ClientId)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	var results []*Quote
	if err := db.Order("issue_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func lockInvoiceableQuote(tx *gorm.DB, id int) (*Quote, error) {
	var quote Quote
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&quote, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if quote.Status != QuoteStatusAccepted && quote.Status != QuoteStatusOrderValidated {
		return nil, ErrQuoteNotAccepted
	}
	if quote.InvoiceId != nil {
		return nil, ErrQuoteAlreadyInvoiced
	}
	return &quote, nil
}

// depositLines splits percent of the quote HT into one line per VAT rate.
func depositLines(quote *Quote, percent decimal.Decimal) []NewDocumentLine {
	byRate := map[string]decimal.Decimal{}
	rates := map[string]decimal.Decimal{}
	for _, l := range quote.LineList() {
		key := l.VatRate.String()
		byRate[key] = byRate[key].Add(l.AmountHT)
		rates[key] = l.VatRate
	}
	keys := make([]string, 0, len(byRate))
	for k := range byRate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	one := decimal.NewFromInt(1)
	lines := make([]NewDocumentLine, 0, len(keys))
	for _, k := range keys {
		price := utils.Percentage(byRate[k], percent)
		rate := rates[k]
		designation := fmt.Sprintf("Acompte %s%% sur devis %s", percent.String(), quote.Numero)
		if len(keys) > 1 {
			designation += fmt.Sprintf(" (TVA %s%%)", rate.String())
		}
		lines = append(lines, NewDocumentLine{
			Designation: designation,
			Quantity:    one,
			UnitPrice:   &price,
			VatRate:     &rate,
		})
	}
	return lines
}

// CreateDepositInvoiceFromQuote issues an acompte invoice for percent of an accepted quote.
func CreateDepositInvoiceFromQuote(ctx context.Context, quoteId int, percent decimal.Decimal) (*Invoice, error) {
	if !percent.IsPositive() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, ErrInvalidDepositPercent
	}
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := lockInvoiceableQuote(tx, quoteId)
		if err != nil {
			return err
		}
		if quote.DepositInvoiceId != nil {
			return ErrQuoteHasDeposit
		}
		invoice, err = createInvoiceTx(ctx, tx, &NewInvoice{
			ClientId:         quote.ClientId,
			Subject:          quote.Subject,
			IsDeposit:        true,
			QuoteId:          &quote.ID,
			PurchaseOrderRef: quote.PurchaseOrderRef,
			Lines:            depositLines(quote, percent),
		})
		if err != nil {
			return err
		}
		return tx.Model(quote).Update("deposit_invoice_id", invoice.ID).Error
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Quote", "CreateDepositInvoiceFromQuote", "create deposit", quoteId, err)
		return nil, err
	}
	return invoice, nil
}

// ConvertQuoteToInvoice bills the quote lines, deducting what was paid on the deposit invoice.
// depositInvoiceId defaults to the deposit issued from the quote.
func ConvertQuoteToInvoice(ctx context.Context, quoteId int, depositInvoiceId *int) (*Invoice, error) {
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := lockInvoiceableQuote(tx, quoteId)
		if err != nil {
			return err
		}
		if depositInvoiceId != nil {
			quote.DepositInvoiceId = depositInvoiceId
		}
		invoice, err = createInvoiceFromLinesTx(ctx, tx, quote)
		if err != nil {
			return err
		}
		return tx.Model(quote).Updates(map[string]interface{}{
			"invoice_id":         invoice.ID,
			"deposit_invoice_id": quote.DepositInvoiceId,
		}).Error
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Quote", "ConvertQuoteToInvoice", "convert quote", quoteId, err)
		return nil, err
	}
	return invoice, nil
}

// createInvoiceFromLinesTx copies the quote snapshot; explicit prices win over the catalog.
func createInvoiceFromLinesTx(ctx context.Context, tx *gorm.DB, quote *Quote) (*Invoice, error) {
	lines := quote.LineList()
	inputs := make([]NewDocumentLine, 0, len(lines))
	for _, l := range lines {
		price, rate := l.UnitPrice, l.VatRate
		inputs = append(inputs, NewDocumentLine{
			SiteId:      l.SiteId,
			ArticleId:   l.ArticleId,
			Designation: l.Designation,
			Unit:        l.Unit,
			Quantity:    l.Quantity,
			UnitPrice:   &price,
			VatRate:     &rate,
		})
	}
	return createInvoiceTx(ctx, tx, &NewInvoice{
		ClientId:         quote.ClientId,
		Subject:          quote.Subject,
		QuoteId:          &quote.ID,
		DepositInvoiceId: quote.DepositInvoiceId,
		PurchaseOrderRef: quote.PurchaseOrderRef,
		Lines:            inputs,
	})
}
