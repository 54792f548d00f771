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
	ErrSupplierInvoiceHasMovements = errors.New("supplier invoice has stock movements, reverse them first")
	ErrSupplierInvoicePosted       = errors.New("supplier invoice is already posted")
	ErrSupplierInvoiceNotPosted    = errors.New("supplier invoice is not posted")
	ErrSupplierInvoiceExists       = errors.New("this supplier invoice number is already recorded")
	ErrSupplierInvoiceWithoutLines = errors.New("supplier invoice must have at least one line")
)

const (
	AccountPurchases   = "607000"
	AccountVATOnInputs = "445660"
	AccountSuppliers   = "401000"
)

type SupplierInvoiceLine struct {
	Position       int             `json:"position"`
	StockArticleId *int            `json:"article_stock_id,omitempty"`
	Depot          string          `json:"depot,omitempty"`
	Designation    string          `json:"designation"`
	Quantity       decimal.Decimal `json:"quantite"`
	UnitPrice      decimal.Decimal `json:"prix_unitaire"`
	VatRate        decimal.Decimal `json:"taux_tva"`
	AmountHT       decimal.Decimal `json:"montant_ht"`
	AmountVAT      decimal.Decimal `json:"montant_tva"`
	AmountTTC      decimal.Decimal `json:"montant_ttc"`
}

type SupplierInvoiceLines []SupplierInvoiceLine

type SupplierInvoice struct {
	ID        int                                      `gorm:"primary_key" json:"id"`
	Numero    string                                   `gorm:"size:100;not null;uniqueIndex:idx_supplier_invoice_number" json:"numero"`
	Supplier  string                                   `gorm:"size:191;not null;uniqueIndex:idx_supplier_invoice_number" json:"fournisseur"`
	Date      time.Time                                `gorm:"not null" json:"date"`
	DueDate   *time.Time                               `json:"date_echeance"`
	Lines     datatypes.JSONType[SupplierInvoiceLines] `gorm:"not null" json:"lignes"`
	TotalHT   decimal.Decimal                          `gorm:"type:decimal(20,2);default:0" json:"total_ht"`
	TotalVAT  decimal.Decimal                          `gorm:"type:decimal(20,2);default:0" json:"total_tva"`
	TotalTTC  decimal.Decimal                          `gorm:"type:decimal(20,2);default:0" json:"total_ttc"`
	Status    SupplierInvoiceStatus                    `gorm:"size:20;not null" json:"statut"`
	EntryId   *int                                     `json:"ecriture_id"`
	PostedAt  *time.Time                               `json:"date_comptabilisation"`
	PdfPath   string                                   `gorm:"size:255" json:"pdf_path"`
	Notes     string                                   `gorm:"type:text" json:"notes"`
	CreatedBy string                                   `gorm:"size:100" json:"cree_par"`
	CreatedAt time.Time                                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                                `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplierInvoiceLine struct {
	StockArticleId *int            `json:"article_stock_id"`
	Depot          string          `json:"depot"`
	Designation    string          `json:"designation"`
	Quantity       decimal.Decimal `json:"quantite"`
	UnitPrice      decimal.Decimal `json:"prix_unitaire"`
	VatRate        decimal.Decimal `json:"taux_tva"`
}

type NewSupplierInvoice struct {
	Numero   string                   `json:"numero" validate:"required,max=100"`
	Supplier string                   `json:"fournisseur" validate:"required,max=191"`
	Date     time.Time                `json:"date" validate:"required"`
	DueDate  *time.Time               `json:"date_echeance"`
	Notes    string                   `json:"notes"`
	Lines    []NewSupplierInvoiceLine `json:"lignes"`
}

type SupplierInvoiceFilter struct {
	Supplier string                `form:"fournisseur"`
	Status   SupplierInvoiceStatus `form:"statut"`
}

func (SupplierInvoice) TableName() string {
	return "factures_fournisseurs"
}

func (si SupplierInvoice) LineList() SupplierInvoiceLines {
	return si.Lines.Data()
}

func (input *NewSupplierInvoice) buildLines(tx *gorm.DB) (SupplierInvoiceLines, error) {
	if len(input.Lines) == 0 {
		return nil, ErrSupplierInvoiceWithoutLines
	}
	lines := make(SupplierInvoiceLines, 0, len(input.Lines))
	for i, in := range input.Lines {
		line := SupplierInvoiceLine{
			Position:       i + 1,
			StockArticleId: in.StockArticleId,
			Depot:          strings.TrimSpace(in.Depot),
			Designation:    strings.TrimSpace(in.Designation),
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			VatRate:        in.VatRate,
		}
		if in.StockArticleId != nil {
			var article StockArticle
			if err := tx.First(&article, *in.StockArticleId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("line %d: %w", i+1, ErrArticleNotFound)
				}
				return nil, err
			}
			if line.Depot == "" {
				return nil, fmt.Errorf("line %d: %w", i+1, ErrDepotRequired)
			}
			if line.Designation == "" {
				line.Designation = article.Label
			}
		}
		if line.Designation == "" {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrDesignationEmpty)
		}
		if line.Quantity.IsNegative() || line.UnitPrice.IsNegative() || line.VatRate.IsNegative() {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
		amounts := utils.CalculateLineAmounts(line.Quantity, line.UnitPrice, line.VatRate)
		line.AmountHT, line.AmountVAT, line.AmountTTC = amounts.HT, amounts.VAT, amounts.TTC
		lines = append(lines, line)
	}
	return lines, nil
}

func (si *SupplierInvoice) setLines(lines SupplierInvoiceLines) {
	amounts := make([]utils.LineAmounts, 0, len(lines))
	for _, l := range lines {
		amounts = append(amounts, utils.LineAmounts{HT: l.AmountHT, VAT: l.AmountVAT, TTC: l.AmountTTC})
	}
	totals := utils.SumLineAmounts(amounts)
	si.Lines = datatypes.NewJSONType(lines)
	si.TotalHT, si.TotalVAT, si.TotalTTC = totals.HT, totals.VAT, totals.TTC
}

func supplierInvoiceNumberTaken(tx *gorm.DB, supplier string, numero string, exceptId int) (bool, error) {
	var count int64
	err := tx.Model(&SupplierInvoice{}).
		Where("supplier = ? AND numero = ? AND id <> ?", supplier, numero, exceptId).
		Count(&count).Error
	return count > 0, err
}

func CreateSupplierInvoice(ctx context.Context, input *NewSupplierInvoice) (*SupplierInvoice, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	invoice := SupplierInvoice{
		Numero:    strings.TrimSpace(input.Numero),
		Supplier:  strings.TrimSpace(input.Supplier),
		Date:      utils.TruncateToDay(input.Date),
		DueDate:   input.DueDate,
		Status:    SupplierInvoiceStatusDraft,
		Notes:     input.Notes,
		CreatedBy: utils.UsernameOrSystem(ctx),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := supplierInvoiceNumberTaken(tx, invoice.Supplier, invoice.Numero, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrSupplierInvoiceExists
		}
		lines, err := input.buildLines(tx)
		if err != nil {
			return err
		}
		invoice.setLines(lines)
		return tx.Create(&invoice).Error
	})
	if err != nil {
		config.LogError(config.GetLogger(), "SupplierInvoice", "CreateSupplierInvoice", "create", input.Numero, err)
		return nil, err
	}
	return &invoice, nil
}

func UpdateSupplierInvoice(ctx context.Context, id int, input *NewSupplierInvoice) (*SupplierInvoice, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var invoice *SupplierInvoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if invoice, err = LockSupplierInvoice(tx, id); err != nil {
			return err
		}
		if invoice.Status == SupplierInvoiceStatusPosted {
			return ErrSupplierInvoicePosted
		}
		invoice.Numero = strings.TrimSpace(input.Numero)
		invoice.Supplier = strings.TrimSpace(input.Supplier)
		taken, err := supplierInvoiceNumberTaken(tx, invoice.Supplier, invoice.Numero, id)
		if err != nil {
			return err
		}
		if taken {
			return ErrSupplierInvoiceExists
		}
		lines, err := input.buildLines(tx)
		if err != nil {
			return err
		}
		invoice.Date = utils.TruncateToDay(input.Date)
		invoice.DueDate = input.DueDate
		invoice.Notes = input.Notes
		invoice.setLines(lines)
		return tx.Save(invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func LockSupplierInvoice(tx *gorm.DB, id int) (*SupplierInvoice, error) {
	var invoice SupplierInvoice
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&invoice, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &invoice, nil
}

// SupplierInvoiceOpenReceipts returns the receipts of the invoice that no reversal compensates yet.
// A reversal compensates every open receipt at once, one sortie each, so the oldest receipts
// are the compensated ones.
func SupplierInvoiceOpenReceipts(tx *gorm.DB, id int) ([]*StockMovement, error) {
	var receipts []*StockMovement
	err := tx.Where("source = ? AND source_id = ?", MovementSourceSupplierInvoice, id).
		Order("id").Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	var reversed int64
	err = tx.Model(&StockMovement{}).
		Where("source = ? AND source_id = ?", MovementSourceSupplierInvoiceReversal, id).
		Count(&reversed).Error
	if err != nil {
		return nil, err
	}
	if int(reversed) >= len(receipts) {
		return nil, nil
	}
	return receipts[reversed:], nil
}

// DeleteSupplierInvoice refuses while receipts of the invoice are not reversed.
func DeleteSupplierInvoice(ctx context.Context, id int) (*SupplierInvoice, error) {
	db := config.GetDB()
	var invoice *SupplierInvoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if invoice, err = LockSupplierInvoice(tx, id); err != nil {
			return err
		}
		movements, err := SupplierInvoiceOpenReceipts(tx, id)
		if err != nil {
			return err
		}
		if len(movements) > 0 {
			return ErrSupplierInvoiceHasMovements
		}
		return tx.Delete(invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func SetSupplierInvoicePdfPath(ctx context.Context, id int, path string) error {
	result := config.GetDB().WithContext(ctx).Model(&SupplierInvoice{}).Where("id = ?", id).Update("pdf_path", path)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetSupplierInvoice(ctx context.Context, id int) (*SupplierInvoice, error) {
	return utils.FetchModel[SupplierInvoice](ctx, id)
}

func ListSupplierInvoices(ctx context.Context, filter SupplierInvoiceFilter) ([]*SupplierInvoice, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.Supplier != "" {
		db = db.Where("supplier = ?", filter.Supplier)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	var results []*SupplierInvoice
	if err := db.Order("date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
