package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidQuantity  = errors.New("quantity, unit price and VAT rate must be positive or zero")
	ErrDesignationEmpty = errors.New("line designation is required")
	ErrSiteNotOfClient  = errors.New("site does not belong to the client")

	ErrCatalogArticleNotFound = errors.New("catalog article not found")
	ErrSiteNotFound           = errors.New("site not found")
)

// DocumentLine is a snapshot of a billed item. It is stored inside its document and never
// re-reads the catalog once built.
type DocumentLine struct {
	Position    int             `json:"position"`
	SiteId      *int            `json:"site_id,omitempty"`
	SiteName    string          `json:"site_nom,omitempty"`
	ArticleId   *int            `json:"article_id,omitempty"`
	ArticleCode string          `json:"article_code,omitempty"`
	Designation string          `json:"designation"`
	Unit        string          `json:"unite,omitempty"`
	Quantity    decimal.Decimal `json:"quantite"`
	UnitPrice   decimal.Decimal `json:"prix_unitaire"`
	VatRate     decimal.Decimal `json:"taux_tva"`
	AmountHT    decimal.Decimal `json:"montant_ht"`
	AmountVAT   decimal.Decimal `json:"montant_tva"`
	AmountTTC   decimal.Decimal `json:"montant_ttc"`
}

type DocumentLines []DocumentLine

type NewDocumentLine struct {
	SiteId      *int             `json:"site_id"`
	ArticleId   *int             `json:"article_id"`
	Designation string           `json:"designation"`
	Unit        string           `json:"unite"`
	Quantity    decimal.Decimal  `json:"quantite"`
	UnitPrice   *decimal.Decimal `json:"prix_unitaire"`
	VatRate     *decimal.Decimal `json:"taux_tva"`
}

func (l DocumentLine) Amounts() utils.LineAmounts {
	return utils.LineAmounts{HT: l.AmountHT, VAT: l.AmountVAT, TTC: l.AmountTTC}
}

// Totals sums the already rounded line amounts.
func (lines DocumentLines) Totals() utils.LineAmounts {
	amounts := make([]utils.LineAmounts, 0, len(lines))
	for _, l := range lines {
		amounts = append(amounts, l.Amounts())
	}
	return utils.SumLineAmounts(amounts)
}

// Negated returns a copy where every amount is -abs(x).
func (lines DocumentLines) Negated() DocumentLines {
	out := make(DocumentLines, len(lines))
	for i, l := range lines {
		n := utils.NegateAmounts(l.Amounts())
		l.AmountHT, l.AmountVAT, l.AmountTTC = n.HT, n.VAT, n.TTC
		out[i] = l
	}
	return out
}

func (lines DocumentLines) Column() datatypes.JSONType[DocumentLines] {
	return datatypes.NewJSONType(lines)
}

// buildDocumentLines snapshots catalog articles and sites and computes the line amounts.
func buildDocumentLines(tx *gorm.DB, client *Client, inputs []NewDocumentLine) (DocumentLines, error) {
	lines := make(DocumentLines, 0, len(inputs))
	for i, in := range inputs {
		line := DocumentLine{
			Position:    i + 1,
			SiteId:      in.SiteId,
			ArticleId:   in.ArticleId,
			Designation: in.Designation,
			Unit:        in.Unit,
			Quantity:    in.Quantity,
		}
		price := decimal.Zero
		rate := decimal.Zero
		if client != nil {
			rate = client.DefaultVatRate
		}

		if in.ArticleId != nil {
			var article CatalogArticle
			if err := tx.First(&article, *in.ArticleId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("line %d: %w (id %d)", i+1, ErrCatalogArticleNotFound, *in.ArticleId)
				}
				return nil, err
			}
			line.ArticleCode = article.Code
			if line.Designation == "" {
				line.Designation = article.Label
			}
			if line.Unit == "" {
				line.Unit = article.Unit
			}
			price = article.UnitPrice
			rate = article.VatRate
		}
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		if in.VatRate != nil {
			rate = *in.VatRate
		}

		if in.SiteId != nil {
			var site Site
			if err := tx.First(&site, *in.SiteId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("line %d: %w (id %d)", i+1, ErrSiteNotFound, *in.SiteId)
				}
				return nil, err
			}
			if client != nil && site.ClientId != client.ID {
				return nil, ErrSiteNotOfClient
			}
			line.SiteName = site.Name
		}

		if line.Designation == "" {
			return nil, ErrDesignationEmpty
		}
		if line.Quantity.IsNegative() || price.IsNegative() || rate.IsNegative() {
			return nil, ErrInvalidQuantity
		}
		line.UnitPrice = price
		line.VatRate = rate
		amounts := utils.CalculateLineAmounts(line.Quantity, price, rate)
		line.AmountHT, line.AmountVAT, line.AmountTTC = amounts.HT, amounts.VAT, amounts.TTC
		lines = append(lines, line)
	}
	return lines, nil
}

// dueDateFor adds the payment terms to the issue date.
func dueDateFor(issueDate time.Time, termsDays int) time.Time {
	if termsDays <= 0 {
		termsDays = config.DefaultPaymentTermsDays()
	}
	return utils.TruncateToDay(issueDate).AddDate(0, 0, termsDays)
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	return err
}
