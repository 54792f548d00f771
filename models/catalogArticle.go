package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
)

var ErrArticleCodeExists = errors.New("article code already exists")

// CatalogArticle is a billable service or product of the price list.
type CatalogArticle struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Code      string          `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Label     string          `gorm:"size:255;not null" json:"libelle"`
	Unit      string          `gorm:"size:20" json:"unite"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"prix_unitaire"`
	VatRate   decimal.Decimal `gorm:"type:decimal(5,2);default:20" json:"taux_tva"`
	IsActive  *bool           `gorm:"not null;default:true" json:"actif"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCatalogArticle struct {
	Code      string          `json:"code" validate:"required,max=50"`
	Label     string          `json:"libelle" validate:"required"`
	Unit      string          `json:"unite"`
	UnitPrice decimal.Decimal `json:"prix_unitaire"`
	VatRate   decimal.Decimal `json:"taux_tva"`
	IsActive  *bool           `json:"actif"`
}

func (CatalogArticle) TableName() string {
	return "prestations_catalogue"
}

func (input *NewCatalogArticle) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.UnitPrice.IsNegative() || input.VatRate.IsNegative() {
		return ErrInvalidQuantity
	}
	return nil
}

func CreateCatalogArticle(ctx context.Context, input *NewCatalogArticle) (*CatalogArticle, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	var count int64
	if err := db.Model(&CatalogArticle{}).Where("code = ?", input.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrArticleCodeExists
	}
	article := CatalogArticle{
		Code:      input.Code,
		Label:     input.Label,
		Unit:      input.Unit,
		UnitPrice: input.UnitPrice,
		VatRate:   input.VatRate,
		IsActive:  input.IsActive,
	}
	if article.IsActive == nil {
		article.IsActive = utils.NewTrue()
	}
	if err := db.Create(&article).Error; err != nil {
		return nil, err
	}
	return &article, nil
}

// UpdateCatalogArticle changes the price list only; lines already billed keep their snapshot.
func UpdateCatalogArticle(ctx context.Context, id int, input *NewCatalogArticle) (*CatalogArticle, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	var article CatalogArticle
	if err := db.First(&article, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	var count int64
	if err := db.Model(&CatalogArticle{}).Where("code = ? AND id <> ?", input.Code, id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrArticleCodeExists
	}
	article.Code = input.Code
	article.Label = input.Label
	article.Unit = input.Unit
	article.UnitPrice = input.UnitPrice
	article.VatRate = input.VatRate
	if input.IsActive != nil {
		article.IsActive = input.IsActive
	}
	if err := db.Save(&article).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[CatalogArticle](id); err != nil {
		return nil, err
	}
	return &article, nil
}

func GetCatalogArticle(ctx context.Context, id int) (*CatalogArticle, error) {
	return GetResource[CatalogArticle](ctx, id)
}

func ListCatalogArticles(ctx context.Context, activeOnly bool) ([]*CatalogArticle, error) {
	db := config.GetDB().WithContext(ctx)
	if activeOnly {
		db = db.Where("is_active = ?", true)
	}
	var results []*CatalogArticle
	if err := db.Order("code").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
