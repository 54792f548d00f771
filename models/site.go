package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
)

// Site is an installation address of a client.
type Site struct {
	ID          int              `gorm:"primary_key" json:"id"`
	ClientId    string           `gorm:"size:191;index;not null" json:"client_id"`
	Name        string           `gorm:"size:255;not null" json:"nom"`
	Address     string           `gorm:"size:255" json:"adresse"`
	PostalCode  string           `gorm:"size:10" json:"code_postal"`
	City        string           `gorm:"size:100" json:"ville"`
	Latitude    *decimal.Decimal `gorm:"type:decimal(10,7)" json:"latitude"`
	Longitude   *decimal.Decimal `gorm:"type:decimal(10,7)" json:"longitude"`
	SurfaceM2   decimal.Decimal  `gorm:"type:decimal(10,2);default:0" json:"surface_m2"`
	SlopeDegree decimal.Decimal  `gorm:"type:decimal(5,2);default:0" json:"inclinaison"`
	Access      string           `gorm:"type:text" json:"acces"`
	Phone       string           `gorm:"size:30" json:"telephone"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSite struct {
	ClientId    string           `json:"client_id" validate:"required"`
	Name        string           `json:"nom" validate:"required"`
	Address     string           `json:"adresse"`
	PostalCode  string           `json:"code_postal"`
	City        string           `json:"ville"`
	Latitude    *decimal.Decimal `json:"latitude"`
	Longitude   *decimal.Decimal `json:"longitude"`
	SurfaceM2   decimal.Decimal  `json:"surface_m2"`
	SlopeDegree decimal.Decimal  `json:"inclinaison"`
	Access      string           `json:"acces"`
	Phone       string           `json:"telephone"`
}

func (Site) TableName() string {
	return "sites"
}

func (input *NewSite) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if _, err := GetClient(ctx, input.ClientId); err != nil {
		return err
	}
	if input.Phone != "" {
		phone, err := utils.FormatPhoneNumber(input.Phone, utils.CountryCode)
		if err != nil {
			return err
		}
		input.Phone = phone
	}
	return nil
}

func (input *NewSite) apply(s *Site) {
	s.ClientId = input.ClientId
	s.Name = input.Name
	s.Address = input.Address
	s.PostalCode = input.PostalCode
	s.City = input.City
	s.Latitude = input.Latitude
	s.Longitude = input.Longitude
	s.SurfaceM2 = input.SurfaceM2
	s.SlopeDegree = input.SlopeDegree
	s.Access = input.Access
	s.Phone = input.Phone
}

func CreateSite(ctx context.Context, input *NewSite) (*Site, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	var site Site
	input.apply(&site)
	if err := config.GetDB().WithContext(ctx).Create(&site).Error; err != nil {
		config.LogError(config.GetLogger(), "Site", "CreateSite", "create site", input, err)
		return nil, err
	}
	return &site, nil
}

func UpdateSite(ctx context.Context, id int, input *NewSite) (*Site, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	var site Site
	if err := db.First(&site, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	input.apply(&site)
	if err := db.Save(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

func DeleteSite(ctx context.Context, id int) (*Site, error) {
	db := config.GetDB().WithContext(ctx)
	var site Site
	if err := db.First(&site, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if err := db.Delete(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

func ListSites(ctx context.Context, clientId string) ([]*Site, error) {
	db := config.GetDB().WithContext(ctx)
	if clientId != "" {
		db = db.Where("client_id = ?", clientId)
	}
	var results []*Site
	if err := db.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
