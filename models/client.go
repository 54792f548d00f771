package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"gorm.io/gorm"
)

var (
	ErrClientExists   = errors.New("a client with this email already exists")
	ErrInvalidEmail   = errors.New("invalid email")
	ErrClientInactive = errors.New("client is inactive")
)

type Client struct {
	ID               string          `gorm:"primaryKey;size:191" json:"id"`
	Company          string          `gorm:"size:255;not null" json:"societe"`
	ContactName      string          `gorm:"size:255" json:"contact"`
	Email            string          `gorm:"size:191;not null;uniqueIndex" json:"email"`
	Phone            string          `gorm:"size:30" json:"telephone"`
	BillingAddress   string          `gorm:"size:255" json:"adresse_facturation"`
	PostalCode       string          `gorm:"size:10" json:"code_postal"`
	City             string          `gorm:"size:100" json:"ville"`
	Siret            string          `gorm:"size:14" json:"siret"`
	PaymentTermsDays int             `gorm:"not null;default:30" json:"delai_paiement_jours"`
	DefaultVatRate   decimal.Decimal `gorm:"type:decimal(5,2);default:20" json:"taux_tva_defaut"`
	IsActive         *bool           `gorm:"not null;default:true" json:"actif"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Company          string           `json:"societe" validate:"required"`
	ContactName      string           `json:"contact"`
	Email            string           `json:"email" validate:"required,email"`
	Phone            string           `json:"telephone"`
	BillingAddress   string           `json:"adresse_facturation"`
	PostalCode       string           `json:"code_postal"`
	City             string           `json:"ville"`
	Siret            string           `json:"siret" validate:"omitempty,numeric,len=14"`
	PaymentTermsDays int              `json:"delai_paiement_jours" validate:"gte=0,lte=120"`
	DefaultVatRate   *decimal.Decimal `json:"taux_tva_defaut"`
}

type ClientFilter struct {
	Search     string `form:"q"`
	ActiveOnly bool   `form:"actifs"`
}

func (Client) TableName() string {
	return "clients"
}

func (c Client) Active() bool {
	return c.IsActive == nil || *c.IsActive
}

func (input *NewClient) normalize() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if !utils.IsValidEmail(input.Email) {
		return ErrInvalidEmail
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

func (input *NewClient) apply(c *Client) {
	c.Company = input.Company
	c.ContactName = input.ContactName
	c.Email = input.Email
	c.Phone = input.Phone
	c.BillingAddress = input.BillingAddress
	c.PostalCode = input.PostalCode
	c.City = input.City
	c.Siret = input.Siret
	c.PaymentTermsDays = input.PaymentTermsDays
	if input.DefaultVatRate != nil {
		c.DefaultVatRate = *input.DefaultVatRate
	} else if c.DefaultVatRate.IsZero() {
		c.DefaultVatRate = decimal.NewFromInt(20)
	}
}

// CreateClient derives the client id from the email address.
func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	db := config.GetDB()

	client := Client{ID: utils.SlugFromEmail(input.Email), IsActive: utils.NewTrue()}
	input.apply(&client)

	exists, err := utils.ResourceExists[Client](db.WithContext(ctx), client.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrClientExists
	}
	if err := db.WithContext(ctx).Create(&client).Error; err != nil {
		config.LogError(config.GetLogger(), "Client", "CreateClient", "create client", client.ID, err)
		return nil, err
	}
	return &client, nil
}

// UpdateClient keeps the id even when the email changes.
func UpdateClient(ctx context.Context, id string, input *NewClient) (*Client, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	db := config.GetDB()

	var client Client
	if err := db.WithContext(ctx).First(&client, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if input.Email != client.Email {
		var count int64
		if err := db.WithContext(ctx).Model(&Client{}).Where("email = ? AND id <> ?", input.Email, id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrClientExists
		}
	}
	input.apply(&client)
	if err := db.WithContext(ctx).Save(&client).Error; err != nil {
		config.LogError(config.GetLogger(), "Client", "UpdateClient", "save client", id, err)
		return nil, err
	}
	if err := utils.RemoveRedisItem[Client](id); err != nil {
		return nil, err
	}
	return &client, nil
}

// SetClientActive is the only way to retire a client; clients are never deleted.
func SetClientActive(ctx context.Context, id string, active bool) (*Client, error) {
	db := config.GetDB()
	var client Client
	if err := db.WithContext(ctx).First(&client, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	client.IsActive = &active
	if err := db.WithContext(ctx).Model(&client).Update("is_active", active).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Client](id); err != nil {
		return nil, err
	}
	return &client, nil
}

func GetClient(ctx context.Context, id string) (*Client, error) {
	return GetResource[Client](ctx, id)
}

func ListClients(ctx context.Context, filter ClientFilter) ([]*Client, error) {
	db := config.GetDB().WithContext(ctx)
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + s + "%"
		db = db.Where("company LIKE ? OR contact_name LIKE ? OR email LIKE ?", like, like, like)
	}
	if filter.ActiveOnly {
		db = db.Where("is_active = ?", true)
	}
	var results []*Client
	if err := db.Order("company").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// activeClient loads the client inside tx and refuses inactive ones.
func activeClient(tx *gorm.DB, id string) (*Client, error) {
	var client Client
	if err := tx.First(&client, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if !client.Active() {
		return nil, ErrClientInactive
	}
	return &client, nil
}
