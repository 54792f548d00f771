package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"gorm.io/datatypes"
)

var (
	ErrInvalidHorizon      = errors.New("projection horizon must be between 1 and 50 years")
	ErrInvalidLoan         = errors.New("loan needs a positive principal and duration")
	ErrInvalidInvestment   = errors.New("investment needs a positive amount and depreciation period")
	ErrInvalidProjectionYr = errors.New("projection line end year is before its start year")
)

const DefaultProjectionHorizon = 20

// ProjectionLine is a yearly revenue or cost. Years are 1-based projection years; 0 leaves the bound open.
type ProjectionLine struct {
	Label     string          `json:"libelle"`
	Amount    decimal.Decimal `json:"montant_annuel"`
	Indexed   bool            `json:"indexe_inflation"`
	StartYear int             `json:"annee_debut"`
	EndYear   int             `json:"annee_fin"`
}

type ProjectionInvestment struct {
	Label             string          `json:"libelle"`
	Amount            decimal.Decimal `json:"montant"`
	Year              int             `json:"annee"`
	DepreciationYears int             `json:"duree_amortissement"`
}

type ProjectionLoan struct {
	Label      string          `json:"libelle"`
	Principal  decimal.Decimal `json:"capital"`
	AnnualRate decimal.Decimal `json:"taux_annuel"`
	Years      int             `json:"duree_annees"`
	StartYear  int             `json:"annee_debut"`
}

// ProjectionParams drives the multi-year simulation. Rates are percentages.
type ProjectionParams struct {
	Horizon          int                    `json:"horizon_annees"`
	StartYear        int                    `json:"annee_calendaire_debut"`
	InflationRate    decimal.Decimal        `json:"taux_inflation"`
	Revenues         []ProjectionLine       `json:"recettes"`
	Costs            []ProjectionLine       `json:"charges"`
	Investments      []ProjectionInvestment `json:"investissements"`
	Loans            []ProjectionLoan       `json:"emprunts"`
	ISReducedRate    decimal.Decimal        `json:"taux_is_reduit"`
	ISReducedCeiling decimal.Decimal        `json:"plafond_is_reduit"`
	ISNormalRate     decimal.Decimal        `json:"taux_is_normal"`
	OpeningCash      decimal.Decimal        `json:"tresorerie_initiale"`
}

// WithDefaults fills the French corporate tax defaults and the horizon.
func (p ProjectionParams) WithDefaults() ProjectionParams {
	if p.Horizon == 0 {
		p.Horizon = DefaultProjectionHorizon
	}
	if p.StartYear == 0 {
		p.StartYear = time.Now().Year()
	}
	if p.ISReducedRate.IsZero() && p.ISNormalRate.IsZero() {
		p.ISReducedRate = decimal.NewFromInt(15)
		p.ISNormalRate = decimal.NewFromInt(25)
		if p.ISReducedCeiling.IsZero() {
			p.ISReducedCeiling = decimal.NewFromInt(42500)
		}
	}
	return p
}

func (p ProjectionParams) Validate() error {
	if p.Horizon < 1 || p.Horizon > 50 {
		return ErrInvalidHorizon
	}
	for _, lines := range [][]ProjectionLine{p.Revenues, p.Costs} {
		for _, l := range lines {
			if l.EndYear != 0 && l.EndYear < l.StartYear {
				return ErrInvalidProjectionYr
			}
		}
	}
	for _, l := range p.Loans {
		if !l.Principal.IsPositive() || l.Years <= 0 || l.AnnualRate.IsNegative() {
			return ErrInvalidLoan
		}
	}
	for _, inv := range p.Investments {
		if !inv.Amount.IsPositive() || inv.DepreciationYears <= 0 {
			return ErrInvalidInvestment
		}
	}
	return nil
}

// ActiveIn reports whether the line applies in projection year y.
func (l ProjectionLine) ActiveIn(y int) bool {
	return (l.StartYear == 0 || y >= l.StartYear) && (l.EndYear == 0 || y <= l.EndYear)
}

type Project struct {
	ID          int                                  `gorm:"primary_key" json:"id"`
	Name        string                               `gorm:"size:255;not null" json:"nom"`
	Company     string                               `gorm:"size:191;not null;index" json:"societe"`
	Description string                               `gorm:"type:text" json:"description"`
	Parameters  datatypes.JSONType[ProjectionParams] `json:"parametres"`
	IsActive    *bool                                `gorm:"not null" json:"actif"`
	CreatedAt   time.Time                            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                            `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProject struct {
	Name        string           `json:"nom" validate:"required,max=255"`
	Company     string           `json:"societe" validate:"required,max=191"`
	Description string           `json:"description"`
	Parameters  ProjectionParams `json:"parametres"`
}

func (Project) TableName() string {
	return "projets"
}

func (p Project) Params() ProjectionParams {
	return p.Parameters.Data().WithDefaults()
}

func (input *NewProject) apply(p *Project) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := input.Parameters.WithDefaults().Validate(); err != nil {
		return err
	}
	p.Name = input.Name
	p.Company = strings.TrimSpace(input.Company)
	p.Description = input.Description
	p.Parameters = datatypes.NewJSONType(input.Parameters)
	return nil
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {
	project := Project{IsActive: utils.NewTrue()}
	if err := input.apply(&project); err != nil {
		return nil, err
	}
	if err := config.GetDB().WithContext(ctx).Create(&project).Error; err != nil {
		config.LogError(config.GetLogger(), "Project", "CreateProject", "create", input.Name, err)
		return nil, err
	}
	return &project, nil
}

func UpdateProject(ctx context.Context, id int, input *NewProject) (*Project, error) {
	db := config.GetDB().WithContext(ctx)
	var project Project
	if err := db.First(&project, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if err := input.apply(&project); err != nil {
		return nil, err
	}
	if err := db.Save(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func DeleteProject(ctx context.Context, id int) (*Project, error) {
	db := config.GetDB().WithContext(ctx)
	var project Project
	if err := db.First(&project, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if err := db.Model(&IntercompanyFlow{}).Where("project_id = ?", id).Update("project_id", nil).Error; err != nil {
		return nil, err
	}
	if err := db.Delete(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func GetProject(ctx context.Context, id int) (*Project, error) {
	return utils.FetchModel[Project](ctx, id)
}

func ListProjects(ctx context.Context, company string) ([]*Project, error) {
	db := config.GetDB().WithContext(ctx)
	if company != "" {
		db = db.Where("company = ?", company)
	}
	var results []*Project
	if err := db.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
