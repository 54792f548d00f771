package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
)

var (
	ErrSameCompany     = errors.New("source and target companies must differ")
	ErrInvalidFlowYear = errors.New("flow end year is before its start year")
)

// IntercompanyFlow is a yearly amount paid by one company to another.
type IntercompanyFlow struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SourceCompany string          `gorm:"size:191;not null;index" json:"societe_source"`
	TargetCompany string          `gorm:"size:191;not null;index" json:"societe_cible"`
	ProjectId     *int            `gorm:"index" json:"projet_id"`
	Label         string          `gorm:"size:255;not null" json:"libelle"`
	AnnualAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"montant_annuel"`
	Indexed       bool            `gorm:"not null;default:false" json:"indexe_inflation"`
	StartYear     int             `gorm:"not null;default:0" json:"annee_debut"`
	EndYear       int             `gorm:"not null;default:0" json:"annee_fin"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewIntercompanyFlow struct {
	SourceCompany string          `json:"societe_source" validate:"required"`
	TargetCompany string          `json:"societe_cible" validate:"required"`
	ProjectId     *int            `json:"projet_id"`
	Label         string          `json:"libelle" validate:"required,max=255"`
	AnnualAmount  decimal.Decimal `json:"montant_annuel"`
	Indexed       bool            `json:"indexe_inflation"`
	StartYear     int             `json:"annee_debut" validate:"gte=0"`
	EndYear       int             `json:"annee_fin" validate:"gte=0"`
}

type IntercompanyFlowFilter struct {
	SourceCompany string `form:"societe_source"`
	TargetCompany string `form:"societe_cible"`
	ProjectId     int    `form:"projet_id"`
	// Company matches either side.
	Company string `form:"societe"`
}

func (IntercompanyFlow) TableName() string {
	return "flux_intersocietes"
}

// ActiveIn reports whether the flow applies in projection year y.
func (f IntercompanyFlow) ActiveIn(y int) bool {
	return (f.StartYear == 0 || y >= f.StartYear) && (f.EndYear == 0 || y <= f.EndYear)
}

func (input *NewIntercompanyFlow) apply(f *IntercompanyFlow) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	source, target := strings.TrimSpace(input.SourceCompany), strings.TrimSpace(input.TargetCompany)
	if strings.EqualFold(source, target) {
		return ErrSameCompany
	}
	if input.EndYear != 0 && input.EndYear < input.StartYear {
		return ErrInvalidFlowYear
	}
	f.SourceCompany = source
	f.TargetCompany = target
	f.ProjectId = input.ProjectId
	f.Label = input.Label
	f.AnnualAmount = utils.RoundCents(input.AnnualAmount)
	f.Indexed = input.Indexed
	f.StartYear = input.StartYear
	f.EndYear = input.EndYear
	return nil
}

func CreateIntercompanyFlow(ctx context.Context, input *NewIntercompanyFlow) (*IntercompanyFlow, error) {
	var flow IntercompanyFlow
	if err := input.apply(&flow); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	if flow.ProjectId != nil {
		exists, err := utils.ResourceExists[Project](db, *flow.ProjectId)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, utils.ErrorRecordNotFound
		}
	}
	if err := db.Create(&flow).Error; err != nil {
		return nil, err
	}
	return &flow, nil
}

func UpdateIntercompanyFlow(ctx context.Context, id int, input *NewIntercompanyFlow) (*IntercompanyFlow, error) {
	db := config.GetDB().WithContext(ctx)
	var flow IntercompanyFlow
	if err := db.First(&flow, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if err := input.apply(&flow); err != nil {
		return nil, err
	}
	if err := db.Save(&flow).Error; err != nil {
		return nil, err
	}
	return &flow, nil
}

func DeleteIntercompanyFlow(ctx context.Context, id int) (*IntercompanyFlow, error) {
	db := config.GetDB().WithContext(ctx)
	var flow IntercompanyFlow
	if err := db.First(&flow, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if err := db.Delete(&flow).Error; err != nil {
		return nil, err
	}
	return &flow, nil
}

func GetIntercompanyFlow(ctx context.Context, id int) (*IntercompanyFlow, error) {
	return utils.FetchModel[IntercompanyFlow](ctx, id)
}

// ListIntercompanyFlows filters in the query, never in memory.
func ListIntercompanyFlows(ctx context.Context, filter IntercompanyFlowFilter) ([]*IntercompanyFlow, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.SourceCompany != "" {
		db = db.Where("source_company = ?", filter.SourceCompany)
	}
	if filter.TargetCompany != "" {
		db = db.Where("target_company = ?", filter.TargetCompany)
	}
	if filter.Company != "" {
		db = db.Where("source_company = ? OR target_company = ?", filter.Company, filter.Company)
	}
	if filter.ProjectId > 0 {
		db = db.Where("project_id = ?", filter.ProjectId)
	}
	var results []*IntercompanyFlow
	if err := db.Order("source_company, target_company, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListFlowsOfProject returns the flows attached to the project or touching its company.
func ListFlowsOfProject(ctx context.Context, project *Project) ([]*IntercompanyFlow, error) {
	var results []*IntercompanyFlow
	err := config.GetDB().WithContext(ctx).
		Where("project_id = ? OR (project_id IS NULL AND (source_company = ? OR target_company = ?))",
			project.ID, project.Company, project.Company).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
