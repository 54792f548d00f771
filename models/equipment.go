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
	ErrEquipmentCodeTaken       = errors.New("an equipment with this code already exists")
	ErrInvalidEquipmentType     = errors.New("invalid equipment type")
	ErrInvalidInterventionType  = errors.New("invalid intervention type")
	ErrInterventionPartQuantity = errors.New("part quantity must be greater than zero")
)

type Equipment struct {
	ID              int           `gorm:"primary_key" json:"id"`
	Code            string        `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Type            EquipmentType `gorm:"size:20;not null" json:"type"`
	Label           string        `gorm:"size:255;not null" json:"libelle"`
	Registration    string        `gorm:"size:30" json:"immatriculation"`
	ServiceDate     *time.Time    `json:"date_mise_en_service"`
	Depot           string        `gorm:"size:50" json:"depot"`
	VGPPeriodMonths int           `gorm:"not null" json:"periodicite_vgp_mois"`
	LastVGPDate     *time.Time    `json:"derniere_vgp"`
	IsActive        *bool         `gorm:"not null" json:"actif"`
	Notes           string        `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type InterventionPart struct {
	StockArticleId int             `json:"article_stock_id"`
	Depot          string          `json:"depot"`
	Quantity       decimal.Decimal `json:"quantite"`
	MovementId     int             `json:"mouvement_id"`
}

type Intervention struct {
	ID          int                                    `gorm:"primary_key" json:"id"`
	EquipmentId int                                    `gorm:"index;not null" json:"equipement_id"`
	Type        InterventionType                       `gorm:"size:20;not null" json:"type"`
	Date        time.Time                              `gorm:"not null;index" json:"date"`
	Technician  string                                 `gorm:"size:100" json:"technicien"`
	Description string                                 `gorm:"type:text" json:"description"`
	Cost        decimal.Decimal                        `gorm:"type:decimal(20,2);default:0" json:"cout"`
	Mileage     int                                    `gorm:"default:0" json:"kilometrage"`
	Parts       datatypes.JSONType[[]InterventionPart] `json:"pieces"`
	Photos      []InterventionPhoto                    `gorm:"foreignKey:InterventionId" json:"photos"`
	CreatedBy   string                                 `gorm:"size:100" json:"cree_par"`
	CreatedAt   time.Time                              `gorm:"autoCreateTime" json:"created_at"`
}

type InterventionPhoto struct {
	ID             int       `gorm:"primary_key" json:"id"`
	InterventionId int       `gorm:"index;not null" json:"intervention_id"`
	Path           string    `gorm:"size:255;not null" json:"chemin"`
	ThumbnailPath  string    `gorm:"size:255" json:"miniature"`
	ContentType    string    `gorm:"size:50" json:"content_type"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewEquipment struct {
	Code            string        `json:"code" validate:"required,max=50"`
	Type            EquipmentType `json:"type" validate:"required"`
	Label           string        `json:"libelle" validate:"required,max=255"`
	Registration    string        `json:"immatriculation"`
	ServiceDate     *time.Time    `json:"date_mise_en_service"`
	Depot           string        `json:"depot"`
	VGPPeriodMonths int           `json:"periodicite_vgp_mois" validate:"gte=0"`
	LastVGPDate     *time.Time    `json:"derniere_vgp"`
	Notes           string        `json:"notes"`
}

type NewInterventionPart struct {
	StockArticleId int             `json:"article_stock_id" validate:"required"`
	Depot          string          `json:"depot"`
	Quantity       decimal.Decimal `json:"quantite"`
}

type NewIntervention struct {
	Type        InterventionType      `json:"type" validate:"required"`
	Date        time.Time             `json:"date"`
	Technician  string                `json:"technicien"`
	Description string                `json:"description"`
	Cost        decimal.Decimal       `json:"cout"`
	Mileage     int                   `json:"kilometrage" validate:"gte=0"`
	Parts       []NewInterventionPart `json:"pieces" validate:"dive"`
}

// EquipmentVGPStatus is an equipment with its next periodic inspection date.
type EquipmentVGPStatus struct {
	Equipment *Equipment `json:"equipement"`
	NextVGP   time.Time  `json:"prochaine_vgp"`
	Overdue   bool       `json:"en_retard"`
}

func (Equipment) TableName() string {
	return "equipements"
}

func (Intervention) TableName() string {
	return "interventions_equipement"
}

func (InterventionPhoto) TableName() string {
	return "photos_interventions"
}

func (t EquipmentType) IsValid() bool {
	switch t {
	case EquipmentTypeVehicle, EquipmentTypeLift, EquipmentTypeRobot, EquipmentTypeTool:
		return true
	}
	return false
}

// NextVGPDate counts the period from the last inspection, or from the service date when none was done.
// ok is false when the equipment is not subject to inspection.
func (e Equipment) NextVGPDate() (next time.Time, ok bool) {
	if e.VGPPeriodMonths <= 0 {
		return time.Time{}, false
	}
	var from *time.Time
	switch {
	case e.LastVGPDate != nil:
		from = e.LastVGPDate
	case e.ServiceDate != nil:
		from = e.ServiceDate
	default:
		return time.Time{}, true
	}
	return utils.AddMonthsClamped(*from, e.VGPPeriodMonths, from.Day()), true
}

func (input *NewEquipment) apply(e *Equipment) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Type.IsValid() {
		return ErrInvalidEquipmentType
	}
	e.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	e.Type = input.Type
	e.Label = input.Label
	e.Registration = strings.ToUpper(strings.TrimSpace(input.Registration))
	e.ServiceDate = input.ServiceDate
	e.Depot = strings.TrimSpace(input.Depot)
	e.VGPPeriodMonths = input.VGPPeriodMonths
	e.LastVGPDate = input.LastVGPDate
	e.Notes = input.Notes
	return nil
}

func equipmentCodeTaken(db *gorm.DB, code string, exceptId int) (bool, error) {
	var count int64
	err := db.Model(&Equipment{}).Where("code = ? AND id <> ?", code, exceptId).Count(&count).Error
	return count > 0, err
}

func CreateEquipment(ctx context.Context, input *NewEquipment) (*Equipment, error) {
	equipment := Equipment{IsActive: utils.NewTrue()}
	if err := input.apply(&equipment); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	taken, err := equipmentCodeTaken(db, equipment.Code, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEquipmentCodeTaken
	}
	if err := db.Create(&equipment).Error; err != nil {
		config.LogError(config.GetLogger(), "Equipment", "CreateEquipment", "create", equipment.Code, err)
		return nil, err
	}
	return &equipment, nil
}

func UpdateEquipment(ctx context.Context, id int, input *NewEquipment) (*Equipment, error) {
	db := config.GetDB().WithContext(ctx)
	var equipment Equipment
	if err := db.First(&equipment, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if err := input.apply(&equipment); err != nil {
		return nil, err
	}
	taken, err := equipmentCodeTaken(db, equipment.Code, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEquipmentCodeTaken
	}
	if err := db.Save(&equipment).Error; err != nil {
		return nil, err
	}
	return &equipment, nil
}

func SetEquipmentActive(ctx context.Context, id int, active bool) (*Equipment, error) {
	db := config.GetDB().WithContext(ctx)
	var equipment Equipment
	if err := db.First(&equipment, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	equipment.IsActive = &active
	if err := db.Model(&equipment).Update("is_active", active).Error; err != nil {
		return nil, err
	}
	return &equipment, nil
}

func GetEquipment(ctx context.Context, id int) (*Equipment, error) {
	return utils.FetchModel[Equipment](ctx, id)
}

func ListEquipments(ctx context.Context, equipmentType EquipmentType) ([]*Equipment, error) {
	db := config.GetDB().WithContext(ctx)
	if equipmentType != "" {
		db = db.Where("type = ?", equipmentType)
	}
	var results []*Equipment
	if err := db.Order("code").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// CreateIntervention logs an intervention; each part used becomes a sortie movement in the same transaction.
func CreateIntervention(ctx context.Context, equipmentId int, input *NewIntervention) (*Intervention, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Type.IsValid() {
		return nil, ErrInvalidInterventionType
	}
	for _, p := range input.Parts {
		if !p.Quantity.IsPositive() {
			return nil, ErrInterventionPartQuantity
		}
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}
	date = utils.TruncateToDay(date)

	db := config.GetDB()
	intervention := Intervention{
		EquipmentId: equipmentId,
		Type:        input.Type,
		Date:        date,
		Technician:  input.Technician,
		Description: input.Description,
		Cost:        utils.RoundCents(input.Cost),
		Mileage:     input.Mileage,
		CreatedBy:   utils.UsernameOrSystem(ctx),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var equipment Equipment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&equipment, equipmentId).Error; err != nil {
			return notFoundOr(err)
		}
		if err := tx.Omit("Photos").Create(&intervention).Error; err != nil {
			return err
		}

		parts := make([]InterventionPart, 0, len(input.Parts))
		for _, p := range input.Parts {
			depot := strings.TrimSpace(p.Depot)
			if depot == "" {
				depot = equipment.Depot
			}
			movement, _, err := ApplyStockMovementTx(ctx, tx, &NewStockMovement{
				ArticleId:   p.StockArticleId,
				Type:        MovementTypeOut,
				Quantity:    p.Quantity,
				SourceDepot: depot,
				Reason:      fmt.Sprintf("Intervention %s %s", intervention.Type, equipment.Code),
				Date:        date,
			}, MovementSourceIntervention, &intervention.ID)
			if err != nil {
				return err
			}
			parts = append(parts, InterventionPart{
				StockArticleId: p.StockArticleId,
				Depot:          depot,
				Quantity:       p.Quantity,
				MovementId:     movement.ID,
			})
		}
		if len(parts) > 0 {
			intervention.Parts = datatypes.NewJSONType(parts)
			if err := tx.Model(&intervention).Update("parts", intervention.Parts).Error; err != nil {
				return err
			}
		}

		if intervention.Type == InterventionTypeVGP &&
			(equipment.LastVGPDate == nil || date.After(*equipment.LastVGPDate)) {
			if err := tx.Model(&equipment).Update("last_vgp_date", date).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Equipment", "CreateIntervention", "create intervention", equipmentId, err)
		return nil, err
	}
	return &intervention, nil
}

func GetIntervention(ctx context.Context, id int) (*Intervention, error) {
	return utils.FetchModel[Intervention](ctx, id, "Photos")
}

func ListInterventions(ctx context.Context, equipmentId int) ([]*Intervention, error) {
	var results []*Intervention
	err := config.GetDB().WithContext(ctx).Preload("Photos").
		Where("equipment_id = ?", equipmentId).
		Order("date DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func AddInterventionPhoto(ctx context.Context, interventionId int, path string, thumbnailPath string, contentType string) (*InterventionPhoto, error) {
	db := config.GetDB().WithContext(ctx)
	exists, err := utils.ResourceExists[Intervention](db, interventionId)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, utils.ErrorRecordNotFound
	}
	photo := InterventionPhoto{
		InterventionId: interventionId,
		Path:           path,
		ThumbnailPath:  thumbnailPath,
		ContentType:    contentType,
	}
	if err := db.Create(&photo).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}

// ListEquipmentDueForVGP returns active equipment whose next inspection falls within withinDays of asOf.
func ListEquipmentDueForVGP(ctx context.Context, asOf time.Time, withinDays int) ([]EquipmentVGPStatus, error) {
	var equipments []*Equipment
	err := config.GetDB().WithContext(ctx).
		Where("is_active = ? AND vgp_period_months > 0", true).
		Find(&equipments).Error
	if err != nil {
		return nil, err
	}
	asOf = utils.TruncateToDay(asOf)
	limit := asOf.AddDate(0, 0, withinDays)
	results := make([]EquipmentVGPStatus, 0)
	for _, e := range equipments {
		next, ok := e.NextVGPDate()
		if !ok {
			continue
		}
		if next.IsZero() {
			next = asOf
		}
		if next.After(limit) {
			continue
		}
		results = append(results, EquipmentVGPStatus{
			Equipment: e,
			NextVGP:   next,
			Overdue:   next.Before(asOf),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].NextVGP.Before(results[j].NextVGP)
	})
	return results, nil
}
