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
	ErrArticleNotFound       = errors.New("stock article not found")
	ErrInvalidMovementType   = errors.New("invalid stock movement type")
	ErrInvalidMovementQty    = errors.New("movement quantity must be greater than zero")
	ErrDepotRequired         = errors.New("depot is required for this movement type")
	ErrSameDepot             = errors.New("transfer needs two different depots")
	ErrStockArticleCodeTaken = errors.New("a stock article with this code already exists")
)

// DepotQuantities maps a depot name to the quantity held there.
type DepotQuantities map[string]decimal.Decimal

func (d DepotQuantities) Total() decimal.Decimal {
	total := decimal.Zero
	for _, q := range d {
		total = total.Add(q)
	}
	return total
}

func (d DepotQuantities) Depots() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d DepotQuantities) clone() DepotQuantities {
	out := make(DepotQuantities, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

type StockArticle struct {
	ID             int                                 `gorm:"primary_key" json:"id"`
	Code           string                              `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Label          string                              `gorm:"size:255;not null" json:"libelle"`
	Unit           string                              `gorm:"size:20" json:"unite"`
	PurchasePrice  decimal.Decimal                     `gorm:"type:decimal(20,2);default:0" json:"prix_achat"`
	AlertThreshold decimal.Decimal                     `gorm:"type:decimal(20,4);default:0" json:"seuil_alerte"`
	Depots         datatypes.JSONType[DepotQuantities] `gorm:"not null" json:"stock_par_depot"`
	TotalQuantity  decimal.Decimal                     `gorm:"type:decimal(20,4);default:0;index" json:"stock_total"`
	IsActive       *bool                               `gorm:"not null" json:"actif"`
	CreatedAt      time.Time                           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                           `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockMovement is append-only; corrections are new movements.
type StockMovement struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ArticleId   int             `gorm:"index;not null" json:"article_id"`
	Type        MovementType    `gorm:"size:20;not null;index" json:"type"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantite"`
	SourceDepot string          `gorm:"size:50" json:"depot_source"`
	DestDepot   string          `gorm:"size:50" json:"depot_destination"`
	TotalBefore decimal.Decimal `gorm:"type:decimal(20,4)" json:"stock_avant"`
	TotalAfter  decimal.Decimal `gorm:"type:decimal(20,4)" json:"stock_apres"`
	Source      MovementSource  `gorm:"size:30;not null;index:idx_stock_movement_source" json:"origine"`
	SourceId    *int            `gorm:"index:idx_stock_movement_source" json:"origine_id"`
	Reason      string          `gorm:"size:255" json:"motif"`
	Date        time.Time       `gorm:"not null" json:"date"`
	CreatedBy   string          `gorm:"size:100" json:"cree_par"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockArticle struct {
	Code           string          `json:"code" validate:"required,max=50"`
	Label          string          `json:"libelle" validate:"required,max=255"`
	Unit           string          `json:"unite"`
	PurchasePrice  decimal.Decimal `json:"prix_achat"`
	AlertThreshold decimal.Decimal `json:"seuil_alerte"`
	Depots         DepotQuantities `json:"stock_par_depot"`
}

type NewStockMovement struct {
	ArticleId   int             `json:"article_id" validate:"required"`
	Type        MovementType    `json:"type" validate:"required"`
	Quantity    decimal.Decimal `json:"quantite"`
	SourceDepot string          `json:"depot_source"`
	DestDepot   string          `json:"depot_destination"`
	Reason      string          `json:"motif"`
	Date        time.Time       `json:"date"`
}

type StockMovementFilter struct {
	ArticleId int            `form:"article_id"`
	Type      MovementType   `form:"type"`
	Source    MovementSource `form:"origine"`
	SourceId  int            `form:"origine_id"`
}

func (StockArticle) TableName() string {
	return "articles_stock"
}

func (StockMovement) TableName() string {
	return "mouvements_stock"
}

// BeforeSave keeps the total equal to the sum of the depot map.
func (a *StockArticle) BeforeSave(_ *gorm.DB) error {
	if a == nil {
		return nil
	}
	a.TotalQuantity = a.Depots.Data().Total()
	if a.IsActive == nil {
		a.IsActive = utils.NewTrue()
	}
	return nil
}

func (a StockArticle) Quantities() DepotQuantities {
	q := a.Depots.Data()
	if q == nil {
		return DepotQuantities{}
	}
	return q
}

func (a StockArticle) BelowThreshold() bool {
	return a.AlertThreshold.IsPositive() && a.TotalQuantity.LessThanOrEqual(a.AlertThreshold)
}

func (input *NewStockMovement) normalize() error {
	input.SourceDepot = strings.TrimSpace(input.SourceDepot)
	input.DestDepot = strings.TrimSpace(input.DestDepot)
	switch input.Type {
	case MovementTypeIn, MovementTypeReturn:
		if input.DestDepot == "" {
			return ErrDepotRequired
		}
	case MovementTypeOut:
		if input.SourceDepot == "" {
			return ErrDepotRequired
		}
	case MovementTypeTransfer:
		if input.SourceDepot == "" || input.DestDepot == "" {
			return ErrDepotRequired
		}
		if input.SourceDepot == input.DestDepot {
			return ErrSameDepot
		}
	case MovementTypeAdjustment:
		if input.DestDepot == "" {
			input.DestDepot = input.SourceDepot
		}
		if input.DestDepot == "" {
			return ErrDepotRequired
		}
		if input.Quantity.IsNegative() {
			return ErrInvalidMovementQty
		}
		return nil
	default:
		return ErrInvalidMovementType
	}
	if !input.Quantity.IsPositive() {
		return ErrInvalidMovementQty
	}
	return nil
}

// nextQuantities computes the depot map after the movement. A sortie may leave a depot negative.
func nextQuantities(current DepotQuantities, input *NewStockMovement) (DepotQuantities, []string) {
	next := current.clone()
	var negative []string
	take := func(depot string) {
		next[depot] = next[depot].Sub(input.Quantity)
		if next[depot].IsNegative() {
			negative = append(negative, depot)
		}
	}
	switch input.Type {
	case MovementTypeIn, MovementTypeReturn:
		next[input.DestDepot] = next[input.DestDepot].Add(input.Quantity)
	case MovementTypeOut:
		take(input.SourceDepot)
	case MovementTypeTransfer:
		take(input.SourceDepot)
		next[input.DestDepot] = next[input.DestDepot].Add(input.Quantity)
	case MovementTypeAdjustment:
		next[input.DestDepot] = input.Quantity
	}
	return next, negative
}

// ApplyStockMovement updates the article and records the movement in one transaction.
func ApplyStockMovement(ctx context.Context, input *NewStockMovement) (*StockMovement, *StockArticle, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, err
	}
	db := config.GetDB()
	var movement *StockMovement
	var article *StockArticle
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		movement, article, err = ApplyStockMovementTx(ctx, tx, input, MovementSourceManual, nil)
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Stock", "ApplyStockMovement", "apply movement", input, err)
		return nil, nil, err
	}
	return movement, article, nil
}

func ApplyStockMovementTx(ctx context.Context, tx *gorm.DB, input *NewStockMovement, source MovementSource, sourceId *int) (*StockMovement, *StockArticle, error) {
	if err := input.normalize(); err != nil {
		return nil, nil, err
	}
	var article StockArticle
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&article, input.ArticleId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: %d", ErrArticleNotFound, input.ArticleId)
		}
		return nil, nil, err
	}

	before := article.TotalQuantity
	next, negative := nextQuantities(article.Quantities(), input)
	if len(negative) > 0 {
		config.GetLogger().WithFields(map[string]interface{}{
			"article": article.Code,
			"depots":  negative,
			"type":    input.Type,
		}).Warn("stock goes negative")
	}
	article.Depots = datatypes.NewJSONType(next)
	article.TotalQuantity = next.Total()
	if err := tx.Model(&article).Select("depots", "total_quantity", "updated_at").Updates(&article).Error; err != nil {
		return nil, nil, err
	}

	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}
	movement := StockMovement{
		ArticleId:   article.ID,
		Type:        input.Type,
		Quantity:    input.Quantity,
		SourceDepot: input.SourceDepot,
		DestDepot:   input.DestDepot,
		TotalBefore: before,
		TotalAfter:  article.TotalQuantity,
		Source:      source,
		SourceId:    sourceId,
		Reason:      input.Reason,
		Date:        date,
		CreatedBy:   utils.UsernameOrSystem(ctx),
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, nil, err
	}
	return &movement, &article, nil
}

func CreateStockArticle(ctx context.Context, input *NewStockArticle) (*StockArticle, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	exists, err := stockArticleCodeTaken(db, code, 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrStockArticleCodeTaken
	}
	depots := input.Depots
	if depots == nil {
		depots = DepotQuantities{}
	}
	article := StockArticle{
		Code:           code,
		Label:          input.Label,
		Unit:           input.Unit,
		PurchasePrice:  utils.RoundCents(input.PurchasePrice),
		AlertThreshold: input.AlertThreshold,
		Depots:         datatypes.NewJSONType(depots),
		IsActive:       utils.NewTrue(),
	}
	if err := db.Create(&article).Error; err != nil {
		config.LogError(config.GetLogger(), "Stock", "CreateStockArticle", "create article", code, err)
		return nil, err
	}
	return &article, nil
}

// UpdateStockArticle edits the descriptive fields; quantities only change through movements.
func UpdateStockArticle(ctx context.Context, id int, input *NewStockArticle) (*StockArticle, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	var article StockArticle
	if err := db.First(&article, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	exists, err := stockArticleCodeTaken(db, code, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrStockArticleCodeTaken
	}
	article.Code = code
	article.Label = input.Label
	article.Unit = input.Unit
	article.PurchasePrice = utils.RoundCents(input.PurchasePrice)
	article.AlertThreshold = input.AlertThreshold
	err = db.Model(&article).Select("code", "label", "unit", "purchase_price", "alert_threshold", "updated_at").Updates(&article).Error
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func stockArticleCodeTaken(db *gorm.DB, code string, exceptId int) (bool, error) {
	var count int64
	err := db.Model(&StockArticle{}).Where("code = ? AND id <> ?", code, exceptId).Count(&count).Error
	return count > 0, err
}

func GetStockArticle(ctx context.Context, id int) (*StockArticle, error) {
	return utils.FetchModel[StockArticle](ctx, id)
}

func ListStockArticles(ctx context.Context, search string) ([]*StockArticle, error) {
	db := config.GetDB().WithContext(ctx)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		db = db.Where("code LIKE ? OR label LIKE ?", like, like)
	}
	var results []*StockArticle
	if err := db.Order("code").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListLowStockArticles returns active articles at or below their alert threshold.
func ListLowStockArticles(ctx context.Context) ([]*StockArticle, error) {
	var results []*StockArticle
	err := config.GetDB().WithContext(ctx).
		Where("is_active = ? AND alert_threshold > 0 AND total_quantity <= alert_threshold", true).
		Order("code").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ListStockMovements(ctx context.Context, filter StockMovementFilter) ([]*StockMovement, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.ArticleId > 0 {
		db = db.Where("article_id = ?", filter.ArticleId)
	}
	if filter.Type != "" {
		db = db.Where("type = ?", filter.Type)
	}
	if filter.Source != "" {
		db = db.Where("source = ?", filter.Source)
	}
	if filter.SourceId > 0 {
		db = db.Where("source_id = ?", filter.SourceId)
	}
	var results []*StockMovement
	if err := db.Order("date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
