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
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnbalancedEntry   = errors.New("accounting entry is not balanced")
	ErrInvalidEntryLine  = errors.New("entry line needs an account, a direction and a positive amount")
	ErrEntryTooFewLines  = errors.New("accounting entry needs at least two lines")
	ErrEntryValidated    = errors.New("accounting entry is validated and cannot be modified")
	ErrInvalidJournal    = errors.New("journal must be VE, AC, BQ or OD")
	ErrLetteringCode     = errors.New("lettering code is required")
	ErrLetteringAccount  = errors.New("lettered lines must share the same account")
	ErrEntryLineNotFound = errors.New("accounting entry line not found")
)

type AccountingEntry struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	Numero            string                `gorm:"size:30;not null;uniqueIndex" json:"numero"`
	Date              time.Time             `gorm:"not null;index" json:"date"`
	Journal           Journal               `gorm:"size:2;not null;index" json:"journal"`
	Label             string                `gorm:"size:255;not null" json:"libelle"`
	SourceRef         string                `gorm:"size:100" json:"piece"`
	SupplierInvoiceId *int                  `gorm:"index" json:"facture_fournisseur_id"`
	Status            EntryStatus           `gorm:"size:20;not null" json:"statut"`
	TotalDebit        decimal.Decimal       `gorm:"type:decimal(20,2);default:0" json:"total_debit"`
	TotalCredit       decimal.Decimal       `gorm:"type:decimal(20,2);default:0" json:"total_credit"`
	Lines             []AccountingEntryLine `gorm:"foreignKey:EntryId" json:"lignes"`
	ValidatedAt       *time.Time            `json:"date_validation"`
	CreatedBy         string                `gorm:"size:100" json:"cree_par"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type AccountingEntryLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	EntryId       int             `gorm:"index;not null" json:"ecriture_id"`
	Position      int             `gorm:"not null" json:"position"`
	Account       string          `gorm:"size:20;not null;index" json:"compte"`
	Label         string          `gorm:"size:255" json:"libelle"`
	Direction     EntryDirection  `gorm:"size:10;not null" json:"sens"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"montant"`
	LetteringCode string          `gorm:"size:20;index" json:"lettrage"`
	LetteredAt    *time.Time      `json:"date_lettrage"`
}

type NewAccountingEntry struct {
	Date              time.Time                `json:"date"`
	Journal           Journal                  `json:"journal"`
	Label             string                   `json:"libelle" validate:"required,max=255"`
	SourceRef         string                   `json:"piece"`
	SupplierInvoiceId *int                     `json:"-"`
	Lines             []NewAccountingEntryLine `json:"lignes"`
}

type NewAccountingEntryLine struct {
	Account   string          `json:"compte"`
	Label     string          `json:"libelle"`
	Direction EntryDirection  `json:"sens"`
	Amount    decimal.Decimal `json:"montant"`
}

type AccountingEntryFilter struct {
	Journal Journal     `form:"journal"`
	Status  EntryStatus `form:"statut"`
	Account string      `form:"compte"`
	From    *time.Time  `form:"du" time_format:"2006-01-02"`
	To      *time.Time  `form:"au" time_format:"2006-01-02"`
}

func (AccountingEntry) TableName() string {
	return "ecritures_comptables"
}

func (AccountingEntryLine) TableName() string {
	return "lignes_ecritures"
}

func (e AccountingEntry) Balanced() bool {
	return e.TotalDebit.Equal(e.TotalCredit)
}

// EntryBalance sums each side rounded to the cent.
func EntryBalance(lines []NewAccountingEntryLine) (debit decimal.Decimal, credit decimal.Decimal, balanced bool) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		switch l.Direction {
		case EntryDirectionDebit:
			debit = debit.Add(l.Amount)
		case EntryDirectionCredit:
			credit = credit.Add(l.Amount)
		}
	}
	debit, credit = utils.RoundCents(debit), utils.RoundCents(credit)
	return debit, credit, debit.Equal(credit)
}

func checkEntryLines(lines []NewAccountingEntryLine) (decimal.Decimal, decimal.Decimal, error) {
	if len(lines) < 2 {
		return decimal.Zero, decimal.Zero, ErrEntryTooFewLines
	}
	for i, l := range lines {
		if strings.TrimSpace(l.Account) == "" || !l.Amount.IsPositive() ||
			(l.Direction != EntryDirectionDebit && l.Direction != EntryDirectionCredit) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("line %d: %w", i+1, ErrInvalidEntryLine)
		}
	}
	debit, credit, balanced := EntryBalance(lines)
	if !balanced {
		return debit, credit, fmt.Errorf("%w: debit %s, credit %s", ErrUnbalancedEntry, debit.StringFixed(2), credit.StringFixed(2))
	}
	return debit, credit, nil
}

func receiveEntryLines(lines []NewAccountingEntryLine, entryId int) []AccountingEntryLine {
	out := make([]AccountingEntryLine, 0, len(lines))
	for i, l := range lines {
		out = append(out, AccountingEntryLine{
			EntryId:   entryId,
			Position:  i + 1,
			Account:   strings.TrimSpace(l.Account),
			Label:     l.Label,
			Direction: l.Direction,
			Amount:    utils.RoundCents(l.Amount),
		})
	}
	return out
}

func CreateAccountingEntry(ctx context.Context, input *NewAccountingEntry) (*AccountingEntry, error) {
	db := config.GetDB()
	var entry *AccountingEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = CreateAccountingEntryTx(ctx, tx, input)
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "AccountingEntry", "CreateAccountingEntry", "create entry", input.Label, err)
		return nil, err
	}
	return entry, nil
}

// CreateAccountingEntryTx checks the balance before anything is written.
func CreateAccountingEntryTx(ctx context.Context, tx *gorm.DB, input *NewAccountingEntry) (*AccountingEntry, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Journal.IsValid() {
		return nil, ErrInvalidJournal
	}
	debit, credit, err := checkEntryLines(input.Lines)
	if err != nil {
		return nil, err
	}

	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}
	date = utils.TruncateToDay(date)
	entry := AccountingEntry{
		Date:              date,
		Journal:           input.Journal,
		Label:             input.Label,
		SourceRef:         input.SourceRef,
		SupplierInvoiceId: input.SupplierInvoiceId,
		Status:            EntryStatusDraft,
		TotalDebit:        debit,
		TotalCredit:       credit,
		Lines:             receiveEntryLines(input.Lines, 0),
		CreatedBy:         utils.UsernameOrSystem(ctx),
	}
	if entry.Numero, err = NextDocumentNumber(tx, DocumentFamilyAccountingEntry, date.Year()); err != nil {
		return nil, err
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func lockAccountingEntry(tx *gorm.DB, id int) (*AccountingEntry, error) {
	var entry AccountingEntry
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &entry, nil
}

// ReplaceEntryLines swaps the whole line set of a draft entry after the same balance check.
func ReplaceEntryLines(ctx context.Context, id int, lines []NewAccountingEntryLine) (*AccountingEntry, error) {
	debit, credit, err := checkEntryLines(lines)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var entry *AccountingEntry
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if entry, err = lockAccountingEntry(tx, id); err != nil {
			return err
		}
		if entry.Status == EntryStatusValidated {
			return ErrEntryValidated
		}
		if err := tx.Where("entry_id = ?", id).Delete(&AccountingEntryLine{}).Error; err != nil {
			return err
		}
		entry.Lines = receiveEntryLines(lines, id)
		if err := tx.Create(&entry.Lines).Error; err != nil {
			return err
		}
		entry.TotalDebit, entry.TotalCredit = debit, credit
		return tx.Model(entry).Updates(map[string]interface{}{
			"total_debit":  debit,
			"total_credit": credit,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func ValidateEntry(ctx context.Context, id int) (*AccountingEntry, error) {
	db := config.GetDB()
	var entry *AccountingEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if entry, err = lockAccountingEntry(tx, id); err != nil {
			return err
		}
		if entry.Status == EntryStatusValidated {
			return ErrEntryValidated
		}
		if !entry.Balanced() {
			return ErrUnbalancedEntry
		}
		now := time.Now()
		entry.Status = EntryStatusValidated
		entry.ValidatedAt = &now
		return tx.Model(entry).Select("status", "validated_at").Updates(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// LetterEntryLines stamps a lettering code on lines of the same account, validated entries included.
func LetterEntryLines(ctx context.Context, lineIds []int, code string) ([]AccountingEntryLine, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrLetteringCode
	}
	lineIds = utils.UniqueSlice(lineIds)
	if len(lineIds) == 0 {
		return nil, ErrEntryLineNotFound
	}
	db := config.GetDB()
	var lines []AccountingEntryLine
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id IN ?", lineIds).Find(&lines).Error; err != nil {
			return err
		}
		if len(lines) != len(lineIds) {
			return ErrEntryLineNotFound
		}
		for _, l := range lines {
			if l.Account != lines[0].Account {
				return ErrLetteringAccount
			}
		}
		now := time.Now()
		for i := range lines {
			lines[i].LetteringCode = code
			lines[i].LetteredAt = &now
		}
		return tx.Model(&AccountingEntryLine{}).Where("id IN ?", lineIds).Updates(map[string]interface{}{
			"lettering_code": code,
			"lettered_at":    now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func UnletterEntryLines(ctx context.Context, lineIds []int) error {
	result := config.GetDB().WithContext(ctx).Model(&AccountingEntryLine{}).
		Where("id IN ?", lineIds).
		Updates(map[string]interface{}{"lettering_code": "", "lettered_at": nil})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntryLineNotFound
	}
	return nil
}

// DeleteAccountingEntry removes an entry whatever its status.
func DeleteAccountingEntry(ctx context.Context, id int) (*AccountingEntry, error) {
	db := config.GetDB()
	var entry AccountingEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, id).Error; err != nil {
			return notFoundOr(err)
		}
		if err := tx.Where("entry_id = ?", id).Delete(&AccountingEntryLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	config.GetLogger().WithFields(map[string]interface{}{
		"numero": entry.Numero,
		"statut": entry.Status,
		"user":   utils.UsernameOrSystem(ctx),
	}).Warn("accounting entry deleted")
	return &entry, nil
}

func GetAccountingEntry(ctx context.Context, id int) (*AccountingEntry, error) {
	var entry AccountingEntry
	err := config.GetDB().WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&entry, id).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &entry, nil
}

func ListAccountingEntries(ctx context.Context, filter AccountingEntryFilter) ([]*AccountingEntry, error) {
	db := config.GetDB().WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") })
	if filter.Journal != "" {
		db = db.Where("journal = ?", filter.Journal)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Account != "" {
		db = db.Where("id IN (?)", config.GetDB().Model(&AccountingEntryLine{}).Select("entry_id").Where("account = ?", filter.Account))
	}
	if filter.From != nil {
		db = db.Where("date >= ?", utils.TruncateToDay(*filter.From))
	}
	if filter.To != nil {
		db = db.Where("date <= ?", utils.TruncateToDay(*filter.To))
	}
	var results []*AccountingEntry
	if err := db.Order("date, numero").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
