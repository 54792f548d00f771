package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentFamily string

const (
	DocumentFamilyInvoice         DocumentFamily = "FAC"
	DocumentFamilyQuote           DocumentFamily = "DEV"
	DocumentFamilyCreditNote      DocumentFamily = "AV"
	DocumentFamilyAccountingEntry DocumentFamily = "EC"
)

// DocumentSequence is the last number handed out for a family and year.
type DocumentSequence struct {
	ID        int            `gorm:"primary_key" json:"id"`
	Family    DocumentFamily `gorm:"size:10;not null;uniqueIndex:idx_document_sequence" json:"famille"`
	Year      int            `gorm:"not null;uniqueIndex:idx_document_sequence" json:"annee"`
	LastValue int            `gorm:"not null;default:0" json:"derniere_valeur"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DocumentSequence) TableName() string {
	return "sequences_documents"
}

func (f DocumentFamily) digits() int {
	if f == DocumentFamilyAccountingEntry {
		return 4
	}
	return 3
}

func (f DocumentFamily) table() string {
	switch f {
	case DocumentFamilyInvoice:
		return Invoice{}.TableName()
	case DocumentFamilyQuote:
		return Quote{}.TableName()
	case DocumentFamilyCreditNote:
		return CreditNote{}.TableName()
	case DocumentFamilyAccountingEntry:
		return AccountingEntry{}.TableName()
	}
	return ""
}

func (f DocumentFamily) prefix(year int) string {
	return fmt.Sprintf("%s-%d-", f, year)
}

// FormatDocumentNumber renders <PREFIX>-<year>-<zero padded value>.
func FormatDocumentNumber(family DocumentFamily, year int, value int) string {
	return fmt.Sprintf("%s%0*d", family.prefix(year), family.digits(), value)
}

// ParseDocumentNumber returns the trailing sequence of a number of the given family and year.
func ParseDocumentNumber(numero string, family DocumentFamily, year int) (int, bool) {
	rest, ok := strings.CutPrefix(numero, family.prefix(year))
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// highestDocumentSequence reads every number of the year and keeps the largest parsed value.
func highestDocumentSequence(tx *gorm.DB, family DocumentFamily, year int) (int, error) {
	var numeros []string
	err := tx.Table(family.table()).
		Where("numero LIKE ?", family.prefix(year)+"%").
		Pluck("numero", &numeros).Error
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, numero := range numeros {
		if n, ok := ParseDocumentNumber(numero, family, year); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// NextDocumentNumber allocates the next number of family for year. It must run inside the
// transaction that stores the document.
func NextDocumentNumber(tx *gorm.DB, family DocumentFamily, year int) (string, error) {
	if config.DocumentNumberingMode() == config.NumberingModeScan {
		return scanNextDocumentNumber(tx, family, year), nil
	}
	return counterNextDocumentNumber(tx, family, year)
}

func counterNextDocumentNumber(tx *gorm.DB, family DocumentFamily, year int) (string, error) {
	var seq DocumentSequence
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	err := locked.Where("family = ? AND year = ?", family, year).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// first number of the year: seed from documents numbered before the counter existed
		highest, err := highestDocumentSequence(tx, family, year)
		if err != nil {
			return "", err
		}
		seed := DocumentSequence{Family: family, Year: year, LastValue: highest}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return "", err
		}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("family = ? AND year = ?", family, year).First(&seq).Error
		if err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	next := seq.LastValue + 1
	if err := tx.Model(&seq).Update("last_value", next).Error; err != nil {
		return "", err
	}
	return FormatDocumentNumber(family, year, next), nil
}

// scanNextDocumentNumber increments the highest existing number without any lock.
// Concurrent creations can get the same number.
func scanNextDocumentNumber(tx *gorm.DB, family DocumentFamily, year int) string {
	highest, err := highestDocumentSequence(tx, family, year)
	if err != nil {
		fallback := fmt.Sprintf("%s%d", family.prefix(year), time.Now().UnixMilli())
		config.GetLogger().WithFields(logrus.Fields{
			"module":   "DocumentSequence",
			"funcName": "scanNextDocumentNumber",
			"family":   family,
			"fallback": fallback,
		}).Warn(err.Error())
		return fallback
	}
	return FormatDocumentNumber(family, year, highest+1)
}
