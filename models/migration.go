package models

import (
	"github.com/solarclean/backoffice/config"
)

func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&User{},
		&DocumentSequence{},
		&Client{}, &Site{}, &CatalogArticle{},
		&Quote{},
		&Invoice{}, &InvoicePayment{}, &DunningLetter{},
		&CreditNote{},
		&RecurringContract{},
		&AccountingEntry{}, &AccountingEntryLine{},
		&StockArticle{}, &StockMovement{},
		&SupplierInvoice{},
		&Equipment{}, &Intervention{}, &InterventionPhoto{},
		&Project{}, &IntercompanyFlow{},
	)
}
