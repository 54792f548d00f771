package reports

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
)

type ReceivableAging struct {
	ClientId     string          `json:"client_id"`
	Total        decimal.Decimal `json:"total"`
	Current      decimal.Decimal `json:"non_echu"`
	Int1to15     decimal.Decimal `json:"retard_1_15"`
	Int16to30    decimal.Decimal `json:"retard_16_30"`
	Int31to45    decimal.Decimal `json:"retard_31_45"`
	Int46plus    decimal.Decimal `json:"retard_46_plus"`
	InvoiceCount int             `json:"nombre_factures"`
}

func (a *ReceivableAging) add(remaining decimal.Decimal, daysLate int) {
	a.Total = a.Total.Add(remaining)
	a.InvoiceCount++
	switch {
	case daysLate <= 0:
		a.Current = a.Current.Add(remaining)
	case daysLate <= 15:
		a.Int1to15 = a.Int1to15.Add(remaining)
	case daysLate <= 30:
		a.Int16to30 = a.Int16to30.Add(remaining)
	case daysLate <= 45:
		a.Int31to45 = a.Int31to45.Add(remaining)
	default:
		a.Int46plus = a.Int46plus.Add(remaining)
	}
}

// GetReceivableAging buckets the open balance of issued invoices per client by days past due.
func GetReceivableAging(ctx context.Context, asOf time.Time) ([]*ReceivableAging, error) {
	started := time.Now()
	var invoices []*models.Invoice
	err := config.GetDB().WithContext(ctx).
		Select("id, client_id, due_date, remaining_balance, status").
		Where("status IN ?", []models.InvoiceStatus{
			models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid, models.InvoiceStatusOverdue,
		}).
		Where("remaining_balance > 0").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	day := utils.TruncateToDay(asOf)
	byClient := make(map[string]*ReceivableAging)
	for _, inv := range invoices {
		row, ok := byClient[inv.ClientId]
		if !ok {
			row = &ReceivableAging{ClientId: inv.ClientId}
			byClient[inv.ClientId] = row
		}
		daysLate := int(math.Round(day.Sub(utils.TruncateToDay(inv.DueDate)).Hours() / 24))
		row.add(inv.RemainingBalance, daysLate)
	}

	results := make([]*ReceivableAging, 0, len(byClient))
	for _, row := range byClient {
		results = append(results, row)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ClientId < results[j].ClientId })
	logSlowReport(ctx, "receivable_aging", started, nil)
	return results, nil
}
