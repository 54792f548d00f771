package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
)

type AccountBalance struct {
	Account string          `json:"compte"`
	Debit   decimal.Decimal `json:"total_debit"`
	Credit  decimal.Decimal `json:"total_credit"`
	Balance decimal.Decimal `json:"solde"`
}

type LedgerLine struct {
	EntryId       int             `json:"ecriture_id"`
	Numero        string          `json:"numero"`
	Date          time.Time       `json:"date"`
	Journal       string          `json:"journal"`
	LineId        int             `json:"ligne_id"`
	Label         string          `json:"libelle"`
	Direction     string          `json:"sens"`
	Amount        decimal.Decimal `json:"montant"`
	LetteringCode string          `json:"lettrage"`
	Balance       decimal.Decimal `json:"solde_progressif"`
}

type AccountLedger struct {
	Account string          `json:"compte"`
	Lines   []*LedgerLine   `json:"lignes"`
	Debit   decimal.Decimal `json:"total_debit"`
	Credit  decimal.Decimal `json:"total_credit"`
	Balance decimal.Decimal `json:"solde"`
}

// GetTrialBalance sums debit and credit per account over entries dated in [from, to].
// Nil bounds are open. Draft entries are included unless validatedOnly is set.
func GetTrialBalance(ctx context.Context, from, to *time.Time, validatedOnly bool) ([]*AccountBalance, error) {
	started := time.Now()
	db := config.GetDB().WithContext(ctx)

	query := db.Table("lignes_ecritures AS l").
		Select(`l.account AS account,
			SUM(CASE WHEN l.direction = ? THEN l.amount ELSE 0 END) AS debit,
			SUM(CASE WHEN l.direction = ? THEN l.amount ELSE 0 END) AS credit`,
			models.EntryDirectionDebit, models.EntryDirectionCredit).
		Joins("JOIN ecritures_comptables AS e ON e.id = l.entry_id")
	if from != nil {
		query = query.Where("e.date >= ?", *from)
	}
	if to != nil {
		query = query.Where("e.date <= ?", *to)
	}
	if validatedOnly {
		query = query.Where("e.status = ?", models.EntryStatusValidated)
	}

	rows, err := query.Group("l.account").Order("l.account").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []*AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := db.ScanRows(rows, &b); err != nil {
			return nil, err
		}
		b.Debit = b.Debit.Round(2)
		b.Credit = b.Credit.Round(2)
		b.Balance = b.Debit.Sub(b.Credit)
		balances = append(balances, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logSlowReport(ctx, "trial_balance", started, nil)
	return balances, nil
}

// GetAccountLedger lists the lines booked on one account in date order with a running balance.
func GetAccountLedger(ctx context.Context, account string, from, to *time.Time) (*AccountLedger, error) {
	started := time.Now()
	db := config.GetDB().WithContext(ctx)

	query := db.Table("lignes_ecritures AS l").
		Select(`e.id AS entry_id, e.numero AS numero, e.date AS date, e.journal AS journal,
			l.id AS line_id, l.label AS label, l.direction AS direction, l.amount AS amount,
			l.lettering_code AS lettering_code`).
		Joins("JOIN ecritures_comptables AS e ON e.id = l.entry_id").
		Where("l.account = ?", account)
	if from != nil {
		query = query.Where("e.date >= ?", *from)
	}
	if to != nil {
		query = query.Where("e.date <= ?", *to)
	}

	rows, err := query.Order("e.date, e.id, l.position").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := &AccountLedger{Account: account, Lines: make([]*LedgerLine, 0)}
	for rows.Next() {
		var line LedgerLine
		if err := db.ScanRows(rows, &line); err != nil {
			return nil, err
		}
		if line.Direction == string(models.EntryDirectionDebit) {
			ledger.Debit = ledger.Debit.Add(line.Amount)
			ledger.Balance = ledger.Balance.Add(line.Amount)
		} else {
			ledger.Credit = ledger.Credit.Add(line.Amount)
			ledger.Balance = ledger.Balance.Sub(line.Amount)
		}
		line.Balance = ledger.Balance
		ledger.Lines = append(ledger.Lines, &line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logSlowReport(ctx, "account_ledger", started, nil)
	return ledger, nil
}
