package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidFrequency    = errors.New("invalid billing frequency")
	ErrInvalidBillingDay   = errors.New("billing day must be between 1 and 31")
	ErrContractWithoutLine = errors.New("contract must have at least one line")
	ErrContractInactive    = errors.New("contract is inactive")
	ErrContractNotDue      = errors.New("contract is not due for billing")
	ErrContractEnded       = errors.New("contract has ended and is not renewed")
	ErrInvalidRenewal      = errors.New("renewal policy must be manuel, tacite or aucun")
	ErrInvalidContractEnd  = errors.New("contract end date is before its start date")
)

type frequencyRule struct {
	months  int
	days    int
	perYear int64
}

var frequencyRules = map[ContractFrequency]frequencyRule{
	FrequencyWeekly:      {days: 7, perYear: 52},
	FrequencySemiMonthly: {days: 15, perYear: 24},
	FrequencyMonthly:     {months: 1, perYear: 12},
	FrequencyBimonthly:   {months: 2, perYear: 6},
	FrequencyQuarterly:   {months: 3, perYear: 4},
	FrequencyFourMonthly: {months: 4, perYear: 3},
	FrequencySemiAnnual:  {months: 6, perYear: 2},
	FrequencyAnnual:      {months: 12, perYear: 1},
}

func (f ContractFrequency) IsValid() bool {
	_, ok := frequencyRules[f]
	return ok
}

// NextBillingDate returns the occurrence after current. Month based frequencies land on
// billingDay, clamped to the last day of short months. billingDay 0 keeps the day of current.
func NextBillingDate(current time.Time, frequency ContractFrequency, billingDay int) (time.Time, error) {
	rule, ok := frequencyRules[frequency]
	if !ok {
		return time.Time{}, ErrInvalidFrequency
	}
	if billingDay < 0 || billingDay > 31 {
		return time.Time{}, ErrInvalidBillingDay
	}
	current = utils.TruncateToDay(current)
	if rule.days > 0 {
		return current.AddDate(0, 0, rule.days), nil
	}
	if billingDay == 0 {
		billingDay = current.Day()
	}
	return utils.AddMonthsClamped(current, rule.months, billingDay), nil
}

// EstimateAnnualRevenue multiplies the HT amount of one invoice by the invoices per year.
func EstimateAnnualRevenue(amountHT decimal.Decimal, frequency ContractFrequency) (decimal.Decimal, error) {
	rule, ok := frequencyRules[frequency]
	if !ok {
		return decimal.Zero, ErrInvalidFrequency
	}
	return utils.RoundCents(amountHT.Mul(decimal.NewFromInt(rule.perYear))), nil
}

type RecurringContract struct {
	ID                  int                                   `gorm:"primary_key" json:"id"`
	ClientId            string                                `gorm:"size:191;index;not null" json:"client_id"`
	Label               string                                `gorm:"size:255;not null" json:"libelle"`
	Lines               datatypes.JSONType[[]NewDocumentLine] `gorm:"not null" json:"lignes"`
	AmountHT            decimal.Decimal                       `gorm:"type:decimal(20,2);default:0" json:"montant_facturation"`
	EstimatedRevenue    decimal.Decimal                       `gorm:"type:decimal(20,2);default:0" json:"ca_annuel_estime"`
	Frequency           ContractFrequency                     `gorm:"size:20;not null" json:"frequence"`
	BillingDay          int                                   `gorm:"not null" json:"jour_facturation"`
	StartDate           time.Time                             `gorm:"not null" json:"date_debut"`
	EndDate             *time.Time                            `json:"date_fin"`
	NextBillingDate     time.Time                             `gorm:"index;not null" json:"prochaine_date_facturation"`
	LastBilledAt        *time.Time                            `json:"derniere_facturation"`
	Renewal             RenewalPolicy                         `gorm:"size:20;not null" json:"reconduction"`
	NoticeDays          int                                   `gorm:"default:0" json:"preavis_jours"`
	PaymentTermsDays    int                                   `gorm:"default:0" json:"delai_paiement_jours"`
	UpcomingBillingDays int                                   `gorm:"not null" json:"alerte_facturation_jours"`
	LatePaymentDays     int                                   `gorm:"default:0" json:"alerte_retard_jours"`
	ContractEndDays     int                                   `gorm:"not null" json:"alerte_fin_contrat_jours"`
	RevenueThreshold    decimal.Decimal                       `gorm:"type:decimal(20,2);default:0" json:"seuil_ca"`
	IsActive            *bool                                 `gorm:"not null" json:"actif"`
	Notes               string                                `gorm:"type:text" json:"notes"`
	CreatedAt           time.Time                             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                             `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecurringContract struct {
	ClientId            string            `json:"client_id" validate:"required"`
	Label               string            `json:"libelle" validate:"required,max=255"`
	Lines               []NewDocumentLine `json:"lignes"`
	Frequency           ContractFrequency `json:"frequence" validate:"required"`
	BillingDay          int               `json:"jour_facturation" validate:"gte=0,lte=31"`
	StartDate           time.Time         `json:"date_debut" validate:"required"`
	EndDate             *time.Time        `json:"date_fin"`
	FirstBillingDate    *time.Time        `json:"premiere_facturation"`
	Renewal             RenewalPolicy     `json:"reconduction"`
	NoticeDays          int               `json:"preavis_jours" validate:"gte=0"`
	PaymentTermsDays    int               `json:"delai_paiement_jours" validate:"gte=0"`
	UpcomingBillingDays *int              `json:"alerte_facturation_jours"`
	LatePaymentDays     int               `json:"alerte_retard_jours" validate:"gte=0"`
	ContractEndDays     *int              `json:"alerte_fin_contrat_jours"`
	RevenueThreshold    decimal.Decimal   `json:"seuil_ca"`
	Notes               string            `json:"notes"`
}

type RecurringContractFilter struct {
	ClientId string `form:"client_id"`
	Active   *bool  `form:"actif"`
}

func (RecurringContract) TableName() string {
	return "contrats_recurrents"
}

func (c RecurringContract) Active() bool {
	return c.IsActive != nil && *c.IsActive
}

func (c RecurringContract) LineTemplate() []NewDocumentLine {
	return c.Lines.Data()
}

func (input *NewRecurringContract) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Frequency.IsValid() {
		return ErrInvalidFrequency
	}
	if input.Renewal == "" {
		input.Renewal = RenewalManual
	}
	if !input.Renewal.IsValid() {
		return ErrInvalidRenewal
	}
	if len(input.Lines) == 0 {
		return ErrContractWithoutLine
	}
	if input.EndDate != nil && input.EndDate.Before(input.StartDate) {
		return ErrInvalidContractEnd
	}
	return nil
}

// apply prices the template once to store the per-invoice amount and the yearly estimate.
func (input *NewRecurringContract) apply(tx *gorm.DB, c *RecurringContract) error {
	client, err := activeClient(tx, input.ClientId)
	if err != nil {
		return err
	}
	lines, err := buildDocumentLines(tx, client, input.Lines)
	if err != nil {
		return err
	}
	amountHT := lines.Totals().HT
	revenue, err := EstimateAnnualRevenue(amountHT, input.Frequency)
	if err != nil {
		return err
	}

	c.ClientId = client.ID
	c.Label = input.Label
	c.Lines = datatypes.NewJSONType(input.Lines)
	c.AmountHT = amountHT
	c.EstimatedRevenue = revenue
	c.Frequency = input.Frequency
	c.BillingDay = input.BillingDay
	c.StartDate = utils.TruncateToDay(input.StartDate)
	c.EndDate = nil
	if input.EndDate != nil {
		end := utils.TruncateToDay(*input.EndDate)
		c.EndDate = &end
	}
	c.Renewal = input.Renewal
	c.NoticeDays = input.NoticeDays
	c.PaymentTermsDays = input.PaymentTermsDays
	c.UpcomingBillingDays = 7
	if input.UpcomingBillingDays != nil {
		c.UpcomingBillingDays = *input.UpcomingBillingDays
	}
	c.LatePaymentDays = input.LatePaymentDays
	c.ContractEndDays = 30
	if input.ContractEndDays != nil {
		c.ContractEndDays = *input.ContractEndDays
	}
	c.RevenueThreshold = input.RevenueThreshold
	c.Notes = input.Notes
	return nil
}

// firstBillingDate is the start date moved onto the billing day, never earlier than the start.
func (input *NewRecurringContract) firstBillingDate() time.Time {
	if input.FirstBillingDate != nil {
		return utils.TruncateToDay(*input.FirstBillingDate)
	}
	start := utils.TruncateToDay(input.StartDate)
	if input.BillingDay == 0 || frequencyRules[input.Frequency].days > 0 {
		return start
	}
	candidate := utils.AddMonthsClamped(start, 0, input.BillingDay)
	if candidate.Before(start) {
		candidate = utils.AddMonthsClamped(start, 1, input.BillingDay)
	}
	return candidate
}

func CreateRecurringContract(ctx context.Context, input *NewRecurringContract) (*RecurringContract, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	contract := RecurringContract{
		NextBillingDate: input.firstBillingDate(),
		IsActive:        utils.NewTrue(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := input.apply(tx, &contract); err != nil {
			return err
		}
		return tx.Create(&contract).Error
	})
	if err != nil {
		config.LogError(config.GetLogger(), "RecurringContract", "CreateRecurringContract", "create contract", input.ClientId, err)
		return nil, err
	}
	return &contract, nil
}

// UpdateRecurringContract keeps the billing schedule unless a first billing date is given.
func UpdateRecurringContract(ctx context.Context, id int, input *NewRecurringContract) (*RecurringContract, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var contract RecurringContract
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&contract, id).Error; err != nil {
			return notFoundOr(err)
		}
		if err := input.apply(tx, &contract); err != nil {
			return err
		}
		if input.FirstBillingDate != nil {
			contract.NextBillingDate = utils.TruncateToDay(*input.FirstBillingDate)
		}
		return tx.Save(&contract).Error
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

func SetRecurringContractActive(ctx context.Context, id int, active bool) (*RecurringContract, error) {
	db := config.GetDB().WithContext(ctx)
	var contract RecurringContract
	if err := db.First(&contract, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	contract.IsActive = &active
	if err := db.Model(&contract).Update("is_active", active).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func GetRecurringContract(ctx context.Context, id int) (*RecurringContract, error) {
	return utils.FetchModel[RecurringContract](ctx, id)
}

func ListRecurringContracts(ctx context.Context, filter RecurringContractFilter) ([]*RecurringContract, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.ClientId != "" {
		db = db.Where("client_id = ?", filter.ClientId)
	}
	if filter.Active != nil {
		db = db.Where("is_active = ?", *filter.Active)
	}
	var results []*RecurringContract
	if err := db.Order("next_billing_date, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListDueContracts returns the active contracts to bill on or before asOf.
func ListDueContracts(ctx context.Context, asOf time.Time) ([]*RecurringContract, error) {
	var results []*RecurringContract
	err := config.GetDB().WithContext(ctx).
		Where("is_active = ? AND next_billing_date <= ?", true, utils.TruncateToDay(asOf)).
		Order("next_billing_date, id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// renew pushes the end date by the original contract length until it covers the next billing date.
func (c *RecurringContract) renew() {
	end := *c.EndDate
	months := monthsBetween(c.StartDate, end)
	for c.NextBillingDate.After(end) {
		if months > 0 {
			end = end.AddDate(0, months, 0)
		} else {
			end = end.AddDate(1, 0, 0)
		}
	}
	c.EndDate = &end
}

func monthsBetween(from time.Time, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if to.Day() < from.Day() {
		months--
	}
	return months
}

// GenerateInvoiceFromContract bills a due contract and advances its schedule in one transaction.
// An ended contract without tacit renewal is deactivated and ErrContractEnded is returned.
func GenerateInvoiceFromContract(ctx context.Context, id int, asOf time.Time) (*Invoice, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	asOf = utils.TruncateToDay(asOf)

	var invoice *Invoice
	ended := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contract RecurringContract
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&contract, id).Error; err != nil {
			return notFoundOr(err)
		}
		if !contract.Active() {
			return ErrContractInactive
		}
		if contract.NextBillingDate.After(asOf) {
			return ErrContractNotDue
		}
		if contract.EndDate != nil && contract.NextBillingDate.After(*contract.EndDate) {
			if contract.Renewal != RenewalTacit {
				ended = true
				return tx.Model(&contract).Update("is_active", false).Error
			}
			contract.renew()
			logger.WithField("contract_id", contract.ID).Info("contract renewed to " + contract.EndDate.Format("2006-01-02"))
		}

		billingDate := contract.NextBillingDate
		input := &NewInvoice{
			ClientId:   contract.ClientId,
			Subject:    fmt.Sprintf("%s - %s", contract.Label, billingDate.Format("01/2006")),
			IssueDate:  billingDate,
			ContractId: &contract.ID,
			Lines:      contract.LineTemplate(),
		}
		if contract.PaymentTermsDays > 0 {
			due := billingDate.AddDate(0, 0, contract.PaymentTermsDays)
			input.DueDate = &due
		}
		var err error
		if invoice, err = createInvoiceTx(ctx, tx, input); err != nil {
			return err
		}
		if config.AutoApplyCreditNotes() {
			if invoice, err = autoApplyCreditNotesTx(ctx, tx, invoice); err != nil {
				return err
			}
		}

		next, err := NextBillingDate(billingDate, contract.Frequency, contract.BillingDay)
		if err != nil {
			return err
		}
		contract.LastBilledAt = &billingDate
		contract.NextBillingDate = next
		return tx.Save(&contract).Error
	})
	if err != nil {
		if !errors.Is(err, ErrContractNotDue) {
			config.LogError(logger, "RecurringContract", "GenerateInvoiceFromContract", "generate invoice", id, err)
		}
		return nil, err
	}
	if ended {
		logger.WithField("contract_id", id).Warn("contract ended without renewal, deactivated")
		return nil, ErrContractEnded
	}
	return invoice, nil
}

// autoApplyCreditNotesTx consumes open deduction credit notes that fit in the balance.
func autoApplyCreditNotesTx(ctx context.Context, tx *gorm.DB, invoice *Invoice) (*Invoice, error) {
	var notes []*CreditNote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("client_id = ? AND usage_type = ? AND status = ?", invoice.ClientId, CreditNoteUsageDeduction, CreditNoteStatusSent).
		Order("issue_date, id").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		if note.TotalTTC.Abs().GreaterThan(invoice.RemainingBalance) {
			continue
		}
		if invoice, err = applyCreditNoteTx(ctx, tx, note, invoice.ID); err != nil {
			return nil, err
		}
	}
	return invoice, nil
}

type ContractAlert struct {
	Type       AlertType       `json:"type"`
	ContractId int             `json:"contrat_id"`
	ClientId   string          `json:"client_id"`
	InvoiceId  *int            `json:"facture_id,omitempty"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"montant"`
	Message    string          `json:"message"`
}

// ComputeContractAlerts evaluates the notification thresholds of every active contract.
func ComputeContractAlerts(ctx context.Context, asOf time.Time) ([]ContractAlert, error) {
	asOf = utils.TruncateToDay(asOf)
	active := true
	contracts, err := ListRecurringContracts(ctx, RecurringContractFilter{Active: &active})
	if err != nil {
		return nil, err
	}

	alerts := make([]ContractAlert, 0)
	for _, c := range contracts {
		if c.UpcomingBillingDays > 0 {
			limit := asOf.AddDate(0, 0, c.UpcomingBillingDays)
			if !c.NextBillingDate.Before(asOf) && !c.NextBillingDate.After(limit) {
				alerts = append(alerts, ContractAlert{
					Type:       AlertUpcomingBilling,
					ContractId: c.ID,
					ClientId:   c.ClientId,
					Date:       c.NextBillingDate,
					Amount:     c.AmountHT,
					Message:    fmt.Sprintf("Facturation de %s prévue le %s", c.Label, c.NextBillingDate.Format("02/01/2006")),
				})
			}
		}

		unpaid, err := ListUnpaidInvoicesOfContract(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, inv := range unpaid {
			if !asOf.After(inv.DueDate.AddDate(0, 0, c.LatePaymentDays)) {
				continue
			}
			invoiceId := inv.ID
			alerts = append(alerts, ContractAlert{
				Type:       AlertLatePayment,
				ContractId: c.ID,
				ClientId:   c.ClientId,
				InvoiceId:  &invoiceId,
				Date:       inv.DueDate,
				Amount:     inv.RemainingBalance,
				Message:    fmt.Sprintf("Facture %s impayée depuis le %s", inv.Numero, inv.DueDate.Format("02/01/2006")),
			})
		}

		if c.EndDate != nil {
			notice := c.ContractEndDays
			if c.NoticeDays > notice {
				notice = c.NoticeDays
			}
			if !asOf.After(*c.EndDate) && !asOf.Before(c.EndDate.AddDate(0, 0, -notice)) {
				alerts = append(alerts, ContractAlert{
					Type:       AlertContractEnd,
					ContractId: c.ID,
					ClientId:   c.ClientId,
					Date:       *c.EndDate,
					Message:    fmt.Sprintf("Contrat %s (reconduction %s) se termine le %s", c.Label, c.Renewal, c.EndDate.Format("02/01/2006")),
				})
			}
		}

		if c.RevenueThreshold.IsPositive() {
			billed, err := contractRevenueOfYear(ctx, c.ID, asOf.Year())
			if err != nil {
				return nil, err
			}
			if billed.GreaterThanOrEqual(c.RevenueThreshold) {
				alerts = append(alerts, ContractAlert{
					Type:       AlertRevenueThreshold,
					ContractId: c.ID,
					ClientId:   c.ClientId,
					Date:       asOf,
					Amount:     billed,
					Message:    fmt.Sprintf("CA %d du contrat %s : %s € HT", asOf.Year(), c.Label, billed.StringFixed(2)),
				})
			}
		}
	}
	return alerts, nil
}

func contractRevenueOfYear(ctx context.Context, contractId int, year int) (decimal.Decimal, error) {
	var invoices []Invoice
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.Local)
	err := config.GetDB().WithContext(ctx).
		Select("total_ht").
		Where("contract_id = ? AND status <> ? AND issue_date >= ? AND issue_date < ?",
			contractId, InvoiceStatusCancelled, from, from.AddDate(1, 0, 0)).
		Find(&invoices).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.TotalHT)
	}
	return total, nil
}
