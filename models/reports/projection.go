package reports

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
)

var (
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

type YearProjection struct {
	Year           int              `json:"annee"`
	CalendarYear   int              `json:"annee_calendaire"`
	Revenue        decimal.Decimal  `json:"recettes"`
	FlowIncome     decimal.Decimal  `json:"flux_entrants"`
	Costs          decimal.Decimal  `json:"charges"`
	FlowExpense    decimal.Decimal  `json:"flux_sortants"`
	EBITDA         decimal.Decimal  `json:"ebe"`
	Depreciation   decimal.Decimal  `json:"amortissements"`
	EBIT           decimal.Decimal  `json:"resultat_exploitation"`
	Interest       decimal.Decimal  `json:"interets"`
	Principal      decimal.Decimal  `json:"remboursement_capital"`
	PreTaxResult   decimal.Decimal  `json:"resultat_avant_is"`
	LossUsed       decimal.Decimal  `json:"deficit_impute"`
	LossCarried    decimal.Decimal  `json:"deficit_reportable"`
	TaxableResult  decimal.Decimal  `json:"resultat_fiscal"`
	CorporateTax   decimal.Decimal  `json:"impot_societes"`
	NetResult      decimal.Decimal  `json:"resultat_net"`
	DebtService    decimal.Decimal  `json:"annuites"`
	CashFlow       decimal.Decimal  `json:"flux_tresorerie"`
	EquityOutflow  decimal.Decimal  `json:"apport_investissement"`
	CumulativeCash decimal.Decimal  `json:"tresorerie_cumulee"`
	DSCR           *decimal.Decimal `json:"dscr"`
	RemainingDebt  decimal.Decimal  `json:"capital_restant_du"`
}

type ProjectionSummary struct {
	MinDSCR             *decimal.Decimal `json:"dscr_min"`
	AvgDSCR             *decimal.Decimal `json:"dscr_moyen"`
	PaybackYear         int              `json:"annee_retour_investissement"`
	FinalCumulativeCash decimal.Decimal  `json:"tresorerie_finale"`
	TotalRevenue        decimal.Decimal  `json:"total_recettes"`
	TotalCorporateTax   decimal.Decimal  `json:"total_is"`
	TotalNetResult      decimal.Decimal  `json:"total_resultat_net"`
}

type Projection struct {
	Company string                  `json:"societe"`
	Params  models.ProjectionParams `json:"parametres"`
	Years   []YearProjection        `json:"annees"`
	Summary ProjectionSummary       `json:"synthese"`
}

type loanState struct {
	loan      models.ProjectionLoan
	rate      decimal.Decimal
	annuity   decimal.Decimal
	remaining decimal.Decimal
	startYear int
}

// annuity is the constant yearly payment repaying principal over years at rate.
func annuity(principal decimal.Decimal, rate decimal.Decimal, years int) decimal.Decimal {
	if rate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(years)))
	}
	growth := pow(decimalOne.Add(rate), years)
	return principal.Mul(rate).Mul(growth).Div(growth.Sub(decimalOne))
}

func pow(base decimal.Decimal, n int) decimal.Decimal {
	result := decimalOne
	for i := 0; i < n; i++ {
		result = result.Mul(base)
	}
	return result
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// corporateTax applies the reduced rate up to the ceiling and the normal rate above it.
func corporateTax(taxable decimal.Decimal, params models.ProjectionParams) decimal.Decimal {
	if !taxable.IsPositive() {
		return decimal.Zero
	}
	reducedBase := decimal.Zero
	if params.ISReducedCeiling.IsPositive() {
		reducedBase = minDecimal(taxable, params.ISReducedCeiling)
	}
	normalBase := taxable.Sub(reducedBase)
	tax := reducedBase.Mul(params.ISReducedRate).Add(normalBase.Mul(params.ISNormalRate)).Div(decimalHundred)
	return utils.RoundCents(tax)
}

func lineAmount(amount decimal.Decimal, indexed bool, inflation decimal.Decimal) decimal.Decimal {
	if indexed {
		return amount.Mul(inflation)
	}
	return amount
}

// BuildProjection simulates the project company year by year. Flows received by the company are
// income, flows it pays are expenses; flows between two other companies are ignored.
func BuildProjection(company string, params models.ProjectionParams, flows []*models.IntercompanyFlow) *Projection {
	params = params.WithDefaults()
	inflationStep := decimalOne.Add(params.InflationRate.Div(decimalHundred))

	loans := make([]*loanState, 0, len(params.Loans))
	totalEquity := decimal.Zero
	for _, l := range params.Loans {
		rate := l.AnnualRate.Div(decimalHundred)
		start := l.StartYear
		if start == 0 {
			start = 1
		}
		loans = append(loans, &loanState{
			loan:      l,
			rate:      rate,
			annuity:   annuity(l.Principal, rate, l.Years),
			remaining: l.Principal,
			startYear: start,
		})
		totalEquity = totalEquity.Sub(l.Principal)
	}
	for _, inv := range params.Investments {
		totalEquity = totalEquity.Add(inv.Amount)
	}

	result := &Projection{Company: company, Params: params}
	carried := decimal.Zero
	cumulative := params.OpeningCash
	cumulativeFlow := decimal.Zero
	inflation := decimalOne
	var dscrSum decimal.Decimal
	dscrCount := 0

	for y := 1; y <= params.Horizon; y++ {
		if y > 1 {
			inflation = inflation.Mul(inflationStep)
		}
		yp := YearProjection{Year: y, CalendarYear: params.StartYear + y - 1}

		for _, l := range params.Revenues {
			if l.ActiveIn(y) {
				yp.Revenue = yp.Revenue.Add(lineAmount(l.Amount, l.Indexed, inflation))
			}
		}
		for _, l := range params.Costs {
			if l.ActiveIn(y) {
				yp.Costs = yp.Costs.Add(lineAmount(l.Amount, l.Indexed, inflation))
			}
		}
		for _, f := range flows {
			if !f.ActiveIn(y) {
				continue
			}
			amount := lineAmount(f.AnnualAmount, f.Indexed, inflation)
			switch {
			case strings.EqualFold(f.TargetCompany, company):
				yp.FlowIncome = yp.FlowIncome.Add(amount)
			case strings.EqualFold(f.SourceCompany, company):
				yp.FlowExpense = yp.FlowExpense.Add(amount)
			}
		}
		yp.Revenue = utils.RoundCents(yp.Revenue)
		yp.Costs = utils.RoundCents(yp.Costs)
		yp.FlowIncome = utils.RoundCents(yp.FlowIncome)
		yp.FlowExpense = utils.RoundCents(yp.FlowExpense)
		yp.EBITDA = yp.Revenue.Add(yp.FlowIncome).Sub(yp.Costs).Sub(yp.FlowExpense)

		for _, inv := range params.Investments {
			start := inv.Year
			if start == 0 {
				start = 1
			}
			if y == start {
				yp.EquityOutflow = yp.EquityOutflow.Add(inv.Amount)
			}
			if y >= start && y < start+inv.DepreciationYears {
				yp.Depreciation = yp.Depreciation.Add(inv.Amount.Div(decimal.NewFromInt(int64(inv.DepreciationYears))))
			}
		}
		yp.Depreciation = utils.RoundCents(yp.Depreciation)
		yp.EBIT = yp.EBITDA.Sub(yp.Depreciation)

		for _, l := range loans {
			if y == l.startYear {
				yp.EquityOutflow = yp.EquityOutflow.Sub(l.loan.Principal)
			}
			k := y - l.startYear + 1
			if k < 1 || k > l.loan.Years || !l.remaining.IsPositive() {
				yp.RemainingDebt = yp.RemainingDebt.Add(l.remaining)
				continue
			}
			interest := l.remaining.Mul(l.rate)
			principal := l.annuity.Sub(interest)
			if k == l.loan.Years || principal.GreaterThan(l.remaining) {
				principal = l.remaining
			}
			l.remaining = l.remaining.Sub(principal)
			yp.Interest = yp.Interest.Add(interest)
			yp.Principal = yp.Principal.Add(principal)
			yp.RemainingDebt = yp.RemainingDebt.Add(l.remaining)
		}
		yp.Interest = utils.RoundCents(yp.Interest)
		yp.Principal = utils.RoundCents(yp.Principal)
		yp.RemainingDebt = utils.RoundCents(yp.RemainingDebt)
		yp.DebtService = yp.Interest.Add(yp.Principal)
		yp.PreTaxResult = yp.EBIT.Sub(yp.Interest)

		if yp.PreTaxResult.IsNegative() {
			carried = carried.Add(yp.PreTaxResult.Neg())
		} else {
			yp.LossUsed = minDecimal(carried, yp.PreTaxResult)
			carried = carried.Sub(yp.LossUsed)
			yp.TaxableResult = yp.PreTaxResult.Sub(yp.LossUsed)
		}
		yp.LossCarried = carried
		yp.CorporateTax = corporateTax(yp.TaxableResult, params)
		yp.NetResult = yp.PreTaxResult.Sub(yp.CorporateTax)

		yp.CashFlow = yp.EBITDA.Sub(yp.CorporateTax).Sub(yp.DebtService)
		cumulative = cumulative.Add(yp.CashFlow).Sub(yp.EquityOutflow)
		yp.CumulativeCash = cumulative
		if yp.DebtService.IsPositive() {
			dscr := yp.EBITDA.Sub(yp.CorporateTax).DivRound(yp.DebtService, 2)
			yp.DSCR = &dscr
			dscrSum = dscrSum.Add(dscr)
			dscrCount++
			if result.Summary.MinDSCR == nil || dscr.LessThan(*result.Summary.MinDSCR) {
				lowest := dscr
				result.Summary.MinDSCR = &lowest
			}
		}

		cumulativeFlow = cumulativeFlow.Add(yp.CashFlow)
		if result.Summary.PaybackYear == 0 && cumulativeFlow.IsPositive() && cumulativeFlow.GreaterThanOrEqual(totalEquity) {
			result.Summary.PaybackYear = y
		}
		result.Summary.TotalRevenue = result.Summary.TotalRevenue.Add(yp.Revenue).Add(yp.FlowIncome)
		result.Summary.TotalCorporateTax = result.Summary.TotalCorporateTax.Add(yp.CorporateTax)
		result.Summary.TotalNetResult = result.Summary.TotalNetResult.Add(yp.NetResult)
		result.Years = append(result.Years, yp)
	}

	if dscrCount > 0 {
		avg := dscrSum.DivRound(decimal.NewFromInt(int64(dscrCount)), 2)
		result.Summary.AvgDSCR = &avg
	}
	result.Summary.FinalCumulativeCash = cumulative
	return result
}
