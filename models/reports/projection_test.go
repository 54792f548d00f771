package reports_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/models/reports"
	"github.com/xuri/excelize/v2"
)

func TestBuildProjection_CorporateTaxAndInflation(t *testing.T) {
	params := models.ProjectionParams{
		Horizon:       3,
		StartYear:     2026,
		InflationRate: dec("2"),
		Revenues:      []models.ProjectionLine{{Label: "Prestations", Amount: dec("100000"), Indexed: true}},
		Costs:         []models.ProjectionLine{{Label: "Salaires", Amount: dec("40000")}},
	}
	p := reports.BuildProjection("SolarClean", params, nil)
	if len(p.Years) != 3 {
		t.Fatalf("expected 3 years, got %d", len(p.Years))
	}

	want := []struct {
		calendar int
		revenue  string
		ebitda   string
		tax      string
	}{
		{2026, "100000", "60000", "10750"},
		{2027, "102000", "62000", "11250"},
		{2028, "104040", "64040", "11760"},
	}
	for i, w := range want {
		y := p.Years[i]
		if y.Year != i+1 || y.CalendarYear != w.calendar {
			t.Fatalf("year %d: unexpected numbering %d/%d", i, y.Year, y.CalendarYear)
		}
		assertDecimal(t, "revenue", y.Revenue, w.revenue)
		assertDecimal(t, "costs stay flat", y.Costs, "40000")
		assertDecimal(t, "EBITDA", y.EBITDA, w.ebitda)
		assertDecimal(t, "corporate tax", y.CorporateTax, w.tax)
		if y.DSCR != nil {
			t.Fatalf("DSCR without debt service in year %d", y.Year)
		}
	}
	assertDecimal(t, "cumulative cash", p.Years[0].CumulativeCash, "49250")
	assertDecimal(t, "total tax", p.Summary.TotalCorporateTax, "33760")
	if p.Summary.MinDSCR != nil || p.Summary.AvgDSCR != nil {
		t.Fatalf("DSCR summary without loans")
	}
	if p.Summary.PaybackYear != 1 {
		t.Fatalf("expected payback in year 1, got %d", p.Summary.PaybackYear)
	}
}

func TestBuildProjection_LossCarryForward(t *testing.T) {
	params := models.ProjectionParams{
		Horizon:  4,
		Revenues: []models.ProjectionLine{{Label: "Contrats", Amount: dec("30000"), StartYear: 2}},
		Costs:    []models.ProjectionLine{{Label: "Structure", Amount: dec("20000")}},
	}
	p := reports.BuildProjection("SolarClean", params, nil)

	want := []struct {
		preTax, used, carried, taxable, tax string
	}{
		{"-20000", "0", "20000", "0", "0"},
		{"10000", "10000", "10000", "0", "0"},
		{"10000", "10000", "0", "0", "0"},
		{"10000", "0", "0", "10000", "1500"},
	}
	for i, w := range want {
		y := p.Years[i]
		assertDecimal(t, "pre-tax result", y.PreTaxResult, w.preTax)
		assertDecimal(t, "loss used", y.LossUsed, w.used)
		assertDecimal(t, "loss carried", y.LossCarried, w.carried)
		assertDecimal(t, "taxable result", y.TaxableResult, w.taxable)
		assertDecimal(t, "corporate tax", y.CorporateTax, w.tax)
	}
}

func TestBuildProjection_LoanAndDSCR(t *testing.T) {
	params := models.ProjectionParams{
		Horizon:  5,
		Revenues: []models.ProjectionLine{{Label: "Prestations", Amount: dec("50000")}},
		Loans:    []models.ProjectionLoan{{Label: "Nacelles", Principal: dec("100000"), Years: 4}},
	}
	p := reports.BuildProjection("SolarClean", params, nil)

	remaining := []string{"75000", "50000", "25000", "0", "0"}
	for i, r := range remaining {
		assertDecimal(t, "remaining debt", p.Years[i].RemainingDebt, r)
	}
	for _, y := range p.Years[:4] {
		assertDecimal(t, "principal", y.Principal, "25000")
		assertDecimal(t, "interest", y.Interest, "0")
		if y.DSCR == nil {
			t.Fatalf("missing DSCR in year %d", y.Year)
		}
		assertDecimal(t, "DSCR", *y.DSCR, "1.67")
	}
	if p.Years[4].DSCR != nil {
		t.Fatalf("DSCR after the loan is repaid")
	}
	assertDecimal(t, "min DSCR", *p.Summary.MinDSCR, "1.67")
	assertDecimal(t, "avg DSCR", *p.Summary.AvgDSCR, "1.67")
	// the borrowed principal comes in as cash in the first year
	assertDecimal(t, "first year cash", p.Years[0].CumulativeCash, "116750")
}

func TestBuildProjection_InvestmentPayback(t *testing.T) {
	params := models.ProjectionParams{
		Horizon:     6,
		Revenues:    []models.ProjectionLine{{Label: "Prestations", Amount: dec("30000")}},
		Investments: []models.ProjectionInvestment{{Label: "Robots", Amount: dec("100000"), Year: 1, DepreciationYears: 5}},
	}
	p := reports.BuildProjection("SolarClean", params, nil)

	assertDecimal(t, "depreciation", p.Years[0].Depreciation, "20000")
	assertDecimal(t, "depreciation ends", p.Years[5].Depreciation, "0")
	assertDecimal(t, "tax on EBIT", p.Years[0].CorporateTax, "1500")
	assertDecimal(t, "first year cash", p.Years[0].CumulativeCash, "-71500")
	if p.Summary.PaybackYear != 4 {
		t.Fatalf("expected payback in year 4, got %d", p.Summary.PaybackYear)
	}
}

func TestBuildProjection_IntercompanyFlows(t *testing.T) {
	flows := []*models.IntercompanyFlow{
		{SourceCompany: "Holding", TargetCompany: "solarclean", AnnualAmount: dec("12000")},
		{SourceCompany: "SolarClean", TargetCompany: "Holding", AnnualAmount: dec("5000"), Indexed: true},
		{SourceCompany: "Holding", TargetCompany: "Foncière", AnnualAmount: dec("99999")},
		{SourceCompany: "Foncière", TargetCompany: "SolarClean", AnnualAmount: dec("1000"), StartYear: 2, EndYear: 2},
	}
	params := models.ProjectionParams{Horizon: 3, InflationRate: dec("10")}
	p := reports.BuildProjection("SolarClean", params, flows)

	want := []struct{ income, expense, ebitda string }{
		{"12000", "5000", "7000"},
		{"13000", "5500", "7500"},
		{"12000", "6050", "5950"},
	}
	for i, w := range want {
		y := p.Years[i]
		assertDecimal(t, "flow income", y.FlowIncome, w.income)
		assertDecimal(t, "flow expense", y.FlowExpense, w.expense)
		assertDecimal(t, "EBITDA", y.EBITDA, w.ebitda)
	}
}

func TestGetProjectProjection(t *testing.T) {
	ctx := setupTestDB(t)
	project, err := models.CreateProject(ctx, &models.NewProject{
		Name:    "Plan 2026",
		Company: "SolarClean",
		Parameters: models.ProjectionParams{
			Horizon:  2,
			Revenues: []models.ProjectionLine{{Label: "Prestations", Amount: dec("10000")}},
		},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := models.CreateIntercompanyFlow(ctx, &models.NewIntercompanyFlow{
		SourceCompany: "SolarClean", TargetCompany: "Holding", Label: "Redevance", AnnualAmount: dec("2000"),
	}); err != nil {
		t.Fatalf("CreateIntercompanyFlow: %v", err)
	}

	p, err := reports.GetProjectProjection(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProjectProjection: %v", err)
	}
	if p.Company != "SolarClean" || len(p.Years) != 2 {
		t.Fatalf("unexpected projection %+v", p)
	}
	assertDecimal(t, "flow expense", p.Years[0].FlowExpense, "2000")
	assertDecimal(t, "EBITDA", p.Years[0].EBITDA, "8000")

	if _, err := reports.SimulateProjection(context.Background(), "SolarClean", models.ProjectionParams{Horizon: 60}); err == nil {
		t.Fatalf("simulation accepted an invalid horizon")
	}
	simulated, err := reports.SimulateProjection(ctx, "SolarClean", models.ProjectionParams{Horizon: 1})
	if err != nil {
		t.Fatalf("SimulateProjection: %v", err)
	}
	assertDecimal(t, "simulated EBITDA", simulated.Years[0].EBITDA, "-2000")

	var buf bytes.Buffer
	if err := reports.WriteProjectionXlsx(&buf, p); err != nil {
		t.Fatalf("WriteProjectionXlsx: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Plan previsionnel")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "Annee" {
		t.Fatalf("unexpected projection sheet %v", rows)
	}
	company, _ := f.GetCellValue("Synthese", "B1")
	if company != "SolarClean" {
		t.Fatalf("summary sheet company %q", company)
	}
}
