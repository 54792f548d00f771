package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
)

func TestProjectionParams_Defaults(t *testing.T) {
	p := models.ProjectionParams{}.WithDefaults()
	if p.Horizon != 20 || p.StartYear != time.Now().Year() {
		t.Fatalf("unexpected horizon/start %d/%d", p.Horizon, p.StartYear)
	}
	assertDecimal(t, "reduced rate", p.ISReducedRate, "15")
	assertDecimal(t, "normal rate", p.ISNormalRate, "25")
	assertDecimal(t, "ceiling", p.ISReducedCeiling, "42500")

	custom := models.ProjectionParams{Horizon: 10, StartYear: 2030, ISNormalRate: decimal.NewFromInt(28)}.WithDefaults()
	if custom.Horizon != 10 || custom.StartYear != 2030 || !custom.ISReducedRate.IsZero() {
		t.Fatalf("defaults overrode explicit values: %+v", custom)
	}
}

func TestProjectionParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		params models.ProjectionParams
		want   error
	}{
		{"defaults", models.ProjectionParams{}, nil},
		{"horizon too long", models.ProjectionParams{Horizon: 51}, models.ErrInvalidHorizon},
		{"line ends before it starts", models.ProjectionParams{Revenues: []models.ProjectionLine{{Label: "Vente", Amount: dec("1"), StartYear: 5, EndYear: 3}}}, models.ErrInvalidProjectionYr},
		{"loan without duration", models.ProjectionParams{Loans: []models.ProjectionLoan{{Principal: dec("1000")}}}, models.ErrInvalidLoan},
		{"loan with negative rate", models.ProjectionParams{Loans: []models.ProjectionLoan{{Principal: dec("1000"), Years: 5, AnnualRate: dec("-1")}}}, models.ErrInvalidLoan},
		{"investment without depreciation", models.ProjectionParams{Investments: []models.ProjectionInvestment{{Amount: dec("5000")}}}, models.ErrInvalidInvestment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.WithDefaults().Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestIntercompanyFlows(t *testing.T) {
	ctx := setupTestDB(t)
	project, err := models.CreateProject(ctx, &models.NewProject{Name: "Centrale Drôme", Company: " SolarClean Exploitation "})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if project.Company != "SolarClean Exploitation" {
		t.Fatalf("company not trimmed: %q", project.Company)
	}
	other, err := models.CreateProject(ctx, &models.NewProject{Name: "Autre", Company: "SolarClean Exploitation"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := models.CreateProject(ctx, &models.NewProject{Name: "Invalide", Company: "X", Parameters: models.ProjectionParams{Horizon: 80}}); !errors.Is(err, models.ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}

	invalid := []struct {
		name  string
		input models.NewIntercompanyFlow
		want  error
	}{
		{"same company", models.NewIntercompanyFlow{SourceCompany: "Holding", TargetCompany: " holding", Label: "x"}, models.ErrSameCompany},
		{"bad years", models.NewIntercompanyFlow{SourceCompany: "A", TargetCompany: "B", Label: "x", StartYear: 4, EndYear: 2}, models.ErrInvalidFlowYear},
		{"unknown project", models.NewIntercompanyFlow{SourceCompany: "A", TargetCompany: "B", Label: "x", ProjectId: func() *int { id := 9999; return &id }()}, utils.ErrorRecordNotFound},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if _, err := models.CreateIntercompanyFlow(ctx, &input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	create := func(input models.NewIntercompanyFlow) *models.IntercompanyFlow {
		t.Helper()
		flow, err := models.CreateIntercompanyFlow(ctx, &input)
		if err != nil {
			t.Fatalf("CreateIntercompanyFlow(%s): %v", input.Label, err)
		}
		return flow
	}
	attached := create(models.NewIntercompanyFlow{SourceCompany: "Holding", TargetCompany: "Foncière", ProjectId: &project.ID, Label: "Loyer toiture", AnnualAmount: dec("12000")})
	touching := create(models.NewIntercompanyFlow{SourceCompany: "SolarClean Exploitation", TargetCompany: "Holding", Label: "Management fees", AnnualAmount: dec("24000"), Indexed: true})
	create(models.NewIntercompanyFlow{SourceCompany: "Tiers", TargetCompany: "Foncière", Label: "Sans rapport", AnnualAmount: dec("100")})
	create(models.NewIntercompanyFlow{SourceCompany: "Holding", TargetCompany: "SolarClean Exploitation", ProjectId: &other.ID, Label: "Autre projet", AnnualAmount: dec("500")})

	flows, err := models.ListFlowsOfProject(ctx, project)
	if err != nil {
		t.Fatalf("ListFlowsOfProject: %v", err)
	}
	if len(flows) != 2 || flows[0].ID != attached.ID || flows[1].ID != touching.ID {
		t.Fatalf("unexpected project flows %+v", flows)
	}

	byCompany, _ := models.ListIntercompanyFlows(ctx, models.IntercompanyFlowFilter{Company: "SolarClean Exploitation"})
	if len(byCompany) != 2 {
		t.Fatalf("expected 2 flows touching the company, got %d", len(byCompany))
	}
	bySource, _ := models.ListIntercompanyFlows(ctx, models.IntercompanyFlowFilter{SourceCompany: "Holding", Company: "Foncière"})
	if len(bySource) != 1 || bySource[0].ID != attached.ID {
		t.Fatalf("combined filters returned %+v", bySource)
	}

	if _, err := models.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	detached, err := models.GetIntercompanyFlow(ctx, attached.ID)
	if err != nil {
		t.Fatalf("flow deleted with its project: %v", err)
	}
	if detached.ProjectId != nil {
		t.Fatalf("flow still points to the deleted project")
	}
}
