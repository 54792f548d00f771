package models_test

import (
	"errors"
	"testing"

	"github.com/solarclean/backoffice/models"
)

func TestCreateStockArticle_CodeIsUnique(t *testing.T) {
	ctx := setupTestDB(t)
	article := newStockArticle(t, ctx, " pan-01 ", models.DepotQuantities{"Lyon": dec("10"), "Marseille": dec("2.5")})
	if article.Code != "PAN-01" {
		t.Fatalf("expected code PAN-01, got %q", article.Code)
	}
	assertDecimal(t, "total", article.TotalQuantity, "12.5")

	_, err := models.CreateStockArticle(ctx, &models.NewStockArticle{Code: "Pan-01", Label: "Doublon"})
	if !errors.Is(err, models.ErrStockArticleCodeTaken) {
		t.Fatalf("expected ErrStockArticleCodeTaken, got %v", err)
	}
}

func TestApplyStockMovement_RejectsInvalidMovements(t *testing.T) {
	ctx := setupTestDB(t)
	article := newStockArticle(t, ctx, "BRS-01", models.DepotQuantities{"Lyon": dec("10")})

	tests := []struct {
		name  string
		input models.NewStockMovement
		want  error
	}{
		{"entry without depot", models.NewStockMovement{ArticleId: article.ID, Type: models.MovementTypeIn, Quantity: dec("1")}, models.ErrDepotRequired},
		{"exit without depot", models.NewStockMovement{ArticleId: article.ID, Type: models.MovementTypeOut, Quantity: dec("1"), DestDepot: "Lyon"}, models.ErrDepotRequired},
		{"transfer to itself", models.NewStockMovement{ArticleId: article.ID, Type: models.MovementTypeTransfer, Quantity: dec("1"), SourceDepot: "Lyon", DestDepot: " Lyon "}, models.ErrSameDepot},
		{"zero quantity", models.NewStockMovement{ArticleId: article.ID, Type: models.MovementTypeIn, Quantity: dec("0"), DestDepot: "Lyon"}, models.ErrInvalidMovementQty},
		{"negative adjustment", models.NewStockMovement{ArticleId: article.ID, Type: models.MovementTypeAdjustment, Quantity: dec("-1"), SourceDepot: "Lyon"}, models.ErrInvalidMovementQty},
		{"unknown type", models.NewStockMovement{ArticleId: article.ID, Type: "vol", Quantity: dec("1"), SourceDepot: "Lyon"}, models.ErrInvalidMovementType},
		{"unknown article", models.NewStockMovement{ArticleId: 9999, Type: models.MovementTypeIn, Quantity: dec("1"), DestDepot: "Lyon"}, models.ErrArticleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if _, _, err := models.ApplyStockMovement(ctx, &input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	movements, _ := models.ListStockMovements(ctx, models.StockMovementFilter{ArticleId: article.ID})
	if len(movements) != 0 {
		t.Fatalf("rejected movements were recorded: %d", len(movements))
	}
}

func TestApplyStockMovement_UpdatesDepots(t *testing.T) {
	ctx := setupTestDB(t)
	article := newStockArticle(t, ctx, "PAN-02", models.DepotQuantities{"Lyon": dec("10")})

	movement, updated, err := models.ApplyStockMovement(ctx, &models.NewStockMovement{
		ArticleId:   article.ID,
		Type:        models.MovementTypeTransfer,
		Quantity:    dec("4"),
		SourceDepot: "Lyon",
		DestDepot:   "Marseille",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	assertDecimal(t, "Lyon after transfer", updated.Quantities()["Lyon"], "6")
	assertDecimal(t, "Marseille after transfer", updated.Quantities()["Marseille"], "4")
	assertDecimal(t, "total before", movement.TotalBefore, "10")
	assertDecimal(t, "total after", movement.TotalAfter, "10")
	if movement.Source != models.MovementSourceManual || movement.SourceId != nil {
		t.Fatalf("unexpected movement source %s", movement.Source)
	}

	// a sortie may leave a depot negative
	_, updated, err = models.ApplyStockMovement(ctx, &models.NewStockMovement{
		ArticleId:   article.ID,
		Type:        models.MovementTypeOut,
		Quantity:    dec("8"),
		SourceDepot: "Marseille",
		Reason:      "Chantier Valence",
	})
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	assertDecimal(t, "Marseille after exit", updated.Quantities()["Marseille"], "-4")
	assertDecimal(t, "total after exit", updated.TotalQuantity, "2")

	low, err := models.ListLowStockArticles(ctx)
	if err != nil || len(low) != 1 || low[0].ID != article.ID {
		t.Fatalf("expected the article in the low stock list, got %v (%v)", low, err)
	}

	_, updated, err = models.ApplyStockMovement(ctx, &models.NewStockMovement{
		ArticleId:   article.ID,
		Type:        models.MovementTypeAdjustment,
		Quantity:    dec("0"),
		SourceDepot: "Marseille",
		Reason:      "Inventaire",
	})
	if err != nil {
		t.Fatalf("adjustment: %v", err)
	}
	assertDecimal(t, "Marseille after adjustment", updated.Quantities()["Marseille"], "0")
	assertDecimal(t, "total after adjustment", updated.TotalQuantity, "6")

	_, updated, err = models.ApplyStockMovement(ctx, &models.NewStockMovement{
		ArticleId: article.ID,
		Type:      models.MovementTypeReturn,
		Quantity:  dec("1"),
		DestDepot: "Lyon",
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	assertDecimal(t, "total after return", updated.TotalQuantity, "7")

	low, _ = models.ListLowStockArticles(ctx)
	if len(low) != 0 {
		t.Fatalf("article above its threshold still listed as low")
	}

	stored, err := models.GetStockArticle(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetStockArticle: %v", err)
	}
	if !stored.TotalQuantity.Equal(stored.Quantities().Total()) {
		t.Fatalf("stored total %s differs from depot sum %s", stored.TotalQuantity, stored.Quantities().Total())
	}
	movements, _ := models.ListStockMovements(ctx, models.StockMovementFilter{ArticleId: article.ID, Source: models.MovementSourceManual})
	if len(movements) != 4 {
		t.Fatalf("expected 4 movements, got %d", len(movements))
	}
}
