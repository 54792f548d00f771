package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/middlewares"
	"github.com/solarclean/backoffice/models"
)

type movementRow struct {
	*models.StockMovement
	ArticleCode string `json:"article_code"`
}

func (h *Handler) ListStockArticles(c *gin.Context) {
	articles, err := models.ListStockArticles(c.Request.Context(), c.Query("q"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, articles)
}

func (h *Handler) GetStockArticle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	article, err := models.GetStockArticle(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, article)
}

func (h *Handler) CreateStockArticle(c *gin.Context) {
	var input models.NewStockArticle
	if !bindJSON(c, &input) {
		return
	}
	article, err := models.CreateStockArticle(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, article)
}

func (h *Handler) UpdateStockArticle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewStockArticle
	if !bindJSON(c, &input) {
		return
	}
	article, err := models.UpdateStockArticle(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, article)
}

func (h *Handler) ListStockMovements(c *gin.Context) {
	var filter models.StockMovementFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	movements, err := models.ListStockMovements(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	ids := make([]int, 0, len(movements))
	for _, m := range movements {
		ids = append(ids, m.ArticleId)
	}
	codes := middlewares.StockArticleCodes(c.Request.Context(), ids)
	rows := make([]movementRow, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, movementRow{StockMovement: m, ArticleCode: codes[m.ArticleId]})
	}
	respond(c, rows)
}

// ApplyStockMovement records a manual movement and returns it with the updated article.
func (h *Handler) ApplyStockMovement(c *gin.Context) {
	var input models.NewStockMovement
	if !bindJSON(c, &input) {
		return
	}
	if input.Date.IsZero() {
		input.Date = h.now()
	}
	movement, article, err := models.ApplyStockMovement(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, gin.H{"mouvement": movement, "article": article})
}

func (h *Handler) ListLowStock(c *gin.Context) {
	articles, err := models.ListLowStockArticles(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, articles)
}
