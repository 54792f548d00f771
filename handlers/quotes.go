package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/middlewares"
	"github.com/solarclean/backoffice/models"
)

type quoteRow struct {
	*models.Quote
	ClientName string `json:"client_societe"`
}

func (h *Handler) ListQuotes(c *gin.Context) {
	var filter models.QuoteFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	quotes, err := models.ListQuotes(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	ids := make([]string, 0, len(quotes))
	for _, q := range quotes {
		ids = append(ids, q.ClientId)
	}
	names := middlewares.ClientNames(c.Request.Context(), ids)
	rows := make([]quoteRow, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, quoteRow{Quote: q, ClientName: names[q.ClientId]})
	}
	respond(c, rows)
}

func (h *Handler) GetQuote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	quote, err := models.GetQuote(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, quote)
}

func (h *Handler) CreateQuote(c *gin.Context) {
	var input models.NewQuote
	if !bindJSON(c, &input) {
		return
	}
	quote, err := models.CreateQuote(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, quote)
}

func (h *Handler) UpdateQuote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewQuote
	if !bindJSON(c, &input) {
		return
	}
	quote, err := models.UpdateQuote(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, quote)
}

func (h *Handler) DeleteQuote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	quote, err := models.DeleteQuote(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, quote)
}

func (h *Handler) quoteAction(c *gin.Context, action func(ctx context.Context, id int) (*models.Quote, error)) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	quote, err := action(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, quote)
}

func (h *Handler) SendQuote(c *gin.Context) {
	h.quoteAction(c, models.SendQuote)
}

func (h *Handler) AcceptQuote(c *gin.Context) {
	h.quoteAction(c, models.AcceptQuote)
}

func (h *Handler) RefuseQuote(c *gin.Context) {
	h.quoteAction(c, models.RefuseQuote)
}

type validateOrderRequest struct {
	PurchaseOrderRef string `json:"reference_bon_commande"`
}

func (h *Handler) ValidateQuoteOrder(c *gin.Context) {
	var req validateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	h.quoteAction(c, func(ctx context.Context, id int) (*models.Quote, error) {
		return models.ValidateQuoteOrder(ctx, id, req.PurchaseOrderRef)
	})
}

type depositRequest struct {
	Percent decimal.Decimal `json:"pourcentage"`
}

func (h *Handler) CreateDepositInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req depositRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := models.CreateDepositInvoiceFromQuote(c.Request.Context(), id, req.Percent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, invoice)
}

type convertQuoteRequest struct {
	DepositInvoiceId *int `json:"facture_acompte_id"`
}

func (h *Handler) ConvertQuoteToInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req convertQuoteRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	invoice, err := models.ConvertQuoteToInvoice(c.Request.Context(), id, req.DepositInvoiceId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, invoice)
}
