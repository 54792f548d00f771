package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/models"
)

func (h *Handler) ListCreditNotes(c *gin.Context) {
	var filter models.CreditNoteFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	creditNotes, err := models.ListCreditNotes(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, creditNotes)
}

func (h *Handler) GetCreditNote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	creditNote, err := models.GetCreditNote(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, creditNote)
}

func (h *Handler) CreateCreditNote(c *gin.Context) {
	var input models.NewCreditNote
	if !bindJSON(c, &input) {
		return
	}
	creditNote, err := models.CreateCreditNote(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, creditNote)
}

func (h *Handler) SendCreditNote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	creditNote, err := models.SendCreditNote(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, creditNote)
}

type applyCreditNoteRequest struct {
	InvoiceId int `json:"facture_id"`
}

func (h *Handler) ApplyCreditNote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req applyCreditNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.InvoiceId <= 0 {
		badRequest(c, "facture_id is required")
		return
	}
	creditNote, invoice, err := models.ApplyCreditNote(c.Request.Context(), id, req.InvoiceId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, gin.H{"avoir": creditNote, "facture": invoice})
}

func (h *Handler) RefundCreditNote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewCreditNoteRefund
	if !bindJSON(c, &input) {
		return
	}
	creditNote, err := models.RefundCreditNote(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, creditNote)
}
