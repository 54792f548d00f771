package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/middlewares"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/models/reports"
	"github.com/solarclean/backoffice/workflow"
)

const maxPdfBytes = 10 << 20

type invoiceRow struct {
	*models.Invoice
	ClientName string `json:"client_societe"`
}

func (h *Handler) ListInvoices(c *gin.Context) {
	var filter models.InvoiceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	invoices, err := models.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ClientId)
	}
	names := middlewares.ClientNames(c.Request.Context(), ids)
	rows := make([]invoiceRow, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, invoiceRow{Invoice: inv, ClientName: names[inv.ClientId]})
	}
	respond(c, rows)
}

func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	invoice, err := models.GetInvoice(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

func (h *Handler) CreateInvoice(c *gin.Context) {
	var input models.NewInvoice
	if !bindJSON(c, &input) {
		return
	}
	invoice, err := models.CreateInvoice(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, invoice)
}

func (h *Handler) AddInvoicePayment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewInvoicePayment
	if !bindJSON(c, &input) {
		return
	}
	invoice, err := models.AddInvoicePayment(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, invoice)
}

func (h *Handler) RemoveInvoicePayment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	paymentId, ok := intParam(c, "paymentId")
	if !ok {
		return
	}
	invoice, err := models.RemoveInvoicePayment(c.Request.Context(), id, paymentId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

type invoiceStatusRequest struct {
	Status models.InvoiceStatus `json:"statut"`
}

func (h *Handler) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req invoiceStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := models.UpdateInvoiceStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

func (h *Handler) AddDunningLetter(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewDunningLetter
	if !bindJSON(c, &input) {
		return
	}
	invoice, err := models.AddDunningLetter(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, invoice)
}

func (h *Handler) SendInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	invoice, err := models.SendInvoice(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

type cancelRequest struct {
	Reason string `json:"motif"`
}

func (h *Handler) CancelInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	invoice, err := models.CancelInvoice(c.Request.Context(), id, req.Reason)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

type creditNoteFromInvoiceRequest struct {
	Reason    string                 `json:"motif"`
	UsageType models.CreditNoteUsage `json:"utilisation_type"`
}

func (h *Handler) CreateCreditNoteFromInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req creditNoteFromInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	creditNote, err := models.CreateCreditNoteFromInvoice(c.Request.Context(), id, req.Reason, req.UsageType)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, creditNote)
}

func (h *Handler) UploadInvoiceReport(c *gin.Context) {
	id, ok := idParam(c)
	if !ok || !h.requireStorage(c) {
		return
	}
	data, _, ok := readUpload(c, maxPdfBytes)
	if !ok {
		return
	}
	objectPath, err := workflow.UploadInvoiceReport(c.Request.Context(), h.Storage, id, data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, gin.H{"rapport_pdf": objectPath})
}

func (h *Handler) DownloadInvoiceReport(c *gin.Context) {
	id, ok := idParam(c)
	if !ok || !h.requireStorage(c) {
		return
	}
	data, err := workflow.DownloadInvoiceReport(c.Request.Context(), h.Storage, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sendFile(c, "application/pdf", "rapport.pdf", data)
}

func (h *Handler) ReceivableAging(c *gin.Context) {
	asOf, ok := dateQuery(c, "date", h.now())
	if !ok {
		return
	}
	aging, err := reports.GetReceivableAging(c.Request.Context(), asOf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, aging)
}
