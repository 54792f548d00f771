package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/workflow"
)

func (h *Handler) ListSupplierInvoices(c *gin.Context) {
	var filter models.SupplierInvoiceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	invoices, err := models.ListSupplierInvoices(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoices)
}

func (h *Handler) GetSupplierInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	invoice, err := models.GetSupplierInvoice(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

func (h *Handler) CreateSupplierInvoice(c *gin.Context) {
	var input models.NewSupplierInvoice
	if !bindJSON(c, &input) {
		return
	}
	invoice, err := models.CreateSupplierInvoice(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, invoice)
}

func (h *Handler) UpdateSupplierInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewSupplierInvoice
	if !bindJSON(c, &input) {
		return
	}
	invoice, err := models.UpdateSupplierInvoice(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

func (h *Handler) DeleteSupplierInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	invoice, err := models.DeleteSupplierInvoice(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

func (h *Handler) PostSupplierInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	invoice, err := workflow.PostSupplierInvoice(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

func (h *Handler) ReverseSupplierInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	invoice, err := workflow.ReverseSupplierInvoiceMovements(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, invoice)
}

func (h *Handler) UploadSupplierInvoicePdf(c *gin.Context) {
	id, ok := idParam(c)
	if !ok || !h.requireStorage(c) {
		return
	}
	data, _, ok := readUpload(c, maxPdfBytes)
	if !ok {
		return
	}
	objectPath, err := workflow.UploadSupplierInvoicePdf(c.Request.Context(), h.Storage, id, data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, gin.H{"fichier_pdf": objectPath})
}

func (h *Handler) DownloadSupplierInvoicePdf(c *gin.Context) {
	id, ok := idParam(c)
	if !ok || !h.requireStorage(c) {
		return
	}
	data, err := workflow.DownloadSupplierInvoicePdf(c.Request.Context(), h.Storage, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sendFile(c, "application/pdf", fmt.Sprintf("facture-fournisseur-%d.pdf", id), data)
}
