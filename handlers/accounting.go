package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/models/reports"
)

func (h *Handler) ListEntries(c *gin.Context) {
	var filter models.AccountingEntryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	entries, err := models.ListAccountingEntries(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, entries)
}

func (h *Handler) GetEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entry, err := models.GetAccountingEntry(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, entry)
}

func (h *Handler) CreateEntry(c *gin.Context) {
	var input models.NewAccountingEntry
	if !bindJSON(c, &input) {
		return
	}
	entry, err := models.CreateAccountingEntry(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, entry)
}

type entryLinesRequest struct {
	Lines []models.NewAccountingEntryLine `json:"lignes"`
}

func (h *Handler) ReplaceEntryLines(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req entryLinesRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := models.ReplaceEntryLines(c.Request.Context(), id, req.Lines)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, entry)
}

func (h *Handler) ValidateEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entry, err := models.ValidateEntry(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, entry)
}

func (h *Handler) DeleteEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entry, err := models.DeleteAccountingEntry(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, entry)
}

type letteringRequest struct {
	LineIds []int  `json:"ligne_ids"`
	Code    string `json:"code"`
}

func (h *Handler) LetterLines(c *gin.Context) {
	var req letteringRequest
	if !bindJSON(c, &req) {
		return
	}
	lines, err := models.LetterEntryLines(c.Request.Context(), req.LineIds, req.Code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, lines)
}

func (h *Handler) UnletterLines(c *gin.Context) {
	var req letteringRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := models.UnletterEntryLines(c.Request.Context(), req.LineIds); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ExportJournal(c *gin.Context) {
	var filter models.AccountingEntryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	entries, err := models.ListAccountingEntries(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteJournalXlsx(&buf, entries); err != nil {
		abortWithError(c, err)
		return
	}
	name := "journal.xlsx"
	if filter.Journal != "" {
		name = fmt.Sprintf("journal-%s.xlsx", filter.Journal)
	}
	sendFile(c, reports.XlsxContentType, name, buf.Bytes())
}

func (h *Handler) TrialBalance(c *gin.Context) {
	from, ok := optionalDateQuery(c, "du")
	if !ok {
		return
	}
	to, ok := optionalDateQuery(c, "au")
	if !ok {
		return
	}
	balances, err := reports.GetTrialBalance(c.Request.Context(), from, to, c.Query("valides") == "true")
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, balances)
}

func (h *Handler) AccountLedger(c *gin.Context) {
	from, ok := optionalDateQuery(c, "du")
	if !ok {
		return
	}
	to, ok := optionalDateQuery(c, "au")
	if !ok {
		return
	}
	ledger, err := reports.GetAccountLedger(c.Request.Context(), c.Param("compte"), from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, ledger)
}
