package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/workflow"
)

func (h *Handler) ListContracts(c *gin.Context) {
	var filter models.RecurringContractFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	contracts, err := models.ListRecurringContracts(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, contracts)
}

func (h *Handler) GetContract(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	contract, err := models.GetRecurringContract(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, contract)
}

func (h *Handler) CreateContract(c *gin.Context) {
	var input models.NewRecurringContract
	if !bindJSON(c, &input) {
		return
	}
	contract, err := models.CreateRecurringContract(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, contract)
}

func (h *Handler) UpdateContract(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewRecurringContract
	if !bindJSON(c, &input) {
		return
	}
	contract, err := models.UpdateRecurringContract(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, contract)
}

func (h *Handler) SetContractActive(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	active, ok := bindActive(c)
	if !ok {
		return
	}
	contract, err := models.SetRecurringContractActive(c.Request.Context(), id, active)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, contract)
}

type nextBillingDateRequest struct {
	CurrentDate string                   `json:"dateActuelle"`
	Frequency   models.ContractFrequency `json:"frequence"`
	BillingDay  int                      `json:"jourFacturation"`
	Amount      decimal.Decimal          `json:"montantFacturation"`
}

type nextBillingDateResponse struct {
	NextBillingDate  string          `json:"prochaineDateFacturation"`
	EstimatedRevenue decimal.Decimal `json:"caAnnuelEstime"`
}

// ComputeNextBillingDate is a pure calculation; nothing is stored.
func (h *Handler) ComputeNextBillingDate(c *gin.Context) {
	var req nextBillingDateRequest
	if !bindJSON(c, &req) {
		return
	}
	current := h.now()
	if v := strings.TrimSpace(req.CurrentDate); v != "" {
		// accept both a plain date and a full timestamp
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			if t, err = time.Parse(time.RFC3339, v); err != nil {
				badRequest(c, "invalid dateActuelle")
				return
			}
		}
		current = t
	}
	next, err := models.NextBillingDate(current, req.Frequency, req.BillingDay)
	if err != nil {
		abortWithError(c, err)
		return
	}
	revenue, err := models.EstimateAnnualRevenue(req.Amount, req.Frequency)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, nextBillingDateResponse{
		NextBillingDate:  next.Format(dateLayout),
		EstimatedRevenue: revenue,
	})
}

func (h *Handler) GenerateContractInvoice(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	asOf, ok := dateQuery(c, "date", h.now())
	if !ok {
		return
	}
	invoice, err := models.GenerateInvoiceFromContract(c.Request.Context(), id, asOf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, invoice)
}

func (h *Handler) ContractAlerts(c *gin.Context) {
	asOf, ok := dateQuery(c, "date", h.now())
	if !ok {
		return
	}
	alerts, err := models.ComputeContractAlerts(c.Request.Context(), asOf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, alerts)
}

// RunRecurringBilling triggers the same run as the scheduled job.
func (h *Handler) RunRecurringBilling(c *gin.Context) {
	asOf, ok := dateQuery(c, "date", h.now())
	if !ok {
		return
	}
	result, err := workflow.RunRecurringBilling(c.Request.Context(), asOf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, result)
}
