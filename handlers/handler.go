package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/middlewares"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
	"github.com/solarclean/backoffice/workflow"
)

const dateLayout = "2006-01-02"

// Handler serves the /api routes. Storage may be nil, in which case file
// endpoints answer 503.
type Handler struct {
	Storage   utils.BlobStorage
	Publisher workflow.NotificationPublisher
	Now       func() time.Time
}

func New(storage utils.BlobStorage, publisher workflow.NotificationPublisher) *Handler {
	return &Handler{Storage: storage, Publisher: publisher, Now: time.Now}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// Register mounts every route under /api. Login is public; everything else
// needs a bearer token, and billing, accounting and projection need admin.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/auth/login", h.Login)

	authed := api.Group("", middlewares.AuthMiddleware(), middlewares.LoaderMiddleware())
	admin := authed.Group("", middlewares.RequireRole(string(models.UserRoleAdmin)))
	staff := authed.Group("", middlewares.RequireRole(string(models.UserRoleAdmin), string(models.UserRoleTechnicien)))

	authed.POST("/auth/mot-de-passe", h.ChangePassword)
	admin.GET("/utilisateurs", h.ListUsers)
	admin.POST("/utilisateurs", h.CreateUser)
	admin.PUT("/utilisateurs/:id/actif", h.SetUserActive)

	staff.GET("/clients", h.ListClients)
	staff.GET("/clients/:id", h.GetClient)
	admin.POST("/clients", h.CreateClient)
	admin.PUT("/clients/:id", h.UpdateClient)
	admin.PUT("/clients/:id/actif", h.SetClientActive)
	staff.GET("/sites", h.ListSites)
	staff.GET("/sites/:id", h.GetSite)
	admin.POST("/sites", h.CreateSite)
	admin.PUT("/sites/:id", h.UpdateSite)
	admin.DELETE("/sites/:id", h.DeleteSite)
	staff.GET("/prestations", h.ListCatalogArticles)
	staff.GET("/prestations/:id", h.GetCatalogArticle)
	admin.POST("/prestations", h.CreateCatalogArticle)
	admin.PUT("/prestations/:id", h.UpdateCatalogArticle)

	admin.GET("/devis", h.ListQuotes)
	admin.POST("/devis", h.CreateQuote)
	admin.GET("/devis/:id", h.GetQuote)
	admin.PUT("/devis/:id", h.UpdateQuote)
	admin.DELETE("/devis/:id", h.DeleteQuote)
	admin.POST("/devis/:id/envoyer", h.SendQuote)
	admin.POST("/devis/:id/accepter", h.AcceptQuote)
	admin.POST("/devis/:id/refuser", h.RefuseQuote)
	admin.POST("/devis/:id/valider-commande", h.ValidateQuoteOrder)
	admin.POST("/devis/:id/acompte", h.CreateDepositInvoice)
	admin.POST("/devis/:id/facturer", h.ConvertQuoteToInvoice)

	admin.GET("/factures", h.ListInvoices)
	admin.POST("/factures", h.CreateInvoice)
	admin.GET("/factures/echeancier", h.ReceivableAging)
	admin.GET("/factures/:id", h.GetInvoice)
	admin.POST("/factures/:id/paiements", h.AddInvoicePayment)
	admin.DELETE("/factures/:id/paiements/:paymentId", h.RemoveInvoicePayment)
	admin.PUT("/factures/:id/statut", h.UpdateInvoiceStatus)
	admin.POST("/factures/:id/relances", h.AddDunningLetter)
	admin.POST("/factures/:id/envoyer", h.SendInvoice)
	admin.POST("/factures/:id/annuler", h.CancelInvoice)
	admin.POST("/factures/:id/avoir", h.CreateCreditNoteFromInvoice)
	staff.POST("/factures/:id/rapport", h.UploadInvoiceReport)
	admin.GET("/factures/:id/rapport", h.DownloadInvoiceReport)

	admin.GET("/avoirs", h.ListCreditNotes)
	admin.POST("/avoirs", h.CreateCreditNote)
	admin.GET("/avoirs/:id", h.GetCreditNote)
	admin.POST("/avoirs/:id/envoyer", h.SendCreditNote)
	admin.POST("/avoirs/:id/appliquer", h.ApplyCreditNote)
	admin.POST("/avoirs/:id/rembourser", h.RefundCreditNote)

	admin.GET("/contrats", h.ListContracts)
	admin.POST("/contrats", h.CreateContract)
	admin.POST("/contrats/calculer-prochaine-date", h.ComputeNextBillingDate)
	admin.GET("/contrats/alertes", h.ContractAlerts)
	admin.POST("/contrats/facturation", h.RunRecurringBilling)
	admin.GET("/contrats/:id", h.GetContract)
	admin.PUT("/contrats/:id", h.UpdateContract)
	admin.PUT("/contrats/:id/actif", h.SetContractActive)
	admin.POST("/contrats/:id/generer-facture", h.GenerateContractInvoice)

	admin.GET("/ecritures", h.ListEntries)
	admin.POST("/ecritures", h.CreateEntry)
	admin.GET("/ecritures/export", h.ExportJournal)
	admin.GET("/ecritures/balance", h.TrialBalance)
	admin.GET("/ecritures/grand-livre/:compte", h.AccountLedger)
	admin.POST("/ecritures/lettrage", h.LetterLines)
	admin.DELETE("/ecritures/lettrage", h.UnletterLines)
	admin.GET("/ecritures/:id", h.GetEntry)
	admin.PUT("/ecritures/:id/lignes", h.ReplaceEntryLines)
	admin.POST("/ecritures/:id/valider", h.ValidateEntry)
	admin.DELETE("/ecritures/:id", h.DeleteEntry)

	staff.GET("/stock/articles", h.ListStockArticles)
	staff.GET("/stock/articles/:id", h.GetStockArticle)
	admin.POST("/stock/articles", h.CreateStockArticle)
	admin.PUT("/stock/articles/:id", h.UpdateStockArticle)
	staff.GET("/stock/mouvements", h.ListStockMovements)
	staff.POST("/stock/mouvements", h.ApplyStockMovement)
	staff.GET("/stock/alertes", h.ListLowStock)

	admin.GET("/factures-fournisseurs", h.ListSupplierInvoices)
	admin.POST("/factures-fournisseurs", h.CreateSupplierInvoice)
	admin.GET("/factures-fournisseurs/:id", h.GetSupplierInvoice)
	admin.PUT("/factures-fournisseurs/:id", h.UpdateSupplierInvoice)
	admin.DELETE("/factures-fournisseurs/:id", h.DeleteSupplierInvoice)
	admin.POST("/factures-fournisseurs/:id/comptabiliser", h.PostSupplierInvoice)
	admin.POST("/factures-fournisseurs/:id/extourner", h.ReverseSupplierInvoice)
	admin.POST("/factures-fournisseurs/:id/pdf", h.UploadSupplierInvoicePdf)
	admin.GET("/factures-fournisseurs/:id/pdf", h.DownloadSupplierInvoicePdf)

	staff.GET("/equipements", h.ListEquipments)
	staff.GET("/equipements/vgp", h.ListEquipmentDueForVGP)
	staff.GET("/equipements/:id", h.GetEquipment)
	admin.POST("/equipements", h.CreateEquipment)
	admin.PUT("/equipements/:id", h.UpdateEquipment)
	admin.PUT("/equipements/:id/actif", h.SetEquipmentActive)
	staff.GET("/equipements/:id/interventions", h.ListInterventions)
	staff.POST("/equipements/:id/interventions", h.CreateIntervention)
	staff.GET("/interventions/:id", h.GetIntervention)
	staff.POST("/interventions/:id/photos", h.UploadInterventionPhoto)

	admin.GET("/projets", h.ListProjects)
	admin.POST("/projets", h.CreateProject)
	admin.POST("/projets/simulation", h.SimulateProjection)
	admin.GET("/projets/:id", h.GetProject)
	admin.PUT("/projets/:id", h.UpdateProject)
	admin.DELETE("/projets/:id", h.DeleteProject)
	admin.GET("/projets/:id/projection", h.GetProjection)
	admin.GET("/projets/:id/projection/export", h.ExportProjection)
	admin.GET("/flux-intersocietes", h.ListFlows)
	admin.POST("/flux-intersocietes", h.CreateFlow)
	admin.GET("/flux-intersocietes/:id", h.GetFlow)
	admin.PUT("/flux-intersocietes/:id", h.UpdateFlow)
	admin.DELETE("/flux-intersocietes/:id", h.DeleteFlow)
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func idParam(c *gin.Context) (int, bool) {
	return intParam(c, "id")
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// dateQuery parses an optional YYYY-MM-DD query parameter, falling back to def.
func dateQuery(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return def, true
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		badRequest(c, "invalid "+name+", expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func optionalDateQuery(c *gin.Context, name string) (*time.Time, bool) {
	if strings.TrimSpace(c.Query(name)) == "" {
		return nil, true
	}
	t, ok := dateQuery(c, name, time.Time{})
	if !ok {
		return nil, false
	}
	return &t, true
}

type activeRequest struct {
	Active *bool `json:"actif"`
}

func bindActive(c *gin.Context) (bool, bool) {
	var req activeRequest
	if !bindJSON(c, &req) {
		return false, false
	}
	if req.Active == nil {
		badRequest(c, "actif is required")
		return false, false
	}
	return *req.Active, true
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}
