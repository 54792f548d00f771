package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/middlewares"
	"github.com/solarclean/backoffice/models"
)

func (h *Handler) ListClients(c *gin.Context) {
	var filter models.ClientFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	clients, err := models.ListClients(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, clients)
}

func (h *Handler) GetClient(c *gin.Context) {
	client, err := models.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, client)
}

func (h *Handler) CreateClient(c *gin.Context) {
	var input models.NewClient
	if !bindJSON(c, &input) {
		return
	}
	client, err := models.CreateClient(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, client)
}

func (h *Handler) UpdateClient(c *gin.Context) {
	var input models.NewClient
	if !bindJSON(c, &input) {
		return
	}
	client, err := models.UpdateClient(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, client)
}

func (h *Handler) SetClientActive(c *gin.Context) {
	active, ok := bindActive(c)
	if !ok {
		return
	}
	client, err := models.SetClientActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, client)
}

func (h *Handler) ListSites(c *gin.Context) {
	sites, err := models.ListSites(c.Request.Context(), c.Query("client_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, sites)
}

func (h *Handler) GetSite(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	site, err := middlewares.GetSite(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, site)
}

func (h *Handler) CreateSite(c *gin.Context) {
	var input models.NewSite
	if !bindJSON(c, &input) {
		return
	}
	site, err := models.CreateSite(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, site)
}

func (h *Handler) UpdateSite(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewSite
	if !bindJSON(c, &input) {
		return
	}
	site, err := models.UpdateSite(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, site)
}

func (h *Handler) DeleteSite(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	site, err := models.DeleteSite(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, site)
}

func (h *Handler) ListCatalogArticles(c *gin.Context) {
	articles, err := models.ListCatalogArticles(c.Request.Context(), c.Query("actifs") == "true")
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, articles)
}

func (h *Handler) GetCatalogArticle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	article, err := models.GetCatalogArticle(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, article)
}

func (h *Handler) CreateCatalogArticle(c *gin.Context) {
	var input models.NewCatalogArticle
	if !bindJSON(c, &input) {
		return
	}
	article, err := models.CreateCatalogArticle(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, article)
}

func (h *Handler) UpdateCatalogArticle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewCatalogArticle
	if !bindJSON(c, &input) {
		return
	}
	article, err := models.UpdateCatalogArticle(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, article)
}
