package handlers

import (
	"bytes"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/models/reports"
)

func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := models.ListProjects(c.Request.Context(), c.Query("societe"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, projects)
}

func (h *Handler) GetProject(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	project, err := models.GetProject(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, project)
}

func (h *Handler) CreateProject(c *gin.Context) {
	var input models.NewProject
	if !bindJSON(c, &input) {
		return
	}
	project, err := models.CreateProject(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, project)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewProject
	if !bindJSON(c, &input) {
		return
	}
	project, err := models.UpdateProject(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, project)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	project, err := models.DeleteProject(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, project)
}

func (h *Handler) GetProjection(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	projection, err := reports.GetProjectProjection(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, projection)
}

func (h *Handler) ExportProjection(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	projection, err := reports.GetProjectProjection(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteProjectionXlsx(&buf, projection); err != nil {
		abortWithError(c, err)
		return
	}
	sendFile(c, reports.XlsxContentType, fmt.Sprintf("plan-previsionnel-%d.xlsx", id), buf.Bytes())
}

type simulationRequest struct {
	Company string                  `json:"societe"`
	Params  models.ProjectionParams `json:"parametres"`
}

// SimulateProjection runs a projection on unsaved parameters.
func (h *Handler) SimulateProjection(c *gin.Context) {
	var req simulationRequest
	if !bindJSON(c, &req) {
		return
	}
	projection, err := reports.SimulateProjection(c.Request.Context(), req.Company, req.Params)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, projection)
}

func (h *Handler) ListFlows(c *gin.Context) {
	var filter models.IntercompanyFlowFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err.Error())
		return
	}
	flows, err := models.ListIntercompanyFlows(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, flows)
}

func (h *Handler) GetFlow(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	flow, err := models.GetIntercompanyFlow(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, flow)
}

func (h *Handler) CreateFlow(c *gin.Context) {
	var input models.NewIntercompanyFlow
	if !bindJSON(c, &input) {
		return
	}
	flow, err := models.CreateIntercompanyFlow(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, flow)
}

func (h *Handler) UpdateFlow(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewIntercompanyFlow
	if !bindJSON(c, &input) {
		return
	}
	flow, err := models.UpdateIntercompanyFlow(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, flow)
}

func (h *Handler) DeleteFlow(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	flow, err := models.DeleteIntercompanyFlow(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, flow)
}
