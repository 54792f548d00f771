package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/workflow"
)

const (
	maxPhotoBytes    = 10 << 20
	defaultVGPWindow = 30
)

func (h *Handler) ListEquipments(c *gin.Context) {
	equipments, err := models.ListEquipments(c.Request.Context(), models.EquipmentType(c.Query("type")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, equipments)
}

// ListEquipmentDueForVGP lists equipment whose next inspection falls within ?jours of ?date.
func (h *Handler) ListEquipmentDueForVGP(c *gin.Context) {
	asOf, ok := dateQuery(c, "date", h.now())
	if !ok {
		return
	}
	days := defaultVGPWindow
	if raw := c.Query("jours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "invalid jours")
			return
		}
		days = n
	}
	statuses, err := models.ListEquipmentDueForVGP(c.Request.Context(), asOf, days)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, statuses)
}

func (h *Handler) GetEquipment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	equipment, err := models.GetEquipment(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, equipment)
}

func (h *Handler) CreateEquipment(c *gin.Context) {
	var input models.NewEquipment
	if !bindJSON(c, &input) {
		return
	}
	equipment, err := models.CreateEquipment(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, equipment)
}

func (h *Handler) UpdateEquipment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewEquipment
	if !bindJSON(c, &input) {
		return
	}
	equipment, err := models.UpdateEquipment(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, equipment)
}

func (h *Handler) SetEquipmentActive(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	active, ok := bindActive(c)
	if !ok {
		return
	}
	equipment, err := models.SetEquipmentActive(c.Request.Context(), id, active)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, equipment)
}

func (h *Handler) ListInterventions(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	interventions, err := models.ListInterventions(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, interventions)
}

func (h *Handler) CreateIntervention(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewIntervention
	if !bindJSON(c, &input) {
		return
	}
	intervention, err := models.CreateIntervention(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, intervention)
}

func (h *Handler) GetIntervention(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	intervention, err := models.GetIntervention(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, intervention)
}

func (h *Handler) UploadInterventionPhoto(c *gin.Context) {
	id, ok := idParam(c)
	if !ok || !h.requireStorage(c) {
		return
	}
	data, filename, ok := readUpload(c, maxPhotoBytes)
	if !ok {
		return
	}
	photo, err := workflow.UploadInterventionPhoto(c.Request.Context(), h.Storage, id, filename, data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, photo)
}
