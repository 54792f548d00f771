package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	info, err := models.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"username":       req.Username,
			"correlation_id": correlationId(c),
		}).Warn("login refused")
		abortWithError(c, err)
		return
	}
	respond(c, info)
}

type changePasswordRequest struct {
	OldPassword string `json:"ancien_mot_de_passe"`
	NewPassword string `json:"nouveau_mot_de_passe"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	if err := models.ChangePassword(c.Request.Context(), userId, req.OldPassword, req.NewPassword); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := models.ListUsers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, users)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondCreated(c, user)
}

func (h *Handler) SetUserActive(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	active, ok := bindActive(c)
	if !ok {
		return
	}
	user, err := models.SetUserActive(c.Request.Context(), id, active)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, user)
}
