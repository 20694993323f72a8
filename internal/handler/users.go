package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"account_service/internal/apperr"
	"account_service/internal/models"

	"github.com/gin-gonic/gin"
)

// POST /api/register
func (h *Handler) Register(c *gin.Context) {
	const op = "handler.Register"

	log := h.log.With(slog.String("op", op))

	var in models.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, msgInvalidBody)

		return
	}

	user, err := h.serviceLayer.Register(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// POST /api/authenticate
func (h *Handler) Authenticate(c *gin.Context) {
	const op = "handler.Authenticate"

	log := h.log.With(slog.String("op", op))

	var creds models.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, msgInvalidBody)

		return
	}

	token, err := h.serviceLayer.Authenticate(c.Request.Context(), creds.Email, creds.Password)
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// selfOnly rejects requests whose :email does not belong to the caller.
func (h *Handler) selfOnly(c *gin.Context, op string) (models.User, bool) {
	user, ok := CurrentUser(c)
	if !ok || !strings.EqualFold(strings.TrimSpace(c.Param("email")), user.Email) {
		h.respondError(c, op, apperr.New(apperr.KindUnauthorized, op, "foreign account"))

		return models.User{}, false
	}

	return user, true
}

// PUT /api/users/:email
func (h *Handler) UpdateSelf(c *gin.Context) {
	const op = "handler.UpdateSelf"

	log := h.log.With(slog.String("op", op))

	user, ok := h.selfOnly(c, op)
	if !ok {
		return
	}

	var in models.CredentialsUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, msgInvalidBody)

		return
	}

	res, err := h.serviceLayer.UpdateCredentials(c.Request.Context(), user.ID, in)
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"user": res})
}

// DELETE /api/users/:email
func (h *Handler) Logout(c *gin.Context) {
	const op = "handler.Logout"

	user, ok := h.selfOnly(c, op)
	if !ok {
		return
	}

	if err := h.serviceLayer.Logout(c.Request.Context(), user.ID); err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}
