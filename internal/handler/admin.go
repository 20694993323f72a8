package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"account_service/internal/models"

	"github.com/gin-gonic/gin"
)

// GET /api/admin/users?limit=
func (h *Handler) ListUsers(c *gin.Context) {
	const op = "handler.ListUsers"

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			newErrorResponse(c, http.StatusBadRequest, "Invalid limit")

			return
		}
		limit = n
	}

	users, err := h.serviceLayer.ListUsers(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GET /api/admin/users/:email
func (h *Handler) GetUser(c *gin.Context) {
	const op = "handler.GetUser"

	user, err := h.serviceLayer.GetUser(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// POST /api/admin/users
func (h *Handler) CreateUser(c *gin.Context) {
	const op = "handler.CreateUser"

	log := h.log.With(slog.String("op", op))

	actor, _ := CurrentUser(c)

	var in models.AdminUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, msgInvalidBody)

		return
	}

	user, err := h.serviceLayer.CreateUser(c.Request.Context(), actor.ID, in)
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// PUT /api/admin/users/:email
func (h *Handler) UpdateUser(c *gin.Context) {
	const op = "handler.UpdateUser"

	log := h.log.With(slog.String("op", op))

	actor, _ := CurrentUser(c)

	var in models.AdminUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, msgInvalidBody)

		return
	}

	updated, err := h.serviceLayer.UpdateUser(c.Request.Context(), actor.ID, c.Param("email"), in)
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// DELETE /api/admin/users/:email
func (h *Handler) DeleteUser(c *gin.Context) {
	const op = "handler.DeleteUser"

	deleted, err := h.serviceLayer.DeleteUser(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.respondError(c, op, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
