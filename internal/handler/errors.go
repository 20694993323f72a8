package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"account_service/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidBody  = "Invalid request body"
	msgInvalidToken = "Invalid access token"
	msgInternal     = "Internal error"
)

// errorStatus maps a service error to the response status and the message
// shown to clients. Token and login failures collapse into one message each.
func errorStatus(err error) (int, string) {
	e, _ := apperr.As(err)

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, validationMessage(e)
	case apperr.KindMissingCredentials:
		return http.StatusBadRequest, "Email and password are required."
	case apperr.KindEmailTaken:
		return http.StatusConflict, "Email is already registered, use another one."
	case apperr.KindUserExists:
		return http.StatusConflict, "User exists"
	case apperr.KindNotFound:
		if e != nil && e.Field == "session" {
			return http.StatusNotFound, "Session not found"
		}
		return http.StatusNotFound, "User not found"
	case apperr.KindAuthenticationFailed:
		return http.StatusUnauthorized, "Authentication failed"
	case apperr.KindInvalidToken, apperr.KindExpiredToken:
		return http.StatusForbidden, msgInvalidToken
	case apperr.KindAccountInactive:
		return http.StatusForbidden, "User not active"
	case apperr.KindAccountBlocked:
		return http.StatusForbidden, "User is blocked"
	case apperr.KindUnauthorized:
		return http.StatusForbidden, "Unauthorized"
	case apperr.KindForbidden:
		return http.StatusMethodNotAllowed, "Not allowed"
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable, "Service unavailable"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func validationMessage(e *apperr.Error) string {
	if e == nil || e.Field == "" {
		return "Invalid input"
	}

	field := strings.ToUpper(e.Field[:1]) + e.Field[1:]

	switch e.Rule {
	case "required":
		return field + " is required"
	case "email":
		return "Invalid email"
	case "max":
		return field + " is too long"
	case "min":
		return field + " is too short"
	default:
		return "Invalid " + e.Field
	}
}

// respondError logs err with its internal detail and writes the mapped
// client response.
func (h *Handler) respondError(c *gin.Context, op string, err error) {
	status, msg := errorStatus(err)

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", c.GetString(requestIDKey)),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Info("request rejected", slog.Int("status", status), slog.Any("error", err))
	}

	newErrorResponse(c, status, msg)
}
