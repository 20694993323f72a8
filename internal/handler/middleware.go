package handler

import (
	"log/slog"
	"time"

	"account_service/internal/apperr"
	"account_service/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	userKey         = "user"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func poweredBy(value string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Powered-By", value)
		c.Next()
	}
}

func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		h.log.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
			slog.String("request_id", c.GetString(requestIDKey)),
		)
	}
}

func (h *Handler) cors() gin.HandlerFunc {
	cfg := cors.DefaultConfig()

	origins := h.cfg.CORS.AllowOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = h.cfg.CORS.AllowMethods
	cfg.AllowHeaders = h.cfg.CORS.AllowHeaders
	cfg.AllowCredentials = h.cfg.CORS.AllowCredentials
	cfg.ExposeHeaders = []string{requestIDHeader}

	return cors.New(cfg)
}

// authorize runs the authentication pipeline and stores the user in the
// context.
func (h *Handler) authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "handler.authorize"

		user, err := h.serviceLayer.Authorize(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			h.respondError(c, op, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func (h *Handler) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "handler.adminOnly"

		user, ok := CurrentUser(c)
		if !ok || !user.IsAdmin {
			h.respondError(c, op, apperr.New(apperr.KindForbidden, op, "admin route"))
			return
		}

		c.Next()
	}
}

// CurrentUser returns the user attached by the auth middleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}
