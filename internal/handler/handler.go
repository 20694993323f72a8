package handler

import (
	"log/slog"
	"net/http"

	"account_service/internal/config"
	"account_service/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	serviceLayer service.Service
	cfg          *config.Config
	log          *slog.Logger
}

type errorResponse struct {
	Message string `json:"message"`
}

type notFoundResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

func NewHandler(srvc service.Service, cfg *config.Config, lgr *slog.Logger) *Handler {
	return &Handler{
		serviceLayer: srvc,
		cfg:          cfg,
		log:          lgr,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		requestID(),
		h.logRequests(),
		poweredBy(h.cfg.Server.XPoweredBy),
		h.cors(),
	)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, notFoundResponse{Message: "Not Found!", Code: "ERR_NOT_FOUND"})
	})

	api := router.Group(h.cfg.API.Root)
	{
		api.GET("", h.Root)
		api.POST("/register", h.Register)
		api.POST("/authenticate", h.Authenticate)

		users := api.Group("/users", h.authorize())
		{
			users.PUT("/:email", h.UpdateSelf)
			users.DELETE("/:email", h.Logout)
		}

		admin := api.Group("/admin/users", h.authorize(), h.adminOnly())
		{
			admin.GET("", h.ListUsers)
			admin.GET("/:email", h.GetUser)
			admin.POST("", h.CreateUser)
			admin.PUT("/:email", h.UpdateUser)
			admin.DELETE("/:email", h.DeleteUser)
		}
	}

	return router
}

// GET /api
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.cfg.Server.Name})
}
