package routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/The-Promised-Neverland/relay/internal/api/handlers"
	"github.com/The-Promised-Neverland/relay/internal/api/middleware"
	"github.com/The-Promised-Neverland/relay/internal/config"
)

type Router struct {
	Config    *config.Config
	Handler   *handlers.Handler
	WSHandler *handlers.WebSocketHandler
	Active    handlers.ActiveCounter
	Metrics   http.Handler
}

func NewRouter(cfg *config.Config, handler *handlers.Handler, wsh *handlers.WebSocketHandler, active handlers.ActiveCounter, metrics http.Handler) *Router {
	return &Router{
		Config:    cfg,
		Handler:   handler,
		WSHandler: wsh,
		Active:    active,
		Metrics:   metrics,
	}
}

func (rtr *Router) SetupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middleware.CorsMiddleware())

	router.GET("/health", rtr.Handler.HealthCheck(rtr.Active))
	if rtr.Metrics != nil {
		router.GET("/metrics", gin.WrapH(rtr.Metrics))
	}

	auth := middleware.OperatorAuth(rtr.Config.OperatorID(), rtr.Config.OperatorToken())
	v1 := router.Group("/api/v1", auth)
	{
		v1.POST("/files", rtr.Handler.UploadFile)          // relay an uploaded file
		v1.POST("/thumbnail", rtr.Handler.SaveThumbnail)   // save the preview image
		v1.POST("/transfers", rtr.Handler.StartTransfer)   // relay a URL in the background
		v1.GET("/tasks", rtr.Handler.GetTask)              // running task, if any
		v1.GET("/host", rtr.Handler.HostMetrics)           // host load and scratch space
		v1.POST("/tasks/cancel", rtr.Handler.CancelTask)   // cancel the running task
	}
	router.GET("/ws", auth, rtr.WSHandler.UpgradeHandler) // Upgrade to websocket request

	return router
}
