package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/api/handlers"
	"github.com/nhdinh03/Download-Video/api/middleware"
	"github.com/nhdinh03/Download-Video/internal/domain"
)

// Services bundles what the router dispatches to
type Services interface {
	handlers.VideoService
	handlers.StatusProvider
}

// SetupRouter sets up the HTTP router
func SetupRouter(
	services Services,
	files handlers.FileStore,
	reclaimer handlers.BackgroundTask,
	corsOrigins []string,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log.Named("http")))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(corsOrigins))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(services, reclaimer)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	videoHandler := handlers.NewVideoHandler(services, files, corsOrigins, log.Named("video"))

	api := router.Group("/api/:platform")
	{
		api.POST("/preview", videoHandler.Preview)
		api.GET("/download", videoHandler.File)
		api.GET("/download/stream", videoHandler.Stream)
		api.GET("/download/ws", videoHandler.StreamWS)
	}
	router.GET("/files/:filename", videoHandler.File)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: "not found", Code: string(domain.KindInvalidInput)})
	})

	return router
}
