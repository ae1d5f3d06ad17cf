package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/benchwatch-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName   string
	CORSOrigins   []string
	ModelsHandler *handlers.ModelsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		models := api.Group("/models")
		models.POST("/train", cfg.ModelsHandler.Train)
		models.POST("/detect", cfg.ModelsHandler.Detect)
		models.POST("/compare", cfg.ModelsHandler.Compare)
		models.POST("/anomalies/export", cfg.ModelsHandler.ExportAnomalies)
		models.GET("/versions", cfg.ModelsHandler.ListVersions)
		models.GET("/files", cfg.ModelsHandler.ListDatasetFiles)
	}

	return router
}
