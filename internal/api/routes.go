package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"propertylens/internal/database"
)

func SetupRoutes(router *gin.Engine, db *database.Database, logger *logrus.Logger) {
	handler := NewHandler(db, logger)

	api := router.Group("/api")
	{
		api.GET("/map-data", handler.GetMapData)
		api.GET("/stats", handler.GetStats)
	}
}
