package api

import (
	"net/http"

	deviceDelivery "anoapp-backend/internal/device/delivery"
	feedDelivery "anoapp-backend/internal/feed/delivery"
	"anoapp-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, deviceHandler *deviceDelivery.DeviceHandler, feedHandler *feedDelivery.FeedHandler, sendHandler *SendHandler, cfg *config.Config) {
	api := r.Group("/api/v1")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Device registry routes (REST API key)
		registry := api.Group("")
		registry.Use(deviceDelivery.APIKeyAuth(cfg.RestAPIKey))
		{
			registry.GET("/subscribe", deviceHandler.Subscribe)
			registry.POST("/subscribe", deviceHandler.Subscribe)
			registry.GET("/unsubscribe", deviceHandler.Unsubscribe)
			registry.POST("/unsubscribe", deviceHandler.Unsubscribe)
			registry.POST("/set-device-token", deviceHandler.SetDeviceToken)
			registry.POST("/send", sendHandler.Send)
			registry.POST("/content-published", sendHandler.ContentPublished)
		}

		// Notification feed routes (session token)
		notifications := api.Group("/notifications")
		notifications.Use(feedDelivery.SessionAuth(cfg.SessionSecret))
		{
			notifications.GET("/poll", feedHandler.Poll)
			notifications.POST("/poll", feedHandler.Poll)
			notifications.POST("/read", feedHandler.MarkRead)
			notifications.POST("/seen", feedHandler.Seen)
		}
	}
}
