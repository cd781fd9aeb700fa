package api

import (
	deviceDelivery "anoapp-backend/internal/device/delivery"
	deviceUsecasePkg "anoapp-backend/internal/device/usecase"
	"anoapp-backend/internal/dispatch"
	feedDelivery "anoapp-backend/internal/feed/delivery"
	feedUsecasePkg "anoapp-backend/internal/feed/usecase"
	"anoapp-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	deviceHandler *deviceDelivery.DeviceHandler
	feedHandler   *feedDelivery.FeedHandler
	sendHandler   *SendHandler
	config        *config.Config
}

func NewHandler(deviceUc deviceUsecasePkg.DeviceUsecase, feedUc feedUsecasePkg.FeedUsecase, dispatcher *dispatch.Service, cfg *config.Config) *Handler {
	return &Handler{
		deviceHandler: deviceDelivery.NewDeviceHandler(deviceUc),
		feedHandler:   feedDelivery.NewFeedHandler(feedUc),
		sendHandler:   NewSendHandler(dispatcher),
		config:        cfg,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-KEY, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.deviceHandler, h.feedHandler, h.sendHandler, h.config)

	return r.Run(addr)
}
