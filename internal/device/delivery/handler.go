package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"anoapp-backend/internal/device/usecase"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DeviceHandler exposes the device registry over HTTP.
type DeviceHandler struct {
	deviceUsecase usecase.DeviceUsecase
}

// NewDeviceHandler creates a new instance of DeviceHandler
func NewDeviceHandler(deviceUsecase usecase.DeviceUsecase) *DeviceHandler {
	return &DeviceHandler{deviceUsecase: deviceUsecase}
}

// param reads a request parameter from the query string or the form body, so
// clients can register with either GET or POST.
func param(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.PostForm(name)
}

// Subscribe registers or refreshes a device.
//
//	GET|POST /api/v1/subscribe?device_token=...&device_uuid=...&subscription=...
func (h *DeviceHandler) Subscribe(c *gin.Context) {
	// The topic travels as "subscription" on the wire.
	topic := param(c, "subscription")
	if topic == "" {
		topic = param(c, "topic")
	}
	in := usecase.SubscribeInput{
		UUID:      param(c, "device_uuid"),
		Token:     param(c, "device_token"),
		Topic:     topic,
		Name:      param(c, "device_name"),
		OSVersion: param(c, "os_version"),
	}

	id, err := h.deviceUsecase.Subscribe(c.Request.Context(), in)
	if err != nil {
		var verr *usecase.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":           true,
				"message":         verr.Reason,
				"subscription_id": nil,
			})
			return
		}
		logrus.WithError(err).Error("subscribe failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":           true,
			"message":         "Not able to subscribe",
			"subscription_id": nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error":           false,
		"message":         "Device token registered",
		"subscription_id": id,
	})
}

// Unsubscribe removes a device by uuid.
//
//	GET|POST /api/v1/unsubscribe?device_uuid=...
func (h *DeviceHandler) Unsubscribe(c *gin.Context) {
	deviceUUID := param(c, "device_uuid")

	removed, err := h.deviceUsecase.Unsubscribe(c.Request.Context(), deviceUUID)
	if err != nil {
		var verr *usecase.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": verr.Reason})
			return
		}
		logrus.WithError(err).Error("unsubscribe failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to unsubscribe"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "No device token found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"error": false, "message": "The device token was successfully removed"})
}

// SetDeviceToken attaches a push token to a user account.
//
//	POST /api/v1/set-device-token?user_id=...&device_token=...
func (h *DeviceHandler) SetDeviceToken(c *gin.Context) {
	userID, _ := strconv.ParseUint(param(c, "user_id"), 10, 32)
	token := param(c, "device_token")

	id, err := h.deviceUsecase.RegisterUserToken(c.Request.Context(), uint(userID), token)
	if err != nil {
		if errors.Is(err, usecase.ErrTokenExists) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Token already exists"})
			return
		}
		var verr *usecase.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": verr.Reason})
			return
		}
		logrus.WithError(err).Error("set device token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to register token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}
