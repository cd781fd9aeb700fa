package delivery

import (
	"net/http"
	"strconv"

	"anoapp-backend/internal/feed/usecase"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// FeedHandler exposes the notification feed over HTTP.
type FeedHandler struct {
	feedUsecase usecase.FeedUsecase
}

// NewFeedHandler creates a new instance of FeedHandler
func NewFeedHandler(feedUsecase usecase.FeedUsecase) *FeedHandler {
	return &FeedHandler{feedUsecase: feedUsecase}
}

// Poll returns the caller's unread notifications.
//
//	GET|POST /api/v1/notifications/poll?old_notf_count=N
func (h *FeedHandler) Poll(c *gin.Context) {
	userID := currentUserID(c)
	previousCount, _ := strconv.Atoi(param(c, "old_notf_count"))

	result, err := h.feedUsecase.Poll(c.Request.Context(), userID, previousCount)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("poll failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to load notifications"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// MarkRead records that the caller has read one notification.
//
//	POST /api/v1/notifications/read
func (h *FeedHandler) MarkRead(c *gin.Context) {
	userID := currentUserID(c)
	notificationID, err := strconv.ParseUint(param(c, "notification_id"), 10, 32)
	if err != nil || notificationID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "Invalid notification id"})
		return
	}

	if err := h.feedUsecase.MarkRead(c.Request.Context(), userID, uint(notificationID)); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("mark read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to mark as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"error": false})
}

// Seen clears the caller's new-notification flag.
//
//	POST /api/v1/notifications/seen
func (h *FeedHandler) Seen(c *gin.Context) {
	userID := currentUserID(c)

	if err := h.feedUsecase.Seen(c.Request.Context(), userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("seen failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to update"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"error": false})
}

func param(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.PostForm(name)
}
