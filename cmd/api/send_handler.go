package api

import (
	"net/http"

	"anoapp-backend/internal/dispatch"
	"anoapp-backend/pkg/fcm"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SendHandler exposes push dispatch to trusted callers holding the REST API
// key (the embedding application, not end users).
type SendHandler struct {
	dispatcher *dispatch.Service
}

// NewSendHandler creates a new instance of SendHandler
func NewSendHandler(dispatcher *dispatch.Service) *SendHandler {
	return &SendHandler{dispatcher: dispatcher}
}

type sendRequest struct {
	// Target selects the audience: "all", "user", "topic" or "token".
	Target string `json:"target" form:"target"`
	UserID uint   `json:"user_id" form:"user_id"`
	Topic  string `json:"topic" form:"topic"`
	Token  string `json:"token" form:"token"`

	Title       string `json:"title" form:"title"`
	Body        string `json:"body" form:"body"`
	ClickAction string `json:"click_action" form:"click_action"`

	// Record also appends the message to the recipient's feed.
	Record bool `json:"record" form:"record"`
}

// Send pushes a notification to the requested audience.
//
//	POST /api/v1/send
func (h *SendHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "Invalid request"})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "Title is required"})
		return
	}

	var target dispatch.Target
	switch req.Target {
	case "all":
		target = dispatch.ToAll()
	case "user":
		if req.UserID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "user_id is required"})
			return
		}
		target = dispatch.ToUser(req.UserID)
	case "topic":
		if req.Topic == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "topic is required"})
			return
		}
		target = dispatch.ToTopic(req.Topic)
	case "token":
		if req.Token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "token is required"})
			return
		}
		target = dispatch.ToToken(req.Token)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "Unknown target"})
		return
	}

	ctx := c.Request.Context()
	if req.Record {
		recipient := uint(0)
		if req.Target == "user" {
			recipient = req.UserID
		}
		if _, err := h.dispatcher.RecordFeed(ctx, recipient, req.Title, req.ClickAction); err != nil {
			logrus.WithError(err).Error("record feed entry failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to record notification"})
			return
		}
	}

	result, err := h.dispatcher.Send(ctx, target, fcm.Notification{
		Title:       req.Title,
		Body:        req.Body,
		ClickAction: req.ClickAction,
	})
	if err != nil {
		logrus.WithError(err).Error("dispatch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to send"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error":     false,
		"delivered": result.Delivered,
		"failed":    result.Failed,
	})
}

type contentPublishedRequest struct {
	Title   string `json:"title" form:"title"`
	Excerpt string `json:"excerpt" form:"excerpt"`
	Link    string `json:"link" form:"link"`
}

// ContentPublished announces newly published content: a broadcast feed entry
// plus a push to every registered device.
//
//	POST /api/v1/content-published
func (h *SendHandler) ContentPublished(c *gin.Context) {
	var req contentPublishedRequest
	if err := c.ShouldBind(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "Title is required"})
		return
	}

	result, err := h.dispatcher.ContentPublished(c.Request.Context(), req.Title, req.Excerpt, req.Link)
	if err != nil {
		logrus.WithError(err).Error("content published dispatch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Not able to send"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error":     false,
		"delivered": result.Delivered,
		"failed":    result.Failed,
	})
}
