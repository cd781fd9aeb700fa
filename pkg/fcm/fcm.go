// Package fcm is a Firebase Cloud Messaging HTTP v1 client. It sends one
// request per device token (or one per topic), maps FCM error responses to
// typed failure kinds and never turns a single bad token into a batch error.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

const defaultEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// FailureKind classifies a failed send for a single target.
type FailureKind string

const (
	FailureInvalidToken    FailureKind = "invalid_token"
	FailureUnauthenticated FailureKind = "unauthenticated"
	FailureRateLimited     FailureKind = "rate_limited"
	FailureUnavailable     FailureKind = "unavailable"
	FailureUnknown         FailureKind = "unknown"
)

// TokenSource supplies a valid bearer token for each outbound call.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// Notification is the payload delivered to a device.
type Notification struct {
	Title       string
	Body        string
	ClickAction string // URL opened when the notification is clicked
}

// SendResult is the outcome of one send attempt against one target.
type SendResult struct {
	Target string
	OK     bool
	Kind   FailureKind
	Err    error
}

// Client talks to the FCM v1 send endpoint for a single Firebase project.
type Client struct {
	projectID  string
	tokens     TokenSource
	httpClient *http.Client

	// Endpoint overrides the FCM send URL; used by tests.
	Endpoint string
}

// NewClient creates an FCM client. timeout bounds each outbound request.
func NewClient(projectID string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		projectID:  projectID,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		Endpoint:   fmt.Sprintf(defaultEndpoint, projectID),
	}
}

// v1 message envelope: a generic notification block for native platforms plus
// a webpush block so browsers render via the push API with a click action.
type message struct {
	Token        string               `json:"token,omitempty"`
	Topic        string               `json:"topic,omitempty"`
	Notification *notificationPayload `json:"notification,omitempty"`
	Webpush      *webpushPayload      `json:"webpush,omitempty"`
}

type notificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type webpushPayload struct {
	Notification webpushNotification `json:"notification"`
}

type webpushNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ClickAction string `json:"click_action,omitempty"`
}

// SendToDevice pushes a notification to one registration token.
func (c *Client) SendToDevice(ctx context.Context, token string, n Notification) SendResult {
	return c.send(ctx, token, message{Token: token, Notification: payload(n), Webpush: webpush(n)})
}

// SendToTopic pushes a notification to a named topic; FCM fans out
// server-side, so no token resolution happens here.
func (c *Client) SendToTopic(ctx context.Context, topic string, n Notification) SendResult {
	return c.send(ctx, "topic:"+topic, message{Topic: topic, Notification: payload(n), Webpush: webpush(n)})
}

func payload(n Notification) *notificationPayload {
	return &notificationPayload{Title: n.Title, Body: n.Body}
}

func webpush(n Notification) *webpushPayload {
	return &webpushPayload{Notification: webpushNotification{Title: n.Title, Body: n.Body, ClickAction: n.ClickAction}}
}

func (c *Client) send(ctx context.Context, target string, msg message) SendResult {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return SendResult{Target: target, Kind: FailureUnauthenticated, Err: err}
	}

	body, err := json.Marshal(struct {
		Message message `json:"message"`
	}{Message: msg})
	if err != nil {
		return SendResult{Target: target, Kind: FailureUnknown, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{Target: target, Kind: FailureUnknown, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and refused connections surface as Unavailable.
		return SendResult{Target: target, Kind: FailureUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		kind := classify(err)
		logrus.WithError(err).WithFields(logrus.Fields{
			"target": truncate(target),
			"kind":   kind,
		}).Warn("FCM send failed")
		return SendResult{Target: target, Kind: kind, Err: err}
	}

	return SendResult{Target: target, OK: true}
}

// fcmErrorBody mirrors the error detail FCM attaches to non-2xx responses.
type fcmErrorBody struct {
	Error struct {
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func classify(err error) FailureKind {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return FailureUnknown
	}

	var detail fcmErrorBody
	_ = json.Unmarshal([]byte(gerr.Body), &detail)
	errorCode := ""
	for _, d := range detail.Error.Details {
		if d.ErrorCode != "" {
			errorCode = d.ErrorCode
		}
	}

	switch errorCode {
	case "UNREGISTERED", "INVALID_ARGUMENT", "SENDER_ID_MISMATCH":
		return FailureInvalidToken
	case "QUOTA_EXCEEDED":
		return FailureRateLimited
	case "UNAVAILABLE", "INTERNAL":
		return FailureUnavailable
	}

	switch detail.Error.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return FailureUnauthenticated
	}

	switch {
	case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusBadRequest:
		return FailureInvalidToken
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return FailureUnauthenticated
	case gerr.Code == http.StatusTooManyRequests:
		return FailureRateLimited
	case gerr.Code >= 500:
		return FailureUnavailable
	}
	return FailureUnknown
}

func truncate(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}
