package eventsub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Notifier consumes verified notifications. The session lifecycle handler
// implements it.
type Notifier interface {
	HandleNotification(ctx context.Context, subType string, event json.RawMessage)
	HandleRevocation(ctx context.Context, twitchUserID string)
}

// Handler is the inbound webhook endpoint. Callers see only 200 or 403.
type Handler struct {
	secret   string
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates the webhook handler.
func NewHandler(secret string, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{secret: secret, notifier: notifier, logger: logger, now: time.Now}
}

type notificationBody struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Condition struct {
			BroadcasterUserID string `json:"broadcaster_user_id"`
		} `json:"condition"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// Webhook handles POST /webhooks/twitch.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusForbidden)
		return
	}
	messageID := c.GetHeader(HeaderMessageID)
	timestamp := c.GetHeader(HeaderMessageTimestamp)
	signature := c.GetHeader(HeaderMessageSignature)
	if !VerifySignature(h.secret, messageID, timestamp, signature, body, h.now()) {
		h.logger.Warn("webhook signature rejected", zap.String("message_id", messageID))
		c.Status(http.StatusForbidden)
		return
	}

	var parsed notificationBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Verified but unparseable; acknowledge so the platform stops retrying.
		c.Status(http.StatusOK)
		return
	}

	switch c.GetHeader(HeaderMessageType) {
	case MessageTypeVerification:
		c.String(http.StatusOK, parsed.Challenge)
	case MessageTypeRevocation:
		h.logger.Info("subscription revoked",
			zap.String("type", parsed.Subscription.Type),
			zap.String("twitch_user_id", parsed.Subscription.Condition.BroadcasterUserID))
		h.notifier.HandleRevocation(c.Request.Context(), parsed.Subscription.Condition.BroadcasterUserID)
		c.Status(http.StatusOK)
	case MessageTypeNotification:
		h.notifier.HandleNotification(c.Request.Context(), parsed.Subscription.Type, parsed.Event)
		c.Status(http.StatusOK)
	default:
		// Unknown message types are acknowledged for forward compatibility.
		c.Status(http.StatusOK)
	}
}
