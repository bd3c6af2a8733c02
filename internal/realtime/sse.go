package realtime

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// heartbeatInterval is how often each subscriber stream emits a heartbeat
// event, independent of application events. Clients treat a silent stream
// as a lost connection and reconnect.
const heartbeatInterval = 25 * time.Second

// TokenValidator resolves a dashboard token to the account it is scoped to.
type TokenValidator func(token string) (uuid.UUID, error)

// ServeSSE handles the long-lived subscriber stream for an account.
// Each message is framed as "event: <name>\ndata: <json>\n\n".
func ServeSSE(hub *Hub, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		accountID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			logger.Warn("response writer does not support streaming")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Writer.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := hub.Register(accountID)
		defer hub.Unregister(sub)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				if err := writeSSE(c, "heartbeat", []byte("{}")); err != nil {
					return
				}
				flusher.Flush()
			case ev := <-sub.Events():
				if err := writeSSE(c, ev.Name, ev.Data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(c *gin.Context, event string, data []byte) error {
	_, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	return err
}
