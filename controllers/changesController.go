package controllers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"civicsync/events"
)

const keepAliveInterval = 30 * time.Second

// ChangesController streams issue changes to dashboards over SSE.
type ChangesController struct {
	subscriber events.Subscriber
	keepAlive  time.Duration
}

func NewChangesController(subscriber events.Subscriber) *ChangesController {
	return &ChangesController{subscriber: subscriber, keepAlive: keepAliveInterval}
}

// StreamChanges holds one subscription per connected client.
func (cc *ChangesController) StreamChanges(c *gin.Context) {
	if cc.subscriber == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Change notifications are not available"})
		return
	}

	ctx := c.Request.Context()
	sub, err := cc.subscriber.Subscribe(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to subscribe to issue changes")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Change notifications are not available"})
		return
	}
	defer sub.Close()

	ticker := time.NewTicker(cc.keepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case change, ok := <-sub.Changes():
			if !ok {
				return false
			}
			c.SSEvent("change", change)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
