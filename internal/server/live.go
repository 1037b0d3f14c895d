package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moveehq/movee/backend/internal/stream"
	"go.uber.org/zap"
)

const (
	sseEventSnapshot  = "snapshot"
	sseEventVenue     = "venue"
	sseEventPresence  = "presence"
	sseEventHeartbeat = "heartbeat"

	heartbeatInterval = 15 * time.Second
)

// handleLiveStream upgrades the request to a server-sent event stream scoped
// by the query parameters. The subscription is registered before the snapshot
// is taken, and snapshot versions are primed as delivery floors, so the first
// paint and the delta feed are causally consistent.
func (h *httpHandler) handleLiveStream(c *gin.Context) {
	scope, err := parseScope(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_scope"})
		return
	}

	snapshot, subscription, err := h.query.OpenSubscription(scope)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_scope"})
		return
	}
	defer h.query.CloseSubscription(subscription)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	c.SSEvent(sseEventSnapshot, gin.H{"venues": snapshot})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.SSEvent(sseEventHeartbeat, gin.H{"ts": time.Now().UTC().Unix()})
			c.Writer.Flush()
		case delta, ok := <-subscription.Stream():
			if !ok {
				return
			}
			if !subscription.Admit(delta) {
				continue
			}
			h.writeDelta(c, delta)
		}
	}
}

func (h *httpHandler) writeDelta(c *gin.Context, delta stream.Delta) {
	switch delta.Kind {
	case stream.DeltaKindVenue:
		c.SSEvent(sseEventVenue, delta.Venue)
	case stream.DeltaKindPresence:
		c.SSEvent(sseEventPresence, delta.Presence)
	default:
		h.logger.Warn("unknown delta kind skipped", zap.String("kind", string(delta.Kind)))
		return
	}
	c.Writer.Flush()
}

func parseScope(c *gin.Context) (stream.Scope, error) {
	switch c.Query("scope") {
	case string(stream.ScopeKindGeoFence):
		center, ok := parsePoint(c.Query("lat"), c.Query("lng"))
		if !ok {
			return stream.Scope{}, stream.ErrInvalidScope
		}
		radius, err := strconv.ParseFloat(c.Query("radius"), 64)
		if err != nil {
			return stream.Scope{}, stream.ErrInvalidScope
		}
		return stream.NewGeoFenceScope(center, radius)
	case string(stream.ScopeKindFriendSet):
		return stream.NewFriendSetScope(splitIDs(c.Query("ids")))
	default:
		return stream.Scope{}, stream.ErrInvalidScope
	}
}
