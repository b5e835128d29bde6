package handlers

import (
	"context"

	"github.com/CzarCx/qr-brain/internal/feed"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Snapshotter renders the current lote view for new subscribers
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// FeedHandler subscribes websocket clients to lote changes
type FeedHandler struct {
	hub      *feed.Hub
	snapshot Snapshotter
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(hub *feed.Hub, snapshot Snapshotter) *FeedHandler {
	return &FeedHandler{hub: hub, snapshot: snapshot}
}

// HandleSubscribe upgrades the connection and sends the current lote view first
func (h *FeedHandler) HandleSubscribe(c *gin.Context) {
	var initial []byte
	if h.snapshot != nil {
		msg, err := h.snapshot.Snapshot(c.Request.Context())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to render lote snapshot for new subscriber")
		} else {
			initial = msg
		}
	}

	h.hub.Serve(c.Writer, c.Request, initial)
}

// RegisterRoutes registers the handler's routes
func (h *FeedHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/lotes", h.HandleSubscribe)
}
