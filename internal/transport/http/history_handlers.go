package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/proto"
	"github.com/vovakirdan/wiredraw-server/internal/store"
)

// HistoryHandlers serves room history outside of a websocket session.
type HistoryHandlers struct {
	broadcaster *core.Broadcaster
	log         *zerolog.Logger
}

// NewHistoryHandlers creates a new history handlers instance.
func NewHistoryHandlers(b *core.Broadcaster, logger *zerolog.Logger) *HistoryHandlers {
	return &HistoryHandlers{
		broadcaster: b,
		log:         logger,
	}
}

// GetMessages returns the most recent messages of a room, oldest first.
// GET /api/rooms/:room/messages?limit=N
func (h *HistoryHandlers) GetMessages(c *gin.Context) {
	roomID := c.Param("room")

	limit := store.MaxRecent
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
		if limit < 1 {
			limit = 1
		}
		limit = store.ClampLimit(limit)
	}

	msgs, err := h.broadcaster.History(c.Request.Context(), roomID, limit)
	if err != nil {
		if errors.Is(err, core.ErrEmptyRoom) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room is required"})
			return
		}
		h.log.Error().Err(err).Str("room", roomID).Str("user_id", c.GetString(ContextKeyUserID)).Msg("failed to load history")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history unavailable"})
		return
	}

	h.log.Debug().
		Str("room", roomID).
		Str("user_id", c.GetString(ContextKeyUserID)).
		Int("count", len(msgs)).
		Msg("history served")

	c.JSON(http.StatusOK, proto.HistoryResponse{
		Room:     roomID,
		Messages: proto.FromMessages(msgs),
	})
}
